package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"game-battle-service/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultMaxActiveBattles bounds how many pending+active battles one device may hold per game.
const DefaultMaxActiveBattles = 9

// BattleRegistry creates and looks up battles and enforces the per-device cap.
type BattleRegistry struct {
	DB        *gorm.DB
	MaxActive int
}

func NewBattleRegistry(db *gorm.DB, maxActive int) *BattleRegistry {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveBattles
	}
	return &BattleRegistry{DB: db, MaxActive: maxActive}
}

// Create stores a new pending battle owned by creator.
func (r *BattleRegistry) Create(ctx context.Context, gameSlug, creator string, mapData json.RawMessage, isPrivate bool) (*models.Battle, error) {
	if creator == "" {
		return nil, ErrUnauthorized
	}
	if _, err := ParseMapData(mapData); err != nil {
		return nil, err
	}
	if err := r.checkCapacity(ctx, gameSlug, creator); err != nil {
		return nil, err
	}

	battle := &models.Battle{
		ID:              uuid.NewString(),
		GameSlug:        gameSlug,
		Player1DeviceID: creator,
		Status:          models.BattleStatusPending,
		MapData:         datatypes.JSON(bytes.TrimSpace(mapData)),
		IsPrivate:       isPrivate,
	}
	if err := r.DB.WithContext(ctx).Create(battle).Error; err != nil {
		return nil, unavailable("create battle", err)
	}
	return battle, nil
}

// FindByGameAndID loads a battle; battles of other games are not visible.
func (r *BattleRegistry) FindByGameAndID(ctx context.Context, gameSlug, battleID string) (*models.Battle, error) {
	var b models.Battle
	err := r.DB.WithContext(ctx).Where("id = ? AND game_slug = ?", battleID, gameSlug).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "battle %s not found", battleID)
	}
	if err != nil {
		return nil, unavailable("load battle", err)
	}
	return &b, nil
}

// CountActiveFor counts pending and active battles in which deviceID takes part.
func (r *BattleRegistry) CountActiveFor(ctx context.Context, gameSlug, deviceID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Battle{}).
		Where("game_slug = ? AND status IN ?", gameSlug, []models.BattleStatus{models.BattleStatusPending, models.BattleStatusActive}).
		Where("player1_device_id = ? OR player2_device_id = ?", deviceID, deviceID).
		Count(&n).Error
	if err != nil {
		return 0, unavailable("count active battles", err)
	}
	return n, nil
}

func (r *BattleRegistry) checkCapacity(ctx context.Context, gameSlug, deviceID string) error {
	n, err := r.CountActiveFor(ctx, gameSlug, deviceID)
	if err != nil {
		return err
	}
	if n >= int64(r.MaxActive) {
		return newError(KindCapacityExceeded, "device already has %d active battles (max %d)", n, r.MaxActive)
	}
	return nil
}

// ListForDevice returns the device's battles, most recently updated first.
// An empty statuses slice means every status.
func (r *BattleRegistry) ListForDevice(ctx context.Context, gameSlug, deviceID string, statuses []models.BattleStatus, limit int) ([]models.Battle, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.DB.WithContext(ctx).
		Where("game_slug = ?", gameSlug).
		Where("player1_device_id = ? OR player2_device_id = ?", deviceID, deviceID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []models.Battle
	if err := q.Order("updated_at DESC").Order("id").Limit(limit).Find(&out).Error; err != nil {
		return nil, unavailable("list battles", err)
	}
	return out, nil
}

// ListOpen returns public pending battles not created by excludeDevice, oldest first.
func (r *BattleRegistry) ListOpen(ctx context.Context, gameSlug, excludeDevice string, limit int) ([]models.Battle, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []models.Battle
	err := r.DB.WithContext(ctx).
		Where("game_slug = ? AND status = ? AND is_private = ?", gameSlug, models.BattleStatusPending, false).
		Where("player1_device_id <> ?", excludeDevice).
		Order("created_at").Order("id").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, unavailable("list open battles", err)
	}
	return out, nil
}
