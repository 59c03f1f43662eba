package services

import (
	"context"
	"errors"

	"game-battle-service/models"

	"gorm.io/gorm"
)

// TurnLog is the append-only turn history of battles.
type TurnLog struct {
	DB *gorm.DB
}

func NewTurnLog(db *gorm.DB) *TurnLog {
	return &TurnLog{DB: db}
}

// append inserts a turn inside the caller's transaction. A duplicate (battle, number) pair
// means another submitter won the race.
func (l *TurnLog) append(tx *gorm.DB, turn *models.Turn) error {
	err := tx.Create(turn).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return newError(KindConflict, "turn %d already recorded", turn.TurnNumber)
	}
	return err
}

// Range returns turns with after < turnNumber <= upTo in ascending order. upTo <= 0 means no bound.
func (l *TurnLog) Range(ctx context.Context, battleID string, after, upTo int) ([]models.Turn, error) {
	q := l.DB.WithContext(ctx).Where("battle_id = ? AND turn_number > ?", battleID, after)
	if upTo > 0 {
		q = q.Where("turn_number <= ?", upTo)
	}
	turns := []models.Turn{}
	if err := q.Order("turn_number ASC").Find(&turns).Error; err != nil {
		return nil, unavailable("load turns", err)
	}
	return turns, nil
}

// Since returns every turn after the given number, ascending.
func (l *TurnLog) Since(ctx context.Context, battleID string, after int) ([]models.Turn, error) {
	return l.Range(ctx, battleID, after, 0)
}
