package services

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"game-battle-service/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	maxCategoryLength       = 64
)

// LeaderboardService records scores and serves per-category rankings.
type LeaderboardService struct {
	DB       *gorm.DB
	Identity IdentityResolver
}

func NewLeaderboardService(db *gorm.DB, identity IdentityResolver) *LeaderboardService {
	return &LeaderboardService{DB: db, Identity: identity}
}

type RankedScore struct {
	Rank        int             `json:"rank"`
	DeviceID    string          `json:"deviceId"`
	DisplayName string          `json:"displayName"`
	Score       float64         `json:"score"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   string          `json:"createdAt"`
}

type CategoryBoard struct {
	Category string        `json:"category"`
	Scores   []RankedScore `json:"scores"`
}

// Submit stores an immutable score, snapshotting the device's current display name.
func (s *LeaderboardService) Submit(ctx context.Context, gameSlug, deviceID string, score float64, category string, metadata json.RawMessage) (*models.Score, error) {
	if deviceID == "" {
		return nil, ErrUnauthorized
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, validationError("score must be a finite number")
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = models.DefaultScoreCategory
	}
	if len(category) > maxCategoryLength {
		return nil, validationError("category must be at most %d bytes", maxCategoryLength)
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return nil, validationError("metadata must be valid JSON")
	}

	rec := &models.Score{
		GameSlug:    gameSlug,
		Category:    category,
		DeviceID:    deviceID,
		DisplayName: resolveName(ctx, s.Identity, deviceID),
		Score:       score,
	}
	if len(metadata) > 0 {
		rec.Metadata = datatypes.JSON(metadata)
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, unavailable("submit score", err)
	}
	return rec, nil
}

// List returns the top scores of every category, categories in alphabetical order.
// Rank is positional: equal scores get consecutive ranks, earliest submission first.
func (s *LeaderboardService) List(ctx context.Context, gameSlug string, limit int) ([]CategoryBoard, error) {
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 1 || limit > MaxLeaderboardLimit {
		return nil, validationError("limit must be between 1 and %d", MaxLeaderboardLimit)
	}

	var categories []string
	err := s.DB.WithContext(ctx).Model(&models.Score{}).
		Where("game_slug = ?", gameSlug).
		Distinct("category").
		Order("category").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, unavailable("list categories", err)
	}

	boards := make([]CategoryBoard, 0, len(categories))
	for _, cat := range categories {
		var rows []models.Score
		err := s.DB.WithContext(ctx).
			Where("game_slug = ? AND category = ?", gameSlug, cat).
			Order("score DESC").Order("created_at ASC").Order("id ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return nil, unavailable("list scores", err)
		}
		board := CategoryBoard{Category: cat, Scores: make([]RankedScore, 0, len(rows))}
		for i, r := range rows {
			board.Scores = append(board.Scores, RankedScore{
				Rank:        i + 1,
				DeviceID:    r.DeviceID,
				DisplayName: r.DisplayName,
				Score:       r.Score,
				Metadata:    json.RawMessage(r.Metadata),
				CreatedAt:   r.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			})
		}
		boards = append(boards, board)
	}
	return boards, nil
}
