package models

import (
	"time"

	"gorm.io/datatypes"
)

const DefaultScoreCategory = "default"

// Score is an immutable leaderboard submission. Rank is computed on read.
type Score struct {
	ID          uint64         `json:"-" gorm:"primaryKey;autoIncrement"`
	GameSlug    string         `json:"gameSlug" gorm:"type:varchar(128);not null;index:idx_scores_game_category,priority:1"`
	Category    string         `json:"category" gorm:"type:varchar(64);not null;index:idx_scores_game_category,priority:2"`
	DeviceID    string         `json:"deviceId" gorm:"type:varchar(128);not null;index"`
	DisplayName string         `json:"displayName"` // snapshot at submission time
	Score       float64        `json:"score" gorm:"not null"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"autoCreateTime"`
}
