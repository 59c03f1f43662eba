package models

import (
	"time"

	"gorm.io/datatypes"
)

type DataScope string

const (
	ScopeGlobal DataScope = "global"
	ScopePlayer DataScope = "player"
	ScopePublic DataScope = "public"
)

// Valid reports whether s is one of the three scopes.
func (s DataScope) Valid() bool {
	return s == ScopeGlobal || s == ScopePlayer || s == ScopePublic
}

// DataRecord is one value in the scoped key-value store.
// StorageKey equals Key except for player records, where it carries the owner namespace.
type DataRecord struct {
	ID               uint64         `json:"-" gorm:"primaryKey;autoIncrement"`
	GameSlug         string         `json:"gameSlug" gorm:"type:varchar(128);not null;uniqueIndex:idx_data_game_storage_key,priority:1"`
	StorageKey       string         `json:"-" gorm:"type:varchar(512);not null;uniqueIndex:idx_data_game_storage_key,priority:2"`
	Key              string         `json:"key" gorm:"column:logical_key;type:varchar(256);not null"`
	Scope            DataScope      `json:"scope" gorm:"type:varchar(16);not null;index"`
	OwnerID          *string        `json:"ownerId,omitempty" gorm:"type:varchar(128);index"`
	OwnerDisplayName string         `json:"ownerDisplayName,omitempty"`
	Value            datatypes.JSON `json:"value"`
	CreatedAt        time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
}
