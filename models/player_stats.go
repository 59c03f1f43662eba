package models

import "time"

// PlayerStats holds per-game battle counters for a device (denormalized for reads).
// It is a projection of battles/turns and can be rebuilt by reconciliation.
type PlayerStats struct {
	GameSlug    string `json:"gameSlug" gorm:"primaryKey;type:varchar(128)"`
	DeviceID    string `json:"deviceId" gorm:"primaryKey;type:varchar(128)"`
	Wins        int64  `json:"wins" gorm:"not null"`
	Losses      int64  `json:"losses" gorm:"not null"`
	Draws       int64  `json:"draws" gorm:"not null"`
	TurnsPlayed int64  `json:"turnsPlayed" gorm:"not null"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// DeviceProfile mirrors display data from the identity service, keyed by device.
type DeviceProfile struct {
	DeviceID    string    `json:"deviceId" gorm:"primaryKey;type:varchar(128)"`
	GameSlug    string    `json:"gameSlug" gorm:"type:varchar(128);index"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Battle{},
		&Turn{},
		&DataRecord{},
		&Score{},
		&PlayerStats{},
		&DeviceProfile{},
	}
}
