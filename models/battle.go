// models/battle.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type BattleStatus string

const (
	BattleStatusPending   BattleStatus = "pending"
	BattleStatusActive    BattleStatus = "active"
	BattleStatusCompleted BattleStatus = "completed"
	BattleStatusAbandoned BattleStatus = "abandoned"
)

// Terminal reports whether no transition may leave s.
func (s BattleStatus) Terminal() bool {
	return s == BattleStatusCompleted || s == BattleStatusAbandoned
}

// Open reports whether s counts against a player's concurrent battle cap.
func (s BattleStatus) Open() bool {
	return s == BattleStatusPending || s == BattleStatusActive
}

type EndReason string

const (
	EndReasonForfeit   EndReason = "forfeit"
	EndReasonDraw      EndReason = "draw"
	EndReasonCancelled EndReason = "cancelled"
	EndReasonCompleted EndReason = "completed"
)

// Battle is one asynchronous two-player match inside a game namespace.
type Battle struct {
	ID              string  `json:"battleId" gorm:"primaryKey;type:varchar(36)"`
	GameSlug        string  `json:"gameSlug" gorm:"type:varchar(128);not null;index:idx_battles_game_status,priority:1"`
	Player1DeviceID string  `json:"player1DeviceId" gorm:"type:varchar(128);not null;index"`
	Player2DeviceID *string `json:"player2DeviceId" gorm:"type:varchar(128);index"`

	Status             BattleStatus `json:"status" gorm:"type:varchar(16);not null;index:idx_battles_game_status,priority:2"`
	CurrentTurn        int          `json:"currentTurn" gorm:"not null"`
	CurrentPlayerIndex int          `json:"currentPlayerIndex" gorm:"not null"`

	WinnerID  *string    `json:"winnerId" gorm:"type:varchar(128)"`
	EndReason *EndReason `json:"endReason" gorm:"type:varchar(16)"`

	// MapData is the scenario blob supplied at creation; CurrentState is derived from it on join
	// and then advanced by each accepted turn.
	MapData      datatypes.JSON `json:"mapData"`
	CurrentState datatypes.JSON `json:"currentState"`
	IsPrivate    bool           `json:"isPrivate"`

	LastTurnAt *time.Time `json:"lastTurnAt"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// PlayerIndex returns 0 for player1, 1 for player2 and -1 for anyone else.
func (b *Battle) PlayerIndex(deviceID string) int {
	switch {
	case deviceID == "":
		return -1
	case deviceID == b.Player1DeviceID:
		return 0
	case b.Player2DeviceID != nil && deviceID == *b.Player2DeviceID:
		return 1
	default:
		return -1
	}
}

// Participant returns the device id at index, or "" if the slot is empty.
func (b *Battle) Participant(index int) string {
	switch index {
	case 0:
		return b.Player1DeviceID
	case 1:
		if b.Player2DeviceID != nil {
			return *b.Player2DeviceID
		}
	}
	return ""
}

// Turn is one accepted move. TurnNumber runs 1..Battle.CurrentTurn with no gaps.
type Turn struct {
	ID         uint64         `json:"-" gorm:"primaryKey;autoIncrement"`
	BattleID   string         `json:"battleId" gorm:"type:varchar(36);not null;uniqueIndex:idx_turns_battle_number,priority:1"`
	TurnNumber int            `json:"turnNumber" gorm:"not null;uniqueIndex:idx_turns_battle_number,priority:2"`
	DeviceID   string         `json:"deviceId" gorm:"type:varchar(128);not null"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt" gorm:"autoCreateTime"`
}
