package services

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	PlacementUnit = "unit"
	PlacementItem = "item"
)

// MapData is the scenario blob a creator supplies. Placements are a closed set of variants.
type MapData struct {
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
	Placements []Placement `json:"placements"`
}

// Placement is a unit or item entry. Which fields apply depends on Type.
type Placement struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	UnitType string `json:"unitType,omitempty"`
	ItemType string `json:"itemType,omitempty"`
	X        *int   `json:"x"`
	Y        *int   `json:"y"`
	HP       *int   `json:"hp,omitempty"`
	// PlayerIndex selects the owner of a unit; absent means player1.
	PlayerIndex *int `json:"playerIndex,omitempty"`
	// CanMoveOn=false turns an item into a BlockedTile; anything else is decoration.
	CanMoveOn *bool `json:"canMoveOn,omitempty"`
}

// Unit is a live unit in BattleState.
type Unit struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	HP    int    `json:"hp"`
	Owner string `json:"owner"`
}

// BlockedTile is an impassable tile. Fixed once the battle is active.
type BlockedTile struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	ItemType string `json:"itemType"`
}

// BattleState is the mutable snapshot stored in Battle.CurrentState.
type BattleState struct {
	// Width and Height bound unit positions; zero leaves that axis unbounded.
	Width        int           `json:"width,omitempty"`
	Height       int           `json:"height,omitempty"`
	Units        []Unit        `json:"units"`
	BlockedTiles []BlockedTile `json:"blockedTiles"`
}

// ParseMapData decodes and validates raw map data. Malformed placements are rejected, never coerced.
func ParseMapData(raw []byte) (*MapData, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, validationError("mapData is required")
	}
	var md MapData
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, validationError("mapData is not a valid map object: %v", err)
	}
	if md.Width < 0 || md.Height < 0 {
		return nil, validationError("map dimensions must not be negative")
	}

	seen := make(map[string]bool)
	for i := range md.Placements {
		p := &md.Placements[i]
		if err := md.validatePlacement(i, p); err != nil {
			return nil, err
		}
		if p.Type == PlacementUnit {
			if p.ID == "" {
				p.ID = fmt.Sprintf("u%d", i)
			}
			if seen[p.ID] {
				return nil, validationError("placement %d: duplicate unit id %q", i, p.ID)
			}
			seen[p.ID] = true
		}
	}
	return &md, nil
}

func (md *MapData) validatePlacement(i int, p *Placement) error {
	if p.X == nil || p.Y == nil {
		return validationError("placement %d: x and y are required", i)
	}
	if !md.inBounds(*p.X, *p.Y) {
		return validationError("placement %d: position (%d,%d) is outside the map", i, *p.X, *p.Y)
	}
	switch p.Type {
	case PlacementUnit:
		if p.UnitType == "" {
			return validationError("placement %d: unitType is required", i)
		}
		if p.HP == nil || *p.HP <= 0 {
			return validationError("placement %d: hp must be positive", i)
		}
		if p.PlayerIndex != nil && *p.PlayerIndex != 0 && *p.PlayerIndex != 1 {
			return validationError("placement %d: playerIndex must be 0 or 1", i)
		}
	case PlacementItem:
		if p.ItemType == "" {
			return validationError("placement %d: itemType is required", i)
		}
	default:
		return validationError("placement %d: unknown type %q", i, p.Type)
	}
	return nil
}

func (md *MapData) inBounds(x, y int) bool {
	if x < 0 || y < 0 {
		return false
	}
	if md.Width > 0 && x >= md.Width {
		return false
	}
	if md.Height > 0 && y >= md.Height {
		return false
	}
	return true
}

// InitialState derives the activation snapshot for the two participants.
func (md *MapData) InitialState(player1, player2 string) BattleState {
	state := BattleState{Width: md.Width, Height: md.Height, Units: []Unit{}, BlockedTiles: []BlockedTile{}}
	for _, p := range md.Placements {
		switch p.Type {
		case PlacementUnit:
			owner := player1
			if p.PlayerIndex != nil && *p.PlayerIndex == 1 {
				owner = player2
			}
			state.Units = append(state.Units, Unit{
				ID: p.ID, Type: p.UnitType, X: *p.X, Y: *p.Y, HP: *p.HP, Owner: owner,
			})
		case PlacementItem:
			if p.CanMoveOn != nil && !*p.CanMoveOn {
				state.BlockedTiles = append(state.BlockedTiles, BlockedTile{X: *p.X, Y: *p.Y, ItemType: p.ItemType})
			}
		}
	}
	return state
}

// DecodeState reads a stored snapshot; empty input yields an empty state.
func DecodeState(raw []byte) (BattleState, error) {
	state := BattleState{Units: []Unit{}, BlockedTiles: []BlockedTile{}}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("decode battle state: %w", err)
	}
	if state.Units == nil {
		state.Units = []Unit{}
	}
	if state.BlockedTiles == nil {
		state.BlockedTiles = []BlockedTile{}
	}
	return state, nil
}

func (s BattleState) unitIndex(id string) int {
	for i, u := range s.Units {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (s BattleState) inBounds(x, y int) bool {
	md := MapData{Width: s.Width, Height: s.Height}
	return md.inBounds(x, y)
}

func (s BattleState) blocked(x, y int) bool {
	for _, t := range s.BlockedTiles {
		if t.X == x && t.Y == y {
			return true
		}
	}
	return false
}

func (s BattleState) countOwnedBy(owner string) int {
	n := 0
	for _, u := range s.Units {
		if u.Owner == owner {
			n++
		}
	}
	return n
}

func (s BattleState) clone() BattleState {
	return BattleState{
		Width:        s.Width,
		Height:       s.Height,
		Units:        append([]Unit{}, s.Units...),
		BlockedTiles: append([]BlockedTile{}, s.BlockedTiles...),
	}
}
