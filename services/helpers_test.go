package services

import (
	"context"
	"encoding/json"
	"testing"

	"game-battle-service/storage/storagetest"

	"gorm.io/gorm"
)

const testGame = "tactics-arena"

// twoUnitMap places one unit per player and one impassable rock.
var twoUnitMap = json.RawMessage(`{
	"width": 8, "height": 8,
	"placements": [
		{"type": "unit", "id": "a1", "unitType": "knight", "x": 1, "y": 1, "hp": 10},
		{"type": "unit", "id": "b1", "unitType": "archer", "x": 6, "y": 6, "hp": 5, "playerIndex": 1},
		{"type": "item", "itemType": "rock", "x": 3, "y": 3, "canMoveOn": false},
		{"type": "item", "itemType": "flower", "x": 4, "y": 4}
	]
}`)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return storagetest.NewDB(t).DB
}

func newTestBattleService(t *testing.T) *BattleService {
	t.Helper()
	db := newTestDB(t)
	return NewBattleService(db, DefaultMaxActiveBattles, DefaultRules{}, NewStatsService(db), NewProfileResolver(db, nil, 0))
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

// activeBattle creates a battle by "dev-a" and has "dev-b" join it.
func activeBattle(t *testing.T, svc *BattleService) string {
	t.Helper()
	ctx := context.Background()
	b, err := svc.Create(ctx, testGame, "dev-a", twoUnitMap, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Join(ctx, testGame, b.ID, "dev-b"); err != nil {
		t.Fatalf("join: %v", err)
	}
	return b.ID
}
