package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"game-battle-service/models"
)

func TestStatsGetUnknownIsZero(t *testing.T) {
	stats := NewStatsService(newTestDB(t))
	st, err := stats.Get(context.Background(), testGame, "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Wins != 0 || st.DeviceID != "nobody" {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestStatsCountersAccumulate(t *testing.T) {
	stats := NewStatsService(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := stats.RecordWin(ctx, testGame, "w", "l"); err != nil {
			t.Fatalf("record win: %v", err)
		}
	}
	if err := stats.RecordDraw(ctx, testGame, "w", "l"); err != nil {
		t.Fatalf("record draw: %v", err)
	}
	w, _ := stats.Get(ctx, testGame, "w")
	l, _ := stats.Get(ctx, testGame, "l")
	if w.Wins != 3 || w.Draws != 1 || l.Losses != 3 || l.Draws != 1 {
		t.Fatalf("unexpected counters w=%+v l=%+v", w, l)
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	svc := newTestBattleService(t)
	ctx := context.Background()

	// One battle won by forfeit after a turn, one drawn.
	first := activeBattle(t, svc)
	if _, err := svc.SubmitTurn(ctx, testGame, first, "dev-a", nil); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if _, err := svc.Forfeit(ctx, testGame, first, "dev-b"); err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	second := activeBattle(t, svc)
	if _, err := svc.SubmitTurn(ctx, testGame, second, "dev-a", []byte(`{"objective":{"draw":true}}`)); err != nil {
		t.Fatalf("draw: %v", err)
	}

	// Corrupt the projection: wrong numbers for a, a ghost row, b missing entirely.
	db := svc.DB
	db.Model(&models.PlayerStats{}).Where("device_id = ?", "dev-a").Updates(map[string]any{"wins": 7, "turns_played": 0})
	db.Where("device_id = ?", "dev-b").Delete(&models.PlayerStats{})
	db.Create(&models.PlayerStats{GameSlug: testGame, DeviceID: "ghost", Wins: 4})

	rep, err := svc.Stats.Reconcile(ctx, testGame)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rep.Devices != 2 || rep.Corrected != 3 {
		t.Fatalf("unexpected report %+v", rep)
	}

	a, _ := svc.Stats.Get(ctx, testGame, "dev-a")
	b, _ := svc.Stats.Get(ctx, testGame, "dev-b")
	if a.Wins != 1 || a.Losses != 0 || a.Draws != 1 || a.TurnsPlayed != 2 {
		t.Fatalf("dev-a not repaired: %+v", a)
	}
	if b.Wins != 0 || b.Losses != 1 || b.Draws != 1 || b.TurnsPlayed != 0 {
		t.Fatalf("dev-b not repaired: %+v", b)
	}
	ghost, _ := svc.Stats.Get(ctx, testGame, "ghost")
	if ghost.Wins != 0 {
		t.Fatalf("ghost row survived: %+v", ghost)
	}

	again, err := svc.Stats.Reconcile(ctx, testGame)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if again.Corrected != 0 {
		t.Fatalf("reconcile is not idempotent: %+v", again)
	}
}

func TestReconcileUpdatesRowsInPlace(t *testing.T) {
	svc := newTestBattleService(t)
	ctx := context.Background()
	id := activeBattle(t, svc)
	if _, err := svc.Forfeit(ctx, testGame, id, "dev-b"); err != nil {
		t.Fatalf("forfeit: %v", err)
	}

	created := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	db := svc.DB
	db.Model(&models.PlayerStats{}).Where("device_id = ?", "dev-a").Updates(map[string]any{"wins": 9, "created_at": created})
	db.Create(&models.PlayerStats{GameSlug: "word-rush", DeviceID: "dev-a", Wins: 5})

	if _, err := svc.Stats.Reconcile(ctx, testGame); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	var row models.PlayerStats
	if err := db.Where("game_slug = ? AND device_id = ?", testGame, "dev-a").First(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.Wins != 1 || !row.CreatedAt.Equal(created) {
		t.Fatalf("row was not repaired in place: %+v", row)
	}
	other, _ := svc.Stats.Get(ctx, "word-rush", "dev-a")
	if other.Wins != 5 {
		t.Fatalf("reconcile touched another game: %+v", other)
	}
}

func TestReconcileAlongsideIncrements(t *testing.T) {
	svc := newTestBattleService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- svc.Stats.RecordTurn(ctx, testGame, fmt.Sprintf("dev-%d", i%3))
		}(i)
		go func() {
			defer wg.Done()
			_, err := svc.Stats.Reconcile(ctx, testGame)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent stats update failed: %v", err)
		}
	}

	if _, err := svc.Stats.Reconcile(ctx, testGame); err != nil {
		t.Fatalf("final reconcile: %v", err)
	}
	var n int64
	svc.DB.Model(&models.PlayerStats{}).Where("game_slug = ?", testGame).Count(&n)
	if n != 0 {
		t.Fatalf("turn counters without battle history should be dropped, got %d rows", n)
	}
}

func TestReconcileAllSkipsNothingOnSuccess(t *testing.T) {
	stats := NewStatsService(newTestDB(t))
	reps := ReconcileAll(context.Background(), stats, []string{"a", "b"})
	if len(reps) != 2 || reps[0].GameSlug != "a" || reps[1].GameSlug != "b" {
		t.Fatalf("unexpected reports %+v", reps)
	}
}
