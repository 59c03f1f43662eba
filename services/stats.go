package services

import (
	"context"
	"errors"
	"time"

	"game-battle-service/logging"
	"game-battle-service/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatsService maintains the per-device battle counters. Counters are a projection of
// battles and turns; Reconcile rebuilds them when they drift.
type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// ensureRow creates a zero counter row if none exists (idempotent).
func ensureRow(tx *gorm.DB, gameSlug, deviceID string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.PlayerStats{GameSlug: gameSlug, DeviceID: deviceID}).Error
}

func increment(tx *gorm.DB, gameSlug, deviceID, column string) error {
	if err := ensureRow(tx, gameSlug, deviceID); err != nil {
		return err
	}
	return tx.Model(&models.PlayerStats{}).
		Where("game_slug = ? AND device_id = ?", gameSlug, deviceID).
		Updates(map[string]any{
			column:       gorm.Expr(column + " + 1"),
			"updated_at": time.Now(),
		}).Error
}

// RecordWin bumps winner.wins and loser.losses together: both apply or neither does.
func (s *StatsService) RecordWin(ctx context.Context, gameSlug, winner, loser string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := increment(tx, gameSlug, winner, "wins"); err != nil {
			return err
		}
		return increment(tx, gameSlug, loser, "losses")
	})
}

// RecordDraw bumps draws for both participants.
func (s *StatsService) RecordDraw(ctx context.Context, gameSlug, a, b string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := increment(tx, gameSlug, a, "draws"); err != nil {
			return err
		}
		return increment(tx, gameSlug, b, "draws")
	})
}

// RecordTurn bumps turns_played for the actor.
func (s *StatsService) RecordTurn(ctx context.Context, gameSlug, deviceID string) error {
	return increment(s.DB.WithContext(ctx), gameSlug, deviceID, "turns_played")
}

// Get returns the counters for a device; a device with no battles gets zeroes.
func (s *StatsService) Get(ctx context.Context, gameSlug, deviceID string) (*models.PlayerStats, error) {
	var st models.PlayerStats
	err := s.DB.WithContext(ctx).
		Where("game_slug = ? AND device_id = ?", gameSlug, deviceID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.PlayerStats{GameSlug: gameSlug, DeviceID: deviceID}, nil
	}
	if err != nil {
		return nil, unavailable("load stats", err)
	}
	return &st, nil
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	GameSlug  string `json:"gameSlug"`
	Devices   int    `json:"devices"`
	Corrected int    `json:"corrected"`
}

type counters struct {
	wins, losses, draws, turns int64
}

// Reconcile recomputes every counter for gameSlug from battle and turn history and
// rewrites the stored rows in place in one transaction. Rows with no history are dropped.
func (s *StatsService) Reconcile(ctx context.Context, gameSlug string) (*ReconcileReport, error) {
	report := &ReconcileReport{GameSlug: gameSlug}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		computed := map[string]*counters{}
		get := func(id string) *counters {
			c, ok := computed[id]
			if !ok {
				c = &counters{}
				computed[id] = c
			}
			return c
		}

		// Lock the game's rows first so in-flight increments wait for the rewrite.
		var existing []models.PlayerStats
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("game_slug = ?", gameSlug).
			Find(&existing).Error; err != nil {
			return err
		}

		var battles []models.Battle
		if err := tx.Select("id", "player1_device_id", "player2_device_id", "winner_id", "end_reason").
			Where("game_slug = ? AND status = ?", gameSlug, models.BattleStatusCompleted).
			Find(&battles).Error; err != nil {
			return err
		}
		for i := range battles {
			b := &battles[i]
			if b.Player2DeviceID == nil {
				continue
			}
			p1, p2 := b.Player1DeviceID, *b.Player2DeviceID
			switch {
			case b.WinnerID != nil:
				winner, loser := p1, p2
				if *b.WinnerID == p2 {
					winner, loser = p2, p1
				}
				get(winner).wins++
				get(loser).losses++
			case b.EndReason != nil && *b.EndReason == models.EndReasonDraw:
				get(p1).draws++
				get(p2).draws++
			}
		}

		var turnCounts []struct {
			DeviceID string
			N        int64
		}
		if err := tx.Model(&models.Turn{}).
			Select("turns.device_id AS device_id, COUNT(*) AS n").
			Joins("JOIN battles ON battles.id = turns.battle_id").
			Where("battles.game_slug = ?", gameSlug).
			Group("turns.device_id").
			Scan(&turnCounts).Error; err != nil {
			return err
		}
		for _, tc := range turnCounts {
			get(tc.DeviceID).turns = tc.N
		}

		stored := make(map[string]models.PlayerStats, len(existing))
		for _, st := range existing {
			stored[st.DeviceID] = st
		}
		for id, c := range computed {
			st, ok := stored[id]
			if !ok || st.Wins != c.wins || st.Losses != c.losses || st.Draws != c.draws || st.TurnsPlayed != c.turns {
				report.Corrected++
			}
		}
		var stale []string
		for id := range stored {
			if _, ok := computed[id]; !ok {
				report.Corrected++
				stale = append(stale, id)
			}
		}

		if len(stale) > 0 {
			if err := tx.Where("game_slug = ? AND device_id IN ?", gameSlug, stale).
				Delete(&models.PlayerStats{}).Error; err != nil {
				return err
			}
		}
		rows := make([]models.PlayerStats, 0, len(computed))
		for id, c := range computed {
			rows = append(rows, models.PlayerStats{
				GameSlug: gameSlug, DeviceID: id,
				Wins: c.wins, Losses: c.losses, Draws: c.draws, TurnsPlayed: c.turns,
			})
		}
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "game_slug"}, {Name: "device_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"wins", "losses", "draws", "turns_played", "updated_at"}),
			}).CreateInBatches(rows, 200).Error
			if err != nil {
				return err
			}
		}
		report.Devices = len(rows)
		return nil
	})
	if err != nil {
		return nil, unavailable("reconcile stats", err)
	}

	logging.L().Info("stats_reconciled",
		zap.String("game_slug", gameSlug),
		zap.Int("devices", report.Devices),
		zap.Int("corrected", report.Corrected),
	)
	return report, nil
}
