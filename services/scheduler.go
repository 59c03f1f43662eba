package services

import (
	"context"
	"fmt"
	"time"

	"game-battle-service/logging"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ReconcileScheduler periodically rebuilds player stats for every configured game.
type ReconcileScheduler struct {
	sched gocron.Scheduler
}

// StartReconcileScheduler registers the reconcile job and starts the scheduler.
// A non-positive interval returns nil without scheduling anything.
func StartReconcileScheduler(stats *StatsService, slugs func() []string, interval time.Duration) (*ReconcileScheduler, error) {
	if interval <= 0 {
		logging.L().Info("reconcile_scheduler_disabled")
		return nil, nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { ReconcileAll(context.Background(), stats, slugs()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule reconcile: %w", err)
	}
	sched.Start()
	logging.L().Info("reconcile_scheduler_started", zap.Duration("interval", interval))
	return &ReconcileScheduler{sched: sched}, nil
}

// Stop waits for a running job and stops the scheduler. Safe on nil.
func (s *ReconcileScheduler) Stop() error {
	if s == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// ReconcileAll reconciles each game in turn. A failing game is logged and skipped.
func ReconcileAll(ctx context.Context, stats *StatsService, slugs []string) []ReconcileReport {
	reports := make([]ReconcileReport, 0, len(slugs))
	for _, slug := range slugs {
		rep, err := stats.Reconcile(ctx, slug)
		if err != nil {
			logging.L().Error("reconcile_failed", zap.String("game", slug), zap.Error(err))
			continue
		}
		reports = append(reports, *rep)
	}
	return reports
}
