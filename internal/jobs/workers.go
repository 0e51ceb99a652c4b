package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/app"
)

// Reaper is the maintenance the periodic jobs drive.
type Reaper interface {
	RunOnce(ctx context.Context) (app.ReapResult, error)
	RecalculateAll(ctx context.Context) (int, error)
}

type ReapHoldsArgs struct{}

func (ReapHoldsArgs) Kind() string { return "odl_reap_holds" }

type RecalculateHoldQueuesArgs struct{}

func (RecalculateHoldQueuesArgs) Kind() string { return "odl_recalculate_hold_queues" }

// ReapHoldsWorker expires lapsed reservations and releases abandoned
// checkouts.
type ReapHoldsWorker struct {
	river.WorkerDefaults[ReapHoldsArgs]
	reaper  Reaper
	log     zerolog.Logger
	timeout time.Duration
}

func (w *ReapHoldsWorker) Timeout(*river.Job[ReapHoldsArgs]) time.Duration { return w.timeout }

func (w *ReapHoldsWorker) Work(ctx context.Context, _ *river.Job[ReapHoldsArgs]) error {
	res, err := w.reaper.RunOnce(ctx)
	if err != nil {
		w.log.Error().Err(err).
			Int("expired_holds", res.ExpiredHolds).
			Int("released_loans", res.ReleasedLoans).
			Msg("reaper sweep incomplete")
		return fmt.Errorf("reap holds: %w", err)
	}
	return nil
}

// RecalculateHoldQueuesWorker refreshes every pool so queue estimates follow
// the clock.
type RecalculateHoldQueuesWorker struct {
	river.WorkerDefaults[RecalculateHoldQueuesArgs]
	reaper  Reaper
	log     zerolog.Logger
	timeout time.Duration
}

func (w *RecalculateHoldQueuesWorker) Timeout(*river.Job[RecalculateHoldQueuesArgs]) time.Duration {
	return w.timeout
}

func (w *RecalculateHoldQueuesWorker) Work(ctx context.Context, _ *river.Job[RecalculateHoldQueuesArgs]) error {
	start := time.Now()
	n, err := w.reaper.RecalculateAll(ctx)
	w.log.Info().
		Int("pools", n).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("hold queues recalculated")
	if err != nil {
		return fmt.Errorf("recalculate hold queues: %w", err)
	}
	return nil
}
