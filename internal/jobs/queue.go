package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/config"
)

// Queue runs the periodic maintenance jobs on river. Several processes may
// run a Queue against the same database; river's leader election keeps each
// periodic job to one insert per interval.
type Queue struct {
	client *river.Client[pgx.Tx]
	log    zerolog.Logger
}

func NewQueue(pool *pgxpool.Pool, reaper Reaper, cfg config.ReaperConfig, logger zerolog.Logger) (*Queue, error) {
	log := logger.With().Str("component", "jobs").Logger()

	workers := river.NewWorkers()
	river.AddWorker(workers, &ReapHoldsWorker{reaper: reaper, log: log, timeout: jobTimeout(cfg.Interval)})
	river.AddWorker(workers, &RecalculateHoldQueuesWorker{reaper: reaper, log: log, timeout: jobTimeout(cfg.RecalculateInterval)})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: periodicJobs(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("create job client: %w", err)
	}
	return &Queue{client: client, log: log}, nil
}

func periodicJobs(cfg config.ReaperConfig) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.Interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ReapHoldsArgs{}, &river.InsertOpts{MaxAttempts: 1}
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.RecalculateInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return RecalculateHoldQueuesArgs{}, &river.InsertOpts{MaxAttempts: 1}
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// jobTimeout keeps a sweep from overlapping the next one.
func jobTimeout(interval time.Duration) time.Duration {
	if interval <= 0 {
		return time.Minute
	}
	return interval
}

func (q *Queue) Start(ctx context.Context) error {
	if err := q.client.Start(ctx); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	q.log.Info().Msg("job queue started")
	return nil
}

func (q *Queue) Stop(ctx context.Context) error {
	if err := q.client.Stop(ctx); err != nil {
		return fmt.Errorf("stop jobs: %w", err)
	}
	q.log.Info().Msg("job queue stopped")
	return nil
}
