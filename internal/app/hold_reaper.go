package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/clock"
	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/ledger"
)

// ReaperRepository adds the sweeps the reaper runs across all pools.
type ReaperRepository interface {
	CirculationRepository
	// ListExpiredReservedHolds returns holds at position 0 whose end is
	// before now.
	ListExpiredReservedHolds(ctx context.Context, now time.Time) ([]domain.Hold, error)
	// ListStalePendingLoans returns unconfirmed loans started before cutoff.
	ListStalePendingLoans(ctx context.Context, cutoff time.Time) ([]domain.Loan, error)
	ListPoolIDs(ctx context.Context) ([]string, error)
}

// HoldReaper removes reservations nobody picked up and pending loans whose
// checkout never finished, handing their slots to the next patron in line.
type HoldReaper struct {
	repo       ReaperRepository
	clock      clock.Clock
	events     EventSink
	log        zerolog.Logger
	periods    ledger.Periods
	pendingTTL time.Duration
}

const defaultPendingLoanTTL = 15 * time.Minute

type ReaperOption func(*HoldReaper)

// WithPendingLoanTTL sets how long a checkout may stay unconfirmed.
func WithPendingLoanTTL(d time.Duration) ReaperOption {
	return func(r *HoldReaper) {
		if d > 0 {
			r.pendingTTL = d
		}
	}
}

// WithReaperPeriods sets the lending terms used when promoting holds.
func WithReaperPeriods(p ledger.Periods) ReaperOption {
	return func(r *HoldReaper) {
		if p.Loan > 0 && p.Reservation > 0 {
			r.periods = p
		}
	}
}

func NewHoldReaper(repo ReaperRepository, clk clock.Clock, events EventSink, logger zerolog.Logger, opts ...ReaperOption) *HoldReaper {
	r := &HoldReaper{
		repo:       repo,
		clock:      clk,
		events:     events,
		log:        logger.With().Str("component", "hold_reaper").Logger(),
		periods:    ledger.DefaultPeriods(),
		pendingTTL: defaultPendingLoanTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type ReapResult struct {
	ExpiredHolds  int
	ReleasedLoans int
}

// RunOnce sweeps every pool once. A failure on one pool does not stop the
// others; all failures are returned together.
func (r *HoldReaper) RunOnce(ctx context.Context) (ReapResult, error) {
	now := r.clock.Now()
	var (
		res  ReapResult
		errs []error
	)

	holds, err := r.repo.ListExpiredReservedHolds(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list expired holds: %w", err)
	}
	for _, h := range holds {
		reaped, err := r.expireHold(ctx, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire hold %s: %w", h.ID, err))
			continue
		}
		if reaped {
			res.ExpiredHolds++
		}
	}

	loans, err := r.repo.ListStalePendingLoans(ctx, now.Add(-r.pendingTTL))
	if err != nil {
		errs = append(errs, fmt.Errorf("list pending loans: %w", err))
	}
	for _, l := range loans {
		released, err := r.releasePending(ctx, l)
		if err != nil {
			errs = append(errs, fmt.Errorf("release loan %s: %w", l.ID, err))
			continue
		}
		if released {
			res.ReleasedLoans++
		}
	}

	if res.ExpiredHolds > 0 || res.ReleasedLoans > 0 {
		r.log.Info().
			Int("expired_holds", res.ExpiredHolds).
			Int("released_loans", res.ReleasedLoans).
			Msg("reaper sweep")
	}
	return res, errors.Join(errs...)
}

// RecalculateAll recomputes every pool so queue estimates drift with time
// even when nothing happens to the pool.
func (r *HoldReaper) RecalculateAll(ctx context.Context) (int, error) {
	ids, err := r.repo.ListPoolIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pools: %w", err)
	}
	var (
		done int
		errs []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := r.inPool(ctx, id, func(ctx context.Context, st *poolState) (bool, error) {
			return true, st.recompute(ctx)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// expireHold deletes a ready hold whose reservation lapsed. The hold is
// checked again under the lock because a checkout may have consumed it.
func (r *HoldReaper) expireHold(ctx context.Context, h domain.Hold) (bool, error) {
	return r.inPool(ctx, h.PoolID, func(ctx context.Context, st *poolState) (bool, error) {
		current, ok := st.hold(h.ID)
		if !ok || !current.IsExpired(st.now) {
			return false, nil
		}
		if err := st.removeHold(ctx, current.ID); err != nil {
			return false, err
		}
		st.record(domain.EventCirculationHoldExpire, current.PatronID)
		return true, st.recompute(ctx)
	})
}

func (r *HoldReaper) releasePending(ctx context.Context, l domain.Loan) (bool, error) {
	cutoff := r.clock.Now().Add(-r.pendingTTL)
	return r.inPool(ctx, l.PoolID, func(ctx context.Context, st *poolState) (bool, error) {
		current, ok := st.loan(l.ID)
		if !ok || !current.IsPending() || current.Start.After(cutoff) {
			return false, nil
		}
		if err := st.removeLoan(ctx, current.ID); err != nil {
			return false, err
		}
		if err := st.releaseSlot(ctx, current); err != nil {
			return false, err
		}
		r.log.Warn().
			Str("pool_id", l.PoolID).
			Str("loan_id", l.ID).
			Time("started", current.Start).
			Msg("releasing checkout that never completed")
		return true, st.recompute(ctx)
	})
}

func (r *HoldReaper) inPool(ctx context.Context, poolID string, fn func(ctx context.Context, st *poolState) (bool, error)) (bool, error) {
	var (
		changed bool
		events  []domain.CirculationEvent
	)
	pools := poolLedger{repo: r.repo, periods: r.periods}
	err := r.repo.WithTx(ctx, func(txCtx context.Context) error {
		st, err := pools.lock(txCtx, poolID, r.clock.Now())
		if err != nil {
			return err
		}
		if changed, err = fn(txCtx, st); err != nil {
			return err
		}
		events = st.events
		return nil
	})
	if err != nil {
		return false, err
	}
	if r.events != nil && len(events) > 0 {
		r.events.Publish(context.WithoutCancel(ctx), events...)
	}
	return changed, nil
}
