package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/clock"
	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/ledger"
	"github.com/cimillas/odl-lending/internal/lsd"
)

// CirculationRepository is the storage the engine needs. Methods called inside
// WithTx see the transaction through ctx; GetPoolForUpdate locks the pool row
// until the transaction ends and is the only serialization point.
type CirculationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetPool(ctx context.Context, poolID string) (domain.Pool, error)
	GetPoolForUpdate(ctx context.Context, poolID string) (domain.Pool, error)
	UpdatePoolCounters(ctx context.Context, pool domain.Pool) error

	ListLicenses(ctx context.Context, poolID string) ([]domain.License, error)
	UpdateLicense(ctx context.Context, license domain.License) error

	ListLoans(ctx context.Context, poolID string) ([]domain.Loan, error)
	GetLoan(ctx context.Context, loanID string) (domain.Loan, error)
	FindLoan(ctx context.Context, patronID, poolID string) (*domain.Loan, error)
	CreateLoan(ctx context.Context, loan domain.Loan) error
	UpdateLoan(ctx context.Context, loan domain.Loan) error
	DeleteLoan(ctx context.Context, loanID string) error
	ListPatronLoans(ctx context.Context, patronID string) ([]domain.Loan, error)

	ListHolds(ctx context.Context, poolID string) ([]domain.Hold, error)
	FindHold(ctx context.Context, patronID, poolID string) (*domain.Hold, error)
	CreateHold(ctx context.Context, hold domain.Hold) error
	UpdateHold(ctx context.Context, hold domain.Hold) error
	DeleteHold(ctx context.Context, holdID string) error
	ListPatronHolds(ctx context.Context, patronID string) ([]domain.Hold, error)
}

// StatusClient is the distributor side of a loan.
type StatusClient interface {
	Fetch(ctx context.Context, loan domain.Loan, license domain.License) (lsd.Document, error)
	Follow(ctx context.Context, link lsd.Link) error
	StatusLink(ctx context.Context, doc lsd.Document) (string, error)
}

// EventSink receives circulation events after the change that caused them
// was committed.
type EventSink interface {
	Publish(ctx context.Context, events ...domain.CirculationEvent)
}

type CirculationService struct {
	repo    CirculationRepository
	client  StatusClient
	clock   clock.Clock
	events  EventSink
	log     zerolog.Logger
	periods ledger.Periods

	// loanLimit of 0 means unlimited. A nil holdLimit means unlimited and
	// 0 means the collection takes no holds.
	loanLimit int
	holdLimit *int
}

func NewCirculationService(
	repo CirculationRepository,
	client StatusClient,
	clk clock.Clock,
	events EventSink,
	logger zerolog.Logger,
	opts ...CirculationOption,
) *CirculationService {
	svc := &CirculationService{
		repo:    repo,
		client:  client,
		clock:   clk,
		events:  events,
		log:     logger.With().Str("component", "circulation").Logger(),
		periods: ledger.DefaultPeriods(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CirculationOption func(*CirculationService)

// WithLoanPeriod overrides the default loan period used for hold estimates.
func WithLoanPeriod(d time.Duration) CirculationOption {
	return func(s *CirculationService) {
		if d > 0 {
			s.periods.Loan = d
		}
	}
}

// WithReservationPeriod overrides how long a ready hold stays reserved.
func WithReservationPeriod(d time.Duration) CirculationOption {
	return func(s *CirculationService) {
		if d > 0 {
			s.periods.Reservation = d
		}
	}
}

// WithLoanLimit caps how many loans a patron may have in the collection.
func WithLoanLimit(n int) CirculationOption {
	return func(s *CirculationService) {
		if n > 0 {
			s.loanLimit = n
		}
	}
}

// WithHoldLimit caps how many holds a patron may have in the collection.
// Zero turns holds off.
func WithHoldLimit(n int) CirculationOption {
	return func(s *CirculationService) {
		if n >= 0 {
			s.holdLimit = &n
		}
	}
}

func (s *CirculationService) pools() poolLedger {
	return poolLedger{repo: s.repo, periods: s.periods}
}

// inPool runs fn with the pool locked and publishes the collected events
// once the transaction committed.
func (s *CirculationService) inPool(ctx context.Context, poolID string, fn func(ctx context.Context, st *poolState) error) error {
	var events []domain.CirculationEvent
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		events = nil
		st, err := s.pools().lock(txCtx, poolID, s.clock.Now())
		if err != nil {
			return err
		}
		if err := fn(txCtx, st); err != nil {
			return err
		}
		events = st.events
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

func (s *CirculationService) publish(ctx context.Context, events []domain.CirculationEvent) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.Publish(context.WithoutCancel(ctx), events...)
}

// RecomputePool refreshes a pool's counters and queue.
func (s *CirculationService) RecomputePool(ctx context.Context, poolID string) error {
	return s.inPool(ctx, poolID, func(ctx context.Context, st *poolState) error {
		return st.recompute(ctx)
	})
}
