package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/clock"
	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/ledger"
)

// CatalogRepository stores the pools and license records handed over by the
// feed import.
type CatalogRepository interface {
	CirculationRepository
	CreatePool(ctx context.Context, pool domain.Pool) error
	FindPool(ctx context.Context, collectionID, identifierType, identifier string) (*domain.Pool, error)
	UpsertLicense(ctx context.Context, license domain.License) error
}

// CatalogService records what the distributor sells us. Every license change
// recomputes the pool so new capacity reaches waiting patrons at once.
type CatalogService struct {
	repo    CatalogRepository
	clock   clock.Clock
	events  EventSink
	log     zerolog.Logger
	periods ledger.Periods
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock, events EventSink, logger zerolog.Logger, periods ledger.Periods) *CatalogService {
	return &CatalogService{
		repo:    repo,
		clock:   clk,
		events:  events,
		log:     logger.With().Str("component", "catalog").Logger(),
		periods: periods,
	}
}

type RegisterPoolInput struct {
	CollectionID   string
	IdentifierType string
	Identifier     string
}

// RegisterPool returns the pool for a title, creating it on first sight.
func (s *CatalogService) RegisterPool(ctx context.Context, in RegisterPoolInput) (domain.Pool, error) {
	if in.CollectionID == "" || in.IdentifierType == "" || in.Identifier == "" {
		return domain.Pool{}, fmt.Errorf("%w: collection and identifier are required", domain.ErrInvalidPool)
	}
	existing, err := s.repo.FindPool(ctx, in.CollectionID, in.IdentifierType, in.Identifier)
	if err != nil {
		return domain.Pool{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	pool := domain.Pool{
		ID:             newID(),
		CollectionID:   in.CollectionID,
		IdentifierType: in.IdentifierType,
		Identifier:     in.Identifier,
	}
	if err := s.repo.CreatePool(ctx, pool); err != nil {
		return domain.Pool{}, err
	}
	return pool, nil
}

// UpsertLicense stores a license record as the feed describes it and
// recomputes its pool.
func (s *CatalogService) UpsertLicense(ctx context.Context, license domain.License) (domain.Pool, error) {
	if err := validateLicense(license); err != nil {
		return domain.Pool{}, err
	}

	var (
		pool   domain.Pool
		events []domain.CirculationEvent
	)
	pools := poolLedger{repo: s.repo, periods: s.periods}
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		st, err := pools.lock(txCtx, license.PoolID, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.repo.UpsertLicense(txCtx, license); err != nil {
			return fmt.Errorf("upsert license %s: %w", license.Identifier, err)
		}
		replaced := false
		for i := range st.snap.Licenses {
			if st.snap.Licenses[i].Identifier == license.Identifier {
				st.snap.Licenses[i] = license
				replaced = true
			}
		}
		if !replaced {
			st.snap.Licenses = append(st.snap.Licenses, license)
		}
		if err := st.recompute(txCtx); err != nil {
			return err
		}
		pool = st.pool()
		events = st.events
		return nil
	})
	if err != nil {
		return domain.Pool{}, err
	}
	if s.events != nil && len(events) > 0 {
		s.events.Publish(context.WithoutCancel(ctx), events...)
	}
	s.log.Debug().
		Str("pool_id", pool.ID).
		Str("license", license.Identifier).
		Int("licenses_owned", pool.LicensesOwned).
		Msg("license recorded")
	return pool, nil
}

func validateLicense(l domain.License) error {
	switch {
	case l.PoolID == "" || l.Identifier == "":
		return fmt.Errorf("%w: pool and identifier are required", domain.ErrInvalidLicense)
	case l.CheckoutURL == "":
		return fmt.Errorf("%w: %s has no checkout url", domain.ErrInvalidLicense, l.Identifier)
	case l.Concurrency != nil && *l.Concurrency < 0,
		l.CheckoutsLeft != nil && *l.CheckoutsLeft < 0,
		l.CheckoutsAvailable < 0:
		return fmt.Errorf("%w: %s has negative counts", domain.ErrInvalidLicense, l.Identifier)
	case l.Concurrency != nil && l.CheckoutsAvailable > *l.Concurrency:
		return fmt.Errorf("%w: %s has %d free slots over a concurrency of %d", domain.ErrInvalidLicense, l.Identifier, l.CheckoutsAvailable, *l.Concurrency)
	case l.CheckoutsLeft != nil && l.CheckoutsAvailable > *l.CheckoutsLeft:
		return fmt.Errorf("%w: %s has %d free slots but %d checkouts left", domain.ErrInvalidLicense, l.Identifier, l.CheckoutsAvailable, *l.CheckoutsLeft)
	case l.Status != domain.LicenseStatusAvailable && l.Status != domain.LicenseStatusUnavailable:
		return fmt.Errorf("%w: %s has status %q", domain.ErrInvalidLicense, l.Identifier, l.Status)
	}
	return nil
}
