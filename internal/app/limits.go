package app

import (
	"context"
	"fmt"

	"github.com/cimillas/odl-lending/internal/domain"
)

func (s *CirculationService) checkLoanLimit(ctx context.Context, patronID string, pool domain.Pool) error {
	if s.loanLimit == 0 {
		return nil
	}
	loans, err := s.repo.ListPatronLoans(ctx, patronID)
	if err != nil {
		return fmt.Errorf("list patron loans: %w", err)
	}
	poolIDs := make([]string, 0, len(loans))
	for _, l := range loans {
		poolIDs = append(poolIDs, l.PoolID)
	}
	n, err := s.countInCollection(ctx, poolIDs, pool)
	if err != nil {
		return err
	}
	if n >= s.loanLimit {
		return fmt.Errorf("%w: %d of %d", domain.ErrPatronLoanLimit, n, s.loanLimit)
	}
	return nil
}

func (s *CirculationService) checkHoldLimit(ctx context.Context, patronID string, pool domain.Pool) error {
	if s.holdLimit == nil {
		return nil
	}
	if *s.holdLimit == 0 {
		return domain.ErrHoldsNotPermitted
	}
	holds, err := s.repo.ListPatronHolds(ctx, patronID)
	if err != nil {
		return fmt.Errorf("list patron holds: %w", err)
	}
	poolIDs := make([]string, 0, len(holds))
	for _, h := range holds {
		poolIDs = append(poolIDs, h.PoolID)
	}
	n, err := s.countInCollection(ctx, poolIDs, pool)
	if err != nil {
		return err
	}
	if n >= *s.holdLimit {
		return fmt.Errorf("%w: %d of %d", domain.ErrPatronHoldLimit, n, *s.holdLimit)
	}
	return nil
}

// countInCollection counts the pool ids that belong to the same collection
// as pool.
func (s *CirculationService) countInCollection(ctx context.Context, poolIDs []string, pool domain.Pool) (int, error) {
	collections := map[string]string{pool.ID: pool.CollectionID}
	n := 0
	for _, id := range poolIDs {
		collection, ok := collections[id]
		if !ok {
			other, err := s.repo.GetPool(ctx, id)
			if err != nil {
				return 0, fmt.Errorf("count patron records: %w", err)
			}
			collection = other.CollectionID
			collections[id] = collection
		}
		if collection == pool.CollectionID {
			n++
		}
	}
	return n, nil
}
