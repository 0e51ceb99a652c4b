package app

import (
	"context"
	"fmt"

	"github.com/cimillas/odl-lending/internal/domain"
)

type PatronActivity struct {
	Loans []domain.LoanInfo
	Holds []domain.HoldInfo
}

// PatronActivity lists a patron's current loans and holds. Pools the patron
// is waiting on are recomputed first so positions and estimates are fresh.
func (s *CirculationService) PatronActivity(ctx context.Context, patronID string) (PatronActivity, error) {
	holds, err := s.repo.ListPatronHolds(ctx, patronID)
	if err != nil {
		return PatronActivity{}, fmt.Errorf("list holds: %w", err)
	}
	seen := make(map[string]bool, len(holds))
	for _, h := range holds {
		if seen[h.PoolID] {
			continue
		}
		seen[h.PoolID] = true
		if err := s.RecomputePool(ctx, h.PoolID); err != nil {
			return PatronActivity{}, fmt.Errorf("recompute pool %s: %w", h.PoolID, err)
		}
	}

	now := s.clock.Now()
	pools := map[string]domain.Pool{}
	pool := func(id string) (domain.Pool, error) {
		if p, ok := pools[id]; ok {
			return p, nil
		}
		p, err := s.repo.GetPool(ctx, id)
		if err != nil {
			return domain.Pool{}, err
		}
		pools[id] = p
		return p, nil
	}

	var out PatronActivity
	loans, err := s.repo.ListPatronLoans(ctx, patronID)
	if err != nil {
		return PatronActivity{}, fmt.Errorf("list loans: %w", err)
	}
	for _, l := range loans {
		if l.IsPending() || !l.IsCurrent(now) {
			continue
		}
		p, err := pool(l.PoolID)
		if err != nil {
			return PatronActivity{}, err
		}
		out.Loans = append(out.Loans, domain.NewLoanInfo(p, l))
	}

	if holds, err = s.repo.ListPatronHolds(ctx, patronID); err != nil {
		return PatronActivity{}, fmt.Errorf("list holds: %w", err)
	}
	for _, h := range holds {
		if h.IsExpired(now) {
			continue
		}
		p, err := pool(h.PoolID)
		if err != nil {
			return PatronActivity{}, err
		}
		out.Holds = append(out.Holds, domain.NewHoldInfo(p, h))
	}
	return out, nil
}
