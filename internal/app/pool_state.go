package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/ledger"
)

type poolLedger struct {
	repo    CirculationRepository
	periods ledger.Periods
}

// poolState is a locked pool loaded into memory. Every mutation goes to the
// repository and to the snapshot so a later recompute sees it.
type poolState struct {
	repo    CirculationRepository
	periods ledger.Periods
	now     time.Time
	snap    ledger.Snapshot
	events  []domain.CirculationEvent
}

func (l poolLedger) lock(ctx context.Context, poolID string, now time.Time) (*poolState, error) {
	pool, err := l.repo.GetPoolForUpdate(ctx, poolID)
	if err != nil {
		return nil, err
	}
	licenses, err := l.repo.ListLicenses(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	loans, err := l.repo.ListLoans(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	holds, err := l.repo.ListHolds(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	return &poolState{
		repo:    l.repo,
		periods: l.periods,
		now:     now,
		snap: ledger.Snapshot{
			Pool:     pool,
			Licenses: licenses,
			Loans:    loans,
			Holds:    holds,
		},
	}, nil
}

func (st *poolState) pool() domain.Pool { return st.snap.Pool }

// recompute runs the ledger over the current snapshot and persists what
// changed.
func (st *poolState) recompute(ctx context.Context) error {
	res := ledger.Recompute(st.now, st.snap, st.periods)
	for _, h := range res.ChangedHolds() {
		if err := st.repo.UpdateHold(ctx, h); err != nil {
			return fmt.Errorf("update hold %s: %w", h.ID, err)
		}
	}
	st.snap.Holds = res.Holds
	st.snap.Pool.Apply(res.Counters, st.now)
	if err := st.repo.UpdatePoolCounters(ctx, st.snap.Pool); err != nil {
		return fmt.Errorf("update pool counters: %w", err)
	}
	st.events = append(st.events, res.Events...)
	return nil
}

func (st *poolState) record(typ domain.EventType, patronID string) {
	st.events = append(st.events, domain.CirculationEvent{
		Type:       typ,
		PoolID:     st.snap.Pool.ID,
		PatronID:   patronID,
		OccurredAt: st.now,
	})
}

func (st *poolState) license(identifier string) (domain.License, bool) {
	for _, l := range st.snap.Licenses {
		if l.Identifier == identifier {
			return l, true
		}
	}
	return domain.License{}, false
}

func (st *poolState) saveLicense(ctx context.Context, l domain.License) error {
	if err := st.repo.UpdateLicense(ctx, l); err != nil {
		return fmt.Errorf("update license %s: %w", l.Identifier, err)
	}
	for i := range st.snap.Licenses {
		if st.snap.Licenses[i].Identifier == l.Identifier {
			st.snap.Licenses[i] = l
		}
	}
	return nil
}

// releaseSlot gives the loan's slot back to its license, if the license is
// still around to take it.
func (st *poolState) releaseSlot(ctx context.Context, loan domain.Loan) error {
	l, ok := st.license(loan.LicenseIdentifier)
	if !ok || !l.ReleaseSlot(st.now) {
		return nil
	}
	return st.saveLicense(ctx, l)
}

func (st *poolState) loan(id string) (domain.Loan, bool) {
	for _, l := range st.snap.Loans {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Loan{}, false
}

func (st *poolState) patronLoan(patronID string) (domain.Loan, bool) {
	for _, l := range st.snap.Loans {
		if l.PatronID == patronID {
			return l, true
		}
	}
	return domain.Loan{}, false
}

func (st *poolState) addLoan(ctx context.Context, l domain.Loan) error {
	if err := st.repo.CreateLoan(ctx, l); err != nil {
		return fmt.Errorf("create loan: %w", err)
	}
	st.snap.Loans = append(st.snap.Loans, l)
	return nil
}

func (st *poolState) saveLoan(ctx context.Context, l domain.Loan) error {
	if err := st.repo.UpdateLoan(ctx, l); err != nil {
		return fmt.Errorf("update loan %s: %w", l.ID, err)
	}
	for i := range st.snap.Loans {
		if st.snap.Loans[i].ID == l.ID {
			st.snap.Loans[i] = l
		}
	}
	return nil
}

func (st *poolState) removeLoan(ctx context.Context, id string) error {
	if err := st.repo.DeleteLoan(ctx, id); err != nil {
		return fmt.Errorf("delete loan %s: %w", id, err)
	}
	st.snap.Loans = slices.DeleteFunc(st.snap.Loans, func(l domain.Loan) bool { return l.ID == id })
	return nil
}

func (st *poolState) patronHold(patronID string) (domain.Hold, bool) {
	for _, h := range st.snap.Holds {
		if h.PatronID == patronID {
			return h, true
		}
	}
	return domain.Hold{}, false
}

func (st *poolState) hold(id string) (domain.Hold, bool) {
	for _, h := range st.snap.Holds {
		if h.ID == id {
			return h, true
		}
	}
	return domain.Hold{}, false
}

func (st *poolState) addHold(ctx context.Context, h domain.Hold) error {
	if err := st.repo.CreateHold(ctx, h); err != nil {
		return fmt.Errorf("create hold: %w", err)
	}
	st.snap.Holds = append(st.snap.Holds, h)
	return nil
}

func (st *poolState) saveHold(ctx context.Context, h domain.Hold) error {
	if err := st.repo.UpdateHold(ctx, h); err != nil {
		return fmt.Errorf("update hold %s: %w", h.ID, err)
	}
	for i := range st.snap.Holds {
		if st.snap.Holds[i].ID == h.ID {
			st.snap.Holds[i] = h
		}
	}
	return nil
}

func (st *poolState) removeHold(ctx context.Context, id string) error {
	if err := st.repo.DeleteHold(ctx, id); err != nil {
		return fmt.Errorf("delete hold %s: %w", id, err)
	}
	st.snap.Holds = slices.DeleteFunc(st.snap.Holds, func(h domain.Hold) bool { return h.ID == id })
	return nil
}
