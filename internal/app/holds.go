package app

import (
	"context"

	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/ledger"
)

// PlaceHold puts a patron in the pool's queue. Patrons who could check out
// right away are told so instead.
func (s *CirculationService) PlaceHold(ctx context.Context, patronID, poolID string) (domain.HoldInfo, error) {
	var info domain.HoldInfo
	err := s.inPool(ctx, poolID, func(ctx context.Context, st *poolState) error {
		if _, ok := st.patronLoan(patronID); ok {
			return domain.ErrAlreadyCheckedOut
		}
		if _, ok := st.patronHold(patronID); ok {
			return domain.ErrAlreadyOnHold
		}
		if err := s.checkHoldLimit(ctx, patronID, st.pool()); err != nil {
			return err
		}
		if !ledger.HasActiveLicense(st.now, st.snap.Licenses) {
			return domain.ErrNoLicenses
		}
		if err := st.recompute(ctx); err != nil {
			return err
		}
		if st.pool().LicensesAvailable > 0 {
			return domain.ErrCurrentlyAvailable
		}

		hold := domain.Hold{
			ID:       newID(),
			PatronID: patronID,
			PoolID:   poolID,
			Start:    st.now,
			Position: st.pool().PatronsInHoldQueue + 1,
		}
		if err := st.addHold(ctx, hold); err != nil {
			return err
		}
		if err := st.recompute(ctx); err != nil {
			return err
		}
		placed, _ := st.hold(hold.ID)
		st.record(domain.EventCirculationHoldPlace, patronID)
		info = domain.NewHoldInfo(st.pool(), placed)
		return nil
	})
	if err != nil {
		return domain.HoldInfo{}, err
	}
	return info, nil
}

// ReleaseHold takes a patron out of the queue. Holds are local to this
// system, so the distributor is not involved.
func (s *CirculationService) ReleaseHold(ctx context.Context, patronID, poolID string) error {
	return s.inPool(ctx, poolID, func(ctx context.Context, st *poolState) error {
		h, ok := st.patronHold(patronID)
		if !ok {
			return domain.ErrNotOnHold
		}
		if err := st.removeHold(ctx, h.ID); err != nil {
			return err
		}
		if err := st.recompute(ctx); err != nil {
			return err
		}
		st.record(domain.EventCirculationHoldRelease, patronID)
		return nil
	})
}
