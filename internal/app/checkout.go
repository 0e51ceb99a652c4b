package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/ledger"
	"github.com/cimillas/odl-lending/internal/lsd"
)

// Checkout lends the pool's title to a patron. A slot is taken and a pending
// loan recorded under the pool lock, the distributor is asked without it, and
// the outcome is applied under the lock again: either the loan is confirmed or
// it is removed and its slot given back.
func (s *CirculationService) Checkout(ctx context.Context, patronID, poolID string) (domain.LoanInfo, error) {
	var (
		pending domain.Loan
		license domain.License
	)
	err := s.inPool(ctx, poolID, func(ctx context.Context, st *poolState) error {
		if _, ok := st.patronLoan(patronID); ok {
			return domain.ErrAlreadyCheckedOut
		}
		if err := s.checkLoanLimit(ctx, patronID, st.pool()); err != nil {
			return err
		}
		if !ledger.HasActiveLicense(st.now, st.snap.Licenses) {
			return domain.ErrNoLicenses
		}
		if err := st.recompute(ctx); err != nil {
			return err
		}
		if !admits(st, patronID) {
			return domain.ErrNoAvailableCopies
		}

		best, ok := ledger.BestAvailableLicense(st.now, st.snap.Licenses)
		if !ok {
			return domain.ErrNoAvailableCopies
		}
		best.TakeSlot(st.now)
		if err := st.saveLicense(ctx, best); err != nil {
			return err
		}
		license = best

		pending = domain.Loan{
			ID:                newID(),
			PatronID:          patronID,
			PoolID:            poolID,
			LicenseIdentifier: best.Identifier,
			Start:             st.now,
		}
		if err := st.addLoan(ctx, pending); err != nil {
			return err
		}
		return st.recompute(ctx)
	})
	if err != nil {
		return domain.LoanInfo{}, err
	}

	doc, statusURL, remoteErr := s.startRemoteLoan(ctx, pending, license)

	// The outcome is applied even if the caller gave up, so no pending loan
	// is left behind holding a slot.
	settleCtx := context.WithoutCancel(ctx)
	if remoteErr != nil {
		if err := s.abandonCheckout(settleCtx, pending, remoteErr); err != nil {
			return domain.LoanInfo{}, errors.Join(remoteErr, err)
		}
		return domain.LoanInfo{}, checkoutError(remoteErr)
	}

	var info domain.LoanInfo
	err = s.inPool(settleCtx, poolID, func(ctx context.Context, st *poolState) error {
		loan, ok := st.loan(pending.ID)
		if !ok {
			return fmt.Errorf("%w: loan %s was released before the distributor confirmed it", domain.ErrCannotLoan, pending.ID)
		}
		loan.ExternalIdentifier = statusURL
		loan.Start = st.now
		loan.End = doc.End
		if err := st.saveLoan(ctx, loan); err != nil {
			return err
		}

		if l, ok := st.license(loan.LicenseIdentifier); ok {
			l.ConsumeCheckout()
			if err := st.saveLicense(ctx, l); err != nil {
				return err
			}
		}
		if h, ok := st.patronHold(patronID); ok {
			if err := st.removeHold(ctx, h.ID); err != nil {
				return err
			}
		}
		if err := st.recompute(ctx); err != nil {
			return err
		}
		st.record(domain.EventCirculationCheckout, patronID)
		info = domain.NewLoanInfo(st.pool(), loan)
		return nil
	})
	if err != nil {
		return domain.LoanInfo{}, err
	}

	s.log.Info().
		Str("pool_id", poolID).
		Str("loan_id", pending.ID).
		Str("license", license.Identifier).
		Msg("loan confirmed")
	return info, nil
}

// admits reports whether the patron may take a slot now: either one is free
// for walk-up checkout or a ready hold reserved one for them.
func admits(st *poolState, patronID string) bool {
	if st.pool().LicensesAvailable > 0 {
		return true
	}
	h, ok := st.patronHold(patronID)
	return ok && h.IsReady() && !h.IsExpired(st.now)
}

func (s *CirculationService) startRemoteLoan(ctx context.Context, loan domain.Loan, license domain.License) (lsd.Document, string, error) {
	doc, err := s.client.Fetch(ctx, loan, license)
	if err != nil {
		return lsd.Document{}, "", err
	}
	if !doc.Status.IsActive() {
		return lsd.Document{}, "", fmt.Errorf("%w: distributor answered checkout with status %s", domain.ErrCannotLoan, doc.Status)
	}
	statusURL, err := s.client.StatusLink(ctx, doc)
	if err != nil {
		return lsd.Document{}, "", err
	}
	return doc, statusURL, nil
}

// abandonCheckout removes a pending loan and returns its slot. When the
// distributor said the license is out of copies, the license is emptied and
// the patron's hold goes back into the queue.
func (s *CirculationService) abandonCheckout(ctx context.Context, pending domain.Loan, cause error) error {
	var problem *lsd.ProblemDetail
	unavailable := errors.As(cause, &problem) && problem.IsCheckoutUnavailable()

	err := s.inPool(ctx, pending.PoolID, func(ctx context.Context, st *poolState) error {
		if _, ok := st.loan(pending.ID); ok {
			if err := st.removeLoan(ctx, pending.ID); err != nil {
				return err
			}
			if err := st.releaseSlot(ctx, pending); err != nil {
				return err
			}
		}
		if unavailable {
			if l, ok := st.license(pending.LicenseIdentifier); ok {
				l.CheckoutsAvailable = 0
				if err := st.saveLicense(ctx, l); err != nil {
					return err
				}
			}
			if h, ok := st.patronHold(pending.PatronID); ok {
				h.Position = 1
				h.End = nil
				if err := st.saveHold(ctx, h); err != nil {
					return err
				}
			}
		}
		return st.recompute(ctx)
	})
	if err != nil {
		return fmt.Errorf("release pending loan %s: %w", pending.ID, err)
	}
	s.log.Warn().
		Err(cause).
		Str("pool_id", pending.PoolID).
		Str("loan_id", pending.ID).
		Bool("license_exhausted", unavailable).
		Msg("checkout rolled back")
	return nil
}

// checkoutError names a failed distributor checkout. A refusal is reported
// as the loan being refused; malformed answers stay bad responses.
func checkoutError(err error) error {
	refused, ok := lsd.AsRefused(err)
	switch {
	case ok && refused.Problem != nil && refused.Problem.IsCheckoutUnavailable():
		return fmt.Errorf("%w: %w", domain.ErrNoAvailableCopies, refused)
	case ok:
		return fmt.Errorf("%w: %w", domain.ErrCannotLoan, refused)
	}
	var problem *lsd.ProblemDetail
	if errors.As(err, &problem) && problem.IsCheckoutUnavailable() {
		return fmt.Errorf("%w: %w", domain.ErrNoAvailableCopies, problem)
	}
	return err
}
