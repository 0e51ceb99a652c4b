package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/lsd"
)

// Checkin returns a patron's loan early. The distributor decides whether the
// return happened; the local loan is only removed once its status document
// says the loan is over. A document without a return link means the content
// has to be returned through the reading app, which is not an error.
func (s *CirculationService) Checkin(ctx context.Context, patronID, poolID string) error {
	loan, err := s.repo.FindLoan(ctx, patronID, poolID)
	if err != nil {
		return fmt.Errorf("checkin: %w", err)
	}
	if loan == nil || loan.IsPending() {
		return domain.ErrNotCheckedOut
	}

	doc, err := s.client.Fetch(ctx, *loan, domain.License{})
	if err != nil {
		return fmt.Errorf("checkin: %w", err)
	}
	if doc.Status.IsTerminal() {
		return s.finishCheckin(ctx, *loan, doc)
	}

	returnLink, ok := doc.Links.Get(lsd.RelReturn, "")
	if !ok || returnLink.Href == "" {
		s.log.Info().Str("loan_id", loan.ID).Msg("no return link, leaving loan to the reading app")
		return nil
	}
	if err := s.client.Follow(ctx, returnLink); err != nil {
		if refused, ok := lsd.AsRefused(err); ok {
			return fmt.Errorf("%w: %w", domain.ErrCannotReturn, refused)
		}
		if errors.Is(err, domain.ErrBadResponse) {
			return fmt.Errorf("%w: %w", domain.ErrCannotReturn, err)
		}
		return fmt.Errorf("checkin: %w", err)
	}

	doc, err = s.client.Fetch(ctx, *loan, domain.License{})
	if err != nil {
		return fmt.Errorf("checkin: %w", err)
	}
	if !doc.Status.IsTerminal() {
		return fmt.Errorf("%w: distributor still reports %s after return", domain.ErrCannotReturn, doc.Status)
	}
	return s.finishCheckin(ctx, *loan, doc)
}

func (s *CirculationService) finishCheckin(ctx context.Context, loan domain.Loan, doc lsd.Document) error {
	if err := s.UpdateLoan(ctx, loan.ID, doc); err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			// A distributor notification got there first.
			return nil
		}
		return err
	}
	s.publish(ctx, []domain.CirculationEvent{{
		Type:       domain.EventCirculationCheckin,
		PoolID:     loan.PoolID,
		PatronID:   loan.PatronID,
		OccurredAt: s.clock.Now(),
	}})
	return nil
}

// UpdateLoan reconciles a loan with the latest status document, whether it
// was fetched or pushed by the distributor. A finished loan is removed and
// its slot goes to the next hold in line; an active loan is left as it is.
func (s *CirculationService) UpdateLoan(ctx context.Context, loanID string, doc lsd.Document) error {
	if !doc.Status.IsTerminal() {
		return nil
	}
	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	err = s.inPool(ctx, loan.PoolID, func(ctx context.Context, st *poolState) error {
		current, ok := st.loan(loanID)
		if !ok {
			return domain.ErrLoanNotFound
		}
		if err := st.removeLoan(ctx, current.ID); err != nil {
			return err
		}
		if err := st.releaseSlot(ctx, current); err != nil {
			return err
		}
		return st.recompute(ctx)
	})
	if err != nil {
		return err
	}
	s.log.Info().
		Str("pool_id", loan.PoolID).
		Str("loan_id", loanID).
		Stringer("status", doc.Status).
		Msg("loan ended")
	return nil
}
