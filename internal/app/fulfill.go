package app

import (
	"context"
	"fmt"

	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/lsd"
)

// Fulfill returns the download link for a patron's loan in the requested
// format. It only reads: a loan the distributor no longer honours is
// reported, and reconciling it is left to the next checkin or notification.
func (s *CirculationService) Fulfill(ctx context.Context, patronID, poolID string, mechanism domain.DeliveryMechanism) (domain.Fulfillment, error) {
	loan, err := s.repo.FindLoan(ctx, patronID, poolID)
	if err != nil {
		return domain.Fulfillment{}, fmt.Errorf("fulfill: %w", err)
	}
	if loan == nil {
		return domain.Fulfillment{}, domain.ErrNotCheckedOut
	}
	if loan.IsPending() {
		return domain.Fulfillment{}, fmt.Errorf("%w: loan %s is not confirmed yet", domain.ErrCannotFulfill, loan.ID)
	}

	doc, err := s.client.Fetch(ctx, *loan, domain.License{})
	if refused, ok := lsd.AsRefused(err); ok {
		return domain.Fulfillment{}, fmt.Errorf("%w: %w", domain.ErrCannotFulfill, refused)
	}
	if err != nil {
		return domain.Fulfillment{}, fmt.Errorf("fulfill: %w", err)
	}
	if !doc.Status.IsActive() {
		return domain.Fulfillment{}, fmt.Errorf("%w: loan status is %s", domain.ErrCannotFulfill, doc.Status)
	}
	link, ok := lsd.SelectContentLink(doc.Links, mechanism)
	if !ok {
		return domain.Fulfillment{}, fmt.Errorf("%w: no content link for %s %s", domain.ErrCannotFulfill, mechanism.ContentType, mechanism.DRMScheme)
	}

	pool, err := s.repo.GetPool(ctx, poolID)
	if err != nil {
		return domain.Fulfillment{}, fmt.Errorf("fulfill: %w", err)
	}
	s.publish(ctx, []domain.CirculationEvent{{
		Type:       domain.EventCirculationFulfill,
		PoolID:     poolID,
		PatronID:   patronID,
		OccurredAt: s.clock.Now(),
	}})
	return domain.Fulfillment{
		CollectionID:   pool.CollectionID,
		IdentifierType: pool.IdentifierType,
		Identifier:     pool.Identifier,
		ContentLink:    link.Href,
		ContentType:    link.Type,
		Expires:        doc.End,
	}, nil
}
