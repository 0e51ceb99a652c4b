package ledger

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/cimillas/odl-lending/internal/domain"
)

// Position is a hold's rank given how many queued holds are ahead of it and
// how many concurrent slots are free: 0 when a slot is left for it, otherwise
// one past the holds ahead.
func Position(holdsBefore, freeSlots int) int {
	if freeSlots > holdsBefore {
		return 0
	}
	return holdsBefore + 1
}

// Queue returns the pool's active holds in queue order. Holds of patrons who
// already have a loan on the pool are left out: they are being converted.
func Queue(now time.Time, snap Snapshot) []domain.Hold {
	borrowing := make(map[string]bool, len(snap.Loans))
	for _, l := range snap.Loans {
		borrowing[l.PatronID] = true
	}
	queue := make([]domain.Hold, 0, len(snap.Holds))
	for _, h := range ActiveHolds(now, snap.Holds) {
		if borrowing[h.PatronID] {
			continue
		}
		queue = append(queue, h)
	}
	return queue
}

// HoldsBefore counts the queued holds ahead of h.
func HoldsBefore(now time.Time, h domain.Hold, snap Snapshot) int {
	queue := Queue(now, snap)
	for i, q := range queue {
		if q.ID == h.ID {
			return i
		}
	}
	return len(queue)
}

// ActiveHolds drops expired holds and sorts the rest by start time, patron
// and id so every caller sees the same order.
func ActiveHolds(now time.Time, holds []domain.Hold) []domain.Hold {
	out := make([]domain.Hold, 0, len(holds))
	for _, h := range holds {
		if h.IsExpired(now) {
			continue
		}
		out = append(out, h)
	}
	SortHolds(out)
	return out
}

func SortHolds(holds []domain.Hold) {
	slices.SortStableFunc(holds, func(a, b domain.Hold) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := strings.Compare(a.PatronID, b.PatronID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// EstimateEndDate returns the end date a hold should carry once it sits at
// position. A hold that keeps its reservation keeps its deadline, a newly
// reserved hold gets a full reservation period from now, and a queued hold
// gets the latest time a slot could reach it if every loan and reservation
// ahead runs its full course. The result is nil when the pool owns nothing.
func EstimateEndDate(now time.Time, h domain.Hold, position int, snap Snapshot, periods Periods) *time.Time {
	if position == 0 {
		if h.Position == 0 && h.End != nil {
			return h.End
		}
		end := now.Add(periods.Reservation)
		return &end
	}

	owned, free := capacity(now, snap.Licenses)
	if owned <= 0 {
		return nil
	}
	queue := Queue(now, snap)
	reserved := min(len(queue), free)

	loanEnds := currentLoanEnds(now, snap.Loans, periods)

	n := max(position-reserved-1, 0)
	cycles := n / owned
	slot := n % owned

	var next time.Time
	switch {
	case slot < len(loanEnds):
		next = loanEnds[slot]
	case slot-len(loanEnds) < reserved:
		r := queue[slot-len(loanEnds)]
		deadline := now.Add(periods.Reservation)
		if r.End != nil {
			deadline = *r.End
		}
		next = deadline.Add(periods.Loan)
	default:
		// Capacity the ledger does not see a local record for, such as a
		// checkout still in flight.
		next = now.Add(periods.Loan)
	}

	end := next.Add(time.Duration(cycles) * (periods.Loan + periods.Reservation))
	return &end
}

// currentLoanEnds lists when each current loan frees its slot, soonest first.
// A loan with no known end is assumed to run a full loan period from now.
func currentLoanEnds(now time.Time, loans []domain.Loan, periods Periods) []time.Time {
	var known, unknown []time.Time
	for _, l := range loans {
		if !l.IsCurrent(now) {
			continue
		}
		if l.End == nil {
			unknown = append(unknown, now.Add(periods.Loan))
			continue
		}
		known = append(known, *l.End)
	}
	slices.SortFunc(known, func(a, b time.Time) int { return a.Compare(b) })
	return append(known, unknown...)
}

// BestAvailableLicense picks the license a new checkout should use: one that
// expires soonest, then perpetual ones, then ones limited by both time and
// loans, then loan-limited ones with the most checkouts left. It returns false
// when no license can lend right now.
func BestAvailableLicense(now time.Time, licenses []domain.License) (domain.License, bool) {
	candidates := make([]domain.License, 0, len(licenses))
	for _, l := range licenses {
		if l.IsAvailableForBorrowing(now) {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return domain.License{}, false
	}
	slices.SortStableFunc(candidates, func(a, b domain.License) int {
		if c := cmp.Compare(licenseRank(a), licenseRank(b)); c != 0 {
			return c
		}
		switch licenseRank(a) {
		case rankTimeLimited, rankTimeAndLoanLimited:
			if c := a.Expires.Compare(*b.Expires); c != 0 {
				return c
			}
		case rankLoanLimited:
			if c := cmp.Compare(*b.CheckoutsLeft, *a.CheckoutsLeft); c != 0 {
				return c
			}
		}
		return strings.Compare(a.Identifier, b.Identifier)
	})
	return candidates[0], true
}

const (
	rankTimeLimited = iota
	rankPerpetual
	rankTimeAndLoanLimited
	rankLoanLimited
)

func licenseRank(l domain.License) int {
	switch {
	case l.IsTimeLimited() && l.IsLoanLimited():
		return rankTimeAndLoanLimited
	case l.IsTimeLimited():
		return rankTimeLimited
	case l.IsLoanLimited():
		return rankLoanLimited
	}
	return rankPerpetual
}

// HasActiveLicense reports whether any license could still lend, now or after
// current loans return.
func HasActiveLicense(now time.Time, licenses []domain.License) bool {
	for _, l := range licenses {
		if !l.IsInactive(now) {
			return true
		}
	}
	return false
}
