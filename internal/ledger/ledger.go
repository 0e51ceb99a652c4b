// Package ledger derives a license pool's availability counters and hold
// queue from its licenses, loans and holds. Everything here is pure: callers
// load a Snapshot under the pool lock, call Recompute, and persist the Result.
package ledger

import (
	"slices"
	"time"

	"github.com/cimillas/odl-lending/internal/domain"
)

// Periods are the collection's lending terms.
type Periods struct {
	Loan        time.Duration
	Reservation time.Duration
}

// DefaultPeriods match an ebook collection with no explicit settings.
func DefaultPeriods() Periods {
	return Periods{
		Loan:        21 * 24 * time.Hour,
		Reservation: 3 * 24 * time.Hour,
	}
}

// Snapshot is everything the ledger needs to know about one pool.
type Snapshot struct {
	Pool     domain.Pool
	Licenses []domain.License
	Loans    []domain.Loan
	Holds    []domain.Hold
}

type Result struct {
	Counters domain.Counters
	// Holds is the full hold list with updated positions and end dates, in
	// the order of the input snapshot.
	Holds []domain.Hold
	// Changed holds the indexes into Holds that differ from the input.
	Changed []int
	Events  []domain.CirculationEvent
}

// ChangedHolds returns the holds whose position or end date moved.
func (r Result) ChangedHolds() []domain.Hold {
	out := make([]domain.Hold, 0, len(r.Changed))
	for _, i := range r.Changed {
		out = append(out, r.Holds[i])
	}
	return out
}

// Recompute sums license capacity, reserves free slots for the front of the
// queue and refreshes every queued hold's position and end estimate. It never
// adds or removes holds, and running it twice on its own output is a no-op.
func Recompute(now time.Time, snap Snapshot, periods Periods) Result {
	owned, free := capacity(now, snap.Licenses)

	queue := Queue(now, snap)
	reserved := min(len(queue), free)

	res := Result{
		Counters: domain.Counters{
			Owned:     owned,
			Available: free - reserved,
			Reserved:  reserved,
			Queue:     len(queue),
		},
		Holds: slices.Clone(snap.Holds),
	}

	index := make(map[string]int, len(snap.Holds))
	for i, h := range snap.Holds {
		index[h.ID] = i
	}

	// The front of the queue is settled first so estimates further back see
	// the reservation deadlines handed out in this pass.
	for _, h := range queue[:reserved] {
		updated := h
		updated.Position = 0
		updated.End = EstimateEndDate(now, h, 0, snap, periods)
		res.Holds[index[h.ID]] = updated
	}
	settled := snap
	settled.Holds = res.Holds
	for rank, h := range queue[reserved:] {
		pos := Position(reserved+rank, free)
		updated := h
		updated.Position = pos
		updated.End = EstimateEndDate(now, h, pos, settled, periods)
		res.Holds[index[h.ID]] = updated
	}

	for i := range snap.Holds {
		if !sameHold(snap.Holds[i], res.Holds[i]) {
			res.Changed = append(res.Changed, i)
		}
	}

	res.Events = counterEvents(snap.Pool, res.Counters, now)
	return res
}

// capacity returns licenses_owned and the free concurrent slots. A license
// never offers more free slots than it has remaining loans, and a license
// with no limits at all counts its free slots as owned.
func capacity(now time.Time, licenses []domain.License) (owned, free int) {
	for _, l := range licenses {
		slots := l.CurrentlyAvailableLoans(now)
		if remaining := l.TotalRemainingLoans(now); remaining != nil {
			owned += *remaining
			slots = min(slots, *remaining)
		} else {
			owned += slots
		}
		free += slots
	}
	return owned, free
}

func sameHold(a, b domain.Hold) bool {
	if a.Position != b.Position {
		return false
	}
	switch {
	case a.End == nil && b.End == nil:
		return true
	case a.End == nil || b.End == nil:
		return false
	}
	return a.End.Equal(*b.End)
}

func counterEvents(p domain.Pool, next domain.Counters, now time.Time) []domain.CirculationEvent {
	prev := p.Counters()
	var events []domain.CirculationEvent
	add := func(old, new int, more, fewer domain.EventType) {
		if old == new {
			return
		}
		typ := more
		if new < old {
			typ = fewer
		}
		if typ == "" {
			return
		}
		events = append(events, domain.CirculationEvent{
			Type:       typ,
			PoolID:     p.ID,
			OldValue:   old,
			NewValue:   new,
			OccurredAt: now,
		})
	}
	add(prev.Queue, next.Queue, domain.EventDistributorHoldPlace, domain.EventDistributorHoldRelease)
	add(prev.Available, next.Available, domain.EventDistributorCheckin, domain.EventDistributorCheckout)
	add(prev.Reserved, next.Reserved, domain.EventDistributorAvailabilityNotify, "")
	add(prev.Owned, next.Owned, domain.EventDistributorLicenseAdd, domain.EventDistributorLicenseRemove)
	return events
}
