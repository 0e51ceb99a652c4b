package domain

import "time"

// Hold is a patron's place in a pool's queue. Position 0 means a license is
// reserved for the patron until End; a positive position is the queue rank and
// End is only an estimate.
type Hold struct {
	ID       string
	PatronID string
	PoolID   string
	Start    time.Time
	End      *time.Time
	Position int
}

// IsReady reports whether a license is reserved for the hold.
func (h Hold) IsReady() bool { return h.Position == 0 }

// IsExpired is the only reliable expiry signal: a ready hold whose reservation
// period has passed. A queued hold's End was estimated under older queue
// state and says nothing about expiry.
func (h Hold) IsExpired(now time.Time) bool {
	return h.Position == 0 && h.End != nil && !h.End.After(now)
}
