package domain

import "time"

// Pool is the availability of one title within one collection. The counters
// are derived from licenses, loans and holds and are only written by the
// ledger recomputation.
type Pool struct {
	ID                 string
	CollectionID       string
	IdentifierType     string
	Identifier         string
	LicensesOwned      int
	LicensesAvailable  int
	LicensesReserved   int
	PatronsInHoldQueue int
	LastChecked        *time.Time
}

// Counters is the recomputable part of a Pool.
type Counters struct {
	Owned     int
	Available int
	Reserved  int
	Queue     int
}

func (p Pool) Counters() Counters {
	return Counters{
		Owned:     p.LicensesOwned,
		Available: p.LicensesAvailable,
		Reserved:  p.LicensesReserved,
		Queue:     p.PatronsInHoldQueue,
	}
}

func (p *Pool) Apply(c Counters, at time.Time) {
	p.LicensesOwned = c.Owned
	p.LicensesAvailable = c.Available
	p.LicensesReserved = c.Reserved
	p.PatronsInHoldQueue = c.Queue
	p.LastChecked = &at
}
