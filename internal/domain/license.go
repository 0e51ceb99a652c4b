package domain

import "time"

type LicenseStatus string

const (
	LicenseStatusAvailable   LicenseStatus = "available"
	LicenseStatusUnavailable LicenseStatus = "unavailable"
)

// License is one unit of remote lending capacity. Nil Concurrency or
// CheckoutsLeft means unlimited; nil Expires means the license never expires.
type License struct {
	PoolID             string
	Identifier         string
	Status             LicenseStatus
	Concurrency        *int
	CheckoutsLeft      *int
	CheckoutsAvailable int
	Expires            *time.Time
	CheckoutURL        string
	StatusURL          string
}

func (l License) IsTimeLimited() bool { return l.Expires != nil }

func (l License) IsLoanLimited() bool { return l.CheckoutsLeft != nil }

func (l License) IsPerpetual() bool { return !l.IsTimeLimited() && !l.IsLoanLimited() }

// IsInactive reports whether the license can no longer be lent: it expired, ran
// out of checkouts, or the distributor marked it unavailable.
func (l License) IsInactive(now time.Time) bool {
	if l.Expires != nil && !l.Expires.After(now) {
		return true
	}
	if l.CheckoutsLeft != nil && *l.CheckoutsLeft <= 0 {
		return true
	}
	return l.Status != LicenseStatusAvailable
}

// TotalRemainingLoans is the license's contribution to licenses_owned. It is
// nil only when both concurrency and checkouts are unlimited.
func (l License) TotalRemainingLoans(now time.Time) *int {
	if l.IsInactive(now) {
		return intPtr(0)
	}
	if l.IsLoanLimited() {
		if l.Concurrency != nil {
			return intPtr(min(*l.CheckoutsLeft, *l.Concurrency))
		}
		return intPtr(*l.CheckoutsLeft)
	}
	if l.Concurrency == nil {
		return nil
	}
	return intPtr(*l.Concurrency)
}

// CurrentlyAvailableLoans is the license's contribution to free slots.
func (l License) CurrentlyAvailableLoans(now time.Time) int {
	if l.IsInactive(now) {
		return 0
	}
	return max(l.CheckoutsAvailable, 0)
}

func (l License) IsAvailableForBorrowing(now time.Time) bool {
	return !l.IsInactive(now) && l.CheckoutsAvailable > 0
}

// TakeSlot claims one concurrent slot ahead of the remote checkout.
func (l *License) TakeSlot(now time.Time) bool {
	if !l.IsAvailableForBorrowing(now) {
		return false
	}
	l.CheckoutsAvailable--
	return true
}

// ConsumeCheckout spends one lifetime checkout once the remote authority
// confirmed the loan.
func (l *License) ConsumeCheckout() {
	if l.CheckoutsLeft != nil && *l.CheckoutsLeft > 0 {
		left := *l.CheckoutsLeft - 1
		l.CheckoutsLeft = &left
	}
}

// ReleaseSlot gives a concurrent slot back, never exceeding concurrency or the
// remaining checkouts. Inactive licenses are left untouched.
func (l *License) ReleaseSlot(now time.Time) bool {
	if l.IsInactive(now) {
		return false
	}
	available := l.CheckoutsAvailable + 1
	if l.Concurrency != nil {
		available = min(available, *l.Concurrency)
	}
	if l.CheckoutsLeft != nil {
		available = min(available, *l.CheckoutsLeft)
	}
	l.CheckoutsAvailable = available
	return true
}

func intPtr(v int) *int { return &v }
