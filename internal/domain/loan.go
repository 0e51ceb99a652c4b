package domain

import "time"

// Loan is a patron's local record of holding a license. ExternalIdentifier is
// the URL of the remote License Status Document and stays empty until the
// distributor confirmed the checkout.
type Loan struct {
	ID                 string
	PatronID           string
	PoolID             string
	LicenseIdentifier  string
	Start              time.Time
	End                *time.Time
	ExternalIdentifier string
}

// IsPending reports whether the loan was created locally but never confirmed.
func (l Loan) IsPending() bool { return l.ExternalIdentifier == "" }

// IsCurrent reports whether the loan still occupies a slot at now.
func (l Loan) IsCurrent(now time.Time) bool {
	return l.End == nil || l.End.After(now)
}
