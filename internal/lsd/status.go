// Package lsd speaks the ODL License Status Document protocol: it starts
// checkouts, reads status documents and follows their links. The distributor
// is the source of truth for every loan; this package only reports what it
// says.
package lsd

import (
	"fmt"

	"github.com/cimillas/odl-lending/internal/domain"
)

// LoanStatus is the remote state of a loan.
type LoanStatus int

const (
	StatusReady LoanStatus = iota + 1
	StatusActive
	StatusRevoked
	StatusReturned
	StatusCancelled
	StatusExpired
)

var statusNames = map[LoanStatus]string{
	StatusReady:     "ready",
	StatusActive:    "active",
	StatusRevoked:   "revoked",
	StatusReturned:  "returned",
	StatusCancelled: "cancelled",
	StatusExpired:   "expired",
}

// ParseLoanStatus fails with ErrBadResponse for anything outside the six
// protocol values.
func ParseLoanStatus(s string) (LoanStatus, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown license status %q", domain.ErrBadResponse, s)
}

func (s LoanStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LoanStatus(%d)", int(s))
}

// IsActive reports whether the patron still holds the license.
func (s LoanStatus) IsActive() bool {
	return s == StatusReady || s == StatusActive
}

// IsTerminal reports whether the loan is over and its slot can be reused.
func (s LoanStatus) IsTerminal() bool {
	switch s {
	case StatusRevoked, StatusReturned, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
