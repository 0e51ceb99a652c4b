package domain

import "errors"

// Circulation failures. Every error returned by the engine matches exactly one
// of these with errors.Is.
var (
	ErrNoLicenses         = errors.New("no licenses")
	ErrNoAvailableCopies  = errors.New("no available copies")
	ErrAlreadyCheckedOut  = errors.New("already checked out")
	ErrAlreadyOnHold      = errors.New("already on hold")
	ErrCurrentlyAvailable = errors.New("currently available")
	ErrNotCheckedOut      = errors.New("not checked out")
	ErrNotOnHold          = errors.New("not on hold")
	ErrCannotLoan         = errors.New("cannot loan")
	ErrCannotFulfill      = errors.New("cannot fulfill")
	ErrCannotReturn       = errors.New("cannot return")
	ErrCannotReleaseHold  = errors.New("cannot release hold")
	ErrBadResponse        = errors.New("bad response")
	ErrIntegrationTimeout = errors.New("integration timeout")
	ErrIntegrationFailure = errors.New("integration failure")
)

// Patron limits configured for the collection.
var (
	ErrPatronLoanLimit   = errors.New("patron loan limit reached")
	ErrPatronHoldLimit   = errors.New("patron hold limit reached")
	ErrHoldsNotPermitted = errors.New("holds not permitted")
)

// Storage lookups and catalog input.
var (
	ErrPoolNotFound   = errors.New("license pool not found")
	ErrLoanNotFound   = errors.New("loan not found")
	ErrInvalidLicense = errors.New("invalid license")
	ErrInvalidPool    = errors.New("invalid license pool")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNoLicenses, "no_licenses"},
	{ErrNoAvailableCopies, "no_available_copies"},
	{ErrAlreadyCheckedOut, "already_checked_out"},
	{ErrAlreadyOnHold, "already_on_hold"},
	{ErrCurrentlyAvailable, "currently_available"},
	{ErrNotCheckedOut, "not_checked_out"},
	{ErrNotOnHold, "not_on_hold"},
	{ErrCannotLoan, "cannot_loan"},
	{ErrCannotFulfill, "cannot_fulfill"},
	{ErrCannotReturn, "cannot_return"},
	{ErrCannotReleaseHold, "cannot_release_hold"},
	{ErrBadResponse, "bad_response"},
	{ErrIntegrationTimeout, "integration_timeout"},
	{ErrIntegrationFailure, "integration_failure"},
	{ErrPatronLoanLimit, "patron_loan_limit_reached"},
	{ErrPatronHoldLimit, "patron_hold_limit_reached"},
	{ErrHoldsNotPermitted, "holds_not_permitted"},
	{ErrPoolNotFound, "pool_not_found"},
	{ErrLoanNotFound, "loan_not_found"},
	{ErrInvalidLicense, "invalid_license"},
	{ErrInvalidPool, "invalid_pool"},
}

// Kind returns the snake_case name of the first known failure err wraps, or
// "internal" when it wraps none.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// IsRetryable reports whether err is a network-level failure that a caller
// may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIntegrationTimeout) || errors.Is(err, ErrIntegrationFailure)
}
