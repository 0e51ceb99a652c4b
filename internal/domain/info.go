package domain

import "time"

// LoanInfo is what callers outside the engine see of a loan.
type LoanInfo struct {
	CollectionID       string
	IdentifierType     string
	Identifier         string
	Start              time.Time
	End                *time.Time
	ExternalIdentifier string
	LicenseIdentifier  string
}

type HoldInfo struct {
	CollectionID   string
	IdentifierType string
	Identifier     string
	Start          time.Time
	End            *time.Time
	Position       int
}

// Fulfillment is the content link negotiated for a loan.
type Fulfillment struct {
	CollectionID   string
	IdentifierType string
	Identifier     string
	ContentLink    string
	ContentType    string
	Expires        *time.Time
}

// DeliveryMechanism is the format a patron asked for. An empty value means
// any format.
type DeliveryMechanism struct {
	ContentType string
	DRMScheme   string
}

func (d DeliveryMechanism) IsZero() bool {
	return d.ContentType == "" && d.DRMScheme == ""
}

func NewLoanInfo(p Pool, l Loan) LoanInfo {
	return LoanInfo{
		CollectionID:       p.CollectionID,
		IdentifierType:     p.IdentifierType,
		Identifier:         p.Identifier,
		Start:              l.Start,
		End:                l.End,
		ExternalIdentifier: l.ExternalIdentifier,
		LicenseIdentifier:  l.LicenseIdentifier,
	}
}

func NewHoldInfo(p Pool, h Hold) HoldInfo {
	return HoldInfo{
		CollectionID:   p.CollectionID,
		IdentifierType: p.IdentifierType,
		Identifier:     p.Identifier,
		Start:          h.Start,
		End:            h.End,
		Position:       h.Position,
	}
}
