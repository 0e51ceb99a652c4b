package lsd

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/cimillas/odl-lending/internal/domain"
)

// Link relations used by the protocol.
const (
	RelSelf        = "self"
	RelReturn      = "return"
	RelLicense     = "license"
	RelManifest    = "manifest"
	RelPublication = "publication"
	RelStatus      = "status"
)

type Link struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	Type      string `json:"type,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

type Links []Link

// Get returns the first link with rel, and with typ when typ is not empty.
func (ls Links) Get(rel, typ string) (Link, bool) {
	for _, l := range ls {
		if l.Rel != rel {
			continue
		}
		if typ != "" && l.Type != typ {
			continue
		}
		return l, true
	}
	return Link{}, false
}

// Document is a parsed License Status Document.
type Document struct {
	ID      string
	Status  LoanStatus
	Updated *time.Time
	// End is the remote loan expiry, nil when the distributor sent none.
	End   *time.Time
	Links Links
}

// SelfURL is the document's own location, used as a loan's external
// identifier.
func (d Document) SelfURL() string {
	l, _ := d.Links.Get(RelSelf, "")
	return l.Href
}

type wireDocument struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Updated struct {
		License string `json:"license"`
		Status  string `json:"status"`
	} `json:"updated"`
	PotentialRights struct {
		End string `json:"end"`
	} `json:"potential_rights"`
	Links Links `json:"links"`
}

// ParseDocument decodes a status document. Malformed JSON, an unknown status
// and an unparseable expiry all fail with ErrBadResponse.
func ParseDocument(body []byte) (Document, error) {
	var wire wireDocument
	if err := jsoniter.ConfigFastest.Unmarshal(body, &wire); err != nil {
		return Document{}, fmt.Errorf("%w: license status document is not valid JSON: %w", domain.ErrBadResponse, err)
	}
	status, err := ParseLoanStatus(wire.Status)
	if err != nil {
		return Document{}, err
	}

	doc := Document{ID: wire.ID, Status: status, Links: wire.Links}
	if doc.End, err = parseTime(wire.PotentialRights.End); err != nil {
		return Document{}, fmt.Errorf("%w: potential_rights.end: %w", domain.ErrBadResponse, err)
	}
	if doc.Updated, err = parseTime(wire.Updated.Status); err != nil {
		return Document{}, fmt.Errorf("%w: updated.status: %w", domain.ErrBadResponse, err)
	}
	return doc, nil
}

// licenseDocument is the subset of an LCP license the client needs: the link
// back to the status document.
type licenseDocument struct {
	ID    string `json:"id"`
	Links Links  `json:"links"`
}

func parseLicenseDocument(body []byte) (licenseDocument, error) {
	var doc licenseDocument
	if err := jsoniter.ConfigFastest.Unmarshal(body, &doc); err != nil {
		return licenseDocument{}, fmt.Errorf("%w: license document is not valid JSON: %w", domain.ErrBadResponse, err)
	}
	return doc, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", s)
}
