package lsd

import (
	"errors"
	"fmt"
	"mime"

	jsoniter "github.com/json-iterator/go"
)

// ProblemTypeCheckoutUnavailable is returned by a distributor whose license
// has no free slot left even though our local counters said otherwise.
const ProblemTypeCheckoutUnavailable = "http://opds-spec.org/odl/error/checkout/unavailable"

// ProblemDetail is an RFC 7807 error body sent by the distributor.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (p *ProblemDetail) Error() string {
	if p.Detail != "" {
		return fmt.Sprintf("distributor problem %s (%d): %s", p.Type, p.Status, p.Detail)
	}
	return fmt.Sprintf("distributor problem %s (%d): %s", p.Type, p.Status, p.Title)
}

// IsCheckoutUnavailable reports whether the distributor refused a checkout
// because the license is out of copies.
func (p *ProblemDetail) IsCheckoutUnavailable() bool {
	return p.Type == ProblemTypeCheckoutUnavailable
}

func parseProblem(contentType string, body []byte, status int) (*ProblemDetail, bool) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/api-problem+json" && mediaType != "application/problem+json" {
		return nil, false
	}
	var p ProblemDetail
	if err := jsoniter.ConfigFastest.Unmarshal(body, &p); err != nil || p.Type == "" {
		return nil, false
	}
	if p.Status == 0 {
		p.Status = status
	}
	return &p, true
}

// RefusedError is a 4xx answer from the distributor. Problem is set when the
// body was an RFC 7807 problem detail.
type RefusedError struct {
	URL        string
	StatusCode int
	Problem    *ProblemDetail
	Body       string
}

func (e *RefusedError) Error() string {
	if e.Problem != nil {
		return e.Problem.Error()
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *RefusedError) Unwrap() error {
	if e.Problem == nil {
		return nil
	}
	return e.Problem
}

// AsRefused returns the distributor refusal err wraps, if any.
func AsRefused(err error) (*RefusedError, bool) {
	var refused *RefusedError
	if errors.As(err, &refused) {
		return refused, true
	}
	return nil, false
}
