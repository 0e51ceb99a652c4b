package lsd

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/yosida95/uritemplate/v3"

	"github.com/cimillas/odl-lending/internal/domain"
)

// CheckoutVars are the variables a license's checkout URL template may use.
type CheckoutVars struct {
	LicenseID       string
	CheckoutID      string
	PatronID        string
	Expires         time.Time
	NotificationURL string
	Passphrase      string
	Hint            string
	HintURL         string
}

// ExpandCheckoutURL fills a checkout URL template. Variables the template does
// not mention are ignored and empty optional values are left out.
func ExpandCheckoutURL(template string, vars CheckoutVars) (string, error) {
	tmpl, err := uritemplate.New(template)
	if err != nil {
		return "", fmt.Errorf("%w: checkout url template: %w", domain.ErrCannotLoan, err)
	}
	values := uritemplate.Values{}
	set := func(name, value string) {
		if value != "" {
			values.Set(name, uritemplate.String(value))
		}
	}
	set("id", vars.LicenseID)
	set("checkout_id", vars.CheckoutID)
	set("patron_id", vars.PatronID)
	if !vars.Expires.IsZero() {
		set("expires", vars.Expires.UTC().Format(time.RFC3339))
	}
	set("notification_url", vars.NotificationURL)
	set("passphrase", vars.Passphrase)
	set("hint", vars.Hint)
	set("hint_url", vars.HintURL)

	expanded, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("%w: expand checkout url: %w", domain.ErrCannotLoan, err)
	}
	return expanded, nil
}

// EncodePassphrase hashes a patron passphrase the way LCP expects it on the
// checkout URL: base64 of the raw SHA-256 digest.
func EncodePassphrase(passphrase string) string {
	sum := sha256.Sum256([]byte(passphrase))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NotificationURL expands the {loan_id} variable of a callback template. An
// empty template means the distributor is not told where to call back.
func NotificationURL(template, loanID string) (string, error) {
	if template == "" {
		return "", nil
	}
	tmpl, err := uritemplate.New(template)
	if err != nil {
		return "", fmt.Errorf("%w: notification url template: %w", domain.ErrCannotLoan, err)
	}
	values := uritemplate.Values{}
	values.Set("loan_id", uritemplate.String(loanID))
	expanded, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("%w: expand notification url: %w", domain.ErrCannotLoan, err)
	}
	return expanded, nil
}
