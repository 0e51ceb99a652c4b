package lsd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yosida95/uritemplate/v3"
	"golang.org/x/time/rate"

	"github.com/cimillas/odl-lending/internal/clock"
	"github.com/cimillas/odl-lending/internal/domain"
)

const maxBodyBytes = 1 << 20

// DefaultDeviceName identifies this system to distributors on return.
const DefaultDeviceName = "ODL Lending"

// PassphraseSource looks up the LCP passphrase of a patron. Collections that
// do not protect content with a passphrase run without one.
type PassphraseSource interface {
	Passphrase(ctx context.Context, patronID string) (string, error)
}

type Config struct {
	Username string
	Password string
	// NotificationURLTemplate is the public callback URL with a {loan_id}
	// placeholder.
	NotificationURLTemplate string
	PassphraseHint          string
	PassphraseHintURL       string
	// DeviceName fills the {name} variable of templated return links.
	DeviceName              string
	LoanPeriod              time.Duration
	Timeout                 time.Duration
	RequestsPerSecond       float64
	Burst                   int
}

// Client talks to one distributor on behalf of one collection.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	limiter     *rate.Limiter
	clock       clock.Clock
	passphrases PassphraseSource
	log         zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

func WithPassphraseSource(src PassphraseSource) Option {
	return func(c *Client) { c.passphrases = src }
}

func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultDeviceName
	}
	if cfg.LoanPeriod <= 0 {
		cfg.LoanPeriod = 21 * 24 * time.Hour
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		clock:      clock.NewSystem(),
		log:        logger.With().Str("component", "lsd").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the status document of a loan. A loan the distributor has
// not confirmed yet is checked out first through the license's checkout URL;
// otherwise the loan's own status URL is read.
func (c *Client) Fetch(ctx context.Context, loan domain.Loan, license domain.License) (Document, error) {
	if !loan.IsPending() {
		return c.FetchURL(ctx, loan.ExternalIdentifier)
	}

	url, err := c.checkoutURL(ctx, loan, license)
	if err != nil {
		return Document{}, err
	}
	c.log.Debug().
		Str("loan_id", loan.ID).
		Str("license", license.Identifier).
		Msg("starting distributor checkout")
	return c.FetchURL(ctx, url)
}

// FetchURL reads and validates the status document at url.
func (c *Client) FetchURL(ctx context.Context, url string) (Document, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return Document{}, err
	}
	doc, err := ParseDocument(body)
	if err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("unusable license status document")
		return Document{}, err
	}
	return doc, nil
}

// Follow requests a link for its side effect, as with a return link.
// Templated links get the device name as {name}; other variables are left
// out.
func (c *Client) Follow(ctx context.Context, link Link) error {
	href := link.Href
	if link.Templated {
		tmpl, err := uritemplate.New(href)
		if err != nil {
			return fmt.Errorf("%w: link template %q: %w", domain.ErrBadResponse, href, err)
		}
		values := uritemplate.Values{}
		values.Set("name", uritemplate.String(c.cfg.DeviceName))
		if href, err = tmpl.Expand(values); err != nil {
			return fmt.Errorf("%w: expand %q: %w", domain.ErrBadResponse, link.Href, err)
		}
	}
	_, err := c.get(ctx, href)
	return err
}

// StatusLink finds where a freshly checked out loan's status document lives.
// Distributors that omit the self link still point at the LCP license, whose
// status link leads back to the document.
func (c *Client) StatusLink(ctx context.Context, doc Document) (string, error) {
	if self := doc.SelfURL(); self != "" {
		return self, nil
	}
	lic, ok := doc.Links.Get(RelLicense, "")
	if !ok {
		return "", fmt.Errorf("%w: status document has neither self nor license link", domain.ErrCannotLoan)
	}
	body, err := c.get(ctx, lic.Href)
	if err != nil {
		return "", err
	}
	license, err := parseLicenseDocument(body)
	if err != nil {
		return "", err
	}
	status, ok := license.Links.Get(RelStatus, "")
	if !ok || status.Href == "" {
		return "", fmt.Errorf("%w: license document %s has no status link", domain.ErrCannotLoan, license.ID)
	}
	return status.Href, nil
}

func (c *Client) checkoutURL(ctx context.Context, loan domain.Loan, license domain.License) (string, error) {
	if license.CheckoutURL == "" {
		return "", fmt.Errorf("%w: license %s has no checkout url", domain.ErrCannotLoan, license.Identifier)
	}
	notify, err := NotificationURL(c.cfg.NotificationURLTemplate, loan.ID)
	if err != nil {
		return "", err
	}
	vars := CheckoutVars{
		LicenseID:  license.Identifier,
		CheckoutID: uuid.NewString(),
		// A fresh patron id per checkout keeps the distributor from linking
		// loans of the same patron.
		PatronID:        uuid.NewString(),
		Expires:         c.clock.Now().Add(c.cfg.LoanPeriod),
		NotificationURL: notify,
	}
	if c.passphrases != nil {
		pass, err := c.passphrases.Passphrase(ctx, loan.PatronID)
		if err != nil {
			return "", fmt.Errorf("%w: patron passphrase: %w", domain.ErrCannotLoan, err)
		}
		vars.Passphrase = EncodePassphrase(pass)
		vars.Hint = c.cfg.PassphraseHint
		vars.HintURL = c.cfg.PassphraseHintURL
	}
	return ExpandCheckoutURL(license.CheckoutURL, vars)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(ctx, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %q: %w", domain.ErrBadResponse, url, err)
	}
	if c.cfg.Username != "" || c.cfg.Password != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
	req.Header.Set("Accept", "application/vnd.readium.license.status.v1.0+json, application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("distributor request failed")
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	c.log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("distributor request")

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrIntegrationFailure, url, resp.StatusCode)
	}
	refused := &RefusedError{URL: url, StatusCode: resp.StatusCode, Body: snippet(body)}
	if problem, ok := parseProblem(resp.Header.Get("Content-Type"), body, resp.StatusCode); ok {
		refused.Problem = problem
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrBadResponse, refused)
}

func classifyTransport(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", domain.ErrIntegrationTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrIntegrationFailure, err)
}

func snippet(body []byte) string {
	const n = 100
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
