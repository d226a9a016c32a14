// Package enrichment talks to the third-party email verification and person
// enrichment APIs used during signup.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"socialnet/internal/middleware"
	"socialnet/internal/observability"

	"resty.dev/v3"
)

// ErrUnexpectedStatus is returned when a provider answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected provider status")

// Verdict values returned by the email verifier.
const (
	VerdictDeliverable   = "deliverable"
	VerdictUndeliverable = "undeliverable"
	VerdictRisky         = "risky"
)

// Verification is the verifier's answer for one address.
type Verification struct {
	Result string
	Score  int
}

// Undeliverable reports whether signup must be rejected.
func (v *Verification) Undeliverable() bool {
	return v != nil && v.Result == VerdictUndeliverable
}

// Name holds the person name found for an email address.
type Name struct {
	GivenName  string
	FamilyName string
}

// EmailVerifier checks whether an address can receive mail.
// A nil Verification with a nil error means no verdict is available.
type EmailVerifier interface {
	Verify(ctx context.Context, email string) (*Verification, error)
}

// NameEnricher looks up a person's name by email address.
// A nil Name with a nil error means nothing was found.
type NameEnricher interface {
	Lookup(ctx context.Context, email string) (*Name, error)
}

// Config configures a provider client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NoopVerifier never returns a verdict.
type NoopVerifier struct{}

func (NoopVerifier) Verify(context.Context, string) (*Verification, error) { return nil, nil }

// NoopEnricher never finds a name.
type NoopEnricher struct{}

func (NoopEnricher) Lookup(context.Context, string) (*Name, error) { return nil, nil }

// NewEmailVerifier returns a Hunter client, or a NoopVerifier when no API key is configured.
func NewEmailVerifier(cfg Config) EmailVerifier {
	if cfg.APIKey == "" {
		return NoopVerifier{}
	}
	return NewHunterClient(cfg)
}

// NewNameEnricher returns a Clearbit client, or a NoopEnricher when no API key is configured.
func NewNameEnricher(cfg Config) NameEnricher {
	if cfg.APIKey == "" {
		return NoopEnricher{}
	}
	return NewClearbitClient(cfg)
}

func newRestyClient(cfg Config, provider string) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         timeout,
		DialerKeepAlive:       30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	})
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(timeout)
	client.AddResponseMiddleware(func(_ *resty.Client, response *resty.Response) error {
		reqURL, err := url.Parse(response.Request.URL)
		if err != nil {
			return err
		}
		middleware.Logger.Debug("enrichment call",
			"provider", provider,
			"method", response.Request.Method,
			"path", reqURL.Path,
			"status", response.Status(),
			"duration", response.Duration(),
		)
		return nil
	})
	return client
}

func record(provider string, err error) {
	observability.EnrichmentRequests.WithLabelValues(provider, observability.Outcome(err)).Inc()
}

func statusError(provider string, res *resty.Response) error {
	return fmt.Errorf("%w: %s returned %s", ErrUnexpectedStatus, provider, res.Status())
}
