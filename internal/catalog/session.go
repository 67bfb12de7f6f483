package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	purviewScope   = "https://purview.azure.net/.default"
	tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	searchAPIVersion     = "2022-08-01-preview"
	collectionAPIVersion = "2019-11-01-preview"
	datamapAPIVersion    = "2023-09-01"
	scanAPIVersion       = "2022-07-01-preview"
)

// Session is an authenticated handle to one catalog account. Every request
// goes through the rate limiter and the retry policy.
type Session struct {
	Endpoint     string
	ScanEndpoint string
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	MaxAttempts  uint
	BaseDelay    time.Duration
	Logger       *logrus.Logger
}

// NewSession creates a session from the run configuration. A static token
// takes precedence over client credentials.
func NewSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *Session {
	var httpClient *http.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf(tokenURLFormat, cfg.TenantID),
			Scopes:       []string{purviewScope},
		}
		httpClient = cc.Client(ctx)
	}
	httpClient.Timeout = 60 * time.Second

	return &Session{
		Endpoint:     cfg.CatalogEndpoint(),
		ScanEndpoint: cfg.ScanEndpoint(),
		HTTPClient:   httpClient,
		Limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		MaxAttempts:  cfg.MaxAttempts,
		BaseDelay:    500 * time.Millisecond,
		Logger:       logger,
	}
}

// RequestOptions contains options for a catalog request
type RequestOptions struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	// Scan routes the request to the scanning endpoint
	Scan bool
}

// Do performs a request and returns the response body. Retryable failures
// are repeated with exponential backoff up to MaxAttempts.
func (s *Session) Do(ctx context.Context, opts RequestOptions) ([]byte, error) {
	var payload []byte
	if opts.Body != nil {
		var err error
		payload, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding request body for %s", opts.Path)
		}
	}

	attempts := s.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	var body []byte
	err := retry.Do(
		func() error {
			b, err := s.attempt(ctx, opts, payload)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(s.BaseDelay),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			if s.Logger != nil {
				s.Logger.Warnf("Retrying %s %s (attempt %d/%d): %v", opts.Method, opts.Path, n+1, attempts, err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Session) attempt(ctx context.Context, opts RequestOptions, payload []byte) ([]byte, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for rate limiter")
		}
	}

	base := s.Endpoint
	if opts.Scan {
		base = s.ScanEndpoint
	}
	u := strings.TrimRight(base, "/") + opts.Path
	if len(opts.Query) > 0 {
		u += "?" + opts.Query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, u, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "creating request for %s", opts.Path)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if s.Logger != nil {
		s.Logger.Debugf("%s %s", opts.Method, u)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response for %s", opts.Path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(opts.Method, opts.Path, resp.StatusCode, data)
	}
	return data, nil
}

func apiVersion(v string) url.Values {
	return url.Values{"api-version": []string{v}}
}
