// Package qbo is a client for the QuickBooks Online accounting API: authenticated
// requests, paginated queries, typed transaction entities and OAuth token calls.
package qbo

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

	"github.com/and161185/ovis-qbsync/internal/metrics"
	"github.com/and161185/ovis-qbsync/internal/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ProductionBaseURL   = "https://quickbooks.api.intuit.com"
	SandboxBaseURL      = "https://sandbox-quickbooks.api.intuit.com"
	DefaultMinorVersion = "75"
)

// BaseURLFor picks the API host for the environment flag.
func BaseURLFor(sandbox bool) string {
	if sandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

// Doer issues one authenticated API call. Implemented by *Client.
type Doer interface {
	Do(ctx context.Context, conn *model.Connection, method, resource string, query url.Values, body, out any) error
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	MinorVersion  string
	Timeout       time.Duration
	RatePerMinute int // 0 disables pacing
	HTTPClient    *http.Client
}

// Client talks to /v3/company/{realmId}. It never retries.
type Client struct {
	baseURL string
	minor   string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewClient builds a Client. m may be nil.
func NewClient(cfg Config, log *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProductionBaseURL
	}
	if cfg.MinorVersion == "" {
		cfg.MinorVersion = DefaultMinorVersion
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	var lim *rate.Limiter
	if cfg.RatePerMinute > 0 {
		lim = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60), 10)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		minor:   cfg.MinorVersion,
		http:    hc,
		limiter: lim,
		log:     log,
		metrics: m,
	}
}

// Do sends method to {base}/v3/company/{realm}/{resource}. body is JSON-encoded when non-nil;
// a 2xx response is decoded into out when out is non-nil. Non-2xx responses return *APIError.
func (c *Client) Do(ctx context.Context, conn *model.Connection, method, resource string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("minorversion", c.minor)
	endpoint := fmt.Sprintf("%s/v3/company/%s/%s?%s", c.baseURL, url.PathEscape(conn.RealmID), resource, q.Encode())

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", resource, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, time.Since(start))
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	c.log.Debug("qbo request",
		zap.String("method", method),
		zap.String("resource", resource),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("intuit_tid", resp.Header.Get("intuit_tid")),
	)
	if err != nil {
		return fmt.Errorf("read %s response: %w", resource, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", resource, err)
	}
	return nil
}
