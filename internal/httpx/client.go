// Package httpx provides the process-wide pooled HTTP client and small GET
// helpers shared by all provider adapters. One client, tuned keep-alive pool,
// consistent timeouts; adapters never construct their own transport except
// for documented upstream quirks (legacy TLS).
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/econoflow/econoflow/pkg/series"
)

const (
	defaultMaxConns        = 100
	defaultMaxIdleConns    = 50
	defaultTimeout         = 30 * time.Second
	defaultConnectTimeout  = 10 * time.Second
	errorBodySnippetLength = 200

	userAgent = "econoflow/1.0"
)

// Client wraps http.Client with the pool settings used across the service.
type Client struct {
	http *http.Client
}

// Options tunes the pool. Zero values fall back to the defaults.
type Options struct {
	MaxConns       int
	MaxIdleConns   int
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Transport      http.RoundTripper // overrides the built transport when set
}

// New creates a pooled client.
func New(opts Options) *Client {
	if opts.MaxConns <= 0 {
		opts.MaxConns = defaultMaxConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = defaultMaxIdleConns
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxConnsPerHost:       opts.MaxConns,
			MaxIdleConns:          opts.MaxIdleConns,
			MaxIdleConnsPerHost:   opts.MaxIdleConns,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.Timeout,
			ForceAttemptHTTP2:     true,
		}
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
	}
}

// Default returns a client with the standard pool settings.
func Default() *Client {
	return New(Options{})
}

// HTTP exposes the underlying http.Client for libraries that require one.
func (c *Client) HTTP() *http.Client { return c.http }

// Error is a non-2xx upstream response. RetryAfter is parsed from the
// Retry-After header when present (seconds or HTTP date), zero otherwise.
// URL is stored with secret query parameters masked; error text reaches
// logs and API responses.
type Error struct {
	StatusCode int
	URL        string
	Body       string // first 200 bytes, for diagnostics
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var he *Error
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// RetryAfter extracts the Retry-After hint from err, or 0.
func RetryAfter(err error) time.Duration {
	var he *Error
	if errors.As(err, &he) {
		return he.RetryAfter
	}
	return 0
}

// IsRetryable reports whether err is worth retrying: transport failures,
// timeouts, 5xx, and 429. 400/403/404/422 are never retryable.
func IsRetryable(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		switch he.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	// Context cancellation is the caller's decision, not a transient fault.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return err != nil
}

// DoGet issues a GET with the given headers and returns the response body.
// The caller owns the body and must close it. Non-2xx responses are drained
// into an *Error.
func (c *Client) DoGet(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, resp.StatusCode, newHTTPError(resp, url)
	}
	return resp.Body, resp.StatusCode, nil
}

// GetJSON issues a GET with Accept: application/json and decodes the body
// into dest.
func (c *Client) GetJSON(ctx context.Context, url string, dest any) error {
	return c.GetJSONHeaders(ctx, url, map[string]string{"Accept": "application/json"}, dest)
}

// GetJSONHeaders is GetJSON with caller-controlled headers (SDMX media types,
// subscription keys).
func (c *Client) GetJSONHeaders(ctx context.Context, url string, headers map[string]string, dest any) error {
	body, _, err := c.DoGet(ctx, url, headers)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", series.MaskSecrets(url), err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse JSON from %s: %w", series.MaskSecrets(url), err)
	}
	return nil
}

// GetBody issues a GET and returns the whole response body.
func (c *Client) GetBody(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	body, _, err := c.DoGet(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// POST helpers are rare; StatsCan WDS is the one upstream that requires one.

// PostJSON issues a POST with a JSON payload and decodes the JSON response.
func (c *Client) PostJSON(ctx context.Context, url string, payload, dest any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", url, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return newHTTPError(resp, url)
	}
	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", series.MaskSecrets(url), err)
	}
	if err := json.Unmarshal(respData, dest); err != nil {
		return fmt.Errorf("parse JSON from %s: %w", series.MaskSecrets(url), err)
	}
	return nil
}

// newHTTPError reads a snippet of the error body and the Retry-After header.
func newHTTPError(resp *http.Response, url string) *Error {
	snippet := make([]byte, errorBodySnippetLength)
	n, _ := io.ReadFull(resp.Body, snippet)
	he := &Error{
		StatusCode: resp.StatusCode,
		URL:        series.MaskSecrets(url),
		Body:       strings.TrimSpace(string(snippet[:n])),
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			he.RetryAfter = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(ra); err == nil {
			if d := time.Until(at); d > 0 {
				he.RetryAfter = d
			}
		}
	}
	return he
}
