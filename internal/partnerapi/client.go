// Package partnerapi is the HTTP client for the partner financial API.
//
// Two endpoints matter: GetChangedDatesForPartner returns the dates whose
// sales data changed since a highwatermark cursor, and GetDetailedSales
// returns the per-line-item sales for one date, paginated by max_id.
package partnerapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultMaxRetries is the default number of retries after the initial
	// attempt, so three attempts total.
	DefaultMaxRetries = 2
	// RetryDelay is the base delay between retries (doubles per attempt).
	RetryDelay = 1 * time.Second
	// DefaultAttemptTimeout bounds a single HTTP attempt.
	DefaultAttemptTimeout = 30 * time.Second

	// maxResponseSize caps response bodies; a detailed-sales page tops out
	// well below this.
	maxResponseSize = 50 * 1024 * 1024

	changedDatesPath  = "GetChangedDatesForPartner/v1"
	detailedSalesPath = "GetDetailedSales/v1"
)

// ErrUnauthorized is returned for 401/403 responses: the key was rejected.
var ErrUnauthorized = errors.New("partner API rejected credentials")

// StatusError is a non-2xx response that is not an auth failure.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("partner API returned status %d", e.StatusCode)
}

// Client calls the partner financial API with one credential.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	AttemptTimeout time.Duration
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	key string
}

// NewClient creates a client for the given base URL and plaintext API key.
func NewClient(baseURL, key string) *Client {
	return &Client{
		BaseURL:        baseURL,
		HTTPClient:     &http.Client{Timeout: DefaultAttemptTimeout},
		AttemptTimeout: DefaultAttemptTimeout,
		MaxRetries:     DefaultMaxRetries,
		key:            key,
	}
}

// WithHTTPClient sets a custom HTTP client (used by tests).
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.HTTPClient = httpClient
	return c
}

func (c *Client) buildURL(path string, params map[string]string) string {
	base := c.BaseURL
	if base == "" {
		base = "https://partner.steampowered.com/financialapi"
	}
	q := url.Values{}
	q.Set("key", c.key)
	for k, v := range params {
		q.Set(k, v)
	}
	return base + "/" + path + "?" + q.Encode()
}

// ChangedDates asks the remote which dates changed since highwatermark.
func (c *Client) ChangedDates(ctx context.Context, highwatermark uint64) (*ChangedDatesResult, error) {
	body, err := c.doRequest(ctx, c.buildURL(changedDatesPath, map[string]string{
		"highwatermark": strconv.FormatUint(highwatermark, 10),
	}))
	if err != nil {
		return nil, err
	}
	result, err := parseChangedDates(body)
	if err != nil {
		return nil, err
	}
	if result.Highwatermark < highwatermark {
		// The cursor never moves backwards; a smaller value means the remote
		// answered from a stale replica. Keep ours.
		result.Highwatermark = highwatermark
	}
	return result, nil
}

// SalesPage fetches one page of detailed sales for a date, starting after
// cursor. Callers loop while page.HasMore(cursor), feeding back page.MaxID.
func (c *Client) SalesPage(ctx context.Context, date string, cursor uint64) (*SalesPage, error) {
	body, err := c.doRequest(ctx, c.buildURL(detailedSalesPath, map[string]string{
		"date":             date,
		"highwatermark_id": strconv.FormatUint(cursor, 10),
	}))
	if err != nil {
		return nil, err
	}
	return parseSalesPage(body)
}

// doRequest performs a GET with bounded retries. Network errors, timeouts,
// 5xx, 429 and 408 retry with exponential backoff (Retry-After wins when the
// server sends one); every other non-2xx status fails immediately.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryDelay * time.Duration(1<<(attempt-1))
			if ra := retryAfter(lastErr); ra > 0 {
				delay = ra
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.attempt(ctx, urlStr)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.MaxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, urlStr string) ([]byte, error) {
	attemptCtx := ctx
	if c.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.AttemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "salewatch")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	default:
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				return nil, &retryAfterError{err: serr, delay: time.Duration(seconds) * time.Second}
			}
		}
		return nil, serr
	}
}

// retryAfterError carries a server-requested delay through to the retry loop.
type retryAfterError struct {
	err   *StatusError
	delay time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

func retryAfter(err error) time.Duration {
	var rae *retryAfterError
	if errors.As(err, &rae) {
		return rae.delay
	}
	return 0
}

// isRetryable classifies an attempt error. Transport errors are retryable;
// for status errors only 5xx, 429 and 408 are.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode >= 500 ||
			serr.StatusCode == http.StatusTooManyRequests ||
			serr.StatusCode == http.StatusRequestTimeout
	}
	// Anything below the status layer (dial failure, reset, timeout) is
	// transient by assumption.
	return true
}
