// Package httpclient provides the shared HTTP client of the loader.
// It handles connection pooling, per-request timeouts, request pacing,
// retries with exponential backoff for transient failures, a circuit
// breaker, and chunked streaming downloads with progress reporting.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

// ErrCircuitOpen is returned when the circuit breaker is open and requests
// are being skipped to avoid hammering a failing remote.
var ErrCircuitOpen = errors.New("circuit breaker open: requests temporarily suspended")

// DefaultMaxBodySize bounds buffered response bodies.
const DefaultMaxBodySize = 8 << 20

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Code)
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Response is a fully buffered reply.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          []byte
}

// Client is an HTTP client with connection pooling, pacing, per-host
// circuit breakers and retry logic.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger

	breakerMu sync.Mutex
	breakers  map[string]*breaker

	userAgent   string
	timeout     time.Duration
	maxRetries  int
	backoff     time.Duration
	minInterval time.Duration
	maxBodySize int64

	paceMu      sync.Mutex
	lastRequest time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// WithTimeout sets the per-request timeout of Get and GetJSON.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithMaxRetries sets how many times transient failures are retried.
func WithMaxRetries(n int) Option { return func(c *Client) { c.maxRetries = n } }

// WithBackoff sets the base of the exponential retry backoff.
func WithBackoff(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

// WithRateLimit enforces a minimum interval between outgoing requests.
func WithRateLimit(d time.Duration) Option { return func(c *Client) { c.minInterval = d } }

// WithMaxBodySize bounds buffered bodies.
func WithMaxBodySize(n int64) Option { return func(c *Client) { c.maxBodySize = n } }

// WithHTTPClient replaces the pooled *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// New creates a Client with a pooled transport.
func New(log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Nop()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		httpClient:  &http.Client{Transport: transport},
		log:         log,
		breakers:    make(map[string]*breaker),
		userAgent:   constants.UserAgent,
		timeout:     constants.APITimeout,
		maxRetries:  constants.DefaultMaxRetries,
		backoff:     constants.DefaultRetryBackoff,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the underlying *http.Client for reuse by other packages.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// breakerFor returns the breaker of the host rawURL points at, so one
// failing remote does not suspend requests to the others.
func (c *Client) breakerFor(rawURL string) *breaker {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = newBreaker()
		c.breakers[host] = b
	}
	return b
}

// pace blocks until the minimum interval since the previous request has elapsed.
func (c *Client) pace(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}

	c.paceMu.Lock()
	wait := time.Until(c.lastRequest.Add(c.minInterval))
	if wait < 0 {
		wait = 0
	}
	c.lastRequest = time.Now().Add(wait)
	c.paceMu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	return req, nil
}

// Get fetches rawURL and buffers the body. 429, 5xx and transport errors are
// retried with exponential backoff. Other non-2xx replies return the
// buffered Response together with a *StatusError.
//
// Retry logging strategy: individual retries are logged at DEBUG level.
// Only the final failure is logged at WARN level.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	brk := c.breakerFor(rawURL)
	if !brk.allow() {
		c.log.Debug("Circuit breaker open, skipping request", "url", rawURL)
		return nil, ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			c.log.Debug("Retrying request",
				"url", rawURL,
				"attempt", fmt.Sprintf("%d/%d", attempt, c.maxRetries),
				"backoff", backoff)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.getOnce(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Code: resp.StatusCode, URL: rawURL}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			brk.success()
			return resp, &StatusError{Code: resp.StatusCode, URL: rawURL}
		}

		brk.success()
		return resp, nil
	}

	brk.failure()
	c.log.Warn("Request failed after all retries",
		"url", rawURL,
		"attempts", c.maxRetries+1,
		"error", lastErr)
	return nil, fmt.Errorf("GET %s exhausted retries: %w", rawURL, lastErr)
}

func (c *Client) getOnce(ctx context.Context, rawURL string) (*Response, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response of %s: %w", rawURL, err)
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          body,
	}, nil
}

// GetJSON fetches rawURL with the given query and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, v any) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decoding response of %s: %w", rawURL, err)
	}
	return nil
}

// Head issues a single HEAD request (redirects followed) bounded by timeout.
// Any status is returned without error; only transport failures error out.
func (c *Client) Head(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD %s: %w", rawURL, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
	}, nil
}

// ProgressFunc receives the bytes read so far and the declared total (-1 if unknown).
type ProgressFunc func(read, total int64)

// Stream performs one GET and copies the body to w in DownloadChunkSize reads,
// checking ctx between chunks. Declared Content-Length below minSize is
// rejected before the body is read. Returns the number of bytes written.
func (c *Client) Stream(ctx context.Context, rawURL string, w io.Writer, minSize int64, progress ProgressFunc) (int64, error) {
	if err := c.pace(ctx); err != nil {
		return 0, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	if resp.ContentLength >= 0 && resp.ContentLength < minSize {
		return 0, fmt.Errorf("GET %s: declared size %d below minimum %d", rawURL, resp.ContentLength, minSize)
	}

	buf := make([]byte, constants.DownloadChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("writing body of %s: %w", rawURL, err)
			}
			written += int64(n)
			if progress != nil {
				progress(written, resp.ContentLength)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("reading body of %s: %w", rawURL, readErr)
		}
	}
}
