package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	maxRetries  = 3
	restPrefix  = "/rest/v1/"
	maxErrorLen = 512
)

// client talks to PostgREST with the project key and retries throttled or
// failed requests.
type client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	backoff    time.Duration
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase: HTTP %d: %s", e.StatusCode, e.Body)
}

type Option func(*client)

func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.httpClient.Timeout = d }
}

// WithBackoff sets the first retry delay; later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(c *client) { c.backoff = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

func newClient(baseURL, key string, opts ...Option) *client {
	c := &client{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer string
}

// do sends req and decodes a 2xx JSON body into dest when dest is non-nil.
// 429 honors Retry-After; 5xx backs off exponentially.
func (c *client) do(ctx context.Context, req request, dest any) error {
	fullURL := c.baseURL + restPrefix + req.table
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}

	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", req.table, err)
		}
		payload = b
	}

	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.delay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, body)
		if err != nil {
			return err
		}
		httpReq.Header.Set("apikey", c.key)
		httpReq.Header.Set("Authorization", "Bearer "+c.key)
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if req.prefer != "" {
			httpReq.Header.Set("Prefer", req.prefer)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if dest == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, dest)
		}

		msg := string(respBody)
		if len(msg) > maxErrorLen {
			msg = msg[:maxErrorLen]
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: msg}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
		case resp.StatusCode >= 500:
			lastErr = apiErr
		default:
			return apiErr
		}
	}
	return lastErr
}

func (c *client) delay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoff * time.Duration(1<<(attempt-1))
}
