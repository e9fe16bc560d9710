package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

const (
	// DefaultTimeout bounds the entire Execute call, including every redirect hop
	// and rate-limit backoff sleep, whenever the caller doesn't supply a timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRedirects bounds the number of 301/302 hops followed per call
	DefaultMaxRedirects = 10
)

// ErrMissingLocation indicates that a 301/302 response carried no Location header,
// leaving us with no target to redirect to
var ErrMissingLocation = errors.New("redirect response has no location header")

// ErrRateLimitRetryTimeout indicates that we got a 429 response and backing off
// before the next attempt would have overrun the caller's timeout budget
var ErrRateLimitRetryTimeout = errors.New("timed out while waiting to retry rate-limited request")

// TooManyRedirectsError indicates that a chain of redirect responses exceeded the
// per-call redirect budget
type TooManyRedirectsError struct {
	Count int
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("request was redirected %d times", e.Count)
}

// StatusError carries the HTTP status and response body of any non-2xx,
// non-redirect, non-429 response
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got response %d: %s", e.Status, e.Body)
}

// Request describes a single logical HTTP request to be executed to completion
type Request struct {
	URL          string
	Method       string
	Body         string
	ContentType  string
	Headers      map[string]string
	AuthToken    string
	Timeout      time.Duration
	MaxRedirects int
}

// Client executes logical HTTP requests with bounded timeouts, manual
// redirect-following, and rate-limit-aware backoff. It holds no per-request state
// and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	// sleep is swapped out in tests so that backoff delays can be observed without
	// real timers
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs the given request until it produces a terminal result: the decoded
// JSON response body on success (an empty object for 204), or an error. Redirects
// are followed manually up to the request's redirect budget, and 429 responses are
// retried with exponential backoff for as long as the timeout budget allows.
func (c *Client) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRedirects := req.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	retry := newRetryState()
	targetUrl := req.URL
	numRedirects := 0
	for {
		res, err := c.attempt(ctx, &req, targetUrl)
		if err != nil {
			return nil, err
		}

		if res.StatusCode == http.StatusMovedPermanently || res.StatusCode == http.StatusFound {
			numRedirects++
			if numRedirects > maxRedirects {
				res.Body.Close()
				return nil, &TooManyRedirectsError{Count: numRedirects}
			}
			location, err := res.Location()
			res.Body.Close()
			if err != nil {
				return nil, ErrMissingLocation
			}
			c.logger.Debug("Following redirect", "url", targetUrl, "location", location.String())
			targetUrl = location.String()
			continue
		}

		if res.StatusCode == http.StatusTooManyRequests {
			res.Body.Close()
			elapsed := time.Since(started)
			if shouldRetry(res.StatusCode, elapsed, retry.nextBackoff, timeout) != retryContinue {
				return nil, ErrRateLimitRetryTimeout
			}
			c.logger.Debug("Rate-limited; backing off",
				"url", targetUrl,
				"attempt", retry.attempt,
				"backoff", retry.nextBackoff,
			)
			if err := c.sleep(ctx, retry.nextBackoff); err != nil {
				return nil, err
			}
			retry.advance(time.Since(started))
			continue
		}

		return decodeResponse(res)
	}
}

// attempt issues one HTTP request against the given URL, translating a
// deadline-exceeded failure into a timeout-class error
func (c *Client) attempt(ctx context.Context, req *Request, targetUrl string) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	r, err := http.NewRequestWithContext(ctx, method, targetUrl, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}
	if req.AuthToken != "" {
		r.Header.Set("Authorization", "Bearer "+req.AuthToken)
	}
	if req.Body != "" && r.Header.Get("Content-Type") == "" {
		contentType := req.ContentType
		if contentType == "" {
			contentType = inferContentType(req.Body)
		}
		r.Header.Set("Content-Type", contentType)
	}

	res, err := c.httpClient.Do(r)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("request to %s aborted: %w", targetUrl, ctxErr)
		}
		return nil, err
	}
	return res, nil
}

func decodeResponse(res *http.Response) (json.RawMessage, error) {
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Status: res.StatusCode, Body: string(body)}
	}

	if res.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(body))) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("response body is not valid JSON: %s", string(body))
	}
	return json.RawMessage(body), nil
}

// inferContentType decides what Content-Type to declare for a request body that
// wasn't given an explicit one: bodies shaped like 'k=v&k2=v2' are assumed to be
// form-encoded, everything else is assumed to be JSON
func inferContentType(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, `"`) {
		return "application/json"
	}
	if !strings.Contains(trimmed, "=") {
		return "application/json"
	}
	if _, err := url.ParseQuery(trimmed); err != nil {
		return "application/json"
	}
	return "application/x-www-form-urlencoded"
}
