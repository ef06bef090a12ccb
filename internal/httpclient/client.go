// Package httpclient is the shared synchronous request/response utility
// used by discovery, JWKS, token, userinfo and introspection calls. It
// factors the request/response/status/body mechanics that the teacher
// repeats inline at every call site into one place, and wraps each
// upstream host in its own circuit breaker so a single failing OP can't
// be hammered by every provider actor retrying in lockstep.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrTimeout is returned when a request's deadline (caller-supplied or
// the Client's default) elapses before the round trip completes (spec
// §5: "On deadline, the operation fails with timeout").
var ErrTimeout = errors.New("httpclient: request timed out")

// Response is the result of a synchronous HTTP round trip.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Client performs synchronous HTTP requests with a per-deadline timeout
// and per-host circuit breaking.
type Client struct {
	hc      *http.Client
	timeout time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

// New creates a Client. A nil hc gets a default client; timeout is the
// per-call deadline applied when the caller's context carries none
// (default 30s, matching spec §5's default).
func New(hc *http.Client, timeout time.Duration) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		hc:       hc,
		timeout:  timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}
}

// Get issues a GET request with optional headers.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, headers, nil)
}

// PostForm issues a POST with an application/x-www-form-urlencoded body.
func (c *Client) PostForm(ctx context.Context, rawURL string, headers map[string]string, form url.Values) (*Response, error) {
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range headers {
		h[k] = v
	}
	return c.do(ctx, http.MethodPost, rawURL, h, strings.NewReader(form.Encode()))
}

func (c *Client) do(ctx context.Context, method, rawURL string, headers map[string]string, body io.Reader) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	breaker, err := c.breakerFor(rawURL)
	if err != nil {
		return nil, err
	}

	return breaker.Execute(func() (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: build request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return nil, fmt.Errorf("httpclient: request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: read body: %w", err)
		}

		return &Response{StatusCode: resp.StatusCode, Body: b, Header: resp.Header}, nil
	})
}

// breakerFor returns the circuit breaker for rawURL's host, creating one
// on first use. Each OP host is isolated from every other.
func (c *Client) breakerFor(rawURL string) (*gobreaker.CircuitBreaker[*Response], error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("httpclient: invalid URL %q: %w", rawURL, err)
	}
	host := u.Host

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[host]; ok {
		return b, nil
	}

	b := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[host] = b
	return b, nil
}
