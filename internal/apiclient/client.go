package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ticket-client/internal/status"
	"ticket-client/monitoring"
	"ticket-client/utils"

	"github.com/google/uuid"
)

const maxErrorBody = 64 << 10

// TokenSource hands out the bearer token of the current session.
type TokenSource interface {
	AccessToken() (string, bool)
}

type Client struct {
	// baseURL is the root of the ticketing API, without trailing slash.
	baseURL string

	// tokens supplies the bearer token for authenticated calls.
	tokens TokenSource

	// breaker guards every call against a failing remote.
	breaker *utils.CircuitBreaker

	monitor *monitoring.Monitor

	// hc is the http client.
	hc *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

func WithBreaker(cb *utils.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func WithMonitor(m *monitoring.Monitor) Option {
	return func(c *Client) { c.monitor = m }
}

// New creates a client for the API at baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = utils.NewCircuitBreaker("ticket-api", utils.WithFailureClassifier(CountsAsFailure))
	}
	return c
}

// CountsAsFailure reports whether err says the remote is unhealthy, as
// opposed to having refused a request on its merits.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var rejected *status.ServerRejectedError
	if errors.As(err, &rejected) {
		return rejected.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}

type call struct {
	op      string
	method  string
	path    string
	body    any
	authed  bool
	headers map[string]string
	out     any
	raw     *[]byte
}

func (c *Client) do(ctx context.Context, cl call) error {
	var token string
	if cl.authed {
		if c.tokens == nil {
			return status.ErrNotAuthenticated
		}
		t, ok := c.tokens.AccessToken()
		if !ok {
			return status.ErrNotAuthenticated
		}
		token = t
	}

	var payload []byte
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: json.Marshal: %w", cl.op, err)
		}
		payload = b
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, cl, token, payload)
	})
	if errors.Is(err, status.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyHalfOpenRequests) {
		return &status.NetworkError{Op: cl.op, Err: err}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, cl call, token string, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("%s: http.NewRequest: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.monitor.TrackRequest(cl.op, 0, time.Since(start))
		return &status.NetworkError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()
	c.monitor.TrackRequest(cl.op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejected := &status.ServerRejectedError{
			Op:         cl.op,
			StatusCode: resp.StatusCode,
			Message:    readDetail(resp.Body),
		}
		slog.Debug("api request rejected", "op", cl.op, "code", resp.StatusCode, "detail", rejected.Message)
		return rejected
	}

	if cl.raw != nil {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return &status.NetworkError{Op: cl.op, Err: err}
		}
		*cl.raw = b
		return nil
	}

	if cl.out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		return &status.NetworkError{Op: cl.op, Err: fmt.Errorf("json.Decode: %w", err)}
	}
	return nil
}

// readDetail extracts the user-facing message of an error response. Only
// a string detail is shown; structured validation details are not.
func readDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(b, &eb); err != nil {
		return ""
	}
	if s, ok := eb.Detail.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
