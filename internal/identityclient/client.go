// Package identityclient reaches the identity tier over HTTP. It satisfies
// authority.Identity so the edge can use it in place of the in-process
// service.
package identityclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/pkg/jwt"
	"github.com/sentinelhive/svh/internal/pkg/metrics"
	"github.com/sentinelhive/svh/internal/pkg/requestid"
	"github.com/sentinelhive/svh/internal/store"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// StatusError is an identity answer that maps onto no authority error. The
// edge passes its status through.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity answered %d", e.Status)
	}
	return e.Message
}

func (e *StatusError) HTTPStatus() int { return e.Status }

// Health is the body of the identity /health probe.
type Health struct {
	Service  string `json:"service"`
	Status   string `json:"status"`
	Database bool   `json:"database"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *jwt.Signer
	metrics    *metrics.Metrics
}

type Option func(*Client)

// WithSigner attaches a service token to every call.
func WithSigner(s *jwt.Signer) Option {
	return func(c *Client) { c.signer = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the default client. Its timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a client for the identity tier at baseURL. A non-positive
// timeout falls back to five seconds.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ authority.Identity = (*Client)(nil)

type tokenPayload struct {
	Token string `json:"token"`
}

type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) Login(ctx context.Context, req authority.LoginRequest) (*authority.LoginResult, error) {
	var out authority.LoginResult
	if err := c.call(ctx, opLogin, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, opLogout, http.MethodPost, "/auth/logout", tokenPayload{Token: token}, nil)
}

func (c *Client) Rotate(ctx context.Context, token string) (*authority.LoginResult, error) {
	var out authority.LoginResult
	if err := c.call(ctx, opRotate, http.MethodPost, "/auth/rotate", tokenPayload{Token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Sweep(ctx context.Context) (store.SweepResult, error) {
	var out store.SweepResult
	if err := c.call(ctx, opSweep, http.MethodPost, "/auth/sweep", nil, &out); err != nil {
		return store.SweepResult{}, err
	}
	return out, nil
}

// Health probes /health. A degraded tier still returns its report together
// with an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, body, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		c.count(opHealth, metrics.OutcomeError)
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		c.count(opHealth, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: decode health: %v", authority.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.count(opHealth, metrics.OutcomeError)
		return &h, fmt.Errorf("%w: health answered %d", authority.ErrUpstreamUnavailable, resp.StatusCode)
	}
	c.count(opHealth, metrics.OutcomeOK)
	return &h, nil
}

const (
	opLogin  = "login"
	opLogout = "logout"
	opRotate = "rotate"
	opSweep  = "sweep"
	opHealth = "health"
)

func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	resp, body, err := c.do(ctx, method, path, in)
	if err != nil {
		c.count(op, metrics.OutcomeError)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := mapStatus(op, resp.StatusCode, body)
		if errors.Is(err, authority.ErrUpstreamUnavailable) {
			c.count(op, metrics.OutcomeError)
		} else {
			c.count(op, metrics.OutcomeRejected)
		}
		return err
	}
	c.count(op, metrics.OutcomeOK)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", authority.ErrUpstreamUnavailable, op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any) (*http.Response, []byte, error) {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	if c.signer != nil {
		tok, err := c.signer.Sign()
		if err != nil {
			return nil, nil, fmt.Errorf("sign service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s %s: %v", authority.ErrUpstreamUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read %s: %v", authority.ErrUpstreamUnavailable, path, err)
	}
	return resp, body, nil
}

func mapStatus(op string, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	switch {
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s answered %d", authority.ErrUpstreamUnavailable, op, status)
	case status == http.StatusUnauthorized && eb.Message == middleware.ServiceTokenRejected:
		return fmt.Errorf("%w: service token rejected", authority.ErrUpstreamUnavailable)
	case status == http.StatusUnauthorized && op == opLogin:
		return authority.ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return authority.ErrTokenInvalidOrRevoked
	case status == http.StatusBadRequest && op != opLogin:
		return authority.ErrTokenMissing
	default:
		return &StatusError{Status: status, Message: eb.Message}
	}
}

func (c *Client) count(op, outcome string) {
	if c.metrics != nil {
		c.metrics.Upstream.WithLabelValues(op, outcome).Inc()
	}
}
