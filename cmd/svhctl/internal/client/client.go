// Package client talks to the public edge on behalf of svhctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the edge.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

type LoginResult struct {
	Token        string `json:"token"`
	ExternalID   string `json:"external_id"`
	IsPrivileged bool   `json:"is_privileged"`
}

type Identity struct {
	ExternalID   string `json:"external_id"`
	IsPrivileged bool   `json:"is_privileged"`
}

type Session struct {
	ExternalID string    `json:"external_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	TokenHint  string    `json:"token_hint"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Login(ctx context.Context, externalID, password string, ttl time.Duration) (*LoginResult, error) {
	body := map[string]any{
		"external_id": externalID,
		"password":    password,
		"ttl_seconds": int(ttl / time.Second),
	}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, map[string]string{"token": token}, nil)
}

func (c *Client) Whoami(ctx context.Context, token string) (*Identity, error) {
	var out Identity
	if err := c.do(ctx, http.MethodGet, "/auth/whoami", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Sessions(ctx context.Context, token string) ([]Session, error) {
	var out struct {
		Entries []Session `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/sessions", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) Evict(ctx context.Context, token, externalID string) (int, error) {
	var out struct {
		Evicted int `json:"evicted"`
	}
	err := c.do(ctx, http.MethodPost, "/admin/sessions/evict", token, map[string]string{"external_id": externalID}, &out)
	return out.Evicted, err
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &envelope)
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
