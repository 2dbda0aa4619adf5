package identityclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/pkg/jwt"
	"github.com/sentinelhive/svh/internal/pkg/metrics"
	"github.com/sentinelhive/svh/internal/pkg/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func envelope(status int, msg string) map[string]any {
	return map[string]any{"ok": 0, "code": status, "message": msg}
}

func TestLoginForwardsHeaders(t *testing.T) {
	signer := jwt.NewSigner("internal", "edge")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "req-1", r.Header.Get(requestid.Header))

		claims, err := signer.Parse(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if assert.NoError(t, err) {
			assert.Equal(t, "edge", claims.Service)
		}

		var req authority.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.ExternalID)
		assert.Equal(t, 60, req.TTLSeconds)

		writeJSON(w, http.StatusOK, authority.LoginResult{Token: "alice.1.ab", ExternalID: "alice"})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second, WithSigner(signer))
	ctx := requestid.NewContext(context.Background(), "req-1")
	res, err := c.Login(ctx, authority.LoginRequest{ExternalID: "alice", Password: "pw", TTLSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, "alice.1.ab", res.Token)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		op     func(*Client) error
		status int
		msg    string
		want   error
	}{
		{"login 401", loginOp, http.StatusUnauthorized, "invalid credentials", authority.ErrInvalidCredentials},
		{"rotate 401", rotateOp, http.StatusUnauthorized, "invalid or revoked token", authority.ErrTokenInvalidOrRevoked},
		{"logout 400", logoutOp, http.StatusBadRequest, "token missing", authority.ErrTokenMissing},
		{"rotate 500", rotateOp, http.StatusInternalServerError, "internal error", authority.ErrUpstreamUnavailable},
		{"service token", loginOp, http.StatusUnauthorized, "invalid service token", authority.ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, envelope(tc.status, tc.msg))
			}))
			defer srv.Close()

			err := tc.op(New(srv.URL, time.Second))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOtherStatusesPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, envelope(http.StatusConflict, "busy"))
	}))
	defer srv.Close()

	err := loginOp(New(srv.URL, time.Second))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Status)
	assert.Equal(t, http.StatusConflict, authority.HTTPStatus(err))
	assert.Equal(t, "busy", authority.Message(err))
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	m := metrics.New("edge")
	c := New(url, time.Second, WithMetrics(m))
	_, err := c.Sweep(context.Background())
	assert.ErrorIs(t, err, authority.ErrUpstreamUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upstream.WithLabelValues(opSweep, metrics.OutcomeError)))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).Rotate(context.Background(), "a.1.b")
	assert.ErrorIs(t, err, authority.ErrUpstreamUnavailable)
}

func TestSweepAndLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/sweep":
			writeJSON(w, http.StatusOK, map[string]any{"revoked": 3, "pruned": 1, "accounts": 2})
		case "/auth/logout":
			var body tokenPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a.1.b", body.Token)
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	res, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Revoked)
	assert.Equal(t, 2, res.Accounts)
	require.NoError(t, c.Logout(context.Background(), "a.1.b"))
}

func TestHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		writeJSON(w, code, Health{Service: "identity", Status: "ok", Database: code == http.StatusOK})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Database)

	status.Store(http.StatusServiceUnavailable)
	h, err = c.Health(context.Background())
	assert.ErrorIs(t, err, authority.ErrUpstreamUnavailable)
	require.NotNil(t, h)
	assert.False(t, h.Database)
}

func loginOp(c *Client) error {
	_, err := c.Login(context.Background(), authority.LoginRequest{ExternalID: "a", Password: "b"})
	return err
}

func rotateOp(c *Client) error {
	_, err := c.Rotate(context.Background(), "a.1.b")
	return err
}

func logoutOp(c *Client) error {
	return c.Logout(context.Background(), "a.1.b")
}
