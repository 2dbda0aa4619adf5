package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(t *testing.T, signer *jwt.Signer) (*gin.Engine, *env) {
	t.Helper()
	e := newEnv(t)
	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(e.svc, e.db, nil).RegisterRoutes(r, middleware.ServiceAuth(signer))
	return r, e
}

func post(t *testing.T, r http.Handler, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerLoginLogout(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := post(t, r, "/auth/login", gin.H{"external_id": "alice", "password": "correct", "ttl_seconds": 60}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res authority.LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "alice", res.ExternalID)
	assert.NotEmpty(t, res.Token)

	w = post(t, r, "/auth/login", gin.H{"external_id": "alice", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"ok":0,"code":401,"message":"invalid credentials"}`, w.Body.String())

	w = post(t, r, "/auth/login", gin.H{"external_id": "alice"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 2; i++ {
		w = post(t, r, "/auth/logout", gin.H{"token": res.Token}, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	}

	w = post(t, r, "/auth/logout", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerTransientStoreFailure(t *testing.T) {
	r, e := newRouter(t, nil)
	deadlockCreates(t, e.db, 100)

	w := post(t, r, "/auth/login", gin.H{"external_id": "alice", "password": "correct"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"ok":0,"code":503,"message":"session store busy, retry later"}`, w.Body.String())
}

func TestHandlerRotateAndSweep(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := post(t, r, "/auth/login", gin.H{"external_id": "root", "password": "toor"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var first authority.LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = post(t, r, "/auth/rotate", gin.H{"token": first.Token}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var next authority.LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	assert.True(t, next.IsPrivileged)

	w = post(t, r, "/auth/rotate", gin.H{"token": first.Token}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, r, "/auth/sweep", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revoked":1,"pruned":1,"accounts":1}`, w.Body.String())
}

func TestHandlerRequiresServiceToken(t *testing.T) {
	signer := jwt.NewSigner("internal", "edge")
	r, _ := newRouter(t, signer)

	w := post(t, r, "/auth/login", gin.H{"external_id": "alice", "password": "correct"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := signer.Sign()
	require.NoError(t, err)
	w = post(t, r, "/auth/login", gin.H{"external_id": "alice", "password": "correct"}, tok)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	hw := httptest.NewRecorder()
	r.ServeHTTP(hw, req)
	assert.Equal(t, http.StatusOK, hw.Code, "probes stay open")
}

func TestHandlerHealthAndMetadata(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"service":"identity","status":"ok","database":true}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metadata", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "identity", meta["service"])
	assert.NotEmpty(t, meta["go"])
}
