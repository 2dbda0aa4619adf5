// Package edge is the public tier. It answers every session check from its
// own cache and reaches the identity tier only to log in, log out and
// rotate.
package edge

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/identityclient"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	defaultCookieName = "session_token"
	probeTimeout      = 2 * time.Second
	tokenHintLen      = 8
)

// Prober checks that the identity tier is up.
type Prober interface {
	Health(ctx context.Context) (*identityclient.Health, error)
}

type Config struct {
	CookieName   string
	CookieSecure bool
	// LoginLimiter guards POST /auth/login when set.
	LoginLimiter gin.HandlerFunc
}

type Handler struct {
	auth   *authority.Authority
	prober Prober
	cfg    Config
	logger *zap.Logger
}

func NewHandler(auth *authority.Authority, prober Prober, cfg Config, logger *zap.Logger) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{auth: auth, prober: prober, cfg: cfg, logger: logger}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health/ready", h.ready)
	r.GET("/health/identity", h.identityHealth)

	a := r.Group("/auth")
	if h.cfg.LoginLimiter != nil {
		a.POST("/login", h.cfg.LoginLimiter, h.login)
	} else {
		a.POST("/login", h.login)
	}
	a.POST("/logout", h.logout)
	a.GET("/check", h.check)
	a.GET("/whoami", h.RequireAuth(), h.whoami)
	a.POST("/refresh", h.RequireAuth(), h.refresh)

	admin := r.Group("/admin", h.RequireAdmin())
	admin.GET("/sessions", h.listSessions)
	admin.POST("/sessions/evict", h.evict)
}

type logoutRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type evictRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
}

type whoamiResponse struct {
	ExternalID   string `json:"external_id"`
	IsPrivileged bool   `json:"is_privileged"`
}

type refreshResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type sessionEntry struct {
	ExternalID string    `json:"external_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	TokenHint  string    `json:"token_hint"`
}

func (h *Handler) login(c *gin.Context) {
	var req authority.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "external_id and password are required")
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.ExternalID, req.Password, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, sess.Token, sess.ExpiresIn)
	response.OK(c, sess.LoginResult)
}

// logout resolves the token from the body, then the bearer header, then the
// cookie.
func (h *Handler) logout(c *gin.Context) {
	var req logoutRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	tok := middleware.NormalizeToken(req.Token)
	if tok == "" {
		tok = h.requestToken(c)
	}
	if err := h.auth.Logout(c.Request.Context(), tok); err != nil {
		h.fail(c, err)
		return
	}
	h.clearCookie(c)
	response.OK(c, gin.H{"ok": true})
}

func (h *Handler) check(c *gin.Context) {
	tok := middleware.NormalizeToken(c.Query("token"))
	if tok == "" {
		tok = h.requestToken(c)
	}
	if tok == "" {
		h.fail(c, authority.ErrTokenMissing)
		return
	}
	response.OK(c, gin.H{"status": h.auth.Check(tok)})
}

func (h *Handler) whoami(c *gin.Context) {
	acc := CurrentAccount(c)
	response.OK(c, whoamiResponse{ExternalID: acc.ExternalID, IsPrivileged: acc.IsPrivileged})
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid refresh body")
			return
		}
	}
	sess, err := h.auth.Refresh(c.Request.Context(), CurrentAccount(c), c.GetString(ContextKeyToken), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, sess.Token, sess.ExpiresIn)
	response.OK(c, refreshResponse{Token: sess.Token, ExpiresIn: int(sess.ExpiresIn / time.Second)})
}

func (h *Handler) listSessions(c *gin.Context) {
	items := h.auth.Sessions()
	entries := make([]sessionEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, sessionEntry{
			ExternalID: it.Subject,
			ExpiresAt:  it.ExpiresAt,
			TokenHint:  tokenHint(it.Token),
		})
	}
	response.OK(c, gin.H{"entries": entries})
}

func (h *Handler) evict(c *gin.Context) {
	var req evictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "external_id is required")
		return
	}
	n := h.auth.Evict(req.ExternalID)
	h.logger.Info("admin eviction",
		zap.String("by", CurrentAccount(c).ExternalID),
		zap.String("external_id", req.ExternalID),
		zap.String("request_id", middleware.CurrentRequestID(c)),
	)
	response.OK(c, gin.H{"evicted": n})
}

func (h *Handler) ready(c *gin.Context) {
	response.OK(c, gin.H{"ok": true})
}

func (h *Handler) identityHealth(c *gin.Context) {
	if h.prober == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "identity probe not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	report, err := h.prober.Health(ctx)
	if err != nil {
		h.logger.Warn("identity probe failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "identity": report, "error": authority.Message(err)})
		return
	}
	response.OK(c, gin.H{"ok": true, "identity": report})
}

func (h *Handler) setCookie(c *gin.Context, tok string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, tok, int(ttl/time.Second), "/", "", h.cfg.CookieSecure, true)
}

func (h *Handler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, "", -1, "/", "", h.cfg.CookieSecure, true)
}

// tokenHint keeps the tail of the signature so operators can tell entries
// apart without the listing leaking usable tokens.
func tokenHint(tok string) string {
	if len(tok) <= tokenHintLen {
		return "…"
	}
	return "…" + tok[len(tok)-tokenHintLen:]
}
