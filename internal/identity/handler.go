package identity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/database"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/pkg/response"
	"github.com/sentinelhive/svh/internal/store"
	"github.com/sentinelhive/svh/internal/version"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	serviceName   = "identity"
	healthTimeout = 2 * time.Second

	// retryAfterSeconds is advertised when the ledger is briefly unavailable.
	retryAfterSeconds = "1"
	storeBusyMessage  = "session store busy, retry later"
)

type tokenRequest struct {
	Token string `json:"token"`
}

type Handler struct {
	svc    *Service
	db     *gorm.DB
	logger *zap.Logger
}

func NewHandler(svc *Service, db *gorm.DB, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, db: db, logger: logger}
}

// RegisterRoutes mounts the auth endpoints behind authMW and the probes
// without it.
func (h *Handler) RegisterRoutes(r gin.IRouter, authMW gin.HandlerFunc) {
	r.GET("/health", h.health)
	r.GET("/metadata", h.metadata)

	a := r.Group("/auth", authMW)
	a.POST("/login", h.login)
	a.POST("/logout", h.logout)
	a.POST("/rotate", h.rotate)
	a.POST("/sweep", h.sweep)
}

func (h *Handler) login(c *gin.Context) {
	var req authority.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "external_id and password are required")
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) logout(c *gin.Context) {
	var req tokenRequest
	_ = c.ShouldBindJSON(&req)
	if req.Token == "" {
		h.fail(c, authority.ErrTokenMissing)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), req.Token); err != nil {
		h.logger.Warn("logout failed", zap.Error(err), zap.String("request_id", middleware.CurrentRequestID(c)))
	}
	response.OK(c, gin.H{"ok": true})
}

func (h *Handler) rotate(c *gin.Context) {
	var req tokenRequest
	_ = c.ShouldBindJSON(&req)
	res, err := h.svc.Rotate(c.Request.Context(), req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) sweep(c *gin.Context) {
	res, err := h.svc.Sweep(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	dbOK := database.Ping(ctx, h.db) == nil
	status := "ok"
	code := http.StatusOK
	if !dbOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"service":  serviceName,
		"status":   status,
		"database": dbOK,
	})
}

func (h *Handler) metadata(c *gin.Context) {
	response.OK(c, gin.H{
		"service": serviceName,
		"version": version.Version,
		"go":      version.Go(),
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrTransient) {
		h.logger.Warn("transient store failure",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.CurrentRequestID(c)),
			zap.Error(err),
		)
		c.Header("Retry-After", retryAfterSeconds)
		response.Error(c, http.StatusServiceUnavailable, storeBusyMessage)
		return
	}
	status := authority.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.CurrentRequestID(c)),
			zap.Error(err),
		)
	}
	response.Error(c, status, authority.Message(err))
}
