package edge

import (
	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/models"
	"github.com/sentinelhive/svh/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	ContextKeyAccount = "account"
	ContextKeyToken   = "token"
)

// RequireAuth resolves the caller's token (bearer, then cookie) through the
// session cache and stores the account on the context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := h.requestToken(c)
		acc, err := h.auth.CurrentUser(c.Request.Context(), tok)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(ContextKeyAccount, acc)
		c.Set(ContextKeyToken, tok)
		c.Next()
	}
}

// RequireAdmin is RequireAuth restricted to privileged accounts.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := h.requestToken(c)
		acc, err := h.auth.RequireAdmin(c.Request.Context(), tok)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(ContextKeyAccount, acc)
		c.Set(ContextKeyToken, tok)
		c.Next()
	}
}

// CurrentAccount returns the account stored by RequireAuth or RequireAdmin.
func CurrentAccount(c *gin.Context) *models.Account {
	v, ok := c.Get(ContextKeyAccount)
	if !ok {
		return nil
	}
	acc, _ := v.(*models.Account)
	return acc
}

func (h *Handler) requestToken(c *gin.Context) string {
	if tok := middleware.BearerToken(c); tok != "" {
		return tok
	}
	return middleware.CookieToken(c, h.cfg.CookieName)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := authority.HTTPStatus(err)
	if status >= 500 {
		h.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.CurrentRequestID(c)),
			zap.Error(err),
		)
	}
	response.Error(c, status, authority.Message(err))
}
