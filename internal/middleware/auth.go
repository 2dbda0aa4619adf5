package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/pkg/jwt"
	"github.com/sentinelhive/svh/internal/pkg/response"
)

const ContextKeyService = "service"

const bearerPrefix = "bearer "

// ServiceTokenRejected is the message ServiceAuth answers with, so callers
// can tell a bad service token from a bad user credential.
const ServiceTokenRejected = "invalid service token"

// ServiceAuth requires a service token signed with the shared internal
// secret. A nil signer disables the check.
func ServiceAuth(signer *jwt.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if signer == nil {
			c.Next()
			return
		}
		claims, err := signer.Parse(BearerToken(c))
		if err != nil {
			response.UnauthorizedMsg(c, ServiceTokenRejected)
			return
		}
		c.Set(ContextKeyService, claims.Service)
		c.Next()
	}
}

// BearerToken returns the token of a Bearer Authorization header. Other
// schemes yield "" so callers fall through to the cookie.
func BearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// CookieToken returns the value of cookie name, or "".
func CookieToken(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// NormalizeToken cleans a token taken from a body or query value: it trims
// spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(token[len(bearerPrefix):])
	}
	return token
}
