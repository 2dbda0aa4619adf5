package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	pkgredis "github.com/sentinelhive/svh/internal/pkg/redis"
	"github.com/sentinelhive/svh/internal/pkg/response"
	"go.uber.org/zap"
)

const loginRateKeyPrefix = "svh:login_rate"

// LoginRateLimit caps login attempts per client IP in fixed windows. A nil
// client or a non-positive max disables it; Redis errors let the request
// through.
func LoginRateLimit(rc *pkgredis.Client, max int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc == nil || max <= 0 || window <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		now := time.Now()
		windowStart := now.Truncate(window)
		key := fmt.Sprintf("%s:%s:%d", loginRateKeyPrefix, ip, windowStart.Unix())

		count, err := rc.Hit(c.Request.Context(), key, window+time.Second)
		if err != nil {
			if log != nil {
				log.Warn("login rate limit unavailable", zap.Error(err))
			}
			c.Next()
			return
		}

		if count > int64(max) {
			retry := windowStart.Add(window).Sub(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			response.TooManyRequests(c, "too many login attempts, try again later")
			return
		}

		c.Next()
	}
}
