package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/repository"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
	"github.com/mentora/mentora-pay-api/pkg/response"
)

// RateLimitOptions configures the per-client request counter.
type RateLimitOptions struct {
	Limit  int
	Window time.Duration
	Logger *zap.Logger
}

// RateLimit counts requests per client IP and route in a shared store and
// rejects with 429 once the window limit is exceeded. A store failure lets
// the request through: limiting is protection, not correctness.
func RateLimit(store repository.RateLimitStore, opts RateLimitOptions) gin.HandlerFunc {
	if opts.Limit <= 0 {
		opts.Limit = 60
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if store == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), c.ClientIP())
		count, err := store.Increment(c.Request.Context(), key, opts.Window)
		if err != nil {
			opts.Logger.Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > int64(opts.Limit) {
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
