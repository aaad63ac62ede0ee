package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/aysenursarun/ChurnGuard-AI/internal/errors"
)

// HandleRateLimitStatus returns the limits that apply to the calling IP
// together with limiter statistics.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyCount, err := rl.GetKeyCount(c.Request.Context())
		if err != nil {
			_ = c.Error(apperrors.WrapError(err, "counting rate limit keys"))
			return
		}

		status := gin.H{
			"ip": c.ClientIP(),
			"limits": gin.H{
				"api_per_minute":  rl.config.IPLimit,
				"scan_per_minute": rl.config.ScanLimit,
			},
			"total_keys":    keyCount,
			"limiter_stats": rl.GetStats(),
			"timestamp":     time.Now().Format(time.RFC3339),
		}
		if rl.metrics != nil {
			status["metrics"] = rl.metrics.GetRateLimitStats()
		}

		c.JSON(http.StatusOK, status)
	}
}
