package middleware

import (
	"math"
	"strconv"

	"github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/limiter"

	"github.com/gin-gonic/gin"
)

// RateLimiter rejects a request with 429 when its route bucket is empty.
// Routes without a bucket pass through.
// RateLimiter 按路由令牌桶限流
func RateLimiter(l limiter.Face) gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket, ok := l.GetBucket(l.Key(c))
		if !ok || bucket.TakeAvailable(1) > 0 {
			c.Next()
			return
		}
		if rate := bucket.Rate(); rate > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(1/rate))))
		}
		app.NewResponse(c).ToResponse(code.ErrorTooManyRequests)
		c.Abort()
	}
}
