// Package limiter keeps token buckets per route key for the rate limit middleware.
// Package limiter 按路由维护令牌桶，供限流中间件使用
package limiter

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
)

// Face is what the middleware needs from a limiter.
type Face interface {
	Key(c *gin.Context) string
	GetBucket(key string) (*ratelimit.Bucket, bool)
	AddBuckets(rules ...BucketRule) Face
}

// BucketRule 令牌桶规则
type BucketRule struct {
	// Key is a route path, matched without query string
	Key string
	// FillInterval 每隔多久放入 Quantum 个令牌
	FillInterval time.Duration
	Capacity     int64
	Quantum      int64
}

// MethodLimiter limits by request path (the URI before '?').
// MethodLimiter 以请求路径为 key 限流
type MethodLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*ratelimit.Bucket
}

// NewMethodLimiter 创建按路径限流器
func NewMethodLimiter() *MethodLimiter {
	return &MethodLimiter{buckets: make(map[string]*ratelimit.Bucket)}
}

func (l *MethodLimiter) Key(c *gin.Context) string {
	uri := c.Request.RequestURI
	if i := strings.Index(uri, "?"); i >= 0 {
		return uri[:i]
	}
	return uri
}

func (l *MethodLimiter) GetBucket(key string) (*ratelimit.Bucket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.buckets[key]
	return b, ok
}

// AddBuckets registers rules; an existing key keeps its bucket.
// AddBuckets 注册规则，已存在的 key 不会被覆盖
func (l *MethodLimiter) AddBuckets(rules ...BucketRule) Face {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rules {
		if _, ok := l.buckets[r.Key]; ok {
			continue
		}
		quantum := r.Quantum
		if quantum <= 0 {
			quantum = 1
		}
		l.buckets[r.Key] = ratelimit.NewBucketWithQuantum(r.FillInterval, r.Capacity, quantum)
	}
	return l
}
