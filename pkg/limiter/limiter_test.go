package limiter

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodLimiterKeyStripsQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/api/backup/run-all?x=1", nil)

	l := NewMethodLimiter()
	assert.Equal(t, "/api/backup/run-all", l.Key(c))
}

func TestBucketDrains(t *testing.T) {
	l := NewMethodLimiter()
	l.AddBuckets(BucketRule{Key: "/api/backup/run-all", FillInterval: time.Hour, Capacity: 2, Quantum: 1})

	b, ok := l.GetBucket("/api/backup/run-all")
	require.True(t, ok)
	assert.Equal(t, int64(1), b.TakeAvailable(1))
	assert.Equal(t, int64(1), b.TakeAvailable(1))
	assert.Equal(t, int64(0), b.TakeAvailable(1))

	_, ok = l.GetBucket("/api/health")
	assert.False(t, ok)
}
