package middleware

import (
	"net/http"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AccessLog writes one line per request. Health probes log at debug, 5xx at warn.
// AccessLog 请求访问日志
func AccessLog(lg *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.WarnLevel
		case c.FullPath() == "/api/health":
			level = zapcore.DebugLevel
		}
		ce := lg.Check(level, c.Request.URL.Path)
		if ce == nil {
			return
		}
		ce.Write(
			zap.String(logger.FieldMethod, c.Request.Method),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", status),
			zap.Duration(logger.FieldDuration, time.Since(start)),
			zap.String("ip", app.GetRequestIP(c)),
			zap.String("userAgent", c.Request.UserAgent()),
			zap.String(logger.FieldTraceID, GetTraceIDFromGin(c)),
			zap.String(logger.FieldError, c.Errors.ByType(gin.ErrorTypePrivate).String()),
		)
	}
}
