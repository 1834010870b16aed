package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// requestToken reads the token from the Authorization header, or from the
// authorization query parameter for links such as the zip download.
func requestToken(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("authorization")
	}
	if token == "" {
		token = c.Query("Authorization")
	}
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}

// SimpleAuthTokenWithConfig checks a static API token; an empty token disables the check
// SimpleAuthTokenWithConfig 静态 Token 认证，未配置 Token 时放行
func SimpleAuthTokenWithConfig(authToken string) gin.HandlerFunc {
	want := []byte(authToken)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(requestToken(c)), want) != 1 {
			app.NewResponse(c).ToResponse(code.ErrorInvalidAuthToken)
			c.Abort()
			return
		}
		c.Next()
	}
}
