package middleware

import (
	"github.com/gin-gonic/gin"
)

// context keys set by AppInfo
const (
	AppNameKey    = "app_name"
	AppVersionKey = "app_version"
)

// AppInfo stamps the service name and version on the context and the response headers
// AppInfo 在上下文与响应头中写入服务名称和版本
func AppInfo(name, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(AppNameKey, name)
		c.Set(AppVersionKey, version)
		c.Header("X-App-Version", version)
		c.Next()
	}
}
