package middleware

import (
	"github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// NoFound answers unknown routes with the API envelope, naming the route that missed
// NoFound 未匹配路由返回统一响应
func NoFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		app.NewResponse(c).ToResponse(code.ErrorNotFoundAPI.WithDetails(c.Request.Method + " " + c.Request.URL.Path))
		c.Abort()
	}
}
