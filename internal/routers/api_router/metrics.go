package api_router

import (
	"expvar"
	"sync"
	"time"

	"github.com/haierkeys/library-backup-service/internal/app"

	"github.com/gin-gonic/gin"
)

var publishBuild sync.Once

// Expvar serves /debug/vars with the build info and start time published under "build".
// Expvar 输出 expvar，附带构建信息与启动时间
func Expvar() gin.HandlerFunc {
	publishBuild.Do(func() {
		started := time.Now().UTC().Format(time.RFC3339)
		expvar.Publish("build", expvar.Func(func() any {
			return map[string]string{
				"name":      app.Name,
				"version":   app.Version,
				"gitTag":    app.GitTag,
				"buildTime": app.BuildTime,
				"startedAt": started,
			}
		}))
	})
	return gin.WrapH(expvar.Handler())
}
