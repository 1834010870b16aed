package routers

import (
	"time"

	"github.com/haierkeys/library-backup-service/internal/app"
	"github.com/haierkeys/library-backup-service/internal/middleware"
	"github.com/haierkeys/library-backup-service/internal/routers/api_router"
	"github.com/haierkeys/library-backup-service/pkg/limiter"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// methodLimiters throttles the routes that start subprocesses
func methodLimiters() limiter.Face {
	return limiter.NewMethodLimiter().AddBuckets(
		limiter.BucketRule{Key: "/api/backup/run-all", FillInterval: time.Second, Capacity: 2, Quantum: 1},
		limiter.BucketRule{Key: "/api/backup/gdrive/auth-url", FillInterval: time.Second, Capacity: 5, Quantum: 1},
		limiter.BucketRule{Key: "/api/backup/download", FillInterval: time.Second, Capacity: 2, Quantum: 1},
		limiter.BucketRule{Key: "/api/share/sync", FillInterval: time.Second, Capacity: 2, Quantum: 1},
		limiter.BucketRule{Key: "/api/batch-reanalyze/start", FillInterval: time.Second, Capacity: 2, Quantum: 1},
	)
}

// NewRouter 创建 API 路由
func NewRouter(appContainer *app.App, uni *ut.UniversalTranslator) *gin.Engine {

	// 获取配置
	cfg := appContainer.Config()
	lg := appContainer.Logger()

	r := gin.New()
	r.Use(middleware.Cors(cfg.Server.CorsOrigins))

	api := r.Group("/api")
	{
		api.Use(middleware.AppInfo(app.Name, appContainer.Version().Version))
		api.Use(middleware.TraceMiddleware(cfg.Tracer.Enabled, cfg.Tracer.Header)) // Trace ID 中间件
		api.Use(middleware.AccessLog(lg))
		api.Use(middleware.RecoveryWithLogger(lg))
		api.Use(middleware.RateLimiter(methodLimiters()))
		api.Use(middleware.LangWithTranslator(uni))

		healthHandler := api_router.NewHealthHandler(appContainer)
		backupHandler := api_router.NewBackupHandler(appContainer)
		libraryHandler := api_router.NewLibraryHandler(appContainer)
		shareHandler := api_router.NewShareHandler(appContainer)
		batchHandler := api_router.NewBatchHandler(appContainer)

		// 无需认证
		api.GET("/health", healthHandler.Check)
		api.GET("/version", healthHandler.Version)
		// the browser arrives here from the consent screen without the API token
		api.GET("/backup/gdrive/callback", backupHandler.Callback)

		authed := api.Group("")
		authed.Use(middleware.SimpleAuthTokenWithConfig(cfg.Security.AuthToken))

		// the zip download streams for longer than the default request timeout
		authed.GET("/backup/download", libraryHandler.Download)

		timed := authed.Group("")
		timed.Use(middleware.ContextTimeout(cfg.App.DefaultContextTimeout))

		backup := timed.Group("/backup")
		{
			backup.GET("/status", backupHandler.Status)
			backup.GET("/configs", backupHandler.ListConfigs)
			backup.POST("/configs", backupHandler.CreateConfig)
			backup.PATCH("/configs/:id", backupHandler.UpdateConfig)
			backup.DELETE("/configs/:id", backupHandler.DeleteConfig)
			backup.POST("/configs/:id/run", backupHandler.Run)
			backup.POST("/configs/:id/test", backupHandler.Test)
			backup.GET("/configs/:id/logs", backupHandler.Logs)
			backup.GET("/configs/:id/recovery-key", backupHandler.RecoveryKey)
			backup.POST("/run-all", backupHandler.RunAll)
			backup.GET("/gdrive/auth-url", backupHandler.AuthURL)
		}

		// share and library transfers run rclone for as long as they need
		authed.POST("/library/export", libraryHandler.Export)
		authed.POST("/library/import", libraryHandler.Import)

		share := authed.Group("/share")
		{
			share.GET("/status", shareHandler.Status)
			share.GET("/libraries", shareHandler.Libraries)
			share.GET("/code", shareHandler.Code)
			share.POST("/init", shareHandler.Init)
			share.POST("/publish", shareHandler.Publish)
			share.POST("/pull", shareHandler.Pull)
			share.POST("/sync", shareHandler.Sync)
		}

		reanalyze := timed.Group("/batch-reanalyze")
		{
			reanalyze.GET("/status", batchHandler.Status)
			reanalyze.POST("/status", batchHandler.Status)
			reanalyze.POST("/start", batchHandler.Start)
			reanalyze.POST("/cancel", batchHandler.Cancel)
		}
	}

	r.NoRoute(middleware.NoFound())

	return r
}
