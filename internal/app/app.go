// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haierkeys/library-backup-service/internal/batch"
	"github.com/haierkeys/library-backup-service/internal/dao"
	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/internal/library"
	"github.com/haierkeys/library-backup-service/internal/oauth"
	"github.com/haierkeys/library-backup-service/internal/remote"
	"github.com/haierkeys/library-backup-service/internal/service"
	"github.com/haierkeys/library-backup-service/internal/snapshot"
	"github.com/haierkeys/library-backup-service/pkg/execx"
	"github.com/haierkeys/library-backup-service/pkg/timex"
	"github.com/haierkeys/library-backup-service/pkg/util"
	"github.com/haierkeys/library-backup-service/pkg/workerpool"
	"github.com/haierkeys/library-backup-service/pkg/writequeue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 应用容器，封装所有依赖和服务
type App struct {
	// 基础设施（注入的依赖）
	config    *AppConfig
	logger    *zap.Logger
	DB        *gorm.DB
	Dao       *dao.Dao
	StartTime time.Time

	// 并发控制组件
	workerPool    *workerpool.Pool
	writeQueueMgr *writequeue.Manager

	// Registry holds this container's collectors, served on the private router
	Registry *prometheus.Registry
	Metrics  *service.Metrics

	// Repository 层
	BackupRepo domain.BackupRepository

	// 外部工具与协作者
	Engine  *snapshot.Engine
	Remote  *remote.Adapter
	OAuth   *oauth.Broker
	Library library.Library
	// Batch is nil when no analysis service is configured
	Batch *batch.Manager

	// Service 层
	BackupService  service.BackupService
	ShareService   service.ShareService
	LibraryService service.LibraryService

	// 关闭控制
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New returns a container holding only cfg and logger. NewApp fills in the rest;
// handler tests assign the services they need.
// New 创建仅包含配置与日志器的空容器
func New(cfg *AppConfig, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &AppConfig{}
	}
	return &App{
		config:     cfg,
		logger:     logger,
		StartTime:  time.Now(),
		shutdownCh: make(chan struct{}),
	}
}

// NewApp 创建应用容器实例
// 初始化所有依赖并进行依赖注入
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 数据库连接（必须）
func NewApp(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := New(cfg, logger)
	a.DB = db

	// 指标
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = service.NewMetrics(a.Registry)

	// 初始化 Worker Pool
	wpConfig := cfg.GetWorkerPoolConfig()
	a.workerPool = workerpool.New(wpConfig, logger)

	// 初始化 Write Queue Manager
	wqConfig := cfg.GetWriteQueueConfig()
	a.writeQueueMgr = writequeue.New(wqConfig, logger)

	// 初始化 DAO
	a.Dao = dao.New(db, a.writeQueueMgr, logger)

	sealer, err := util.NewSealer(cfg.Security.EncryptionSecret)
	if err != nil {
		return nil, err
	}
	a.BackupRepo = dao.NewBackupRepository(a.Dao, sealer)

	runner := execx.NewExecRunner(logger)

	a.Engine, err = snapshot.New(snapshot.Config{
		Binary:           cfg.Backup.ResticBinary,
		RcloneBinary:     cfg.Share.RcloneBinary,
		LibraryRoot:      cfg.Library.Root,
		Excludes:         cfg.Backup.Excludes,
		CacheDir:         cfg.Backup.CacheDir,
		Host:             cfg.Backup.Host,
		EncryptionSecret: cfg.Security.EncryptionSecret,
		BackupTimeout:    cfg.Backup.BackupTimeout,
		CommandTimeout:   cfg.Backup.CommandTimeout,
	}, runner, logger)
	if err != nil {
		return nil, err
	}

	a.Remote = remote.New(remote.Config{
		Binary:            cfg.Share.RcloneBinary,
		ConfigFile:        cfg.Share.ConfigFile,
		Remote:            cfg.Share.Remote,
		Root:              cfg.Share.Root,
		InitScript:        cfg.Share.InitScript,
		Backend:           cfg.Share.Backend,
		BackendOptions:    cfg.Share.BackendOptions,
		PullRoot:          cfg.Share.PullRoot,
		Timeout:           cfg.Share.Timeout,
		ProbeTimeout:      cfg.Share.ProbeTimeout,
		DriveClientID:     cfg.OAuth.ClientID,
		DriveClientSecret: cfg.OAuth.ClientSecret,
	}, runner, logger)

	a.OAuth = oauth.New(oauth.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		PendingTTL:   cfg.OAuth.PendingTTL,
	}, a.BackupRepo, timex.System, logger)

	a.Library = library.NewFS(library.Config{
		Root:            cfg.Library.Root,
		ExportRoot:      cfg.Library.ExportRoot,
		AudioExtensions: cfg.Library.AudioExtensions,
	}, timex.System, logger)

	if cfg.Batch.AnalysisURL != "" {
		analyzer := batch.NewHTTPAnalyzer(cfg.Batch.AnalysisURL, cfg.Batch.AnalysisToken, cfg.Batch.Timeout)
		a.Batch = batch.NewManager(analyzer, timex.System, logger, batch.Hooks{
			OnItem: a.Metrics.BatchItem,
			OnFinish: func(status batch.Status, elapsed time.Duration) {
				a.Metrics.BatchJob(string(status), elapsed)
			},
		})
	}

	// 初始化 Service 层（依赖注入）
	a.BackupService = service.NewBackupService(service.BackupServiceDeps{
		Repo:    a.BackupRepo,
		Engine:  a.Engine,
		Backend: a.Remote,
		Tokens:  a.OAuth,
		Pool:    a.workerPool,
		Clock:   timex.System,
		Metrics: a.Metrics,
		Logger:  logger,
	}, service.BackupServiceConfig{
		LogRetention:       cfg.Backup.LogRetention,
		ProbeTimeout:       cfg.Backup.ProbeTimeout,
		StatusFailureLimit: cfg.Backup.StatusFailureLimit,
		StatusCooldown:     cfg.Backup.StatusCooldown,
		RunAllParallel:     cfg.Backup.RunAllParallel,
	})
	a.ShareService = service.NewShareService(a.Remote, a.Library, timex.System, a.Metrics, service.ShareServiceConfig{
		StagingRoot: cfg.Share.StagingRoot,
		KeepStaging: cfg.Share.KeepStaging,
	}, logger)
	a.LibraryService = service.NewLibraryService(a.Library, logger)

	logger.Info("App container initialized successfully",
		zap.Int("workerPoolWorkers", wpConfig.Workers),
		zap.Int("writeQueueCapacity", wqConfig.Capacity),
		zap.Bool("oauthConfigured", a.OAuth.Configured()),
		zap.Bool("batchEnabled", a.Batch != nil))

	return a, nil
}

// Recover fails backup logs a previous process left running
// Recover 处理上次进程遗留的运行中日志
func (a *App) Recover(ctx context.Context) {
	n, err := a.BackupService.Recover(ctx)
	if err != nil {
		a.logger.Warn("recover interrupted backups failed", zap.Error(err))
		return
	}
	if n > 0 {
		a.logger.Warn("interrupted backups marked failed", zap.Int("count", n))
	}
}

// Close 释放应用容器持有的资源
func (a *App) Close() error {
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.logger.Info("Database connection closed")
	}
	return nil
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Version 获取版本信息
func (a *App) Version() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// WorkerPool 获取 Worker Pool（用于高级操作）
func (a *App) WorkerPool() *workerpool.Pool {
	return a.workerPool
}

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// Shutdown 优雅关闭应用容器
// 按顺序关闭：Backups -> Batch -> Worker Pool -> Write Queue Manager -> Database
// ctx 用于控制关闭超时，如果为 nil 则使用默认 30 秒超时
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	var errs []error
	first := false
	a.shutdownOnce.Do(func() {
		first = true
		close(a.shutdownCh)
	})
	if !first {
		return nil
	}
	a.logger.Info("App container shutting down...")

	// 0. 取消运行中的备份（最终日志仍会写入）
	if a.BackupService != nil {
		if err := a.BackupService.Shutdown(ctx); err != nil {
			a.logger.Warn("Backup service shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("backup service shutdown: %w", err))
		}
	}

	if a.Batch != nil {
		if err := a.Batch.Shutdown(ctx); err != nil {
			a.logger.Warn("Batch job shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("batch shutdown: %w", err))
		}
	}

	// 1. 关闭 Worker Pool（停止接受新任务，等待现有任务完成）
	if a.workerPool != nil {
		if err := a.workerPool.Shutdown(ctx); err != nil {
			a.logger.Warn("Worker pool shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
		}
	}

	// 2. 关闭 Write Queue Manager（排空所有队列）
	if a.writeQueueMgr != nil {
		if err := a.writeQueueMgr.Shutdown(ctx); err != nil {
			a.logger.Warn("write queue manager shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("write queue manager shutdown: %w", err))
		}
	}

	// 3. 关闭数据库连接
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		a.logger.Warn("App container shutdown completed with errors",
			zap.Int("errorCount", len(errs)))
		return fmt.Errorf("shutdown completed with %d errors: %v", len(errs), errs)
	}

	a.logger.Info("App container shutdown completed successfully")
	return nil
}

// IsShuttingDown 检查应用是否正在关闭
func (a *App) IsShuttingDown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}
