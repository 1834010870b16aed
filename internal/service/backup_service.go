package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/internal/dto"
	"github.com/haierkeys/library-backup-service/internal/remote"
	"github.com/haierkeys/library-backup-service/internal/snapshot"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/logger"
	"github.com/haierkeys/library-backup-service/pkg/storage"
	"github.com/haierkeys/library-backup-service/pkg/timex"
	"github.com/haierkeys/library-backup-service/pkg/workerpool"

	"github.com/jinzhu/copier"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const interruptedMessage = "interrupted: the service stopped while this backup was running"

// BackupService defines the backup business service interface
// BackupService 定义备份业务服务接口
type BackupService interface {
	// Status lists configs and probes the tools, degrading after repeated probe failures
	// Status 返回配置列表及工具可用性，探测连续失败后降级
	Status(ctx context.Context) (*dto.BackupStatusDTO, error)
	ListConfigs(ctx context.Context) ([]*dto.BackupConfigDTO, error)
	GetConfig(ctx context.Context, id int64) (*dto.BackupConfigDTO, error)
	CreateConfig(ctx context.Context, req *dto.BackupConfigCreateRequest) (*dto.BackupConfigDTO, error)
	UpdateConfig(ctx context.Context, id int64, req *dto.BackupConfigUpdateRequest) (*dto.BackupConfigDTO, error)
	// DeleteConfig aborts a running backup of the config before deleting it
	// DeleteConfig 删除配置，运行中的备份会先被中止
	DeleteConfig(ctx context.Context, id int64) error

	// RunBackup records a running log and executes the backup in the background
	// RunBackup 记录运行日志并在后台执行备份
	RunBackup(ctx context.Context, id int64) (*dto.BackupLogDTO, error)
	RunAll(ctx context.Context) (*dto.RunAllDTO, error)
	// Tick starts every due scheduled config and returns how many started
	// Tick 启动所有到期的计划备份
	Tick(ctx context.Context) (int, error)
	TestConnection(ctx context.Context, id int64) (*dto.TestConnectionDTO, error)

	ListLogs(ctx context.Context, id int64, limit int) ([]*dto.BackupLogDTO, error)
	RecoveryKey(ctx context.Context, id int64) (*domain.RecoveryKey, error)

	// EnsureGDriveConfig returns id when it names a gdrive config. With id 0 it reuses an
	// unlinked gdrive config awaiting consent, or creates a disabled one.
	// EnsureGDriveConfig 校验或创建 gdrive 配置
	EnsureGDriveConfig(ctx context.Context, id int64) (int64, error)

	// Recover fails logs left running by a previous process
	// Recover 处理上次进程遗留的运行中日志
	Recover(ctx context.Context) (int, error)
	Shutdown(ctx context.Context) error
}

// SnapshotEngine is the part of the restic adapter the service drives
type SnapshotEngine interface {
	Backup(ctx context.Context, cfg *domain.BackupConfig, env []string) (*snapshot.Outcome, error)
	RecoveryKey(cfg *domain.BackupConfig) *domain.RecoveryKey
	Version(ctx context.Context) (string, error)
}

// RemoteBackend resolves destinations for the snapshot engine and reports rclone status
type RemoteBackend interface {
	BackendEnv(ctx context.Context, cfg *domain.BackupConfig, token *domain.GDriveToken) ([]string, error)
	Status(ctx context.Context) *remote.Status
}

// TokenProvider hands out valid Google Drive tokens
type TokenProvider interface {
	Token(ctx context.Context, configID int64) (*domain.GDriveToken, error)
}

// ProbeFunc checks a destination is reachable and writable
type ProbeFunc func(ctx context.Context, cfg *storage.Config, lg *zap.Logger) (*storage.ProbeResult, error)

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type backupService struct {
	repo    domain.BackupRepository
	engine  SnapshotEngine
	backend RemoteBackend
	tokens  TokenProvider
	pool    *workerpool.Pool
	probe   ProbeFunc
	clock   timex.Clock
	metrics *Metrics
	cfg     BackupServiceConfig
	logger  *zap.Logger

	runningMu sync.Mutex
	running   map[int64]*run
	closed    bool

	statusMu       sync.Mutex
	statusFailures int
	statusSkipTill time.Time

	// gdriveMu serializes EnsureGDriveConfig so concurrent auth-url calls share one config
	gdriveMu sync.Mutex
}

// BackupServiceDeps 备份服务依赖
type BackupServiceDeps struct {
	Repo    domain.BackupRepository
	Engine  SnapshotEngine
	Backend RemoteBackend
	Tokens  TokenProvider
	Pool    *workerpool.Pool
	Probe   ProbeFunc
	Clock   timex.Clock
	Metrics *Metrics
	Logger  *zap.Logger
}

// NewBackupService creates BackupService instance
// 创建 BackupService 实例
func NewBackupService(deps BackupServiceDeps, cfg BackupServiceConfig) BackupService {
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = timex.System
	}
	if deps.Probe == nil {
		deps.Probe = storage.Probe
	}
	return &backupService{
		repo:    deps.Repo,
		engine:  deps.Engine,
		backend: deps.Backend,
		tokens:  deps.Tokens,
		pool:    deps.Pool,
		probe:   deps.Probe,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		cfg:     cfg,
		logger:  deps.Logger.Named("backup"),
		running: make(map[int64]*run),
	}
}

func (s *backupService) isRunning(id int64) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	_, ok := s.running[id]
	return ok
}

// nextRunAt is the earliest tick that will start cfg; nil for manual or disabled configs
func (s *backupService) nextRunAt(cfg *domain.BackupConfig) *time.Time {
	if !cfg.Enabled || cfg.Schedule == domain.ScheduleManual || cfg.Schedule.Interval() == 0 {
		return nil
	}
	now := s.clock.Now()
	if cfg.LastBackupAt == nil {
		return &now
	}
	next := cron.Every(cfg.Schedule.Interval()).Next(*cfg.LastBackupAt)
	if next.Before(now) {
		next = now
	}
	return &next
}

func (s *backupService) configToDTO(c *domain.BackupConfig) *dto.BackupConfigDTO {
	out := &dto.BackupConfigDTO{}
	if err := copier.Copy(out, c); err != nil {
		s.logger.Warn("copy config", zap.Int64(logger.FieldConfigID, c.ID), zap.Error(err))
	}
	out.Params = c.Params.Redacted()
	if c.LastBackupStatus != domain.RunStatusNone {
		st := string(c.LastBackupStatus)
		out.LastBackupStatus = &st
	}
	if c.LastBackupError != "" {
		msg := c.LastBackupError
		out.LastBackupError = &msg
	}
	out.Running = s.isRunning(c.ID)
	out.NextRunAt = s.nextRunAt(c)
	return out
}

func logToDTO(l *domain.BackupLog) *dto.BackupLogDTO {
	out := &dto.BackupLogDTO{}
	_ = copier.Copy(out, l)
	if l.ErrorMessage != "" {
		msg := l.ErrorMessage
		out.ErrorMessage = &msg
	}
	return out
}

// Status 备份总览
func (s *backupService) Status(ctx context.Context) (*dto.BackupStatusDTO, error) {
	configs, err := s.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}
	out := &dto.BackupStatusDTO{Configs: configs}

	now := s.clock.Now()
	s.statusMu.Lock()
	skip := now.Before(s.statusSkipTill)
	s.statusMu.Unlock()
	if skip {
		out.Degraded = true
		out.Message = "tool probe paused after repeated failures"
		return out, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	st := s.backend.Status(pctx)
	out.RcloneAvailable = st.Available()
	out.RcloneVersion = st.RcloneVersion
	out.Message = st.Message
	if v, err := s.engine.Version(pctx); err == nil {
		out.ResticAvailable = true
		out.ResticVersion = v
	} else if out.Message == "" {
		out.Message = err.Error()
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if pctx.Err() != nil {
		s.statusFailures++
		s.logger.Warn("status probe timed out", zap.Int("consecutiveFailures", s.statusFailures))
		if s.statusFailures >= s.cfg.StatusFailureLimit {
			s.statusSkipTill = now.Add(s.cfg.StatusCooldown)
			s.statusFailures = 0
		}
		out.RcloneAvailable = false
		out.Degraded = true
		return out, nil
	}
	s.statusFailures = 0
	return out, nil
}

// ListConfigs 获取全部备份配置
func (s *backupService) ListConfigs(ctx context.Context) ([]*dto.BackupConfigDTO, error) {
	configs, err := s.repo.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.BackupConfigDTO, 0, len(configs))
	for _, c := range configs {
		out = append(out, s.configToDTO(c))
	}
	return out, nil
}

// GetConfig 获取单个备份配置
func (s *backupService) GetConfig(ctx context.Context, id int64) (*dto.BackupConfigDTO, error) {
	c, err := s.repo.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.configToDTO(c), nil
}

// CreateConfig 创建备份配置
func (s *backupService) CreateConfig(ctx context.Context, req *dto.BackupConfigCreateRequest) (*dto.BackupConfigDTO, error) {
	t := domain.BackupType(req.Type)
	params, err := domain.DecodeParams(t, req.Params)
	if err != nil {
		return nil, err
	}
	params.Normalize()

	cfg := &domain.BackupConfig{
		Name:       strings.TrimSpace(req.Name),
		Type:       t,
		Schedule:   domain.Schedule(req.Schedule),
		RemotePath: strings.TrimSpace(req.RemotePath),
		Params:     params,
		Enabled:    true,
	}
	if cfg.Schedule == "" {
		cfg.Schedule = domain.ScheduleManual
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if t == domain.BackupTypeGDrive {
		// a token is linked through the OAuth callback, which also enables the config
		cfg.NeedsAuth = params.GDrive.Token == nil
		if cfg.NeedsAuth {
			cfg.Enabled = false
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("backup config created",
		zap.Int64(logger.FieldConfigID, created.ID),
		zap.String(logger.FieldBackupType, string(created.Type)))
	return s.configToDTO(created), nil
}

// UpdateConfig merges req into the stored config. The type never changes and
// credentials left empty or masked keep their stored value.
// UpdateConfig 合并部分更新，类型不可修改，空或掩码凭据沿用原值
func (s *backupService) UpdateConfig(ctx context.Context, id int64, req *dto.BackupConfigUpdateRequest) (*dto.BackupConfigDTO, error) {
	saved, err := s.repo.UpdateConfig(ctx, id, func(cfg *domain.BackupConfig) error {
		return mergeConfig(cfg, req)
	})
	if err != nil {
		return nil, err
	}
	return s.configToDTO(saved), nil
}

// mergeConfig applies a partial update to the stored config and re-validates it
func mergeConfig(cfg *domain.BackupConfig, req *dto.BackupConfigUpdateRequest) error {
	if req.Type != nil && domain.BackupType(*req.Type) != cfg.Type {
		return code.ErrorInvalidConfig.WithDetails("type cannot be changed")
	}
	if req.Name != nil {
		cfg.Name = strings.TrimSpace(*req.Name)
	}
	if req.Schedule != nil {
		cfg.Schedule = domain.Schedule(*req.Schedule)
	}
	if req.RemotePath != nil {
		cfg.RemotePath = strings.TrimSpace(*req.RemotePath)
	}
	if len(req.Params) > 0 && string(req.Params) != "null" {
		params, err := domain.DecodeParams(cfg.Type, req.Params)
		if err != nil {
			return err
		}
		params.KeepSecrets(cfg.Params)
		params.Normalize()
		cfg.Params = params
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	return cfg.Validate()
}

// DeleteConfig 删除备份配置
func (s *backupService) DeleteConfig(ctx context.Context, id int64) error {
	if _, err := s.repo.GetConfig(ctx, id); err != nil {
		return err
	}

	s.runningMu.Lock()
	r := s.running[id]
	s.runningMu.Unlock()
	if r != nil {
		s.logger.Info("aborting running backup before delete", zap.Int64(logger.FieldConfigID, id))
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.repo.DeleteConfig(ctx, id); err != nil {
		return err
	}
	s.logger.Info("backup config deleted", zap.Int64(logger.FieldConfigID, id))
	return nil
}

func (s *backupService) acquire(id int64) (*run, context.Context, error) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.closed {
		return nil, nil, code.ErrorServerInternal.WithDetails("backup service is shutting down")
	}
	if _, busy := s.running[id]; busy {
		return nil, nil, code.ErrorAlreadyRunning.WithDetails("config " + itoa(id))
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.running[id] = r
	return r, ctx, nil
}

func (s *backupService) release(id int64, r *run) {
	s.runningMu.Lock()
	if s.running[id] == r {
		delete(s.running, id)
	}
	s.runningMu.Unlock()
	r.cancel()
	close(r.done)
}

// RunBackup 手动执行备份
func (s *backupService) RunBackup(ctx context.Context, id int64) (*dto.BackupLogDTO, error) {
	cfg, err := s.repo.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, code.ErrorBackupConfigDisabled
	}
	l, err := s.start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return logToDTO(l), nil
}

// start takes the run lock, records the running log and queues the execution
func (s *backupService) start(ctx context.Context, cfg *domain.BackupConfig) (*domain.BackupLog, error) {
	r, runCtx, err := s.acquire(cfg.ID)
	if err != nil {
		return nil, err
	}

	l, err := s.repo.AppendLog(ctx, &domain.BackupLog{
		ConfigID:  cfg.ID,
		StartedAt: s.clock.Now(),
		Status:    domain.RunStatusRunning,
	})
	if err != nil {
		s.release(cfg.ID, r)
		return nil, err
	}
	s.metrics.runStarted()

	log := s.logger.With(zap.Int64(logger.FieldConfigID, cfg.ID), zap.Int64(logger.FieldLogID, l.ID))
	log.Info("backup started", zap.String(logger.FieldBackupType, string(cfg.Type)))

	running := *l
	// the pool context stays live so a queued run always reaches finalize
	if err := s.pool.SubmitAsync(context.Background(), func(context.Context) error {
		s.execute(runCtx, cfg, &running, r, log)
		return nil
	}); err != nil {
		s.finalize(cfg, &running, nil, code.ErrorRunQueueFull.WithDetails(err.Error()), log)
		s.release(cfg.ID, r)
		return nil, code.ErrorRunQueueFull
	}
	return l, nil
}

func (s *backupService) execute(ctx context.Context, cfg *domain.BackupConfig, l *domain.BackupLog, r *run, log *zap.Logger) {
	defer s.release(cfg.ID, r)

	if err := ctx.Err(); err != nil {
		s.finalize(cfg, l, nil, err, log)
		return
	}
	env, err := s.prepare(ctx, cfg)
	if err != nil {
		s.finalize(cfg, l, nil, err, log)
		return
	}
	outcome, err := s.engine.Backup(ctx, cfg, env)
	s.finalize(cfg, l, outcome, err, log)
}

// prepare checks the destination and returns the backend env for non-local types
func (s *backupService) prepare(ctx context.Context, cfg *domain.BackupConfig) ([]string, error) {
	var token *domain.GDriveToken
	switch cfg.Type {
	case domain.BackupTypeLocal:
		return nil, nil
	case domain.BackupTypeGDrive:
		if s.tokens == nil {
			return nil, code.ErrorOAuthNotConfigured
		}
		t, err := s.tokens.Token(ctx, cfg.ID)
		if err != nil {
			return nil, err
		}
		token = t
	default:
		if _, err := s.probeDestination(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return s.backend.BackendEnv(ctx, cfg, token)
}

func (s *backupService) probeDestination(ctx context.Context, cfg *domain.BackupConfig) (*storage.ProbeResult, error) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()
	res, err := s.probe(pctx, storageConfig(cfg), s.logger)
	if err != nil {
		if errors.Is(err, code.ErrorInvalidConfig) {
			return res, err
		}
		return res, code.ErrorRemoteUnreachable.WithDetails(err.Error())
	}
	return res, nil
}

// storageConfig maps a destination onto the probe client settings
func storageConfig(cfg *domain.BackupConfig) *storage.Config {
	p := cfg.Params
	switch {
	case p.WebDAV != nil:
		return &storage.Config{Type: storage.WebDAV, URL: p.WebDAV.URL, User: p.WebDAV.User, Password: p.WebDAV.Password, Path: cfg.RemotePath}
	case p.S3 != nil:
		return &storage.Config{
			Type:            storage.S3,
			Endpoint:        p.S3.Endpoint,
			Region:          p.S3.Region,
			BucketName:      p.S3.Bucket,
			AccessKeyID:     p.S3.AccessKeyID,
			AccessKeySecret: p.S3.SecretAccessKey,
			Path:            cfg.RemotePath,
		}
	case p.SFTP != nil:
		return &storage.Config{
			Type:       storage.SFTP,
			Host:       p.SFTP.Host,
			Port:       p.SFTP.Port,
			User:       p.SFTP.User,
			Password:   p.SFTP.Password,
			PrivateKey: p.SFTP.PrivateKey,
			HostKey:    p.SFTP.HostKey,
			Path:       cfg.RemotePath,
		}
	case p.Local != nil:
		return &storage.Config{Type: storage.LOCAL, Path: p.Local.TargetDir}
	}
	return &storage.Config{Type: string(cfg.Type)}
}

// failure turns a run error into the log fields shown to the user
func failure(err error) (kind, message, tail string) {
	var re *snapshot.RunError
	switch {
	case errors.As(err, &re):
		return re.Kind, re.Message, re.StderrTail
	case errors.Is(err, context.Canceled):
		return domain.ErrorKindCanceled, "backup canceled", ""
	case errors.Is(err, code.ErrorAuthExpired), errors.Is(err, code.ErrorOAuthNotConfigured):
		return domain.ErrorKindAuthExpired, "Google Drive authorization expired, reconnect the account", ""
	case errors.Is(err, code.ErrorRemoteUnreachable):
		return domain.ErrorKindRemoteUnreachable, "destination is unreachable", detailOf(err)
	case errors.Is(err, code.ErrorToolUnavailable):
		return domain.ErrorKindToolUnavailable, "rclone is not installed", ""
	case errors.Is(err, code.ErrorTimeout):
		return domain.ErrorKindTimeout, "operation timed out", detailOf(err)
	}
	return domain.ErrorKindBackupFailed, err.Error(), ""
}

func detailOf(err error) string {
	var c *code.Code
	if errors.As(err, &c) && len(c.Details()) > 0 {
		return strings.Join(c.Details(), "\n")
	}
	return ""
}

func (s *backupService) finalize(cfg *domain.BackupConfig, l *domain.BackupLog, outcome *snapshot.Outcome, runErr error, log *zap.Logger) {
	now := s.clock.Now()
	l.FinishedAt = &now

	if runErr == nil && outcome != nil {
		l.Status = domain.RunStatusSuccess
		l.FilesTransferred = outcome.FilesTransferred
		l.BytesTransferred = outcome.BytesTransferred
		l.Details = outcome.Details
		l.ErrorMessage = ""
	} else {
		if runErr == nil {
			runErr = code.ErrorBackupFailed
		}
		kind, msg, tail := failure(runErr)
		l.Status = domain.RunStatusFailed
		l.ErrorMessage = msg
		l.Details = &domain.BackupDetails{ErrorKind: kind, StderrTail: tail}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FinalizeTimeout)
	defer cancel()
	if err := s.repo.FinalizeRun(ctx, l, s.cfg.LogRetention); err != nil {
		log.Error("finalize backup log", zap.Error(err))
	}

	elapsed := now.Sub(l.StartedAt)
	s.metrics.runFinished(string(cfg.Type), string(l.Status), elapsed, l.BytesTransferred)
	if l.Status == domain.RunStatusSuccess {
		log.Info("backup finished",
			zap.Int64("files", l.FilesTransferred),
			zap.Int64("bytes", l.BytesTransferred),
			zap.Duration(logger.FieldDuration, elapsed))
		return
	}
	log.Warn("backup failed",
		zap.String("kind", l.Details.ErrorKind),
		zap.String(logger.FieldError, l.ErrorMessage),
		zap.Duration(logger.FieldDuration, elapsed))
}

// RunAll starts every enabled config. Configs already running are skipped; one
// failing start never stops the others.
// RunAll 启动全部已启用的配置
func (s *backupService) RunAll(ctx context.Context) (*dto.RunAllDTO, error) {
	configs, err := s.repo.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}
	out := &dto.RunAllDTO{Started: []dto.RunStarted{}, Skipped: []int64{}, Failed: []dto.RunFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RunAllParallel)
	for _, c := range configs {
		if !c.Enabled {
			continue
		}
		g.Go(func() error {
			l, err := s.start(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				out.Started = append(out.Started, dto.RunStarted{ConfigID: c.ID, LogID: l.ID})
			case errors.Is(err, code.ErrorAlreadyRunning):
				out.Skipped = append(out.Skipped, c.ID)
			default:
				out.Failed = append(out.Failed, dto.RunFailure{ConfigID: c.ID, Error: err.Error()})
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// Tick 定时检查到期配置
func (s *backupService) Tick(ctx context.Context) (int, error) {
	configs, err := s.repo.ListConfigs(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	started := 0
	for _, c := range configs {
		if !c.Due(now) || s.isRunning(c.ID) {
			continue
		}
		if _, err := s.start(ctx, c); err != nil {
			if !errors.Is(err, code.ErrorAlreadyRunning) {
				s.logger.Warn("scheduled backup not started", zap.Int64(logger.FieldConfigID, c.ID), zap.Error(err))
			}
			continue
		}
		started++
	}
	return started, nil
}

// TestConnection 测试目的地连通性
func (s *backupService) TestConnection(ctx context.Context, id int64) (*dto.TestConnectionDTO, error) {
	cfg, err := s.repo.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &dto.TestConnectionDTO{ConfigID: id, Type: string(cfg.Type)}
	start := s.clock.Now()

	if cfg.Type == domain.BackupTypeGDrive {
		if s.tokens == nil {
			return nil, code.ErrorOAuthNotConfigured
		}
		_, err := s.tokens.Token(ctx, id)
		out.LatencyMs = s.clock.Now().Sub(start).Milliseconds()
		if err != nil {
			out.Error = err.Error()
			return out, err
		}
		out.OK = true
		return out, nil
	}

	res, err := s.probeDestination(ctx, cfg)
	if res != nil {
		out.LatencyMs = res.Latency.Milliseconds()
	}
	if err != nil {
		out.Error = err.Error()
		return out, err
	}
	out.OK = true
	return out, nil
}

// ListLogs 获取备份日志，最新的在前
func (s *backupService) ListLogs(ctx context.Context, id int64, limit int) ([]*dto.BackupLogDTO, error) {
	if _, err := s.repo.GetConfig(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	logs, err := s.repo.ListLogs(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.BackupLogDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, logToDTO(l))
	}
	return out, nil
}

// RecoveryKey 获取恢复密钥
func (s *backupService) RecoveryKey(ctx context.Context, id int64) (*domain.RecoveryKey, error) {
	cfg, err := s.repo.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.HasSuccessfulLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, code.ErrorNoBackupYet
	}
	return s.engine.RecoveryKey(cfg), nil
}

// EnsureGDriveConfig 校验或创建 gdrive 配置
func (s *backupService) EnsureGDriveConfig(ctx context.Context, id int64) (int64, error) {
	if id > 0 {
		cfg, err := s.repo.GetConfig(ctx, id)
		if err != nil {
			return 0, err
		}
		if cfg.Type != domain.BackupTypeGDrive {
			return 0, code.ErrorInvalidConfig.WithDetails("config is not a gdrive config")
		}
		return id, nil
	}
	s.gdriveMu.Lock()
	defer s.gdriveMu.Unlock()

	// reuse a config left by an abandoned consent instead of piling up new ones
	configs, err := s.repo.ListConfigs(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range configs {
		if c.Type == domain.BackupTypeGDrive && c.NeedsAuth && (c.Params.GDrive == nil || c.Params.GDrive.Token == nil) {
			return c.ID, nil
		}
	}

	created, err := s.CreateConfig(ctx, &dto.BackupConfigCreateRequest{
		Name:   "Google Drive",
		Type:   string(domain.BackupTypeGDrive),
		Params: json.RawMessage(`{}`),
	})
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// Recover 启动时恢复中断的运行
func (s *backupService) Recover(ctx context.Context) (int, error) {
	n, err := s.repo.RecoverInterrupted(ctx, s.clock.Now(), interruptedMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("interrupted backups marked failed", zap.Int("count", n))
	}
	return n, nil
}

// Shutdown cancels running backups and waits for their logs to be finalized
// Shutdown 取消运行中的备份并等待其完成收尾
func (s *backupService) Shutdown(ctx context.Context) error {
	s.runningMu.Lock()
	s.closed = true
	runs := make([]*run, 0, len(s.running))
	for _, r := range s.running {
		runs = append(runs, r)
	}
	s.runningMu.Unlock()

	for _, r := range runs {
		r.cancel()
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
