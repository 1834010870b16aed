package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/library-backup-service/internal/dao"
	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/internal/dto"
	"github.com/haierkeys/library-backup-service/internal/remote"
	"github.com/haierkeys/library-backup-service/internal/snapshot"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/storage"
	"github.com/haierkeys/library-backup-service/pkg/timex"
	"github.com/haierkeys/library-backup-service/pkg/util"
	"github.com/haierkeys/library-backup-service/pkg/workerpool"
	"github.com/haierkeys/library-backup-service/pkg/writequeue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Fakes ---

type fakeEngine struct {
	mu       sync.Mutex
	gate     chan struct{}
	err      error
	calls    int
	envs     [][]string
	canceled atomic.Bool
}

func (f *fakeEngine) Backup(ctx context.Context, cfg *domain.BackupConfig, env []string) (*snapshot.Outcome, error) {
	f.mu.Lock()
	f.calls++
	f.envs = append(f.envs, env)
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.canceled.Store(true)
			return nil, &snapshot.RunError{Kind: domain.ErrorKindCanceled, Message: "backup canceled", Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	return &snapshot.Outcome{
		FilesTransferred: 12,
		BytesTransferred: 4096,
		Details:          &domain.BackupDetails{FilesNew: 10, FilesChanged: 2, CompressionRatio: 1.5},
	}, nil
}

func (f *fakeEngine) RecoveryKey(cfg *domain.BackupConfig) *domain.RecoveryKey {
	return &domain.RecoveryKey{Name: cfg.Name, RepoPassword: "derived", RepoURL: "/srv/b"}
}

func (f *fakeEngine) Version(context.Context) (string, error) {
	return "restic 0.17.3", nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBackend struct {
	block       bool
	statusCalls atomic.Int32
}

func (f *fakeBackend) BackendEnv(_ context.Context, cfg *domain.BackupConfig, _ *domain.GDriveToken) ([]string, error) {
	return []string{"RCLONE_CONFIG_" + remote.RemoteName(cfg.ID) + "_TYPE=" + string(cfg.Type)}, nil
}

func (f *fakeBackend) Status(ctx context.Context) *remote.Status {
	f.statusCalls.Add(1)
	if f.block {
		<-ctx.Done()
		return &remote.Status{Message: "rclone did not answer"}
	}
	return &remote.Status{RcloneVersion: "rclone v1.68.0", ConfigExists: true}
}

type fakeTokens struct {
	err error
}

func (f *fakeTokens) Token(context.Context, int64) (*domain.GDriveToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GDriveToken{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}, nil
}

type backupFixture struct {
	svc     BackupService
	repo    domain.BackupRepository
	engine  *fakeEngine
	backend *fakeBackend
	tokens  *fakeTokens
	clock   *timex.ManualClock
	probeOK atomic.Bool
	probes  atomic.Int32
}

func newBackupFixture(t *testing.T) *backupFixture {
	t.Helper()
	db, err := dao.NewDBEngineWithConfig(dao.DatabaseConfig{
		Path:         ":memory:",
		AutoMigrate:  true,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	wq := writequeue.New(writequeue.DefaultConfig(), nil)
	sealer, err := util.NewSealer("test-secret")
	require.NoError(t, err)
	pool := workerpool.New(workerpool.Config{Name: "backup-test", Workers: 4, QueueSize: 16}, nil)
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
		_ = wq.Shutdown(context.Background())
	})

	f := &backupFixture{
		repo:    dao.NewBackupRepository(dao.New(db, wq, nil), sealer),
		engine:  &fakeEngine{},
		backend: &fakeBackend{},
		tokens:  &fakeTokens{},
		clock:   timex.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.probeOK.Store(true)
	f.svc = NewBackupService(BackupServiceDeps{
		Repo:    f.repo,
		Engine:  f.engine,
		Backend: f.backend,
		Tokens:  f.tokens,
		Pool:    pool,
		Probe: func(_ context.Context, cfg *storage.Config, _ *zap.Logger) (*storage.ProbeResult, error) {
			f.probes.Add(1)
			if !f.probeOK.Load() {
				return &storage.ProbeResult{Type: cfg.Type, Error: "dial tcp: connection refused"}, errors.New("dial tcp: connection refused")
			}
			return &storage.ProbeResult{Type: cfg.Type, OK: true, Latency: 3 * time.Millisecond}, nil
		},
		Clock:   f.clock,
		Metrics: NewMetrics(prometheus.NewRegistry()),
	}, BackupServiceConfig{ProbeTimeout: 30 * time.Millisecond})
	return f
}

func (f *backupFixture) create(t *testing.T, typ, schedule string, params any) *dto.BackupConfigDTO {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	c, err := f.svc.CreateConfig(context.Background(), &dto.BackupConfigCreateRequest{
		Name:       typ + " backup",
		Type:       typ,
		Schedule:   schedule,
		RemotePath: "library",
		Params:     raw,
	})
	require.NoError(t, err)
	return c
}

func (f *backupFixture) createLocal(t *testing.T, schedule string) *dto.BackupConfigDTO {
	return f.create(t, "local", schedule, map[string]any{"targetDir": t.TempDir(), "keepCount": 3})
}

func (f *backupFixture) waitFinished(t *testing.T, id int64) *domain.BackupConfig {
	t.Helper()
	var cfg *domain.BackupConfig
	require.Eventually(t, func() bool {
		c, err := f.repo.GetConfig(context.Background(), id)
		if err != nil {
			return false
		}
		cfg = c
		return c.LastBackupStatus == domain.RunStatusSuccess || c.LastBackupStatus == domain.RunStatusFailed
	}, 3*time.Second, 5*time.Millisecond)
	return cfg
}

// --- Tests ---

func TestCreateConfigRedactsAndValidates(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	c := f.create(t, "webdav", "daily", map[string]any{"url": "https://dav.example.com", "user": "u", "password": "hunter2"})
	assert.Equal(t, domain.SecretMask, c.Params.WebDAV.Password)
	assert.True(t, c.Enabled)
	assert.Nil(t, c.LastBackupStatus)
	require.NotNil(t, c.NextRunAt, "never-run scheduled config is due now")

	_, err := f.svc.CreateConfig(ctx, &dto.BackupConfigCreateRequest{
		Name: "bad", Type: "s3", Params: json.RawMessage(`{"targetDir":"/x"}`),
	})
	assert.ErrorIs(t, err, code.ErrorInvalidConfig)

	g := f.create(t, "gdrive", "", map[string]any{})
	assert.True(t, g.NeedsAuth)
	assert.False(t, g.Enabled)
	assert.Equal(t, "manual", g.Schedule)
	assert.Nil(t, g.NextRunAt)
}

func TestUpdateConfigKeepsSecrets(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.create(t, "webdav", "daily", map[string]any{"url": "https://dav.example.com", "user": "u", "password": "hunter2"})

	name := "renamed"
	updated, err := f.svc.UpdateConfig(ctx, c.ID, &dto.BackupConfigUpdateRequest{
		Name:   &name,
		Params: json.RawMessage(`{"url":"https://dav2.example.com","user":"u","password":"********"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "https://dav2.example.com", updated.Params.WebDAV.URL)

	stored, err := f.repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stored.Params.WebDAV.Password)

	typ := "s3"
	_, err = f.svc.UpdateConfig(ctx, c.ID, &dto.BackupConfigUpdateRequest{Type: &typ})
	assert.ErrorIs(t, err, code.ErrorInvalidConfig)

	_, err = f.svc.UpdateConfig(ctx, 999, &dto.BackupConfigUpdateRequest{Name: &name})
	assert.ErrorIs(t, err, code.ErrorBackupConfigNotFound)
}

func TestRunBackupSuccess(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.createLocal(t, "manual")

	l, err := f.svc.RunBackup(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "running", l.Status)
	assert.Nil(t, l.FinishedAt)

	cfg := f.waitFinished(t, c.ID)
	assert.Equal(t, domain.RunStatusSuccess, cfg.LastBackupStatus)
	require.NotNil(t, cfg.LastBackupAt)
	assert.True(t, cfg.LastBackupAt.Equal(f.clock.Now()))

	logs, err := f.svc.ListLogs(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "success", logs[0].Status)
	assert.Equal(t, int64(12), logs[0].FilesTransferred)
	assert.Equal(t, int64(4096), logs[0].BytesTransferred)
	assert.Nil(t, logs[0].ErrorMessage)
	require.NotNil(t, logs[0].Details)
	assert.Equal(t, 1.5, logs[0].Details.CompressionRatio)

	assert.Nil(t, f.engine.envs[0], "local runs need no backend env")
	assert.Equal(t, int32(0), f.probes.Load())
}

func TestRunBackupRejectsConcurrentRun(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.createLocal(t, "manual")
	f.engine.gate = make(chan struct{})

	_, err := f.svc.RunBackup(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.svc.RunBackup(ctx, c.ID)
	assert.ErrorIs(t, err, code.ErrorAlreadyRunning)

	listed, err := f.svc.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, listed.Running)

	close(f.engine.gate)
	f.waitFinished(t, c.ID)
}

func TestRunBackupDisabled(t *testing.T) {
	f := newBackupFixture(t)
	c := f.createLocal(t, "manual")
	off := false
	_, err := f.svc.UpdateConfig(context.Background(), c.ID, &dto.BackupConfigUpdateRequest{Enabled: &off})
	require.NoError(t, err)

	_, err = f.svc.RunBackup(context.Background(), c.ID)
	assert.ErrorIs(t, err, code.ErrorBackupConfigDisabled)
}

func TestRunBackupRemoteUnreachable(t *testing.T) {
	f := newBackupFixture(t)
	c := f.create(t, "webdav", "manual", map[string]any{"url": "https://dav.example.com", "user": "u", "password": "p"})
	f.probeOK.Store(false)

	_, err := f.svc.RunBackup(context.Background(), c.ID)
	require.NoError(t, err)

	cfg := f.waitFinished(t, c.ID)
	assert.Equal(t, domain.RunStatusFailed, cfg.LastBackupStatus)
	assert.Equal(t, "destination is unreachable", cfg.LastBackupError)
	assert.Equal(t, 0, f.engine.callCount())

	logs, err := f.repo.ListLogs(context.Background(), c.ID, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ErrorKindRemoteUnreachable, logs[0].Details.ErrorKind)
	assert.Contains(t, logs[0].Details.StderrTail, "connection refused")
}

func TestRunBackupRemotePassesBackendEnv(t *testing.T) {
	f := newBackupFixture(t)
	c := f.create(t, "sftp", "manual", map[string]any{"host": "nas.lan", "user": "backup", "password": "p"})

	_, err := f.svc.RunBackup(context.Background(), c.ID)
	require.NoError(t, err)
	f.waitFinished(t, c.ID)

	require.Equal(t, 1, f.engine.callCount())
	assert.Equal(t, []string{"RCLONE_CONFIG_" + remote.RemoteName(c.ID) + "_TYPE=sftp"}, f.engine.envs[0])
	assert.Equal(t, int32(1), f.probes.Load())
}

func TestRunBackupGDriveAuthExpired(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.create(t, "gdrive", "manual", map[string]any{})
	on := true
	_, err := f.svc.UpdateConfig(ctx, c.ID, &dto.BackupConfigUpdateRequest{Enabled: &on})
	require.NoError(t, err)
	f.tokens.err = code.ErrorAuthExpired

	_, err = f.svc.RunBackup(ctx, c.ID)
	require.NoError(t, err)

	cfg := f.waitFinished(t, c.ID)
	assert.Equal(t, domain.RunStatusFailed, cfg.LastBackupStatus)
	logs, err := f.repo.ListLogs(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindAuthExpired, logs[0].Details.ErrorKind)
	assert.Equal(t, 0, f.engine.callCount())
}

func TestRunBackupEngineFailure(t *testing.T) {
	f := newBackupFixture(t)
	c := f.createLocal(t, "manual")
	f.engine.err = &snapshot.RunError{
		Kind:       domain.ErrorKindBackupFailed,
		Message:    "Fatal: unable to open repository",
		StderrTail: "Fatal: unable to open repository\nexit status 1",
	}

	_, err := f.svc.RunBackup(context.Background(), c.ID)
	require.NoError(t, err)
	cfg := f.waitFinished(t, c.ID)
	assert.Equal(t, "Fatal: unable to open repository", cfg.LastBackupError)

	logs, err := f.svc.ListLogs(context.Background(), c.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Equal(t, "Fatal: unable to open repository", *logs[0].ErrorMessage)
	assert.Contains(t, logs[0].Details.StderrTail, "exit status 1")
}

func TestDeleteConfigAbortsRun(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.createLocal(t, "manual")
	f.engine.gate = make(chan struct{})

	_, err := f.svc.RunBackup(ctx, c.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.engine.callCount() == 1 }, time.Second, 5*time.Millisecond)

	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	require.NoError(t, f.svc.DeleteConfig(dctx, c.ID))
	assert.True(t, f.engine.canceled.Load())

	_, err = f.svc.GetConfig(ctx, c.ID)
	assert.ErrorIs(t, err, code.ErrorBackupConfigNotFound)
	logs, err := f.repo.ListLogs(ctx, c.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRunAllReportsSkipped(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	busy := f.createLocal(t, "manual")
	idle := f.createLocal(t, "daily")
	disabled := f.createLocal(t, "daily")
	off := false
	_, err := f.svc.UpdateConfig(ctx, disabled.ID, &dto.BackupConfigUpdateRequest{Enabled: &off})
	require.NoError(t, err)

	f.engine.gate = make(chan struct{})
	_, err = f.svc.RunBackup(ctx, busy.ID)
	require.NoError(t, err)

	res, err := f.svc.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{busy.ID}, res.Skipped)
	require.Len(t, res.Started, 1)
	assert.Equal(t, idle.ID, res.Started[0].ConfigID)
	assert.Empty(t, res.Failed)

	close(f.engine.gate)
	f.waitFinished(t, busy.ID)
	f.waitFinished(t, idle.ID)
}

func TestTickStartsDueConfigs(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	daily := f.createLocal(t, "daily")
	f.createLocal(t, "manual")

	n, err := f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.waitFinished(t, daily.ID)

	f.clock.Advance(time.Hour)
	n, err = f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	c, err := f.svc.GetConfig(ctx, daily.ID)
	require.NoError(t, err)
	require.NotNil(t, c.NextRunAt)
	assert.True(t, c.NextRunAt.Equal(c.LastBackupAt.Add(24*time.Hour)))

	f.clock.Advance(23 * time.Hour)
	n, err = f.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool {
		logs, _ := f.repo.ListLogs(ctx, daily.ID, 10)
		return len(logs) == 2 && logs[0].Status == domain.RunStatusSuccess
	}, 3*time.Second, 5*time.Millisecond)
}

func TestStatusDegradesAfterRepeatedProbeFailures(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	f.createLocal(t, "manual")

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.RcloneAvailable)
	assert.True(t, st.ResticAvailable)
	assert.False(t, st.Degraded)
	assert.Len(t, st.Configs, 1)

	f.backend.block = true
	for i := 0; i < 3; i++ {
		st, err = f.svc.Status(ctx)
		require.NoError(t, err)
		assert.True(t, st.Degraded)
		assert.False(t, st.RcloneAvailable)
		assert.Len(t, st.Configs, 1)
	}
	calls := f.backend.statusCalls.Load()

	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Degraded)
	assert.Equal(t, calls, f.backend.statusCalls.Load(), "probe is skipped while cooling down")

	f.backend.block = false
	f.clock.Advance(2 * time.Minute)
	st, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Degraded)
	assert.True(t, st.RcloneAvailable)
}

func TestRecoveryKeyRequiresSuccessfulRun(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.createLocal(t, "manual")

	_, err := f.svc.RecoveryKey(ctx, c.ID)
	assert.ErrorIs(t, err, code.ErrorNoBackupYet)

	_, err = f.svc.RunBackup(ctx, c.ID)
	require.NoError(t, err)
	f.waitFinished(t, c.ID)

	key, err := f.svc.RecoveryKey(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "derived", key.RepoPassword)
}

func TestTestConnection(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.create(t, "s3", "manual", map[string]any{
		"region": "eu-west-1", "bucket": "b", "accessKeyId": "AK", "secretAccessKey": "SK",
	})

	res, err := f.svc.TestConnection(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "s3", res.Type)

	f.probeOK.Store(false)
	res, err = f.svc.TestConnection(ctx, c.ID)
	assert.ErrorIs(t, err, code.ErrorRemoteUnreachable)
	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "connection refused")
}

func TestEnsureGDriveConfig(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	id, err := f.svc.EnsureGDriveConfig(ctx, 0)
	require.NoError(t, err)
	c, err := f.svc.GetConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Google Drive", c.Name)
	assert.False(t, c.Enabled)

	again, err := f.svc.EnsureGDriveConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	reused, err := f.svc.EnsureGDriveConfig(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id, reused, "unlinked config awaiting consent is reused")

	require.NoError(t, f.repo.UpdateAuth(ctx, id, domain.AuthUpdate{
		Token:  &domain.GDriveToken{AccessToken: "at", RefreshToken: "rt"},
		Enable: true,
	}))
	fresh, err := f.svc.EnsureGDriveConfig(ctx, 0)
	require.NoError(t, err)
	assert.NotEqual(t, id, fresh, "a linked config is never taken over")

	list, err := f.svc.ListConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	local := f.createLocal(t, "manual")
	_, err = f.svc.EnsureGDriveConfig(ctx, local.ID)
	assert.ErrorIs(t, err, code.ErrorInvalidConfig)
}

func TestShutdownCancelsRunningBackups(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	c := f.createLocal(t, "manual")
	f.engine.gate = make(chan struct{})

	_, err := f.svc.RunBackup(ctx, c.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.engine.callCount() == 1 }, time.Second, 5*time.Millisecond)

	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(sctx))

	cfg, err := f.repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, cfg.LastBackupStatus)

	_, err = f.svc.RunBackup(ctx, c.ID)
	assert.Error(t, err)
}
