package dao

import (
	"context"
	"testing"
	"time"

	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/internal/model"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/util"
	"github.com/haierkeys/library-backup-service/pkg/writequeue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (domain.BackupRepository, *Dao) {
	t.Helper()
	db, err := NewDBEngineWithConfig(DatabaseConfig{
		Path:         ":memory:",
		AutoMigrate:  true,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)

	wq := writequeue.New(writequeue.DefaultConfig(), nil)
	t.Cleanup(func() { _ = wq.Shutdown(context.Background()) })

	sealer, err := util.NewSealer("test-secret")
	require.NoError(t, err)

	d := New(db, wq, nil)
	return NewBackupRepository(d, sealer), d
}

func localConfig(name string) *domain.BackupConfig {
	return &domain.BackupConfig{
		Name:     name,
		Type:     domain.BackupTypeLocal,
		Schedule: domain.ScheduleDaily,
		Params:   domain.BackupParams{Local: &domain.LocalParams{TargetDir: "/srv/backup", KeepCount: 3}},
		Enabled:  true,
	}
}

func webdavConfig(name string) *domain.BackupConfig {
	return &domain.BackupConfig{
		Name:       name,
		Type:       domain.BackupTypeWebDAV,
		Schedule:   domain.ScheduleManual,
		RemotePath: "library",
		Params: domain.BackupParams{WebDAV: &domain.WebDAVParams{
			URL: "https://dav.example.com", User: "u", Password: "hunter2",
		}},
	}
}

func TestCreateGetList(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)
	b, err := repo.CreateConfig(ctx, webdavConfig("b"))
	require.NoError(t, err)
	assert.Less(t, a.ID, b.ID)

	got, err := repo.GetConfig(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Params.WebDAV.Password)
	assert.Equal(t, domain.RunStatusNone, got.LastBackupStatus)

	list, err := repo.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	_, err = repo.GetConfig(ctx, 999)
	assert.ErrorIs(t, err, code.ErrorBackupConfigNotFound)
}

func TestParamsAreSealedAtRest(t *testing.T) {
	repo, d := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, webdavConfig("dav"))
	require.NoError(t, err)

	var row model.BackupConfig
	require.NoError(t, d.DB(ctx).Where("id = ?", c.ID).First(&row).Error)
	assert.NotContains(t, row.Params, "hunter2")
	assert.Contains(t, row.Params, "enc:v1:")
}

func TestUpdateConfig(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)

	saved, err := repo.UpdateConfig(ctx, c.ID, func(cfg *domain.BackupConfig) error {
		cfg.Name = "renamed"
		cfg.Schedule = domain.ScheduleWeekly
		cfg.Params.Local.KeepCount = 0
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", saved.Name)
	assert.Equal(t, domain.ScheduleWeekly, saved.Schedule)
	assert.Equal(t, 0, saved.Params.Local.KeepCount)

	_, err = repo.UpdateConfig(ctx, c.ID, func(cfg *domain.BackupConfig) error {
		cfg.Name = "discarded"
		return code.ErrorInvalidConfig
	})
	assert.ErrorIs(t, err, code.ErrorInvalidConfig)
	got, err := repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	_, err = repo.UpdateConfig(ctx, 42, func(*domain.BackupConfig) error { return nil })
	assert.ErrorIs(t, err, code.ErrorBackupConfigNotFound)
}

func TestUpdateConfigKeepsTokenRefreshedConcurrently(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, &domain.BackupConfig{
		Name:     "Google Drive",
		Type:     domain.BackupTypeGDrive,
		Schedule: domain.ScheduleManual,
		Params:   domain.BackupParams{GDrive: &domain.GDriveParams{Token: &domain.GDriveToken{AccessToken: "old", RefreshToken: "rt"}}},
		Enabled:  true,
	})
	require.NoError(t, err)

	editing := make(chan struct{})
	release := make(chan struct{})
	updated := make(chan error, 1)
	go func() {
		_, err := repo.UpdateConfig(ctx, c.ID, func(cfg *domain.BackupConfig) error {
			close(editing)
			<-release
			cfg.Name = "Drive"
			return nil
		})
		updated <- err
	}()
	<-editing

	refreshed := make(chan error, 1)
	go func() {
		refreshed <- repo.UpdateAuth(ctx, c.ID, domain.AuthUpdate{
			Token: &domain.GDriveToken{AccessToken: "fresh", RefreshToken: "rt"},
		})
	}()

	select {
	case <-refreshed:
		t.Fatal("auth update ran while the config edit was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-updated)
	require.NoError(t, <-refreshed)

	got, err := repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drive", got.Name)
	require.NotNil(t, got.Params.GDrive.Token)
	assert.Equal(t, "fresh", got.Params.GDrive.Token.AccessToken)
}

func TestDeleteCascadesLogs(t *testing.T) {
	repo, d := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)
	_, err = repo.AppendLog(ctx, &domain.BackupLog{ConfigID: c.ID, StartedAt: time.Now(), Status: domain.RunStatusFailed})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteConfig(ctx, c.ID))

	var n int64
	require.NoError(t, d.DB(ctx).Model(&model.BackupLog{}).Where("config_id = ?", c.ID).Count(&n).Error)
	assert.Zero(t, n)

	assert.ErrorIs(t, repo.DeleteConfig(ctx, c.ID), code.ErrorBackupConfigNotFound)
}

func TestAppendLogSingleRunning(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)

	l, err := repo.AppendLog(ctx, &domain.BackupLog{ConfigID: c.ID, StartedAt: time.Now(), Status: domain.RunStatusRunning})
	require.NoError(t, err)
	assert.NotZero(t, l.ID)

	got, err := repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.LastBackupStatus)

	_, err = repo.AppendLog(ctx, &domain.BackupLog{ConfigID: c.ID, StartedAt: time.Now(), Status: domain.RunStatusRunning})
	assert.ErrorIs(t, err, code.ErrorAlreadyRunning)

	_, err = repo.AppendLog(ctx, &domain.BackupLog{ConfigID: 999, StartedAt: time.Now(), Status: domain.RunStatusRunning})
	assert.ErrorIs(t, err, code.ErrorBackupConfigNotFound)
}

func TestFinalizeRunUpdatesConfigAndPrunes(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var last *domain.BackupLog
	for i := 0; i < 5; i++ {
		l, err := repo.AppendLog(ctx, &domain.BackupLog{
			ConfigID:  c.ID,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Status:    domain.RunStatusRunning,
		})
		require.NoError(t, err)
		l.Status = domain.RunStatusSuccess
		l.FilesTransferred = int64(i)
		l.BytesTransferred = 100
		l.Details = &domain.BackupDetails{SnapshotID: "snap", CompressionRatio: 1.5}
		require.NoError(t, repo.FinalizeRun(ctx, l, 3))
		last = l
	}

	got, err := repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.LastBackupStatus)
	require.NotNil(t, got.LastBackupAt)
	assert.True(t, got.LastBackupAt.Equal(last.StartedAt))
	assert.Empty(t, got.LastBackupError)

	logs, err := repo.ListLogs(ctx, c.ID, 20)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, int64(4), logs[0].FilesTransferred)
	assert.Equal(t, int64(2), logs[2].FilesTransferred)
	require.NotNil(t, logs[0].Details)
	assert.Equal(t, "snap", logs[0].Details.SnapshotID)
	assert.NotNil(t, logs[0].FinishedAt)

	ok, err := repo.HasSuccessfulLog(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// a finalized log cannot be finalized again
	last.Status = domain.RunStatusFailed
	assert.Error(t, repo.FinalizeRun(ctx, last, 3))
}

func TestFinalizeRunFailure(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)
	l, err := repo.AppendLog(ctx, &domain.BackupLog{ConfigID: c.ID, StartedAt: time.Now(), Status: domain.RunStatusRunning})
	require.NoError(t, err)

	l.Status = domain.RunStatusFailed
	l.ErrorMessage = "repository locked"
	require.NoError(t, repo.FinalizeRun(ctx, l, 50))

	got, err := repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.LastBackupStatus)
	assert.Equal(t, "repository locked", got.LastBackupError)

	ok, err := repo.HasSuccessfulLog(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListLogsLimit(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		_, err := repo.AppendLog(ctx, &domain.BackupLog{ConfigID: c.ID, StartedAt: base.Add(time.Duration(i) * time.Minute), Status: domain.RunStatusFailed})
		require.NoError(t, err)
	}

	logs, err := repo.ListLogs(ctx, c.ID, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].StartedAt.After(logs[1].StartedAt))
}

func TestRecoverInterrupted(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, localConfig("a"))
	require.NoError(t, err)
	_, err = repo.AppendLog(ctx, &domain.BackupLog{ConfigID: c.ID, StartedAt: time.Now(), Status: domain.RunStatusRunning})
	require.NoError(t, err)

	n, err := repo.RecoverInterrupted(ctx, time.Now(), "interrupted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.LastBackupStatus)
	assert.Equal(t, "interrupted", got.LastBackupError)

	logs, err := repo.ListLogs(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RunStatusFailed, logs[0].Status)
	require.NotNil(t, logs[0].Details)
	assert.Equal(t, domain.ErrorKindInterrupted, logs[0].Details.ErrorKind)

	n, err = repo.RecoverInterrupted(ctx, time.Now(), "interrupted")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateAuth(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.CreateConfig(ctx, &domain.BackupConfig{
		Name:      "Google Drive",
		Type:      domain.BackupTypeGDrive,
		Schedule:  domain.ScheduleManual,
		Params:    domain.BackupParams{GDrive: &domain.GDriveParams{}},
		NeedsAuth: true,
	})
	require.NoError(t, err)

	tok := &domain.GDriveToken{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour).UTC()}
	require.NoError(t, repo.UpdateAuth(ctx, c.ID, domain.AuthUpdate{Token: tok, Enable: true}))

	got, err := repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.False(t, got.NeedsAuth)
	require.NotNil(t, got.Params.GDrive.Token)
	assert.Equal(t, "rt", got.Params.GDrive.Token.RefreshToken)

	revoked := "token revoked"
	require.NoError(t, repo.UpdateAuth(ctx, c.ID, domain.AuthUpdate{NeedsAuth: true, Error: &revoked}))
	got, err = repo.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.NeedsAuth)
	assert.True(t, got.Enabled)
	assert.Equal(t, "token revoked", got.LastBackupError)
	assert.NotNil(t, got.Params.GDrive.Token)

	l, _ := repo.CreateConfig(ctx, localConfig("l"))
	assert.ErrorIs(t, repo.UpdateAuth(ctx, l.ID, domain.AuthUpdate{Token: tok}), code.ErrorInvalidConfig)
}
