package task

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BackupTask starts scheduled backups that are due
type BackupTask struct {
	backup   BackupTicker
	interval time.Duration
	logger   *zap.Logger
}

// Name returns the task name
func (t *BackupTask) Name() string {
	return "BackupScheduled"
}

// LoopInterval returns the execution interval (every minute by default)
func (t *BackupTask) LoopInterval() time.Duration {
	return t.interval
}

// IsStartupRun returns whether to run on startup
func (t *BackupTask) IsStartupRun() bool {
	return true
}

// Run starts due configs. The backups themselves run on the worker pool.
func (t *BackupTask) Run(ctx context.Context) error {
	n, err := t.backup.Tick(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		t.logger.Info("scheduled backups started", zap.Int("count", n))
	}
	return nil
}

// NewBackupTask creates a new BackupTask instance
func NewBackupTask(d Deps) (Task, error) {
	if d.Backup == nil {
		return nil, nil
	}
	interval := d.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &BackupTask{backup: d.Backup, interval: interval, logger: d.Logger}, nil
}

func init() {
	Register(NewBackupTask)
}
