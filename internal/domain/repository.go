package domain

import (
	"context"
	"time"
)

// AuthUpdate changes the OAuth-related state of a gdrive config.
// AuthUpdate 更新 gdrive 配置的授权状态
type AuthUpdate struct {
	// Token replaces the stored token when not nil
	Token     *GDriveToken
	NeedsAuth bool
	// Error replaces last_backup_error when not nil; "" clears it
	Error *string
	// Enable switches the config on (never off)
	Enable bool
}

// BackupRepository is the Config Store. All writes for one config id are serialized.
// BackupRepository 备份配置存储，同一配置的写操作串行执行
type BackupRepository interface {
	// CreateConfig 创建配置
	CreateConfig(ctx context.Context, cfg *BackupConfig) (*BackupConfig, error)

	// UpdateConfig runs apply on the freshly read config and writes back the
	// user-editable fields (name, schedule, remote path, params, enabled) on the
	// config's write lane. An error from apply aborts the write.
	UpdateConfig(ctx context.Context, id int64, apply func(cfg *BackupConfig) error) (*BackupConfig, error)

	// GetConfig returns code.ErrorBackupConfigNotFound when id is unknown
	GetConfig(ctx context.Context, id int64) (*BackupConfig, error)

	// ListConfigs 按 ID 升序返回所有配置
	ListConfigs(ctx context.Context) ([]*BackupConfig, error)

	// DeleteConfig removes the config and its logs in one transaction
	DeleteConfig(ctx context.Context, id int64) error

	// UpdateAuth 更新授权状态
	UpdateAuth(ctx context.Context, id int64, u AuthUpdate) error

	// AppendLog inserts a log row. A running log also marks the config running.
	// AppendLog 追加日志，running 状态的日志会同时将配置标记为运行中
	AppendLog(ctx context.Context, log *BackupLog) (*BackupLog, error)

	// FinalizeRun writes the final log fields, the config last_backup_* fields and
	// prunes logs beyond retention, all in one transaction.
	// FinalizeRun 在同一事务中完成日志、配置状态更新及历史裁剪
	FinalizeRun(ctx context.Context, log *BackupLog, retention int) error

	// ListLogs 最新的在前
	ListLogs(ctx context.Context, configID int64, limit int) ([]*BackupLog, error)

	// HasSuccessfulLog reports whether the config ever completed a run
	HasSuccessfulLog(ctx context.Context, configID int64) (bool, error)

	// RecoverInterrupted fails every log still running (left by a previous process)
	// RecoverInterrupted 将上次进程遗留的 running 日志标记为失败
	RecoverInterrupted(ctx context.Context, at time.Time, message string) (int, error)
}
