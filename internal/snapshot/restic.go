// Package snapshot drives restic: repository setup, backups, retention and recovery keys.
// Package snapshot 调用 restic 完成仓库初始化、备份、保留策略及恢复密钥
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/internal/remote"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/execx"
	"github.com/haierkeys/library-backup-service/pkg/fileurl"
	"github.com/haierkeys/library-backup-service/pkg/logger"
	"github.com/haierkeys/library-backup-service/pkg/util"

	"go.uber.org/zap"
)

const (
	passwordIterations = 100000
	passwordBytes      = 32
	stderrTailLines    = 20

	// restic >= 0.17 exits with 10 when the repository does not exist
	exitRepoMissing = 10
)

// Config restic 适配器配置
type Config struct {
	Binary           string
	RcloneBinary     string
	LibraryRoot      string
	Excludes         []string
	CacheDir         string
	Host             string
	EncryptionSecret string
	BackupTimeout    time.Duration
	CommandTimeout   time.Duration
}

// Engine runs restic for backup configs
type Engine struct {
	cfg    Config
	runner execx.Runner
	logger *zap.Logger
}

// New 创建 restic 引擎，加密密钥不能为空
func New(cfg Config, runner execx.Runner, lg *zap.Logger) (*Engine, error) {
	if cfg.EncryptionSecret == "" {
		return nil, errors.New("snapshot: encryption secret is empty")
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.Binary == "" {
		cfg.Binary = "restic"
	}
	if cfg.RcloneBinary == "" {
		cfg.RcloneBinary = "rclone"
	}
	if cfg.BackupTimeout <= 0 {
		cfg.BackupTimeout = 6 * time.Hour
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Minute
	}
	if cfg.Host == "" {
		cfg.Host = "library-backup"
	}
	return &Engine{cfg: cfg, runner: runner, logger: lg.Named("restic")}, nil
}

// RunError is a failed step, classified into a domain error kind.
// RunError 失败的执行步骤及其错误类别
type RunError struct {
	Kind       string
	Message    string
	StderrTail string
	Err        error
}

func (e *RunError) Error() string {
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Outcome is a successful backup
type Outcome struct {
	Summary          *Summary
	FilesTransferred int64
	BytesTransferred int64
	Details          *domain.BackupDetails
}

// RepoPassword derives the repository password of a config from the process secret.
// RepoPassword 由进程密钥派生配置的仓库密码
func (e *Engine) RepoPassword(configID int64) string {
	return util.DeriveKeyString(e.cfg.EncryptionSecret, "library-backup/config/"+strconv.FormatInt(configID, 10), passwordIterations, passwordBytes)
}

// RepoURL is the restic repository location of cfg
func (e *Engine) RepoURL(cfg *domain.BackupConfig) string {
	if cfg.Type == domain.BackupTypeLocal && cfg.Params.Local != nil {
		return cfg.Params.Local.TargetDir
	}
	return "rclone:" + remote.TargetPath(cfg)
}

// RecoveryKey returns what a user needs to restore cfg with the restic CLI alone.
// RecoveryKey 返回脱离本应用使用 restic 恢复所需的信息
func (e *Engine) RecoveryKey(cfg *domain.BackupConfig) *domain.RecoveryKey {
	repo := quote(e.RepoURL(cfg))
	return &domain.RecoveryKey{
		Name:           cfg.Name,
		RepoPassword:   e.RepoPassword(cfg.ID),
		RepoURL:        e.RepoURL(cfg),
		ListCommand:    "restic -r " + repo + " snapshots",
		RestoreCommand: "restic -r " + repo + " restore latest --target ./restore-" + strconv.FormatInt(cfg.ID, 10),
	}
}

// Version returns the first line of "restic version"
func (e *Engine) Version(ctx context.Context) (string, error) {
	res, err := e.runner.Run(ctx, execx.Command{Name: e.cfg.Binary, Args: []string{"version"}, Timeout: 15 * time.Second})
	if err != nil {
		return "", e.runError("version", res, err)
	}
	return execx.FirstLine(res.Stdout), nil
}

func (e *Engine) command(cfg *domain.BackupConfig, env []string, timeout time.Duration, args ...string) execx.Command {
	global := []string{"-r", e.RepoURL(cfg)}
	if cfg.Type != domain.BackupTypeLocal {
		global = append(global, "-o", "rclone.program="+e.cfg.RcloneBinary)
	}
	if e.cfg.CacheDir != "" {
		global = append(global, "--cache-dir", e.cfg.CacheDir)
	}
	full := append([]string{"RESTIC_PASSWORD=" + e.RepoPassword(cfg.ID)}, env...)
	return execx.Command{
		Name:    e.cfg.Binary,
		Args:    append(args, global...),
		Env:     full,
		Timeout: timeout,
	}
}

// EnsureRepository initializes the repository of cfg when it does not exist yet.
// EnsureRepository 仓库不存在时执行 restic init
func (e *Engine) EnsureRepository(ctx context.Context, cfg *domain.BackupConfig, env []string) (created bool, err error) {
	if cfg.Type == domain.BackupTypeLocal {
		if err := fileurl.CreatePath(cfg.Params.Local.TargetDir, 0o700); err != nil {
			return false, &RunError{
				Kind:    domain.ErrorKindBackupFailed,
				Message: "cannot create target directory",
				Err:     code.ErrorBackupFailed.WithDetails(err.Error()),
			}
		}
	}

	res, err := e.runner.Run(ctx, e.command(cfg, env, e.cfg.CommandTimeout, "cat", "config"))
	if err == nil {
		return false, nil
	}
	if !repoMissing(res, err) {
		return false, e.runError("cat config", res, err)
	}

	res, err = e.runner.Run(ctx, e.command(cfg, env, e.cfg.CommandTimeout, "init"))
	if err != nil {
		return false, e.runError("init", res, err)
	}
	e.logger.Info("repository initialized",
		zap.Int64(logger.FieldConfigID, cfg.ID),
		zap.String("repo", e.RepoURL(cfg)))
	return true, nil
}

func repoMissing(res *execx.Result, err error) bool {
	var exitErr *execx.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.Code == exitRepoMissing {
		return true
	}
	stderr := ""
	if res != nil {
		stderr = strings.ToLower(res.Stderr)
	}
	return strings.Contains(stderr, "is there a repository at the following location") ||
		strings.Contains(stderr, "repository does not exist") ||
		strings.Contains(stderr, "unable to open config file")
}

// Backup snapshots the library into the repository of cfg. env carries the rclone backend
// definition for non-local types.
// Backup 将资料库备份到 cfg 的仓库
func (e *Engine) Backup(ctx context.Context, cfg *domain.BackupConfig, env []string) (*Outcome, error) {
	if !fileurl.IsReadable(e.cfg.LibraryRoot) {
		return nil, &RunError{
			Kind:    domain.ErrorKindBackupFailed,
			Message: "library root is not readable",
			Err:     code.ErrorPathNotReadable.WithDetails(e.cfg.LibraryRoot),
		}
	}
	if _, err := e.EnsureRepository(ctx, cfg, env); err != nil {
		return nil, err
	}

	args := []string{"backup", "--json", "--host", e.cfg.Host, "--tag", tag(cfg.ID), e.cfg.LibraryRoot}
	for _, x := range e.cfg.Excludes {
		args = append(args, "--exclude", x)
	}
	cmd := e.command(cfg, env, e.cfg.BackupTimeout, args...)
	log := e.logger.With(zap.Int64(logger.FieldConfigID, cfg.ID))
	cmd.OnLine = func(stream execx.Stream, line string) {
		if stream == execx.Stdout && strings.Contains(line, `"message_type":"status"`) {
			return
		}
		log.Debug(line, zap.String("stream", string(stream)))
	}

	start := time.Now()
	res, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return nil, e.runError("backup", res, err)
	}

	sum, err := ParseSummary(res.Stdout)
	if err != nil {
		var pe *ParseError
		errors.As(err, &pe)
		log.Warn("unparseable restic output", zap.Error(err), zap.String("line", pe.Line))
		return nil, &RunError{
			Kind:       domain.ErrorKindParse,
			Message:    "restic finished but its summary could not be read",
			StderrTail: execx.TailLines(res.Stdout, 5),
			Err:        err,
		}
	}

	out := &Outcome{
		Summary:          sum,
		FilesTransferred: sum.FilesNew + sum.FilesChanged,
		BytesTransferred: sum.DataAddedPacked,
		Details: &domain.BackupDetails{
			CompressionRatio:   sum.CompressionRatio,
			DataBytesProcessed: sum.TotalBytesProcessed,
			DataBytesAdded:     sum.DataAdded,
			FilesNew:           sum.FilesNew,
			FilesChanged:       sum.FilesChanged,
			FilesUnmodified:    sum.FilesUnmodified,
			SnapshotID:         sum.SnapshotID,
			DurationSeconds:    sum.TotalDuration,
			Defaulted:          sum.Defaulted,
		},
	}
	if out.Details.DurationSeconds == 0 {
		out.Details.DurationSeconds = time.Since(start).Seconds()
	}

	if cfg.Type == domain.BackupTypeLocal && cfg.Params.Local != nil && cfg.Params.Local.KeepCount > 0 {
		if err := e.Forget(ctx, cfg, env, cfg.Params.Local.KeepCount); err != nil {
			log.Warn("restic forget failed", zap.Error(err))
			out.Details.PruneError = err.Error()
		}
	}
	return out, nil
}

// Forget keeps the last keep snapshots of cfg and prunes unreferenced data
func (e *Engine) Forget(ctx context.Context, cfg *domain.BackupConfig, env []string, keep int) error {
	res, err := e.runner.Run(ctx, e.command(cfg, env, e.cfg.BackupTimeout,
		"forget", "--keep-last", strconv.Itoa(keep), "--tag", tag(cfg.ID), "--prune"))
	if err != nil {
		return e.runError("forget", res, err)
	}
	return nil
}

func (e *Engine) runError(step string, res *execx.Result, err error) *RunError {
	stderr := ""
	if res != nil {
		stderr = res.Stderr
	}
	var exitErr *execx.ExitError
	switch {
	case errors.Is(err, execx.ErrNotFound):
		return &RunError{
			Kind:    domain.ErrorKindToolUnavailable,
			Message: "restic is not installed",
			Err:     code.ErrorToolUnavailable.WithDetails(err.Error()),
		}
	case errors.Is(err, execx.ErrTimeout):
		return &RunError{
			Kind:       domain.ErrorKindTimeout,
			Message:    "restic " + step + " timed out",
			StderrTail: execx.TailLines(stderr, stderrTailLines),
			Err:        code.ErrorTimeout.WithDetails(err.Error()),
		}
	case errors.Is(err, context.Canceled):
		return &RunError{
			Kind:    domain.ErrorKindCanceled,
			Message: "backup canceled",
			Err:     err,
		}
	case errors.As(err, &exitErr):
		msg := execx.MessageOr(stderr, fmt.Sprintf("restic %s exited with code %d", step, exitErr.Code))
		return &RunError{
			Kind:       domain.ErrorKindBackupFailed,
			Message:    msg,
			StderrTail: execx.TailLines(stderr, stderrTailLines),
			Err:        code.ErrorBackupFailed.WithDetails(msg),
		}
	}
	return &RunError{
		Kind:    domain.ErrorKindBackupFailed,
		Message: "restic " + step + " failed",
		Err:     code.ErrorBackupFailed.WithDetails(err.Error()),
	}
}

func tag(configID int64) string {
	return "config-" + strconv.FormatInt(configID, 10)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
