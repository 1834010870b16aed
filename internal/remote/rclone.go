// Package remote wraps the rclone CLI: the shared remote used for cross-device
// library transfer, and the per-config backends restic writes to.
// Package remote 封装 rclone 命令行：跨设备共享远端以及备份目的地后端
package remote

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/execx"
	"github.com/haierkeys/library-backup-service/pkg/fileurl"
	"github.com/haierkeys/library-backup-service/pkg/logger"

	"go.uber.org/zap"
)

// exit code rclone uses for "directory not found"
const exitDirNotFound = 3

// Config rclone 适配器配置
type Config struct {
	Binary     string
	ConfigFile string
	// Remote is the name of the shared remote, Root the folder holding libraries
	// Remote 共享远端名称，Root 为存放资料库的目录
	Remote         string
	Root           string
	InitScript     string
	Backend        string
	BackendOptions map[string]string
	PullRoot       string
	Timeout        time.Duration
	ProbeTimeout   time.Duration

	// OAuth client used by drive backends
	DriveClientID     string
	DriveClientSecret string
}

// CommandResult is the raw outcome of one rclone invocation
// CommandResult rclone 调用的原始结果
type CommandResult struct {
	OK       bool   `json:"ok"`
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Status is the read-only capability probe
type Status struct {
	RcloneVersion string `json:"rcloneVersion"`
	ScriptExists  bool   `json:"scriptExists"`
	ConfigExists  bool   `json:"configExists"`
	Message       string `json:"message"`
}

// Available reports whether the rclone binary answered
func (s *Status) Available() bool {
	return s != nil && s.RcloneVersion != ""
}

// Adapter 调用 rclone 子进程
type Adapter struct {
	cfg    Config
	runner execx.Runner
	logger *zap.Logger
}

// New 创建 rclone 适配器
func New(cfg Config, runner execx.Runner, lg *zap.Logger) *Adapter {
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.Binary == "" {
		cfg.Binary = "rclone"
	}
	if cfg.Remote == "" {
		cfg.Remote = "library-share"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	return &Adapter{cfg: cfg, runner: runner, logger: lg.Named("rclone")}
}

// Binary returns the configured rclone executable
func (a *Adapter) Binary() string {
	return a.cfg.Binary
}

func (a *Adapter) globalArgs() []string {
	if a.cfg.ConfigFile == "" {
		return nil
	}
	return []string{"--config", a.cfg.ConfigFile}
}

// run executes rclone. The result is returned whenever the process ran.
func (a *Adapter) run(ctx context.Context, cmd execx.Command) (*CommandResult, error) {
	cmd.Name = a.cfg.Binary
	cmd.Args = append(cmd.Args, a.globalArgs()...)
	if cmd.Timeout == 0 {
		cmd.Timeout = a.cfg.Timeout
	}

	res, err := a.runner.Run(ctx, cmd)
	out := &CommandResult{Command: cmd.String()}
	if res != nil {
		out.Stdout, out.Stderr, out.ExitCode = res.Stdout, res.Stderr, res.ExitCode
	}
	if err == nil {
		out.OK = true
		return out, nil
	}

	a.logger.Debug("rclone failed",
		zap.String(logger.FieldCommand, out.Command),
		zap.Int(logger.FieldExitCode, out.ExitCode),
		zap.Error(err))
	return out, classify(err, out)
}

func classify(err error, out *CommandResult) error {
	var exitErr *execx.ExitError
	switch {
	case errors.Is(err, execx.ErrNotFound):
		return code.ErrorToolUnavailable.WithDetails("rclone is not installed or not executable")
	case errors.Is(err, execx.ErrTimeout):
		return code.ErrorTimeout.WithDetails(out.Command)
	case errors.As(err, &exitErr):
		return code.ErrorShareCommand.WithDetails(ErrorMessage(out), execx.TailLines(out.Stderr, 20))
	}
	return err
}

// ErrorMessage extracts a short message from a failed result.
// ErrorMessage 从失败结果中提取简短的错误信息
func ErrorMessage(r *CommandResult) string {
	if r == nil {
		return "rclone did not run"
	}
	if r.OK {
		return ""
	}
	return execx.MessageOr(r.Stderr, "rclone command failed")
}

// Init makes sure the shared remote is configured. Running it twice is harmless.
// Init 确保共享远端已配置，可重复调用
func (a *Adapter) Init(ctx context.Context) (*CommandResult, error) {
	if a.scriptExists() {
		env := []string{"SHARE_REMOTE=" + a.cfg.Remote, "RCLONE_BINARY=" + a.cfg.Binary}
		if a.cfg.ConfigFile != "" {
			env = append(env, "RCLONE_CONFIG="+a.cfg.ConfigFile)
		}
		res, err := a.runner.Run(ctx, execx.Command{
			Name:    "/bin/sh",
			Args:    []string{a.cfg.InitScript},
			Env:     env,
			Timeout: a.cfg.ProbeTimeout * 4,
		})
		out := &CommandResult{Command: "/bin/sh " + a.cfg.InitScript}
		if res != nil {
			out.Stdout, out.Stderr, out.ExitCode = res.Stdout, res.Stderr, res.ExitCode
		}
		if err != nil {
			return out, classify(err, out)
		}
		out.OK = true
		return out, nil
	}

	exists, err := a.configExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return &CommandResult{OK: true, Stdout: "remote " + a.cfg.Remote + " already configured"}, nil
	}
	if a.cfg.Backend == "" {
		return nil, code.ErrorInvalidConfig.WithDetails("share backend is not configured")
	}
	if a.cfg.ConfigFile != "" {
		if err := fileurl.CreatePath(filepath.Dir(a.cfg.ConfigFile), 0o700); err != nil {
			return nil, err
		}
	}

	args := []string{"config", "create", a.cfg.Remote, a.cfg.Backend}
	for _, k := range sortedKeys(a.cfg.BackendOptions) {
		args = append(args, k+"="+a.cfg.BackendOptions[k])
	}
	args = append(args, "--non-interactive", "--obscure")

	out, err := a.run(ctx, execx.Command{Args: args, Timeout: a.cfg.ProbeTimeout})
	if err == nil {
		a.logger.Info("share remote created", zap.String("remote", a.cfg.Remote), zap.String("backend", a.cfg.Backend))
	}
	return out, err
}

func (a *Adapter) scriptExists() bool {
	return a.cfg.InitScript != "" && fileurl.IsExist(a.cfg.InitScript)
}

func (a *Adapter) configExists(ctx context.Context) (bool, error) {
	if a.cfg.ConfigFile != "" && !fileurl.IsExist(a.cfg.ConfigFile) {
		return false, nil
	}
	out, err := a.run(ctx, execx.Command{Args: []string{"listremotes"}, Timeout: a.cfg.ProbeTimeout})
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out.Stdout, "\n") {
		if strings.TrimSpace(line) == a.cfg.Remote+":" {
			return true, nil
		}
	}
	return false, nil
}

// Status never fails; missing prerequisites are described in Message.
// Status 只读探测，不会返回错误
func (a *Adapter) Status(ctx context.Context) *Status {
	st := &Status{ScriptExists: a.scriptExists()}

	out, err := a.run(ctx, execx.Command{Args: []string{"version"}, Timeout: a.cfg.ProbeTimeout})
	if err != nil {
		st.Message = "rclone unavailable: " + ErrorMessage(out)
		if errors.Is(err, code.ErrorToolUnavailable) {
			st.Message = "rclone is not installed"
		}
		return st
	}
	st.RcloneVersion = strings.TrimPrefix(execx.FirstLine(out.Stdout), "rclone ")

	exists, err := a.configExists(ctx)
	switch {
	case err != nil:
		st.Message = "cannot read rclone config: " + err.Error()
	case !exists:
		st.Message = "share remote " + a.cfg.Remote + " is not configured, run init"
	default:
		st.ConfigExists = true
		st.Message = "ready"
	}
	return st
}
