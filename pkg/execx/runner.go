// Package execx runs external tools as subprocesses with a bounding timeout
// Package execx 以子进程方式运行外部工具，并限制最长执行时间
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotFound the executable could not be started (missing or not executable)
	// ErrNotFound 可执行文件不存在或无法执行
	ErrNotFound = errors.New("executable not found")
	// ErrTimeout the command exceeded its timeout and was killed
	// ErrTimeout 命令超时并被终止
	ErrTimeout = errors.New("command timed out")
)

// Stream identifies stdout or stderr
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Command describes one invocation.
// Command 描述一次子进程调用
type Command struct {
	Name string
	Args []string
	// Env is appended to the current process environment
	// Env 追加到当前进程环境变量之后
	Env     []string
	Dir     string
	Stdin   io.Reader
	Timeout time.Duration
	// OnLine receives every complete output line while the process runs
	// OnLine 在进程运行过程中接收每一行输出
	OnLine func(stream Stream, line string)
}

// String renders the command line without environment values
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured outcome of a finished process
// Result 子进程执行结果
type Result struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// ExitError is returned when the process ran and exited non-zero
// ExitError 子进程执行后返回非零退出码
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if line := FirstLine(e.Stderr); line != "" {
		return fmt.Sprintf("exit status %d: %s", e.Code, line)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Runner executes commands; adapters depend on this interface so tests can fake it.
// Runner 执行命令的接口，便于测试替换
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs real processes through os/exec
type ExecRunner struct {
	logger *zap.Logger
	// WaitDelay bounds how long Wait blocks on output pipes after the process is killed
	// WaitDelay 进程被终止后等待输出管道关闭的最长时间
	WaitDelay time.Duration
}

// NewExecRunner 创建 ExecRunner
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{logger: logger, WaitDelay: 5 * time.Second}
}

// Run starts the command, waits for it and classifies the failure.
// Run 启动并等待命令结束，并对失败进行分类
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	var outLines, errLines *lineWriter
	if c.OnLine != nil {
		var mu sync.Mutex
		outLines = &lineWriter{stream: Stdout, fn: c.OnLine, mu: &mu}
		errLines = &lineWriter{stream: Stderr, fn: c.OnLine, mu: &mu}
		cmd.Stdout = io.MultiWriter(&stdout, outLines)
		cmd.Stderr = io.MultiWriter(&stderr, errLines)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	if outLines != nil {
		outLines.flush()
		errLines.flush()
	}

	res := &Result{
		Command:  c.String(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		return res, nil
	}

	if missingExecutable(err, c.Name, cmd.Path) {
		res.ExitCode = -1
		return res, fmt.Errorf("%w: %s: %v", ErrNotFound, c.Name, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			r.logger.Warn("command timed out, process killed",
				zap.String("command", res.Command),
				zap.Duration("timeout", c.Timeout))
			return res, fmt.Errorf("%w after %s", ErrTimeout, res.Duration.Round(time.Millisecond))
		}
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
	}

	res.ExitCode = -1
	return res, err
}

// lineWriter splits written bytes into lines for OnLine callbacks
type lineWriter struct {
	stream Stream
	fn     func(Stream, string)
	mu     *sync.Mutex
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		w.mu.Lock()
		w.fn(w.stream, line)
		w.mu.Unlock()
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.buf) == 0 {
		return
	}
	w.mu.Lock()
	w.fn(w.stream, string(w.buf))
	w.mu.Unlock()
	w.buf = nil
}

// missingExecutable reports whether err comes from locating or exec'ing the binary
// itself. A missing working directory (chdir) is not a missing tool.
func missingExecutable(err error, name, path string) bool {
	var lookErr *exec.Error
	if errors.Is(err, exec.ErrNotFound) || errors.As(err, &lookErr) {
		return true
	}
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) || (pathErr.Path != name && pathErr.Path != path) {
		return false
	}
	return errors.Is(pathErr.Err, fs.ErrNotExist) || errors.Is(pathErr.Err, fs.ErrPermission)
}
