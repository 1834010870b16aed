// Package workerpool runs submitted jobs on a fixed set of goroutines with a bounded queue.
// Package workerpool 固定数量 worker + 有界队列的任务池
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrPoolFull 队列已满
	ErrPoolFull = errors.New("worker pool queue is full")
	// ErrPoolClosed 任务池已关闭
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrJobCanceled the job context was done before a worker picked it up
	// ErrJobCanceled 任务在开始前已被取消
	ErrJobCanceled = errors.New("job canceled before start")
)

// Config 任务池配置
type Config struct {
	// Name appears in log lines
	Name string
	// Workers 并发 worker 数量
	Workers int
	// QueueSize 等待队列长度
	QueueSize int
	// WarningPercent logs a warning when busy workers reach this share of Workers
	// WarningPercent 忙碌 worker 比例达到该值时输出告警
	WarningPercent float64
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{Name: "default", Workers: 4, QueueSize: 64, WarningPercent: 0.8}
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool is safe for concurrent use. Shutdown drains queued jobs before returning.
// Pool 并发安全，Shutdown 会执行完队列中剩余的任务
type Pool struct {
	cfg    Config
	logger *zap.Logger

	queue chan job
	wg    sync.WaitGroup

	busy     atomic.Int64
	finished atomic.Int64
	panics   atomic.Int64

	// abort is closed when Shutdown gives up waiting
	abort     chan struct{}
	abortOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// New starts cfg.Workers goroutines.
// New 创建任务池并启动 worker
func New(cfg Config, logger *zap.Logger) *Pool {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WarningPercent <= 0 || cfg.WarningPercent > 1 {
		cfg.WarningPercent = def.WarningPercent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		cfg:    cfg,
		logger: logger.With(zap.String("pool", cfg.Name)),
		queue:  make(chan job, cfg.QueueSize),
		abort:  make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}

	p.logger.Debug("worker pool started",
		zap.Int("workers", cfg.Workers),
		zap.Int("queueSize", cfg.QueueSize))
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	n := p.busy.Add(1)
	defer p.busy.Add(-1)
	defer p.finished.Add(1)

	if limit := int64(float64(p.cfg.Workers) * p.cfg.WarningPercent); limit > 0 && n >= limit && p.cfg.Workers > 1 {
		p.logger.Warn("worker pool near capacity",
			zap.Int64("busy", n),
			zap.Int("workers", p.cfg.Workers),
			zap.Int("queued", len(p.queue)))
	}

	var err error
	select {
	case <-j.ctx.Done():
		err = ErrJobCanceled
	default:
		err = p.call(j)
	}

	if j.done != nil {
		j.done <- err
	}
}

// call runs fn and turns a panic into an error so the worker survives.
func (p *Pool) call(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("worker pool job panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

func (p *Pool) enqueue(j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- j:
		return nil
	default:
		return ErrPoolFull
	}
}

// Submit enqueues fn and waits for its result.
// Submit 提交任务并等待结果
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	if err := p.enqueue(job{ctx: ctx, fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.abort:
		return ErrPoolClosed
	}
}

// SubmitAsync enqueues fn without waiting. It never blocks: a full queue returns ErrPoolFull.
// SubmitAsync 异步提交任务，队列满时立即返回 ErrPoolFull
func (p *Pool) SubmitAsync(ctx context.Context, fn func(context.Context) error) error {
	return p.enqueue(job{ctx: ctx, fn: fn})
}

// Busy 正在执行的任务数
func (p *Pool) Busy() int64 {
	return p.busy.Load()
}

// Queued 队列中等待的任务数
func (p *Pool) Queued() int {
	return len(p.queue)
}

// Closed 是否已关闭
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Shutdown stops accepting jobs and waits for queued and running jobs to finish,
// or for ctx to be done.
// Shutdown 停止接收新任务并等待已提交任务完成
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.logger.Debug("worker pool drained")
		return nil
	case <-ctx.Done():
		p.abortOnce.Do(func() { close(p.abort) })
		p.logger.Warn("worker pool shutdown timed out",
			zap.Int64("busy", p.busy.Load()),
			zap.Int("queued", len(p.queue)))
		return ctx.Err()
	}
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Name     string `json:"name"`
	Workers  int    `json:"workers"`
	Busy     int64  `json:"busy"`
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Finished int64  `json:"finished"`
	Panics   int64  `json:"panics"`
	Closed   bool   `json:"closed"`
}

// Stats 返回当前统计
func (p *Pool) Stats() Stats {
	return Stats{
		Name:     p.cfg.Name,
		Workers:  p.cfg.Workers,
		Busy:     p.busy.Load(),
		Queued:   len(p.queue),
		Capacity: p.cfg.QueueSize,
		Finished: p.finished.Load(),
		Panics:   p.panics.Load(),
		Closed:   p.Closed(),
	}
}
