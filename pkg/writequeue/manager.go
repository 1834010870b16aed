// Package writequeue serializes store writes per key (one lane per backup config)
// so SQLite never sees two concurrent writers for the same config.
// Package writequeue 按 key（备份配置 ID）串行化写操作，避免 SQLite "database is locked"
package writequeue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull 当前 key 的写队列已满
	ErrQueueFull = errors.New("write queue is full")
	// ErrQueueClosed 写队列管理器已关闭
	ErrQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout 写操作等待超时
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config 写队列配置
type Config struct {
	// Capacity is the number of pending writes one lane may hold
	// Capacity 单个 key 可排队的写操作数量
	Capacity int
	// WriteTimeout bounds how long Execute waits for the result
	// WriteTimeout Execute 等待结果的最长时间
	WriteTimeout time.Duration
	// IdleTimeout 空闲多久后回收 lane
	IdleTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Capacity:     64,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
	}
}

type op struct {
	ctx    context.Context
	fn     func() error
	result chan error
}

type lane struct {
	key int64
	ops chan op
}

// Manager owns one FIFO lane per key. Lanes are created on first use and
// retired after IdleTimeout without writes.
// Manager 为每个 key 维护一个 FIFO 通道，首次使用时创建，空闲后回收
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	lanes  map[int64]*lane
	closed bool

	wg sync.WaitGroup
}

// New 创建写队列管理器
func New(cfg Config, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		lanes:  make(map[int64]*lane),
	}
}

// Execute runs fn on the lane for key, after every write queued before it.
// Execute 在 key 对应的通道上按 FIFO 顺序执行 fn
func (m *Manager) Execute(ctx context.Context, key int64, fn func() error) error {
	o := op{ctx: ctx, fn: fn, result: make(chan error, 1)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrQueueClosed
	}
	l, ok := m.lanes[key]
	if !ok {
		l = &lane{key: key, ops: make(chan op, m.cfg.Capacity)}
		m.lanes[key] = l
		m.wg.Add(1)
		go m.drive(l)
	}
	select {
	case l.ops <- o:
	default:
		m.mu.Unlock()
		m.logger.Warn("write queue full", zap.Int64("configId", key), zap.Int("capacity", m.cfg.Capacity))
		return ErrQueueFull
	}
	m.mu.Unlock()

	timer := time.NewTimer(m.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-o.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	}
}

func (m *Manager) drive(l *lane) {
	defer m.wg.Done()

	idle := time.NewTimer(m.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case o, ok := <-l.ops:
			if !ok {
				return
			}
			m.apply(o)
			idle.Reset(m.cfg.IdleTimeout)
		case <-idle.C:
			m.mu.Lock()
			// senders hold m.mu, so an empty lane removed here cannot receive again
			if len(l.ops) == 0 && !m.closed {
				delete(m.lanes, l.key)
				m.mu.Unlock()
				m.logger.Debug("write queue lane retired", zap.Int64("configId", l.key))
				return
			}
			m.mu.Unlock()
			idle.Reset(m.cfg.IdleTimeout)
		}
	}
}

func (m *Manager) apply(o op) {
	if err := o.ctx.Err(); err != nil {
		o.result <- err
		return
	}
	o.result <- o.fn()
}

// Lanes 返回当前活跃 lane 数量
func (m *Manager) Lanes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lanes)
}

// Pending returns the number of writes waiting on key's lane.
func (m *Manager) Pending(key int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lanes[key]; ok {
		return len(l.ops)
	}
	return 0
}

// Shutdown rejects new writes and waits until every queued write has run.
// Shutdown 拒绝新的写操作，并等待已排队的写操作执行完毕
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, l := range m.lanes {
		close(l.ops)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("write queue drained")
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue shutdown timed out")
		return ctx.Err()
	}
}
