// Package safe_close coordinates graceful shutdown of long-running goroutines
// Package safe_close 协调长时间运行 goroutine 的优雅关闭
package safe_close

import "sync"

// SafeClose broadcasts a single close signal to attached workers and waits for them.
// SafeClose 向所有挂载的 worker 广播一次关闭信号并等待其退出
type SafeClose struct {
	closeCh chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewSafeClose 创建 SafeClose
func NewSafeClose() *SafeClose {
	return &SafeClose{closeCh: make(chan struct{})}
}

// Attach runs fn in a goroutine; fn must call done when it returns.
// Attach 在 goroutine 中运行 fn，fn 退出时必须调用 done
func (s *SafeClose) Attach(fn func(done func(), closeSignal <-chan struct{})) {
	s.wg.Add(1)
	go fn(s.wg.Done, s.closeCh)
}

// SendCloseSignal closes the signal channel once, keeping the first non-nil error.
// SendCloseSignal 仅关闭一次信号通道，保留第一个非空错误
func (s *SafeClose) SendCloseSignal(err error) {
	s.mu.Lock()
	if err != nil && s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	s.once.Do(func() {
		close(s.closeCh)
	})
}

// CloseSignal returns the channel closed by SendCloseSignal
func (s *SafeClose) CloseSignal() <-chan struct{} {
	return s.closeCh
}

// WaitClosed blocks until every attached goroutine called done.
// WaitClosed 阻塞直到所有挂载的 goroutine 退出
func (s *SafeClose) WaitClosed() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
