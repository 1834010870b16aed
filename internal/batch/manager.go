package batch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/logger"
	"github.com/haierkeys/library-backup-service/pkg/timex"
	"github.com/haierkeys/library-backup-service/pkg/util"
	"github.com/haierkeys/library-backup-service/pkg/workerpool"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hooks observe job activity, used for metrics
type Hooks struct {
	OnItem   func(failed bool)
	OnFinish func(status Status, elapsed time.Duration)
}

// Manager owns the single process-wide job. Start is exclusive through a CAS on active.
// Manager 管理进程内唯一的批处理任务，通过 CAS 保证同时只有一个任务
type Manager struct {
	analyzer Analyzer
	clock    timex.Clock
	logger   *zap.Logger
	hooks    Hooks

	active atomic.Bool

	mu       sync.Mutex
	state    Job
	lastErr  string
	notice   *Notice
	notified string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewManager 创建任务管理器
func NewManager(analyzer Analyzer, clock timex.Clock, lg *zap.Logger, hooks Hooks) *Manager {
	if lg == nil {
		lg = zap.NewNop()
	}
	if clock == nil {
		clock = timex.System
	}
	return &Manager{
		analyzer: analyzer,
		clock:    clock,
		logger:   lg.Named("batch"),
		hooks:    hooks,
		state:    Job{Status: StatusIdle, Warnings: Warnings{Messages: []string{}}},
	}
}

// Start launches a job over req.ItemIDs, or over every item the analyzer lists.
// Start 启动任务，未指定条目时使用分析服务返回的全部条目
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Job, error) {
	if !m.active.CompareAndSwap(false, true) {
		return nil, code.ErrorJobAlreadyRunning
	}

	items := req.ItemIDs
	if len(items) == 0 {
		listed, err := m.analyzer.ListItems(ctx)
		if err != nil {
			m.active.Store(false)
			return nil, code.ErrorLibraryCollaborator.WithDetails(err.Error())
		}
		items = listed
	}
	items = util.ArrayUnique(items)
	if len(items) == 0 {
		m.active.Store(false)
		return nil, code.ErrorJobNoItems
	}

	concurrency := ClampConcurrency(req.Concurrency)
	workers := Workers(concurrency, len(items))
	jobID := uuid.NewString()
	now := m.clock.Now()
	jobCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.state = Job{
		JobID:       jobID,
		Status:      StatusRunning,
		StartedAt:   &now,
		Total:       len(items),
		Concurrency: concurrency,
		Profile:     req.Profile,
		Warnings:    Warnings{Messages: []string{}},
	}
	m.lastErr = ""
	m.notice = nil
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	log := m.logger.With(zap.String(logger.FieldJobID, jobID))
	log.Info("batch job started",
		zap.Int("total", len(items)),
		zap.Int("concurrency", concurrency),
		zap.Int("workers", workers))

	pool := workerpool.New(workerpool.Config{
		Name:      "batch-reanalyze",
		Workers:   workers,
		QueueSize: len(items),
	}, m.logger)

	for _, id := range items {
		areq := AnalyzeRequest{
			ItemID:              id,
			Profile:             req.Profile,
			IncludeFilenameTags: req.IncludeFilenameTags,
			AllowAITagging:      req.AllowAITagging,
		}
		if err := pool.SubmitAsync(jobCtx, func(ctx context.Context) error {
			m.process(ctx, log, areq)
			return nil
		}); err != nil {
			// queue is sized to the item count, this only happens on a bug
			log.Error("enqueue batch item", zap.String(logger.FieldItemID, id), zap.Error(err))
		}
	}

	job := m.snapshot(false)
	go m.finish(log, pool, done, now)
	return job, nil
}

// process analyzes one item unless the job is stopping. A started analysis is never
// interrupted by cancel.
func (m *Manager) process(ctx context.Context, log *zap.Logger, req AnalyzeRequest) {
	m.mu.Lock()
	stopping := m.state.IsStopping
	m.mu.Unlock()
	if stopping || ctx.Err() != nil {
		return
	}

	res, err := m.analyzer.Analyze(context.WithoutCancel(ctx), req)

	m.mu.Lock()
	m.state.Processed++
	if err != nil {
		m.state.Failed++
		m.lastErr = err.Error()
	} else {
		m.state.Analyzed++
		if res != nil && strings.TrimSpace(res.Warning) != "" {
			w := &m.state.Warnings
			w.TotalWithWarnings++
			if len(w.Messages) < PreviewCount {
				w.Messages = append(w.Messages, res.Warning)
			}
			w.Remaining = w.TotalWithWarnings - len(w.Messages)
		}
	}
	m.mu.Unlock()

	if err != nil {
		log.Warn("item analysis failed", zap.String(logger.FieldItemID, req.ItemID), zap.Error(err))
	}
	if m.hooks.OnItem != nil {
		m.hooks.OnItem(err != nil)
	}
}

func (m *Manager) finish(log *zap.Logger, pool *workerpool.Pool, done chan struct{}, started time.Time) {
	_ = pool.Shutdown(context.Background())

	now := m.clock.Now()
	m.mu.Lock()
	s := &m.state
	s.FinishedAt = &now
	switch {
	case s.IsStopping:
		s.Status = StatusCanceled
		s.StatusNote = strPtr("canceled after " + itoa(s.Processed) + " of " + itoa(s.Total) + " items")
	case s.Processed > 0 && s.Failed == s.Processed:
		s.Status = StatusFailed
		s.Error = strPtr(m.lastErr)
	default:
		s.Status = StatusCompleted
		if s.Failed > 0 {
			s.StatusNote = strPtr(itoa(s.Failed) + " items failed")
		}
	}
	s.IsStopping = false
	if s.Warnings.TotalWithWarnings > 0 {
		m.notice = &Notice{
			JobID:    s.JobID,
			Message:  itoa(s.Warnings.TotalWithWarnings) + " items already had custom analysis data",
			Warnings: cloneWarnings(s.Warnings),
		}
	}
	status := s.Status
	m.cancel = nil
	m.mu.Unlock()

	elapsed := now.Sub(started)
	log.Info("batch job finished", zap.String("status", string(status)), zap.Duration(logger.FieldDuration, elapsed))
	if m.hooks.OnFinish != nil {
		m.hooks.OnFinish(status, elapsed)
	}

	m.active.Store(false)
	close(done)
}

// Cancel asks workers to stop after their current item. The status becomes canceled
// once every worker has exited.
// Cancel 请求停止任务，worker 完成当前条目后退出
func (m *Manager) Cancel() *Job {
	m.mu.Lock()
	if m.state.Status == StatusRunning && !m.state.IsStopping && m.cancel != nil {
		m.state.IsStopping = true
		m.state.StatusNote = strPtr("stopping after in-flight items")
		m.cancel()
		m.logger.Info("batch job cancel requested", zap.String(logger.FieldJobID, m.state.JobID))
	}
	m.mu.Unlock()
	return m.snapshot(false)
}

// Status returns the current state. The warning notice of a finished job is attached
// to the first call only.
// Status 返回当前状态，结束任务的提醒只返回一次
func (m *Manager) Status() *Job {
	return m.snapshot(true)
}

// Wait blocks until the current job (if any) has finished
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the running job and waits for it to drain
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Cancel()
	return m.Wait(ctx)
}

func (m *Manager) snapshot(withNotice bool) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.state
	j.Warnings = cloneWarnings(m.state.Warnings)
	if j.Total > 0 {
		j.Progress = float64(j.Processed) / float64(j.Total)
	}
	if j.Status == StatusRunning && j.Processed > 0 && j.StartedAt != nil {
		elapsed := m.clock.Now().Sub(*j.StartedAt).Seconds()
		eta := elapsed / float64(j.Processed) * float64(j.Total-j.Processed)
		j.EtaSeconds = &eta
	}
	if withNotice && m.notice != nil && m.notified != m.notice.JobID {
		n := *m.notice
		j.Notice = &n
		m.notified = n.JobID
	}
	return &j
}

func cloneWarnings(w Warnings) Warnings {
	w.Messages = append([]string{}, w.Messages...)
	return w
}
