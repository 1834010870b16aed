package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/safe_close"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	name     string
	interval time.Duration
	startup  bool
	runs     atomic.Int32
	panicky  bool
}

func (t *countingTask) Name() string                { return t.name }
func (t *countingTask) LoopInterval() time.Duration { return t.interval }
func (t *countingTask) IsStartupRun() bool          { return t.startup }
func (t *countingTask) Run(context.Context) error {
	n := t.runs.Add(1)
	if t.panicky && n == 1 {
		panic("boom")
	}
	return errors.New("ignored")
}

func TestSchedulerRunsAndStops(t *testing.T) {
	sc := safe_close.NewSafeClose()
	s := NewScheduler(nil, sc)

	loop := &countingTask{name: "loop", interval: 5 * time.Millisecond, panicky: true}
	once := &countingTask{name: "once", startup: true}
	s.AddTask(loop)
	s.AddTask(once)
	s.Start()

	require.Eventually(t, func() bool { return loop.runs.Load() >= 3 }, 2*time.Second, time.Millisecond)

	sc.SendCloseSignal(nil)
	require.NoError(t, sc.WaitClosed())
	stopped := loop.runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, loop.runs.Load())
	assert.Equal(t, int32(1), once.runs.Load())
}

type fakeTicker struct{ ticks atomic.Int32 }

func (f *fakeTicker) Tick(context.Context) (int, error) {
	f.ticks.Add(1)
	return 1, nil
}

type fakeSweeper struct{ sweeps atomic.Int32 }

func (f *fakeSweeper) Sweep() int {
	f.sweeps.Add(1)
	return 0
}

func TestManagerRegistersConfiguredTasks(t *testing.T) {
	sc := safe_close.NewSafeClose()
	ticker := &fakeTicker{}
	m := NewManager(Deps{Backup: ticker, TickInterval: time.Hour}, sc)
	require.NoError(t, m.RegisterTasks())
	assert.Equal(t, []string{"BackupScheduled"}, m.scheduler.Tasks())

	m.Start()
	require.Eventually(t, func() bool { return ticker.ticks.Load() == 1 }, time.Second, time.Millisecond)
	sc.SendCloseSignal(nil)
	require.NoError(t, sc.WaitClosed())

	sweeper := &fakeSweeper{}
	sc2 := safe_close.NewSafeClose()
	m2 := NewManager(Deps{Backup: ticker, OAuth: sweeper, SweepInterval: 5 * time.Millisecond}, sc2)
	require.NoError(t, m2.RegisterTasks())
	assert.ElementsMatch(t, []string{"BackupScheduled", "OAuthPendingSweep"}, m2.scheduler.Tasks())
	m2.Start()
	require.Eventually(t, func() bool { return sweeper.sweeps.Load() >= 2 }, time.Second, time.Millisecond)
	sc2.SendCloseSignal(nil)
	require.NoError(t, sc2.WaitClosed())
}
