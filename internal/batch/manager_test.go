package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	items    []string
	gate     chan struct{}
	fail     func(id string) bool
	warn     func(id string) bool
	inflight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil && f.fail(req.ItemID) {
		return nil, errors.New("decode failed: " + req.ItemID)
	}
	if f.warn != nil && f.warn(req.ItemID) {
		return &AnalyzeResult{Warning: "custom tags kept on " + req.ItemID}, nil
	}
	return &AnalyzeResult{}, nil
}

func (f *fakeAnalyzer) ListItems(context.Context) ([]string, error) {
	return f.items, nil
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i)
	}
	return out
}

func wait(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, ClampConcurrency(0))
	assert.Equal(t, 1, ClampConcurrency(-4))
	assert.Equal(t, 10, ClampConcurrency(50))
	assert.Equal(t, 2, Workers(5, 2))
	assert.Equal(t, 1, Workers(5, 0))
	assert.Equal(t, 3, Workers(3, 10))
}

func TestCompletedJobWithWarningsNotifiesOnce(t *testing.T) {
	fa := &fakeAnalyzer{warn: func(id string) bool { return id != "item-0" && id != "item-1" && id != "item-2" }}
	m := NewManager(fa, nil, nil, Hooks{})

	job, err := m.Start(context.Background(), StartRequest{ItemIDs: ids(10), Concurrency: 3, Profile: "full"})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 10, job.Total)
	wait(t, m)

	st := m.Status()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 10, st.Processed)
	assert.Equal(t, 10, st.Analyzed)
	assert.Equal(t, 1.0, st.Progress)
	assert.Nil(t, st.EtaSeconds)
	assert.Equal(t, 7, st.Warnings.TotalWithWarnings)
	assert.Len(t, st.Warnings.Messages, PreviewCount)
	assert.Equal(t, 2, st.Warnings.Remaining)
	require.NotNil(t, st.Notice)
	assert.Equal(t, st.JobID, st.Notice.JobID)

	assert.Nil(t, m.Status().Notice)
	assert.LessOrEqual(t, fa.maxSeen.Load(), int32(3))
}

func TestStartIsExclusive(t *testing.T) {
	fa := &fakeAnalyzer{gate: make(chan struct{})}
	m := NewManager(fa, nil, nil, Hooks{})

	_, err := m.Start(context.Background(), StartRequest{ItemIDs: ids(2), Concurrency: 2})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), StartRequest{ItemIDs: ids(2)})
	assert.ErrorIs(t, err, code.ErrorJobAlreadyRunning)

	close(fa.gate)
	wait(t, m)

	_, err = m.Start(context.Background(), StartRequest{ItemIDs: ids(1)})
	assert.NoError(t, err)
	wait(t, m)
}

func TestCancelMidRun(t *testing.T) {
	fa := &fakeAnalyzer{gate: make(chan struct{})}
	m := NewManager(fa, nil, nil, Hooks{})

	_, err := m.Start(context.Background(), StartRequest{ItemIDs: ids(10), Concurrency: 3})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fa.inflight.Load() == 3 }, 2*time.Second, 5*time.Millisecond)

	st := m.Cancel()
	assert.True(t, st.IsStopping)
	assert.Equal(t, StatusRunning, st.Status)

	close(fa.gate)
	wait(t, m)

	final := m.Status()
	assert.Equal(t, StatusCanceled, final.Status)
	assert.False(t, final.IsStopping)
	assert.Equal(t, 3, final.Processed)
	assert.Less(t, final.Processed, final.Total)
	assert.Equal(t, int32(3), fa.calls.Load())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, final.Processed, m.Status().Processed)
}

func TestAllItemsFailed(t *testing.T) {
	fa := &fakeAnalyzer{fail: func(string) bool { return true }}
	m := NewManager(fa, nil, nil, Hooks{})

	_, err := m.Start(context.Background(), StartRequest{ItemIDs: ids(4), Concurrency: 2})
	require.NoError(t, err)
	wait(t, m)

	st := m.Status()
	assert.Equal(t, StatusFailed, st.Status)
	require.NotNil(t, st.Error)
	assert.Contains(t, *st.Error, "decode failed")
}

func TestPartialFailureCompletes(t *testing.T) {
	fa := &fakeAnalyzer{fail: func(id string) bool { return id == "item-1" }}
	m := NewManager(fa, nil, nil, Hooks{})

	_, err := m.Start(context.Background(), StartRequest{ItemIDs: ids(3)})
	require.NoError(t, err)
	wait(t, m)

	st := m.Status()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 2, st.Analyzed)
	assert.Equal(t, 1, st.Concurrency)
}

func TestDefaultItemsAndEmpty(t *testing.T) {
	fa := &fakeAnalyzer{items: []string{"a", "b", "a"}}
	m := NewManager(fa, nil, nil, Hooks{})

	job, err := m.Start(context.Background(), StartRequest{Concurrency: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, job.Total)
	wait(t, m)

	empty := NewManager(&fakeAnalyzer{}, nil, nil, Hooks{})
	_, err = empty.Start(context.Background(), StartRequest{})
	assert.ErrorIs(t, err, code.ErrorJobNoItems)
	assert.Equal(t, StatusIdle, empty.Status().Status)
	assert.False(t, empty.active.Load())
}

func TestHooks(t *testing.T) {
	var items atomic.Int32
	var finished atomic.Value
	m := NewManager(&fakeAnalyzer{}, nil, nil, Hooks{
		OnItem:   func(bool) { items.Add(1) },
		OnFinish: func(s Status, _ time.Duration) { finished.Store(s) },
	})
	_, err := m.Start(context.Background(), StartRequest{ItemIDs: ids(5)})
	require.NoError(t, err)
	wait(t, m)
	assert.Equal(t, int32(5), items.Load())
	assert.Equal(t, StatusCompleted, finished.Load())
}

// Property: counters stay consistent and progress never decreases.
func TestProgressInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("analyzed+failed == processed <= total, progress monotonic", prop.ForAll(
		func(total, concurrency, failEvery int) bool {
			fa := &fakeAnalyzer{fail: func(id string) bool {
				var n int
				fmt.Sscanf(id, "item-%d", &n)
				return n%failEvery == 0
			}}
			m := NewManager(fa, nil, nil, Hooks{})

			var mu sync.Mutex
			ok := true
			last := -1.0
			check := func(j *Job) {
				mu.Lock()
				defer mu.Unlock()
				if j.Progress < last || j.Processed > j.Total || j.Analyzed+j.Failed != j.Processed {
					ok = false
				}
				last = j.Progress
			}

			if _, err := m.Start(context.Background(), StartRequest{ItemIDs: ids(total), Concurrency: concurrency}); err != nil {
				return false
			}
			stop := make(chan struct{})
			polled := make(chan struct{})
			go func() {
				defer close(polled)
				for {
					select {
					case <-stop:
						return
					default:
						check(m.Status())
					}
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if m.Wait(ctx) != nil {
				return false
			}
			close(stop)
			<-polled

			final := m.Status()
			check(final)
			return ok && final.Processed == total && fa.maxSeen.Load() <= int32(ClampConcurrency(concurrency))
		},
		gen.IntRange(1, 30),
		gen.IntRange(-2, 15),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func TestHTTPAnalyzer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/items":
			fmt.Fprint(w, `{"items":["1","2"]}`)
		case "/analyze":
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"error":"unsupported format"}`)
		}
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL+"/", "tok", time.Second)
	items, err := a.ListItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, items)

	_, err = a.Analyze(context.Background(), AnalyzeRequest{ItemID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "unsupported format")
}
