package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the service counters exposed on the private listener.
// Metrics 服务指标
type Metrics struct {
	backupRuns     *prometheus.CounterVec
	backupDuration *prometheus.HistogramVec
	backupBytes    *prometheus.CounterVec
	backupRunning  prometheus.Gauge
	shareOps       *prometheus.CounterVec
	batchItems     *prometheus.CounterVec
	batchJobs      *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
// NewMetrics 在 reg 上注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lbs", Subsystem: "backup", Name: "runs_total",
			Help: "Finished backup runs by destination type and status.",
		}, []string{"type", "status"}),
		backupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lbs", Subsystem: "backup", Name: "duration_seconds",
			Help:    "Backup run duration.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"type"}),
		backupBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lbs", Subsystem: "backup", Name: "bytes_transferred_total",
			Help: "Bytes added to backup repositories.",
		}, []string{"type"}),
		backupRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lbs", Subsystem: "backup", Name: "running",
			Help: "Backups currently running.",
		}),
		shareOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lbs", Subsystem: "share", Name: "operations_total",
			Help: "Share operations by kind and result.",
		}, []string{"op", "result"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lbs", Subsystem: "batch", Name: "items_total",
			Help: "Batch items processed by result.",
		}, []string{"result"}),
		batchJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lbs", Subsystem: "batch", Name: "jobs_total",
			Help: "Finished batch jobs by status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.backupRuns, m.backupDuration, m.backupBytes, m.backupRunning,
			m.shareOps, m.batchItems, m.batchJobs)
	}
	return m
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.backupRunning.Inc()
	}
}

func (m *Metrics) runFinished(backupType, status string, elapsed time.Duration, bytes int64) {
	if m == nil {
		return
	}
	m.backupRunning.Dec()
	m.backupRuns.WithLabelValues(backupType, status).Inc()
	m.backupDuration.WithLabelValues(backupType).Observe(elapsed.Seconds())
	if bytes > 0 {
		m.backupBytes.WithLabelValues(backupType).Add(float64(bytes))
	}
}

func (m *Metrics) shareOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.shareOps.WithLabelValues(op, result).Inc()
}

// BatchItem is wired into the batch manager hooks
func (m *Metrics) BatchItem(failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.batchItems.WithLabelValues("failed").Inc()
		return
	}
	m.batchItems.WithLabelValues("analyzed").Inc()
}

// BatchJob is wired into the batch manager hooks
func (m *Metrics) BatchJob(status string, _ time.Duration) {
	if m != nil {
		m.batchJobs.WithLabelValues(status).Inc()
	}
}
