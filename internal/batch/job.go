// Package batch coordinates the library-wide re-analysis job: one job at a time,
// bounded workers, cooperative cancellation, progress and warning aggregation.
// Package batch 批量重新分析任务协调器
package batch

import (
	"strconv"
	"time"
)

// Status 任务状态
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 10
	// PreviewCount is how many warning messages are kept verbatim
	PreviewCount = 5
)

// Warnings aggregates items whose analysis found pre-existing custom state
type Warnings struct {
	TotalWithWarnings int      `json:"totalWithWarnings"`
	Messages          []string `json:"messages"`
	Remaining         int      `json:"remaining"`
}

// Notice is delivered once, on the first status read after a job with warnings ends.
// Notice 任务结束后仅推送一次的提醒
type Notice struct {
	JobID    string   `json:"jobId"`
	Message  string   `json:"message"`
	Warnings Warnings `json:"warnings"`
}

// Job is a point-in-time view of the job state.
// Job 任务状态快照
type Job struct {
	JobID       string     `json:"jobId,omitempty"`
	Status      Status     `json:"status"`
	IsStopping  bool       `json:"isStopping"`
	StartedAt   *time.Time `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Analyzed    int        `json:"analyzed"`
	Failed      int        `json:"failed"`
	Concurrency int        `json:"concurrency"`
	Profile     string     `json:"profile,omitempty"`
	StatusNote  *string    `json:"statusNote"`
	Error       *string    `json:"error"`
	Warnings    Warnings   `json:"warnings"`
	Progress    float64    `json:"progress"`
	EtaSeconds  *float64   `json:"etaSeconds"`
	Notice      *Notice    `json:"notice,omitempty"`
}

// StartRequest 启动参数
type StartRequest struct {
	ItemIDs             []string
	Profile             string
	Concurrency         int
	IncludeFilenameTags bool
	AllowAITagging      bool
}

// ClampConcurrency limits n to [MinConcurrency, MaxConcurrency]
func ClampConcurrency(n int) int {
	if n < MinConcurrency {
		return MinConcurrency
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// Workers is min(concurrency, max(1, items))
func Workers(concurrency, items int) int {
	return min(ClampConcurrency(concurrency), max(1, items))
}

func strPtr(s string) *string {
	return &s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
