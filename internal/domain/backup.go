// Package domain 定义领域模型和接口
package domain

import (
	"strings"
	"time"
)

// BackupType is the destination kind of a BackupConfig
type BackupType string

const (
	BackupTypeGDrive BackupType = "gdrive"
	BackupTypeWebDAV BackupType = "webdav"
	BackupTypeS3     BackupType = "s3"
	BackupTypeSFTP   BackupType = "sftp"
	BackupTypeLocal  BackupType = "local"
)

// BackupTypes 所有支持的备份类型
var BackupTypes = []BackupType{BackupTypeGDrive, BackupTypeWebDAV, BackupTypeS3, BackupTypeSFTP, BackupTypeLocal}

// Valid reports whether t is one of the five known types
func (t BackupType) Valid() bool {
	for _, v := range BackupTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Schedule 备份计划
type Schedule string

const (
	ScheduleManual Schedule = "manual"
	ScheduleHourly Schedule = "hourly"
	ScheduleDaily  Schedule = "daily"
	ScheduleWeekly Schedule = "weekly"
)

func (s Schedule) Valid() bool {
	switch s {
	case ScheduleManual, ScheduleHourly, ScheduleDaily, ScheduleWeekly:
		return true
	}
	return false
}

// Interval is the minimum time between two scheduled runs; 0 for manual.
// Interval 两次计划运行的最小间隔，manual 返回 0
func (s Schedule) Interval() time.Duration {
	switch s {
	case ScheduleHourly:
		return time.Hour
	case ScheduleDaily:
		return 24 * time.Hour
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// RunStatus is the state of a run; the empty value means "never ran"
type RunStatus string

const (
	RunStatusNone    RunStatus = ""
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// BackupConfig 备份配置领域模型
type BackupConfig struct {
	ID               int64
	Name             string
	Type             BackupType
	Schedule         Schedule
	RemotePath       string // ignored for local
	Params           BackupParams
	Enabled          bool
	LastBackupStatus RunStatus
	LastBackupAt     *time.Time
	LastBackupError  string
	NeedsAuth        bool // gdrive only
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks name, type, schedule and that params match the type.
// Validate 校验名称、类型、计划以及参数与类型是否匹配
func (c *BackupConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name is required")
	}
	if !c.Type.Valid() {
		return invalid("unknown type: " + string(c.Type))
	}
	if !c.Schedule.Valid() {
		return invalid("unknown schedule: " + string(c.Schedule))
	}
	return c.Params.Validate(c.Type)
}

// Due reports whether a scheduled run should start at now.
// Due 判断在 now 时刻是否应触发计划备份
func (c *BackupConfig) Due(now time.Time) bool {
	if !c.Enabled || c.Schedule == ScheduleManual || !c.Schedule.Valid() {
		return false
	}
	if c.LastBackupAt == nil {
		return true
	}
	return now.Sub(*c.LastBackupAt) >= c.Schedule.Interval()
}

// IsRemote reports whether the destination is reached over the network
func (c *BackupConfig) IsRemote() bool {
	return c.Type != BackupTypeLocal
}

// BackupLog 备份运行记录
type BackupLog struct {
	ID               int64
	ConfigID         int64
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           RunStatus
	FilesTransferred int64
	BytesTransferred int64
	ErrorMessage     string
	Details          *BackupDetails
}

// Error kinds recorded in BackupDetails.ErrorKind
const (
	ErrorKindToolUnavailable   = "ToolUnavailable"
	ErrorKindBackupFailed      = "BackupFailed"
	ErrorKindTimeout           = "Timeout"
	ErrorKindParse             = "ParseError"
	ErrorKindAuthExpired       = "AuthExpired"
	ErrorKindRemoteUnreachable = "RemoteUnreachable"
	ErrorKindInterrupted       = "Interrupted"
	ErrorKindCanceled          = "Canceled"
)

// BackupDetails is the structured payload stored with a finalized log.
// BackupDetails 备份日志中的结构化详情
type BackupDetails struct {
	CompressionRatio   float64 `json:"compressionRatio"`
	DataBytesProcessed int64   `json:"dataBytesProcessed"`
	DataBytesAdded     int64   `json:"dataBytesAdded"`
	FilesNew           int64   `json:"filesNew"`
	FilesChanged       int64   `json:"filesChanged"`
	FilesUnmodified    int64   `json:"filesUnmodified"`

	SnapshotID      string   `json:"snapshotId,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
	Defaulted       []string `json:"defaulted,omitempty"`
	ErrorKind       string   `json:"errorKind,omitempty"`
	StderrTail      string   `json:"stderrTail,omitempty"`
	PruneError      string   `json:"pruneError,omitempty"`
}

// RecoveryKey holds what is needed to restore a repository outside the app.
// RecoveryKey 在应用之外恢复备份所需的信息
type RecoveryKey struct {
	Name           string `json:"name"`
	RepoPassword   string `json:"repoPassword"`
	RepoURL        string `json:"repoUrl"`
	ListCommand    string `json:"listCommand"`
	RestoreCommand string `json:"restoreCommand"`
}
