package dto

import (
	"encoding/json"
	"time"

	"github.com/haierkeys/library-backup-service/internal/domain"
)

// BackupConfigCreateRequest 创建备份配置请求
type BackupConfigCreateRequest struct {
	Name       string          `json:"name" binding:"required,max=128" example:"Nightly NAS"`
	Type       string          `json:"type" binding:"required,oneof=gdrive webdav s3 sftp local" example:"local"`
	Schedule   string          `json:"schedule" binding:"omitempty,oneof=manual hourly daily weekly" example:"daily"`
	RemotePath string          `json:"remotePath" binding:"max=512" example:"library"`
	Params     json.RawMessage `json:"params"`
	Enabled    *bool           `json:"enabled"`
}

// BackupConfigUpdateRequest is a partial update; nil fields keep their value.
// BackupConfigUpdateRequest 部分更新，nil 字段保持原值
type BackupConfigUpdateRequest struct {
	Name       *string         `json:"name" binding:"omitempty,min=1,max=128"`
	Type       *string         `json:"type" binding:"omitempty,oneof=gdrive webdav s3 sftp local"`
	Schedule   *string         `json:"schedule" binding:"omitempty,oneof=manual hourly daily weekly"`
	RemotePath *string         `json:"remotePath" binding:"omitempty,max=512"`
	Params     json.RawMessage `json:"params"`
	Enabled    *bool           `json:"enabled"`
}

// BackupLogListRequest 日志列表请求
type BackupLogListRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=0"`
}

// BackupAuthURLRequest 获取授权地址请求
type BackupAuthURLRequest struct {
	ConfigID int64 `form:"configId" binding:"omitempty,min=0"`
}

// BackupCallbackRequest OAuth 回调参数
type BackupCallbackRequest struct {
	Code  string `form:"code"`
	State string `form:"state"`
	Error string `form:"error"`
}

// BackupDownloadRequest 下载资料库请求
type BackupDownloadRequest struct {
	IncludeAudio bool `form:"includeAudio"`
}

// BackupConfigDTO is a config as the API shows it. Params are redacted.
// BackupConfigDTO 备份配置（凭据已遮盖）
type BackupConfigDTO struct {
	ID               int64               `json:"id"`
	Name             string              `json:"name"`
	Type             string              `json:"type"`
	Schedule         string              `json:"schedule"`
	RemotePath       string              `json:"remotePath"`
	Params           domain.BackupParams `json:"params" copier:"-"`
	Enabled          bool                `json:"enabled"`
	LastBackupStatus *string             `json:"lastBackupStatus" copier:"-"`
	LastBackupAt     *time.Time          `json:"lastBackupAt"`
	LastBackupError  *string             `json:"lastBackupError" copier:"-"`
	NeedsAuth        bool                `json:"needsAuth"`
	Running          bool                `json:"running" copier:"-"`
	NextRunAt        *time.Time          `json:"nextRunAt" copier:"-"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// BackupLogDTO 备份日志
type BackupLogDTO struct {
	ID               int64                 `json:"id"`
	ConfigID         int64                 `json:"configId"`
	StartedAt        time.Time             `json:"startedAt"`
	FinishedAt       *time.Time            `json:"finishedAt"`
	Status           string                `json:"status"`
	FilesTransferred int64                 `json:"filesTransferred"`
	BytesTransferred int64                 `json:"bytesTransferred"`
	ErrorMessage     *string               `json:"errorMessage" copier:"-"`
	Details          *domain.BackupDetails `json:"details"`
}

// BackupStatusDTO is the overview. Degraded is set when the tool probe was skipped
// after repeated failures.
// BackupStatusDTO 备份总览，探测多次失败后降级
type BackupStatusDTO struct {
	Configs         []*BackupConfigDTO `json:"configs"`
	RcloneAvailable bool               `json:"rcloneAvailable"`
	RcloneVersion   string             `json:"rcloneVersion,omitempty"`
	ResticAvailable bool               `json:"resticAvailable"`
	ResticVersion   string             `json:"resticVersion,omitempty"`
	Degraded        bool               `json:"degraded"`
	Message         string             `json:"message,omitempty"`
}

// RunStarted 已启动的运行
type RunStarted struct {
	ConfigID int64 `json:"configId"`
	LogID    int64 `json:"logId"`
}

// RunFailure 启动失败的配置
type RunFailure struct {
	ConfigID int64  `json:"configId"`
	Error    string `json:"error"`
}

// RunAllDTO is the outcome of starting every enabled config
type RunAllDTO struct {
	Started []RunStarted `json:"started"`
	Skipped []int64      `json:"skipped"`
	Failed  []RunFailure `json:"failed"`
}

// TestConnectionDTO 连通性测试结果
type TestConnectionDTO struct {
	ConfigID  int64  `json:"configId"`
	Type      string `json:"type"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// AuthURLDTO OAuth 授权地址
type AuthURLDTO struct {
	URL       string    `json:"url"`
	State     string    `json:"state"`
	ConfigID  int64     `json:"configId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
