package model

import (
	"time"

	"gorm.io/gorm"
)

// BackupConfig 备份配置表
type BackupConfig struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string     `gorm:"column:name;not null"`
	Type             string     `gorm:"column:type;not null;index"`
	Schedule         string     `gorm:"column:schedule;not null;default:manual"`
	RemotePath       string     `gorm:"column:remote_path"`
	Params           string     `gorm:"column:params;type:text"` // sealed JSON
	Enabled          bool       `gorm:"column:enabled;not null;default:false"`
	NeedsAuth        bool       `gorm:"column:needs_auth;not null;default:false"`
	LastBackupStatus string     `gorm:"column:last_backup_status"`
	LastBackupAt     *time.Time `gorm:"column:last_backup_at"`
	LastBackupError  string     `gorm:"column:last_backup_error;type:text"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BackupLog 备份运行记录表
type BackupLog struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ConfigID         int64      `gorm:"column:config_id;not null;index:idx_backup_log_config_started,priority:1"`
	StartedAt        time.Time  `gorm:"column:started_at;not null;index:idx_backup_log_config_started,priority:2"`
	FinishedAt       *time.Time `gorm:"column:finished_at"`
	Status           string     `gorm:"column:status;not null;index"`
	FilesTransferred int64      `gorm:"column:files_transferred"`
	BytesTransferred int64      `gorm:"column:bytes_transferred"`
	ErrorMessage     string     `gorm:"column:error_message;type:text"`
	DetailsJSON      string     `gorm:"column:details_json;type:text"`
}

// AutoMigrate 创建或更新所有表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&BackupConfig{}, &BackupLog{})
}
