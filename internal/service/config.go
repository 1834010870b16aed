// Package service implements the business logic layer
// Package service 实现业务逻辑层
package service

import "time"

// BackupServiceConfig backup service configuration
// BackupServiceConfig 备份服务配置
type BackupServiceConfig struct {
	LogRetention       int           // Logs kept per config // 每个配置保留的日志条数
	ProbeTimeout       time.Duration // Destination and tool probe timeout // 目的地与工具探测超时
	StatusFailureLimit int           // Consecutive probe failures before degrading // 连续探测失败多少次后降级
	StatusCooldown     time.Duration // How long the probe is skipped once degraded // 降级后跳过探测的时长
	RunAllParallel     int           // Concurrent starts in run-all // run-all 并发启动数
	FinalizeTimeout    time.Duration // Timeout for writing the final log // 写入最终日志的超时
}

func (c *BackupServiceConfig) defaults() {
	if c.LogRetention <= 0 {
		c.LogRetention = 50
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.StatusFailureLimit <= 0 {
		c.StatusFailureLimit = 3
	}
	if c.StatusCooldown <= 0 {
		c.StatusCooldown = time.Minute
	}
	if c.RunAllParallel <= 0 {
		c.RunAllParallel = 4
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 30 * time.Second
	}
}

// Log list limits
const (
	DefaultLogLimit = 20
	MaxLogLimit     = 200
)

// ShareServiceConfig quick share configuration
// ShareServiceConfig 快速分享配置
type ShareServiceConfig struct {
	StagingRoot string // Where sends are exported before upload // 发送前的导出暂存目录
	KeepStaging bool   // Keep exported copies after publishing // 发布后保留导出副本
}
