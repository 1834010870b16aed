package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackupTicker starts due scheduled backups
type BackupTicker interface {
	Tick(ctx context.Context) (int, error)
}

// PendingSweeper drops expired OAuth authorization requests
type PendingSweeper interface {
	Sweep() int
}

// Deps is what task factories build from
// Deps 任务依赖
type Deps struct {
	Backup        BackupTicker
	OAuth         PendingSweeper
	TickInterval  time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger
}

// TaskFactory builds a task; a nil task means it is disabled
// TaskFactory 任务工厂函数类型,返回 nil 表示任务未启用
type TaskFactory func(d Deps) (Task, error)

// taskRegistry 全局任务注册表
var (
	taskRegistry  []TaskFactory
	registryMutex sync.RWMutex
)

// Register 注册任务工厂函数
// 通常在各个任务文件的 init() 函数中调用
func Register(factory TaskFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	taskRegistry = append(taskRegistry, factory)
}

// GetFactories 获取所有已注册的任务工厂
func GetFactories() []TaskFactory {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	factories := make([]TaskFactory, len(taskRegistry))
	copy(factories, taskRegistry)
	return factories
}
