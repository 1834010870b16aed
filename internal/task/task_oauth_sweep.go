package task

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OAuthSweepTask 清理过期的授权请求
type OAuthSweepTask struct {
	oauth    PendingSweeper
	interval time.Duration
	logger   *zap.Logger
}

func (t *OAuthSweepTask) Name() string {
	return "OAuthPendingSweep"
}

func (t *OAuthSweepTask) LoopInterval() time.Duration {
	return t.interval
}

func (t *OAuthSweepTask) IsStartupRun() bool {
	return false
}

func (t *OAuthSweepTask) Run(context.Context) error {
	if n := t.oauth.Sweep(); n > 0 {
		t.logger.Info("expired authorization requests removed", zap.Int("count", n))
	}
	return nil
}

// NewOAuthSweepTask 创建授权请求清理任务
func NewOAuthSweepTask(d Deps) (Task, error) {
	if d.OAuth == nil {
		return nil, nil
	}
	interval := d.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &OAuthSweepTask{oauth: d.OAuth, interval: interval, logger: d.Logger}, nil
}

func init() {
	Register(NewOAuthSweepTask)
}
