// Package timex 时间相关工具
package timex

import (
	"sync"
	"time"
)

// VersionLayout is the compact UTC label used for published share versions
const VersionLayout = "20060102T150405Z"

// Clock lets components read the current time without calling time.Now directly.
// Clock 可注入的时钟
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock
var System Clock = systemClock{}

// VersionLabel formats t as YYYYMMDDTHHMMSSZ in UTC
func VersionLabel(t time.Time) string {
	return t.UTC().Format(VersionLayout)
}

// ManualClock is a Clock that only moves when told to.
// ManualClock 手动推进的时钟，测试使用
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set 设置当前时间
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
