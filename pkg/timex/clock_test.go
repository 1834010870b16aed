package timex

import (
	"testing"
	"time"
)

func TestVersionLabel(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	got := VersionLabel(time.Date(2026, 3, 4, 13, 5, 6, 0, loc))
	if got != "20260304T050506Z" {
		t.Errorf("VersionLabel = %q", got)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(time.Hour)
	if !c.Now().Equal(start.Add(time.Hour)) {
		t.Errorf("Now = %v", c.Now())
	}
}
