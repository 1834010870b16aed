package local_fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSendContentAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups", "music")
	c, err := NewClient(&Config{SavePath: dir})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.SendContent(context.Background(), "marker", []byte("x")); err != nil {
		t.Fatalf("SendContent: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Fatalf("marker missing: %v", err)
	}
	if err := c.Delete(context.Background(), "marker"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(context.Background(), "marker"); err != nil {
		t.Errorf("Delete of missing file should be a no-op, got %v", err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := NewClient(&Config{}); err == nil {
		t.Fatal("expected error for empty target directory")
	}
}
