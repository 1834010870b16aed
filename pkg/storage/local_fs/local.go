package local_fs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type Config struct {
	SavePath string
}

type LocalFS struct {
	Config *Config
}

func NewClient(cfg *Config) (*LocalFS, error) {
	if cfg == nil || cfg.SavePath == "" {
		return nil, errors.New("local_fs: target directory is empty")
	}
	return &LocalFS{Config: cfg}, nil
}

// SendContent creates the target directory when missing and writes the file
// SendContent 写入文件，目录不存在时自动创建
func (l *LocalFS) SendContent(_ context.Context, pathKey string, content []byte) error {
	if err := os.MkdirAll(l.Config.SavePath, 0o755); err != nil {
		return errors.Wrap(err, "local_fs")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(l.Config.SavePath, pathKey), content, 0o644), "local_fs")
}

func (l *LocalFS) Delete(_ context.Context, pathKey string) error {
	err := os.Remove(filepath.Join(l.Config.SavePath, pathKey))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "local_fs")
	}
	return nil
}

func (l *LocalFS) Close() error { return nil }
