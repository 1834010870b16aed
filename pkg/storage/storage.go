// Package storage writes to backup destinations directly, used to check a
// destination is reachable and writable before handing it to the snapshot tool.
// Package storage 直接访问备份目的地，用于在备份前检测连通性与写权限
package storage

import (
	"context"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/storage/aws_s3"
	"github.com/haierkeys/library-backup-service/pkg/storage/local_fs"
	"github.com/haierkeys/library-backup-service/pkg/storage/sftp"
	"github.com/haierkeys/library-backup-service/pkg/storage/webdav"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Type = string

const (
	S3     Type = "s3"
	WebDAV Type = "webdav"
	SFTP   Type = "sftp"
	LOCAL  Type = "local"
)

// StorageTypeMap lists destination types reachable without OAuth
var StorageTypeMap = map[Type]bool{
	S3:     true,
	WebDAV: true,
	SFTP:   true,
	LOCAL:  true,
}

// Config is the union of destination settings; only the fields of Type are read.
// Config 统一的目的地配置
type Config struct {
	Type Type

	// S3
	Endpoint        string
	Region          string
	BucketName      string
	AccessKeyID     string
	AccessKeySecret string

	// WebDAV
	URL string

	// WebDAV / SFTP
	User     string
	Password string

	// SFTP
	Host       string
	Port       int
	PrivateKey string
	HostKey    string

	// Path is the key prefix (S3), folder (WebDAV/SFTP) or directory (local)
	Path string
}

// Storager is the write surface every destination client offers.
type Storager interface {
	SendContent(ctx context.Context, pathKey string, content []byte) error
	Delete(ctx context.Context, pathKey string) error
	Close() error
}

// NewClient 按类型创建目的地客户端
func NewClient(ctx context.Context, cfg *Config) (Storager, error) {
	if cfg == nil {
		return nil, code.ErrorInvalidConfig.WithDetails("storage config is empty")
	}
	switch cfg.Type {
	case LOCAL:
		return local_fs.NewClient(&local_fs.Config{SavePath: cfg.Path})
	case S3:
		return aws_s3.NewClient(ctx, &aws_s3.Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			BucketName:      cfg.BucketName,
			AccessKeyID:     cfg.AccessKeyID,
			AccessKeySecret: cfg.AccessKeySecret,
			Prefix:          cfg.Path,
		})
	case WebDAV:
		return webdav.NewClient(&webdav.Config{
			URL:      cfg.URL,
			User:     cfg.User,
			Password: cfg.Password,
			Path:     cfg.Path,
		})
	case SFTP:
		return sftp.NewClient(ctx, &sftp.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			User:       cfg.User,
			Password:   cfg.Password,
			PrivateKey: cfg.PrivateKey,
			HostKey:    cfg.HostKey,
			Path:       cfg.Path,
		})
	}
	return nil, code.ErrorInvalidConfig.WithDetails("unsupported storage type: " + cfg.Type)
}

// ProbeResult is what a connectivity check reports
type ProbeResult struct {
	Type     Type          `json:"type"`
	OK       bool          `json:"ok"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
	MarkerID string        `json:"-"`
}

// Probe writes and removes a small marker file at the destination.
// Probe 在目的地写入并删除一个探测文件
func Probe(ctx context.Context, cfg *Config, logger *zap.Logger) (*ProbeResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	res := &ProbeResult{Type: cfg.Type, MarkerID: uuid.NewString()}

	client, err := NewClient(ctx, cfg)
	if err != nil {
		return fail(res, start, err)
	}
	defer client.Close()

	key := ".library-backup-probe-" + res.MarkerID
	if err := client.SendContent(ctx, key, []byte(start.UTC().Format(time.RFC3339))); err != nil {
		return fail(res, start, errors.Wrap(err, "write probe"))
	}
	if err := client.Delete(ctx, key); err != nil {
		logger.Warn("probe marker not removed", zap.String("type", cfg.Type), zap.String("key", key), zap.Error(err))
	}

	res.OK = true
	res.Latency = time.Since(start)
	return res, nil
}

func fail(res *ProbeResult, start time.Time, err error) (*ProbeResult, error) {
	res.Latency = time.Since(start)
	res.Error = err.Error()
	return res, err
}
