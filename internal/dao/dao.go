package dao

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haierkeys/library-backup-service/internal/model"
	"github.com/haierkeys/library-backup-service/pkg/writequeue"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Path            string
	TablePrefix     string
	AutoMigrate     bool
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	RunMode         string
}

// Dao holds the database handle and the write queue every write goes through.
// Dao 持有数据库连接，所有写操作经由写队列执行
type Dao struct {
	db     *gorm.DB
	wq     *writequeue.Manager
	logger *zap.Logger
}

// New 创建 Dao
func New(db *gorm.DB, wq *writequeue.Manager, logger *zap.Logger) *Dao {
	if logger == nil {
		logger = zap.NewNop()
	}
	if wq == nil {
		wq = writequeue.New(writequeue.DefaultConfig(), logger)
	}
	return &Dao{db: db, wq: wq, logger: logger}
}

// DB returns a session bound to ctx
func (d *Dao) DB(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

// ExecuteWrite runs fn on the write lane of key (a config id, 0 for store-wide writes).
// ExecuteWrite 在 key 对应的写通道上执行 fn
func (d *Dao) ExecuteWrite(ctx context.Context, key int64, fn func(db *gorm.DB) error) error {
	err := d.wq.Execute(ctx, key, func() error {
		return fn(d.db.WithContext(ctx))
	})
	if errors.Is(err, writequeue.ErrQueueFull) || errors.Is(err, writequeue.ErrWriteTimeout) {
		d.logger.Warn("config store write rejected", zap.Int64("configId", key), zap.Error(err))
	}
	return err
}

// NewDBEngineWithConfig opens the sqlite database (WAL, busy timeout) and migrates it.
// NewDBEngineWithConfig 打开 sqlite 数据库并执行迁移
func NewDBEngineWithConfig(c DatabaseConfig, lg *zap.Logger) (*gorm.DB, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	dsn, err := sqliteDSN(c.Path)
	if err != nil {
		return nil, err
	}

	level := logger.Silent
	if c.RunMode == "debug" {
		level = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(zapWriter{lg}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   c.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if c.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	}

	if c.AutoMigrate {
		if err := model.AutoMigrate(db); err != nil {
			return nil, errors.Wrap(err, "auto migrate")
		}
	}
	return db, nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		if path == "" {
			path = ":memory:"
		}
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "create database directory")
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
}

// zapWriter adapts zap to gorm's logger.Writer
type zapWriter struct {
	l *zap.Logger
}

func (w zapWriter) Printf(format string, args ...any) {
	w.l.Debug(fmt.Sprintf(format, args...), zap.String("component", "gorm"))
}
