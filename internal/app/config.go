// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/workerpool"
	"github.com/haierkeys/library-backup-service/pkg/writequeue"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file
// 覆盖配置文件中密钥的环境变量
const (
	EnvEncryptionSecret  = "LBS_ENCRYPTION_SECRET"
	EnvOAuthClientID     = "LBS_OAUTH_CLIENT_ID"
	EnvOAuthClientSecret = "LBS_OAUTH_CLIENT_SECRET"
	EnvAuthToken         = "LBS_AUTH_TOKEN"
)

// AppConfig 应用配置
type AppConfig struct {
	File     string         `yaml:"-"` // 配置文件路径，不序列化
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	App      AppSettings    `yaml:"app"`
	Security SecurityConfig `yaml:"security"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Library  LibraryConfig  `yaml:"library"`
	Backup   BackupConfig   `yaml:"backup"`
	Share    ShareConfig    `yaml:"share"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Batch    BatchConfig    `yaml:"batch"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string `yaml:"level" default:"info"`
	// File 日志文件路径，为空时仅输出到 stderr
	File string `yaml:"file" default:"storage/logs/log.log"`
	// Production 是否启用 JSON 输出
	Production bool `yaml:"production" default:"true"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// RunMode 运行模式
	RunMode string `yaml:"run-mode" default:"release"`
	// HttpPort HTTP 端口
	HttpPort string `yaml:"http-port" default:":9100"`
	// ReadTimeout 读取超时（秒）
	ReadTimeout int `yaml:"read-timeout" default:"60"`
	// WriteTimeout 写入超时（秒），下载接口按流输出，不宜过短
	WriteTimeout int `yaml:"write-timeout" default:"600"`
	// PrivateHttpListen 私有 HTTP 监听地址（metrics、pprof）
	PrivateHttpListen string `yaml:"private-http-listen" default:"127.0.0.1:9101"`
	// CorsOrigins 允许的跨域来源，为空时允许全部
	CorsOrigins []string `yaml:"cors-origins"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// EncryptionSecret derives repository passwords and seals stored credentials. Required.
	// EncryptionSecret 用于派生仓库密码并加密存储的凭据，必填
	EncryptionSecret string `yaml:"encryption-secret"`
	// AuthToken 静态 API Token，为空时不校验
	AuthToken string `yaml:"auth-token"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path SQLite 数据库文件路径
	Path string `yaml:"path" default:"storage/database/backup.sqlite3"`
	// TablePrefix 表前缀
	TablePrefix string `yaml:"table-prefix"`
	// AutoMigrate 是否启用自动迁移
	AutoMigrate bool `yaml:"auto-migrate" default:"true"`
	// MaxIdleConns 最大闲置连接数
	MaxIdleConns int `yaml:"max-idle-conns" default:"2"`
	// MaxOpenConns 最大打开连接数
	MaxOpenConns int `yaml:"max-open-conns" default:"4"`
	// ConnMaxLifetime 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn-max-lifetime" default:"30m"`
}

// AppSettings 应用设置
type AppSettings struct {
	// DefaultContextTimeout 默认上下文超时时间
	DefaultContextTimeout time.Duration `yaml:"default-context-timeout" default:"60s"`
	// TempPath 临时目录
	TempPath string `yaml:"temp-path" default:"storage/temp"`

	// Worker Pool 配置
	WorkerPoolMaxWorkers int `yaml:"worker-pool-max-workers" default:"4"`
	WorkerPoolQueueSize  int `yaml:"worker-pool-queue-size" default:"32"`

	// Write Queue 配置
	WriteQueueCapacity int           `yaml:"write-queue-capacity" default:"64"`
	WriteQueueTimeout  time.Duration `yaml:"write-queue-timeout" default:"30s"`
	WriteQueueIdleTime time.Duration `yaml:"write-queue-idle-time" default:"5m"`
}

// TracerConfig 请求追踪配置
type TracerConfig struct {
	// Enabled 是否启用追踪
	Enabled bool `yaml:"enabled" default:"true"`
	// Header 追踪 ID 请求头名称，默认 X-Trace-ID
	Header string `yaml:"header" default:"X-Trace-ID"`
}

// LibraryConfig 资料库配置
type LibraryConfig struct {
	// Root 资料库根目录，顶层目录为收藏集
	Root string `yaml:"root" default:"storage/library"`
	// ExportRoot 导出目录
	ExportRoot      string   `yaml:"export-root" default:"storage/exports"`
	AudioExtensions []string `yaml:"audio-extensions"`
}

// BackupConfig 备份配置
type BackupConfig struct {
	ResticBinary   string        `yaml:"restic-binary" default:"restic"`
	CacheDir       string        `yaml:"cache-dir" default:"storage/restic-cache"`
	Host           string        `yaml:"host" default:"library-backup"`
	Excludes       []string      `yaml:"excludes"`
	BackupTimeout  time.Duration `yaml:"backup-timeout" default:"6h"`
	CommandTimeout time.Duration `yaml:"command-timeout" default:"5m"`
	// LogRetention 每个配置保留的日志条数
	LogRetention int           `yaml:"log-retention" default:"50"`
	ProbeTimeout time.Duration `yaml:"probe-timeout" default:"15s"`
	// TickInterval 计划备份检查间隔
	TickInterval time.Duration `yaml:"tick-interval" default:"1m"`
	// StatusFailureLimit 连续探测失败多少次后降级
	StatusFailureLimit int           `yaml:"status-failure-limit" default:"3"`
	StatusCooldown     time.Duration `yaml:"status-cooldown" default:"1m"`
	RunAllParallel     int           `yaml:"run-all-parallel" default:"4"`
}

// ShareConfig rclone and quick share configuration
// ShareConfig rclone 与快速分享配置
type ShareConfig struct {
	RcloneBinary string `yaml:"rclone-binary" default:"rclone"`
	// ConfigFile rclone 配置文件，为空时使用 rclone 默认位置
	ConfigFile string `yaml:"config-file"`
	// Remote 共享远端名称
	Remote string `yaml:"remote" default:"library-share"`
	// Root 远端上存放资料库的目录
	Root string `yaml:"root" default:"libraries"`
	// InitScript 可选的初始化脚本
	InitScript     string            `yaml:"init-script"`
	Backend        string            `yaml:"backend" default:"drive"`
	BackendOptions map[string]string `yaml:"backend-options"`
	PullRoot       string            `yaml:"pull-root" default:"storage/pulls"`
	Timeout        time.Duration     `yaml:"timeout" default:"30m"`
	ProbeTimeout   time.Duration     `yaml:"probe-timeout" default:"15s"`
	// StagingRoot 快速分享发送前的导出目录，为空时使用资料库导出目录
	StagingRoot string `yaml:"staging-root" default:"storage/staging"`
	KeepStaging bool   `yaml:"keep-staging"`
}

// OAuthConfig Google Drive OAuth 配置
type OAuthConfig struct {
	ClientID     string `yaml:"client-id"`
	ClientSecret string `yaml:"client-secret"`
	// RedirectURL 必须指向 /api/backup/gdrive/callback
	RedirectURL string `yaml:"redirect-url" default:"http://localhost:9100/api/backup/gdrive/callback"`
	// FrontendRedirect 授权完成后浏览器跳转地址
	FrontendRedirect string        `yaml:"frontend-redirect" default:"/"`
	PendingTTL       time.Duration `yaml:"pending-ttl" default:"10m"`
	SweepInterval    time.Duration `yaml:"sweep-interval" default:"5m"`
}

// BatchConfig 批处理分析配置
type BatchConfig struct {
	// AnalysisURL 分析服务地址，为空时批处理接口不可用
	AnalysisURL   string        `yaml:"analysis-url"`
	AnalysisToken string        `yaml:"analysis-token"`
	Timeout       time.Duration `yaml:"timeout" default:"2m"`
}

// LoadConfig 从文件加载配置
// 返回配置实例和配置文件的绝对路径
func LoadConfig(f string) (*AppConfig, string, error) {
	realpath, err := filepath.Abs(f)
	if err != nil {
		return nil, "", err
	}
	realpath = filepath.Clean(realpath)

	c := new(AppConfig)
	c.File = realpath

	// 设置默认值
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "set default config failed")
	}

	file, err := os.ReadFile(realpath)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "read config file failed")
	}

	err = yaml.Unmarshal(file, c)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "parse config file failed")
	}

	// 再次设置默认值，以填充 YAML 中存在但值为空的字段
	// defaults.Set 只有在字段为该类型的零值时才会填充
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "re-set default config failed")
	}

	// .env next to the config file, then the working directory; missing files are fine
	_ = godotenv.Load(filepath.Join(filepath.Dir(realpath), ".env"))
	_ = godotenv.Load()
	c.ApplyEnv(os.LookupEnv)

	return c, realpath, nil
}

// ApplyEnv overrides secrets with non-empty environment values
// ApplyEnv 使用环境变量覆盖密钥配置
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Security.EncryptionSecret, EnvEncryptionSecret)
	set(&c.Security.AuthToken, EnvAuthToken)
	set(&c.OAuth.ClientID, EnvOAuthClientID)
	set(&c.OAuth.ClientSecret, EnvOAuthClientSecret)
}

// Validate reports settings the server cannot start without
// Validate 检查启动必需的配置
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Security.EncryptionSecret) == "" {
		return errors.New("security.encryption-secret is empty, set it in the config file or " + EnvEncryptionSecret)
	}
	if c.Library.Root == "" {
		return errors.New("library.root is empty")
	}
	if (c.OAuth.ClientID == "") != (c.OAuth.ClientSecret == "") {
		return errors.New("oauth.client-id and oauth.client-secret must be set together")
	}
	return nil
}

// Save 保存配置到文件
func (c *AppConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config failed")
	}

	err = os.WriteFile(c.File, data, 0600)
	if err != nil {
		return errors.Wrap(err, "write config file failed")
	}

	return nil
}

// GetWorkerPoolConfig 获取 Worker Pool 配置
func (c *AppConfig) GetWorkerPoolConfig() workerpool.Config {
	cfg := workerpool.DefaultConfig()
	cfg.Name = "backup"

	if c.App.WorkerPoolMaxWorkers > 0 {
		cfg.Workers = c.App.WorkerPoolMaxWorkers
	}
	if c.App.WorkerPoolQueueSize > 0 {
		cfg.QueueSize = c.App.WorkerPoolQueueSize
	}

	return cfg
}

// GetWriteQueueConfig 获取 Write Queue 配置
func (c *AppConfig) GetWriteQueueConfig() writequeue.Config {
	cfg := writequeue.DefaultConfig()

	if c.App.WriteQueueCapacity > 0 {
		cfg.Capacity = c.App.WriteQueueCapacity
	}
	if c.App.WriteQueueTimeout > 0 {
		cfg.WriteTimeout = c.App.WriteQueueTimeout
	}
	if c.App.WriteQueueIdleTime > 0 {
		cfg.IdleTimeout = c.App.WriteQueueIdleTime
	}

	return cfg
}
