package cmd

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bootstrapLogger 启动阶段日志器，配置加载前使用
// Used until the configured logger exists (config resolution, restarts).
var bootstrapLogger = newBootstrapLogger(os.Getenv)

// newBootstrapLogger builds a console logger on stderr.
// LBS_DEBUG (or DEBUG) switches it to debug level.
func newBootstrapLogger(getenv func(string) string) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if getenv("LBS_DEBUG") != "" || getenv("DEBUG") != "" {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller()).Named("bootstrap")
}
