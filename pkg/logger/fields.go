package logger

// 统一的日志字段命名常量
// 用于确保整个项目中日志字段命名的一致性，便于日志查询和分析
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldConfigID 备份配置 ID 字段
	FieldConfigID = "configId"

	// FieldLogID 备份日志 ID 字段
	FieldLogID = "logId"

	// FieldBackupType 目标类型字段
	FieldBackupType = "backupType"

	// FieldJobID 批处理任务 ID 字段
	FieldJobID = "jobId"

	// FieldItemID 批处理条目 ID 字段
	FieldItemID = "itemId"

	// FieldLibrary 共享资料库名称字段
	FieldLibrary = "library"

	// FieldVersion 版本字段
	FieldVersion = "version"

	// FieldCommand 子进程命令字段
	FieldCommand = "command"

	// FieldExitCode 子进程退出码字段
	FieldExitCode = "exitCode"

	// FieldAction 操作类型字段
	FieldAction = "action"

	// FieldPath 文件路径字段
	FieldPath = "path"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldError 错误信息字段
	FieldError = "error"
)
