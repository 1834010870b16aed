package code

import "net/http"

var (
	Success         = NewSuss(1, lang{en: "Success", zh_cn: "成功"})
	SuccessCreate   = NewSuss(2, lang{en: "Created successfully", zh_cn: "创建成功"})
	SuccessUpdate   = NewSuss(3, lang{en: "Updated successfully", zh_cn: "更新成功"})
	SuccessDelete   = NewSuss(4, lang{en: "Deleted successfully", zh_cn: "删除成功"})
	SuccessDegraded = NewSuss(5, lang{en: "Success (degraded)", zh_cn: "成功（降级）"})

	Failed                = NewError(400, http.StatusInternalServerError, lang{en: "Failed", zh_cn: "失败"})
	ErrorServerInternal   = NewError(500, http.StatusInternalServerError, lang{en: "Internal server error", zh_cn: "服务器内部错误"})
	ErrorNotFoundAPI      = NewError(404, http.StatusNotFound, lang{en: "API not found", zh_cn: "接口不存在"})
	ErrorInvalidParams    = NewError(1001, http.StatusBadRequest, lang{en: "Invalid parameters", zh_cn: "参数错误"})
	ErrorTooManyRequests  = NewError(1002, http.StatusTooManyRequests, lang{en: "Too many requests", zh_cn: "请求过多"})
	ErrorInvalidAuthToken = NewError(1003, http.StatusUnauthorized, lang{en: "Invalid auth token", zh_cn: "认证令牌无效"})
	ErrorRequestTimeout   = NewError(1004, http.StatusGatewayTimeout, lang{en: "Request timeout", zh_cn: "请求超时"})
)

// Backup config store
// 备份配置
var (
	ErrorBackupConfigNotFound = NewError(2001, http.StatusNotFound, lang{en: "Backup config not found", zh_cn: "备份配置不存在"})
	ErrorInvalidConfig        = NewError(2002, http.StatusBadRequest, lang{en: "Invalid backup config", zh_cn: "备份配置无效"})
	ErrorNoBackupYet          = NewError(2003, http.StatusNotFound, lang{en: "No successful backup yet", zh_cn: "尚无成功的备份"})
	ErrorBackupConfigDisabled = NewError(2004, http.StatusConflict, lang{en: "Backup config is disabled", zh_cn: "备份配置已禁用"})
	ErrorWriteQueue           = NewError(2005, http.StatusServiceUnavailable, lang{en: "Config store is busy", zh_cn: "配置存储繁忙"})
)

// Backup execution
// 备份执行
var (
	ErrorAlreadyRunning    = NewError(3001, http.StatusConflict, lang{en: "Backup already running", zh_cn: "备份正在运行"})
	ErrorToolUnavailable   = NewError(3002, http.StatusServiceUnavailable, lang{en: "Backup tool is not installed", zh_cn: "备份工具不可用"})
	ErrorBackupFailed      = NewError(3003, http.StatusInternalServerError, lang{en: "Backup failed", zh_cn: "备份失败"})
	ErrorTimeout           = NewError(3004, http.StatusGatewayTimeout, lang{en: "Operation timed out", zh_cn: "操作超时"})
	ErrorParse             = NewError(3005, http.StatusInternalServerError, lang{en: "Unexpected tool output", zh_cn: "工具输出无法解析"})
	ErrorRemoteUnreachable = NewError(3006, http.StatusBadGateway, lang{en: "Remote is unreachable", zh_cn: "远端不可达"})
	ErrorRunQueueFull      = NewError(3007, http.StatusServiceUnavailable, lang{en: "Too many backups queued", zh_cn: "排队的备份过多"})
)

// OAuth
var (
	ErrorAuthExpired        = NewError(4001, http.StatusUnauthorized, lang{en: "Authorization expired, please reconnect", zh_cn: "授权已过期，请重新连接"})
	ErrorOAuthNotConfigured = NewError(4002, http.StatusServiceUnavailable, lang{en: "OAuth client is not configured", zh_cn: "未配置 OAuth 客户端"})
	ErrorOAuthStateInvalid  = NewError(4003, http.StatusBadRequest, lang{en: "Authorization request expired or unknown", zh_cn: "授权请求已过期或不存在"})
	ErrorOAuthExchange      = NewError(4004, http.StatusBadGateway, lang{en: "Authorization code exchange failed", zh_cn: "授权码交换失败"})
)

// Library and quick share
// 资料库与快速分享
var (
	ErrorPathNotReadable     = NewError(5001, http.StatusBadRequest, lang{en: "Path does not exist or is not readable", zh_cn: "路径不存在或不可读"})
	ErrorShareCodeInvalid    = NewError(5002, http.StatusBadRequest, lang{en: "Invalid share code", zh_cn: "分享码无效"})
	ErrorShareCommand        = NewError(5003, http.StatusBadGateway, lang{en: "Sync command failed", zh_cn: "同步命令执行失败"})
	ErrorShareNotFound       = NewError(5004, http.StatusNotFound, lang{en: "Shared library not found", zh_cn: "共享资料库不存在"})
	ErrorLibraryCollaborator = NewError(5005, http.StatusBadGateway, lang{en: "Library operation failed", zh_cn: "资料库操作失败"})
)

// Batch job
// 批处理任务
var (
	ErrorJobAlreadyRunning = NewError(6001, http.StatusConflict, lang{en: "A batch job is already running", zh_cn: "批处理任务正在运行"})
	ErrorJobNoItems        = NewError(6002, http.StatusBadRequest, lang{en: "No items to process", zh_cn: "没有需要处理的项目"})
	ErrorBatchDisabled     = NewError(6003, http.StatusServiceUnavailable, lang{en: "Analysis service is not configured", zh_cn: "未配置分析服务"})
)
