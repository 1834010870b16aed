package app

// LimitConfig bounds the ?limit= query parameter
// LimitConfig 查询条数限制
type LimitConfig struct {
	Default int
	Min     int
	Max     int
}

// LogLimit is used by the backup log listing
var LogLimit = LimitConfig{Default: 20, Min: 1, Max: 200}

// ClampLimit applies cfg to n; n <= 0 means "not given".
// ClampLimit 将 n 限制在 [Min, Max]，未指定时取默认值
func ClampLimit(n int, cfg LimitConfig) int {
	if n == 0 {
		return cfg.Default
	}
	if n < cfg.Min {
		return cfg.Min
	}
	if n > cfg.Max {
		return cfg.Max
	}
	return n
}
