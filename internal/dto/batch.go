package dto

// BatchStartRequest 启动批量重新分析请求
type BatchStartRequest struct {
	ItemIDs             []string `json:"itemIds" binding:"omitempty,dive,required"`
	Profile             string   `json:"profile" binding:"max=64"`
	Concurrency         int      `json:"concurrency"`
	IncludeFilenameTags bool     `json:"includeFilenameTags"`
	AllowAITagging      bool     `json:"allowAiTagging"`
}
