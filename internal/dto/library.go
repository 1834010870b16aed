package dto

// LibraryExportRequest 导出资料库请求
type LibraryExportRequest struct {
	TargetPath string `json:"targetPath"`
}

// LibraryImportRequest 导入资料库请求
type LibraryImportRequest struct {
	Path                 string   `json:"path" binding:"required"`
	Mode                 string   `json:"mode" binding:"omitempty,oneof=replace source"`
	CollectionNames      []string `json:"collectionNames" binding:"omitempty,dive,required,max=255"`
	CollectionNameSuffix string   `json:"collectionNameSuffix" binding:"max=64"`
}
