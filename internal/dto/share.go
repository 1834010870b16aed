package dto

import "github.com/haierkeys/library-backup-service/internal/quickshare"

// ShareCodeDTO is a freshly generated quick-share code
type ShareCodeDTO struct {
	Code        string `json:"code"`
	LibraryName string `json:"libraryName"`
	Degraded    bool   `json:"degraded"`
}

// SharePublishRequest publishes a library. With Code set the library is exported and
// sent under the code's namespace; otherwise Name and Source are published as is.
// SharePublishRequest 发布资料库，带分享码时走快速分享
type SharePublishRequest struct {
	Code        string   `json:"code" binding:"omitempty,share_code"`
	Scope       string   `json:"scope" binding:"omitempty,oneof=library collections"`
	Collections []string `json:"collections" binding:"omitempty,dive,required,max=255"`

	Name    string `json:"name" binding:"omitempty,library_name"`
	Source  string `json:"source"`
	Version string `json:"version" binding:"omitempty,version_label"`
	Note    string `json:"note" binding:"max=4096"`
}

// SharePullRequest downloads a library. With Code set the download is imported
// into the local library afterwards.
// SharePullRequest 下载资料库，带分享码时下载后导入
type SharePullRequest struct {
	Code        string   `json:"code" binding:"omitempty,share_code"`
	Scope       string   `json:"scope" binding:"omitempty,oneof=library collections"`
	Collections []string `json:"collections" binding:"omitempty,dive,required,max=255"`

	Name    string `json:"name" binding:"omitempty,library_name"`
	Version string `json:"version" binding:"omitempty,version_label"`
	Target  string `json:"target"`
}

// ShareSyncRequest 同步全部资料库请求
type ShareSyncRequest struct {
	TargetRoot string `json:"targetRoot"`
}

// ShareVersionDTO 资料库版本
type ShareVersionDTO struct {
	Version    string           `json:"version"`
	Note       string           `json:"note"`
	TotalBytes int64            `json:"totalBytes"`
	Meta       *quickshare.Note `json:"meta,omitempty"`
}

// ShareLibraryDTO 远端资料库
type ShareLibraryDTO struct {
	Name     string            `json:"name"`
	Versions []ShareVersionDTO `json:"versions"`
	Latest   string            `json:"latest"`
}

// ShareSendDTO 快速分享发送结果
type ShareSendDTO struct {
	Code        string `json:"code"`
	LibraryName string `json:"libraryName"`
	Version     string `json:"version"`
	ExportPath  string `json:"exportPath"`
	Files       int    `json:"files"`
	Note        string `json:"note"`
}

// ShareReceiveDTO 快速分享接收结果
type ShareReceiveDTO struct {
	Code        string `json:"code"`
	LibraryName string `json:"libraryName"`
	Version     string `json:"version"`
	Target      string `json:"target"`
	Import      any    `json:"import"`
}
