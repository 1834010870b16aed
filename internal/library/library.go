// Package library materializes the media library on disk: exports used as publish
// sources, imports of pulled copies and the zip download.
// Package library 资料库的导出、导入及 zip 下载
package library

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/fileurl"
	"github.com/haierkeys/library-backup-service/pkg/logger"
	"github.com/haierkeys/library-backup-service/pkg/timex"
	"github.com/haierkeys/library-backup-service/pkg/util"

	"go.uber.org/zap"
)

// ImportMode 导入模式
type ImportMode string

const (
	// ModeReplace replaces each imported collection wholesale
	ModeReplace ImportMode = "replace"
	// ModeSource merges the imported tree into the library as an additional source
	ModeSource ImportMode = "source"
)

func (m ImportMode) Valid() bool {
	return m == ModeReplace || m == ModeSource
}

// ImportOptions 导入选项
type ImportOptions struct {
	Mode                 ImportMode `json:"mode"`
	CollectionNames      []string   `json:"collectionNames,omitempty"`
	CollectionNameSuffix string     `json:"collectionNameSuffix,omitempty"`
}

// ImportResult 导入结果
type ImportResult struct {
	Mode        ImportMode `json:"mode"`
	Files       int        `json:"files"`
	Collections []string   `json:"collections"`
	Skipped     []string   `json:"skipped,omitempty"`
}

// ExportResult 导出结果
type ExportResult struct {
	ExportPath string `json:"exportPath"`
	Files      int    `json:"files"`
}

// Library is the import/export collaborator used by the share and library services.
// Library 资料库导入导出协作者
type Library interface {
	Export(ctx context.Context, targetPath string) (*ExportResult, error)
	Import(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error)
	Archive(ctx context.Context, w io.Writer, includeAudio bool) (int, error)
	Root() string
}

// Config 文件系统资料库配置
type Config struct {
	Root            string
	ExportRoot      string
	AudioExtensions []string
}

// FSLibrary keeps the library as a directory tree whose top-level folders are collections.
// FSLibrary 以目录树保存资料库，顶层目录即收藏集
type FSLibrary struct {
	cfg    Config
	audio  map[string]bool
	clock  timex.Clock
	logger *zap.Logger
}

var defaultAudioExtensions = []string{".wav", ".aif", ".aiff", ".flac", ".mp3", ".ogg", ".m4a"}

// NewFS 创建文件系统资料库
func NewFS(cfg Config, clock timex.Clock, lg *zap.Logger) *FSLibrary {
	if lg == nil {
		lg = zap.NewNop()
	}
	if clock == nil {
		clock = timex.System
	}
	if len(cfg.AudioExtensions) == 0 {
		cfg.AudioExtensions = defaultAudioExtensions
	}
	audio := make(map[string]bool, len(cfg.AudioExtensions))
	for _, ext := range cfg.AudioExtensions {
		audio[strings.ToLower(ext)] = true
	}
	return &FSLibrary{cfg: cfg, audio: audio, clock: clock, logger: lg.Named("library")}
}

func (l *FSLibrary) Root() string {
	return l.cfg.Root
}

// Export copies the library to targetPath, or to a timestamped folder under the export root.
// Export 将资料库复制到 targetPath（缺省为导出目录下的时间戳目录）
func (l *FSLibrary) Export(ctx context.Context, targetPath string) (*ExportResult, error) {
	if !fileurl.IsDir(l.cfg.Root) {
		return nil, code.ErrorPathNotReadable.WithDetails(l.cfg.Root)
	}
	if targetPath == "" {
		targetPath = filepath.Join(l.cfg.ExportRoot, timex.VersionLabel(l.clock.Now()))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fileurl.CreatePath(targetPath, 0o755); err != nil {
		return nil, code.ErrorLibraryCollaborator.WithDetails(err.Error())
	}
	files, err := fileurl.CopyDir(l.cfg.Root, targetPath)
	if err != nil {
		return nil, code.ErrorLibraryCollaborator.WithDetails(err.Error())
	}
	l.logger.Info("library exported", zap.String(logger.FieldPath, targetPath), zap.Int("files", files))
	return &ExportResult{ExportPath: targetPath, Files: files}, nil
}

// Import brings the tree at src into the library. Without collection names every
// top-level entry is imported; a suffix renames the imported collections.
// Import 导入 src 下的内容，可按收藏集筛选并为其添加后缀
func (l *FSLibrary) Import(ctx context.Context, src string, opts ImportOptions) (*ImportResult, error) {
	if !fileurl.IsDir(src) || !fileurl.IsReadable(src) {
		return nil, code.ErrorPathNotReadable.WithDetails(src)
	}
	if opts.Mode == "" {
		opts.Mode = ModeSource
	}
	if !opts.Mode.Valid() {
		return nil, code.ErrorInvalidParams.WithDetails("unknown import mode: " + string(opts.Mode))
	}
	if opts.CollectionNameSuffix != "" && strings.ContainsAny(opts.CollectionNameSuffix, `/\`) {
		return nil, code.ErrorInvalidParams.WithDetails("collection name suffix must not contain path separators")
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, code.ErrorPathNotReadable.WithDetails(err.Error())
	}
	wanted := map[string]bool{}
	for _, n := range opts.CollectionNames {
		wanted[n] = true
	}

	res := &ImportResult{Mode: opts.Mode, Collections: []string{}}
	seen := map[string]bool{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if len(wanted) > 0 && (!e.IsDir() || !wanted[name]) {
			continue
		}
		seen[name] = true

		from := filepath.Join(src, name)
		if !e.IsDir() {
			if err := fileurl.CopyFile(from, filepath.Join(l.cfg.Root, name)); err != nil {
				return res, code.ErrorLibraryCollaborator.WithDetails(err.Error())
			}
			res.Files++
			continue
		}

		dest := name + opts.CollectionNameSuffix
		if !fileurl.SafeName(dest) {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		to := filepath.Join(l.cfg.Root, dest)
		if opts.Mode == ModeReplace {
			if err := os.RemoveAll(to); err != nil {
				return res, code.ErrorLibraryCollaborator.WithDetails(err.Error())
			}
		}
		n, err := fileurl.CopyDir(from, to)
		if err != nil {
			return res, code.ErrorLibraryCollaborator.WithDetails(err.Error())
		}
		res.Files += n
		res.Collections = append(res.Collections, dest)
	}

	for _, n := range opts.CollectionNames {
		if !seen[n] {
			res.Skipped = append(res.Skipped, n)
		}
	}
	l.logger.Info("library imported",
		zap.String(logger.FieldPath, src),
		zap.String("mode", string(opts.Mode)),
		zap.Int("files", res.Files),
		zap.Strings("collections", res.Collections))
	return res, nil
}

// Archive streams the library as zip. Audio files are left out unless includeAudio.
// Archive 以 zip 流式输出资料库，可选择是否包含音频文件
func (l *FSLibrary) Archive(ctx context.Context, w io.Writer, includeAudio bool) (int, error) {
	if !fileurl.IsDir(l.cfg.Root) {
		return 0, code.ErrorPathNotReadable.WithDetails(l.cfg.Root)
	}
	return util.ZipDir(w, l.cfg.Root, func(rel string, _ fs.DirEntry) bool {
		if ctx.Err() != nil {
			return false
		}
		if strings.HasPrefix(path.Base(rel), ".") {
			return false
		}
		return includeAudio || !l.audio[strings.ToLower(path.Ext(rel))]
	})
}
