package service

import (
	"context"
	"io"
	"strings"

	"github.com/haierkeys/library-backup-service/internal/dto"
	"github.com/haierkeys/library-backup-service/internal/library"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/fileurl"

	"go.uber.org/zap"
)

// LibraryService exposes library export, import and the zip download
// LibraryService 资料库导入导出及打包下载
type LibraryService interface {
	Export(ctx context.Context, targetPath string) (*library.ExportResult, error)
	Import(ctx context.Context, req *dto.LibraryImportRequest) (*library.ImportResult, error)
	Archive(ctx context.Context, w io.Writer, includeAudio bool) (int, error)
}

type libraryService struct {
	lib    library.Library
	logger *zap.Logger
}

// NewLibraryService 创建 LibraryService 实例
func NewLibraryService(lib library.Library, lg *zap.Logger) LibraryService {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &libraryService{lib: lib, logger: lg.Named("library")}
}

func (s *libraryService) Export(ctx context.Context, targetPath string) (*library.ExportResult, error) {
	return s.lib.Export(ctx, strings.TrimSpace(targetPath))
}

// Import checks the source path before delegating
func (s *libraryService) Import(ctx context.Context, req *dto.LibraryImportRequest) (*library.ImportResult, error) {
	path := strings.TrimSpace(req.Path)
	if !fileurl.IsDir(path) || !fileurl.IsReadable(path) {
		return nil, code.ErrorPathNotReadable.WithDetails(path)
	}
	return s.lib.Import(ctx, path, library.ImportOptions{
		Mode:                 library.ImportMode(req.Mode),
		CollectionNames:      req.CollectionNames,
		CollectionNameSuffix: req.CollectionNameSuffix,
	})
}

func (s *libraryService) Archive(ctx context.Context, w io.Writer, includeAudio bool) (int, error) {
	n, err := s.lib.Archive(ctx, w, includeAudio)
	if err != nil {
		s.logger.Warn("library archive aborted", zap.Int("files", n), zap.Error(err))
	}
	return n, err
}
