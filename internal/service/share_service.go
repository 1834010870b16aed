package service

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haierkeys/library-backup-service/internal/dto"
	"github.com/haierkeys/library-backup-service/internal/library"
	"github.com/haierkeys/library-backup-service/internal/quickshare"
	"github.com/haierkeys/library-backup-service/internal/remote"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/logger"
	"github.com/haierkeys/library-backup-service/pkg/timex"

	"go.uber.org/zap"
)

// ShareService defines the share business service interface
// ShareService 定义共享业务服务接口
type ShareService interface {
	// Status 返回 rclone 能力探测结果，从不返回错误
	Status(ctx context.Context) *remote.Status
	Libraries(ctx context.Context) ([]*dto.ShareLibraryDTO, error)
	// GenerateCode 生成新的快速分享码
	GenerateCode() *dto.ShareCodeDTO
	Init(ctx context.Context) (*remote.CommandResult, error)

	Publish(ctx context.Context, name, source, version, note string) (*remote.CommandResult, error)
	Pull(ctx context.Context, name, version, target string) (*remote.PullResult, error)
	Sync(ctx context.Context, targetRoot string) (*remote.SyncResult, error)

	// Send exports the library and publishes it under the code's namespace
	// Send 导出资料库并以分享码对应的名称发布
	Send(ctx context.Context, shareCode string, scope quickshare.Scope, collections []string) (*dto.ShareSendDTO, error)
	// Receive pulls the latest version published under the code and imports it
	// Receive 下载分享码对应的最新版本并导入
	Receive(ctx context.Context, shareCode, target string, scope quickshare.Scope, collections []string) (*dto.ShareReceiveDTO, error)
}

// ShareRemote is the rclone adapter surface used for sharing
type ShareRemote interface {
	Init(ctx context.Context) (*remote.CommandResult, error)
	Status(ctx context.Context) *remote.Status
	Publish(ctx context.Context, name, source, version, note string) (*remote.CommandResult, error)
	Pull(ctx context.Context, name, version, target string) (*remote.PullResult, error)
	List(ctx context.Context) (map[string]*remote.Library, error)
	Sync(ctx context.Context, targetRoot string) (*remote.SyncResult, error)
}

type shareService struct {
	remote  ShareRemote
	library library.Library
	clock   timex.Clock
	metrics *Metrics
	cfg     ShareServiceConfig
	logger  *zap.Logger
	// codes is swappable in tests
	codes func() (string, bool)
}

// NewShareService creates ShareService instance
// 创建 ShareService 实例
func NewShareService(r ShareRemote, lib library.Library, clock timex.Clock, metrics *Metrics, cfg ShareServiceConfig, lg *zap.Logger) ShareService {
	if lg == nil {
		lg = zap.NewNop()
	}
	if clock == nil {
		clock = timex.System
	}
	return &shareService{
		remote:  r,
		library: lib,
		clock:   clock,
		metrics: metrics,
		cfg:     cfg,
		logger:  lg.Named("share"),
		codes:   quickshare.GenerateCode,
	}
}

func (s *shareService) Status(ctx context.Context) *remote.Status {
	return s.remote.Status(ctx)
}

// Libraries lists remote libraries, newest version last, with decoded quick-share notes
func (s *shareService) Libraries(ctx context.Context) ([]*dto.ShareLibraryDTO, error) {
	libs, err := s.remote.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ShareLibraryDTO, 0, len(libs))
	for _, l := range libs {
		item := &dto.ShareLibraryDTO{Name: l.Name, Latest: l.Latest, Versions: make([]dto.ShareVersionDTO, 0, len(l.Versions))}
		for _, v := range l.Versions {
			item.Versions = append(item.Versions, dto.ShareVersionDTO{
				Version:    v.Version,
				Note:       v.Note,
				TotalBytes: v.TotalBytes,
				Meta:       quickshare.DecodeNote(v.Note),
			})
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *shareService) GenerateCode() *dto.ShareCodeDTO {
	c, degraded := s.codes()
	if degraded {
		s.logger.Warn("secure random source unavailable, share code generated with math/rand")
	}
	return &dto.ShareCodeDTO{Code: c, LibraryName: quickshare.LibraryName(c), Degraded: degraded}
}

func (s *shareService) Init(ctx context.Context) (*remote.CommandResult, error) {
	res, err := s.remote.Init(ctx)
	s.metrics.shareOp("init", err)
	return res, err
}

func (s *shareService) Publish(ctx context.Context, name, source, version, note string) (*remote.CommandResult, error) {
	res, err := s.remote.Publish(ctx, name, source, version, note)
	s.metrics.shareOp("publish", err)
	return res, err
}

func (s *shareService) Pull(ctx context.Context, name, version, target string) (*remote.PullResult, error) {
	res, err := s.remote.Pull(ctx, name, version, target)
	s.metrics.shareOp("pull", err)
	return res, err
}

func (s *shareService) Sync(ctx context.Context, targetRoot string) (*remote.SyncResult, error) {
	res, err := s.remote.Sync(ctx, targetRoot)
	s.metrics.shareOp("sync", err)
	return res, err
}

func normalizeScope(scope quickshare.Scope, collections []string) (quickshare.Scope, []string, error) {
	if scope == "" {
		scope = quickshare.ScopeLibrary
	}
	if !scope.Valid() {
		return "", nil, code.ErrorInvalidParams.WithDetails("unknown scope: " + string(scope))
	}
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		if c = strings.TrimSpace(c); c != "" {
			names = append(names, c)
		}
	}
	if scope == quickshare.ScopeLibrary {
		names = nil
	}
	return scope, names, nil
}

func (s *shareService) Send(ctx context.Context, shareCode string, scope quickshare.Scope, collections []string) (*dto.ShareSendDTO, error) {
	c, ok := quickshare.NormalizeCode(shareCode)
	if !ok {
		return nil, code.ErrorShareCodeInvalid
	}
	scope, names, err := normalizeScope(scope, collections)
	if err != nil {
		return nil, err
	}
	if scope == quickshare.ScopeCollections && len(names) == 0 {
		return nil, code.ErrorInvalidParams.WithDetails("collections scope needs at least one collection")
	}

	name := quickshare.LibraryName(c)
	version := timex.VersionLabel(s.clock.Now())
	log := s.logger.With(zap.String(logger.FieldLibrary, name), zap.String(logger.FieldVersion, version))

	staging := ""
	if s.cfg.StagingRoot != "" {
		staging = filepath.Join(s.cfg.StagingRoot, name, version)
	}
	exp, err := s.library.Export(ctx, staging)
	if err != nil {
		s.metrics.shareOp("send", err)
		return nil, err
	}
	if !s.cfg.KeepStaging {
		defer func() {
			if err := os.RemoveAll(exp.ExportPath); err != nil {
				log.Warn("staging copy not removed", zap.String(logger.FieldPath, exp.ExportPath), zap.Error(err))
			}
		}()
	}

	note := quickshare.EncodeNote(quickshare.Note{Code: c, Scope: scope, Collections: names})
	if _, err := s.remote.Publish(ctx, name, exp.ExportPath, version, note); err != nil {
		s.metrics.shareOp("send", err)
		return nil, err
	}
	s.metrics.shareOp("send", nil)
	log.Info("quick share sent", zap.String("scope", string(scope)), zap.Int("files", exp.Files))

	return &dto.ShareSendDTO{
		Code:        c,
		LibraryName: name,
		Version:     version,
		ExportPath:  exp.ExportPath,
		Files:       exp.Files,
		Note:        note,
	}, nil
}

// publishedNote finds the decoded note of version in the listing
func (s *shareService) publishedNote(ctx context.Context, name, version string) *quickshare.Note {
	libs, err := s.remote.List(ctx)
	if err != nil {
		s.logger.Warn("list shared libraries for note", zap.String(logger.FieldLibrary, name), zap.Error(err))
		return nil
	}
	lib, ok := libs[name]
	if !ok {
		return nil
	}
	for _, v := range lib.Versions {
		if v.Version == version {
			return quickshare.DecodeNote(v.Note)
		}
	}
	return nil
}

func (s *shareService) Receive(ctx context.Context, shareCode, target string, scope quickshare.Scope, collections []string) (*dto.ShareReceiveDTO, error) {
	c, ok := quickshare.NormalizeCode(shareCode)
	if !ok {
		return nil, code.ErrorShareCodeInvalid
	}
	scope, names, err := normalizeScope(scope, collections)
	if err != nil {
		return nil, err
	}
	name := quickshare.LibraryName(c)

	pulled, err := s.remote.Pull(ctx, name, "", target)
	if err != nil {
		s.metrics.shareOp("receive", err)
		return nil, err
	}
	log := s.logger.With(zap.String(logger.FieldLibrary, name), zap.String(logger.FieldVersion, pulled.Version))

	opts := library.ImportOptions{Mode: library.ModeSource}
	if scope == quickshare.ScopeCollections {
		if len(names) == 0 {
			if n := s.publishedNote(ctx, name, pulled.Version); n != nil {
				names = n.Collections
			}
		}
		if len(names) == 0 {
			return nil, code.ErrorInvalidParams.WithDetails("no collections named and none recorded in the share")
		}
		opts = library.ImportOptions{Mode: library.ModeReplace, CollectionNames: names}
	}

	imported, err := s.library.Import(ctx, pulled.Target, opts)
	s.metrics.shareOp("receive", err)
	if err != nil {
		return nil, err
	}
	log.Info("quick share received", zap.String("scope", string(scope)), zap.Int("files", imported.Files))

	return &dto.ShareReceiveDTO{
		Code:        c,
		LibraryName: name,
		Version:     pulled.Version,
		Target:      pulled.Target,
		Import:      imported,
	}, nil
}
