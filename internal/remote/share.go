package remote

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/execx"
	"github.com/haierkeys/library-backup-service/pkg/fileurl"
	"github.com/haierkeys/library-backup-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NoteFile holds the free-text note of a published version
const NoteFile = ".share-note"

// Version is one immutable published copy of a library
type Version struct {
	Version    string `json:"version"`
	Note       string `json:"note"`
	TotalBytes int64  `json:"totalBytes"`
}

// Library 远端资料库
type Library struct {
	Name     string    `json:"name"`
	Versions []Version `json:"versions"`
	Latest   string    `json:"latest"`
}

// PullResult 下载结果
type PullResult struct {
	*CommandResult
	Version string `json:"version"`
	Target  string `json:"target"`
}

// SyncItem is the outcome for one library of a sync pass
type SyncItem struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Target  string `json:"target"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// SyncResult 全量同步结果
type SyncResult struct {
	TargetRoot string     `json:"targetRoot"`
	Items      []SyncItem `json:"items"`
}

func (a *Adapter) remotePath(parts ...string) string {
	return a.cfg.Remote + ":" + fileurl.JoinRemote(append([]string{a.cfg.Root}, parts...)...)
}

func checkName(kind, v string) error {
	if !fileurl.SafeName(v) || strings.HasPrefix(v, ".") {
		return code.ErrorInvalidConfig.WithDetails("invalid " + kind + ": " + v)
	}
	return nil
}

// Publish uploads source to <remote>:<root>/<name>/<version> and stores note next to it.
// The caller supplies version; published versions are never overwritten.
// Publish 上传 source 到指定版本目录，版本号由调用方提供且不可覆盖
func (a *Adapter) Publish(ctx context.Context, name, source, version, note string) (*CommandResult, error) {
	if err := checkName("library name", name); err != nil {
		return nil, err
	}
	if version == "" {
		return nil, code.ErrorInvalidConfig.WithDetails("version is required")
	}
	if err := checkName("version", version); err != nil {
		return nil, err
	}
	if !fileurl.IsReadable(source) {
		return nil, code.ErrorPathNotReadable.WithDetails(source)
	}

	existing, err := a.versions(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, v := range existing {
		if v == version {
			return nil, code.ErrorInvalidConfig.WithDetails("version " + version + " of " + name + " already published")
		}
	}

	dest := a.remotePath(name, version)
	out, err := a.run(ctx, execx.Command{Args: []string{"copy", source, dest}})
	if err != nil {
		return out, err
	}
	if note != "" {
		noteOut, err := a.run(ctx, execx.Command{
			Args:    []string{"rcat", dest + "/" + NoteFile},
			Stdin:   strings.NewReader(note),
			Timeout: a.cfg.ProbeTimeout,
		})
		if err != nil {
			return noteOut, err
		}
	}

	a.logger.Info("library published",
		zap.String(logger.FieldLibrary, name),
		zap.String(logger.FieldVersion, version))
	return out, nil
}

// versions lists the version folders of name; a missing library yields none.
func (a *Adapter) versions(ctx context.Context, name string) ([]string, error) {
	out, err := a.run(ctx, execx.Command{
		Args:    []string{"lsf", "--dirs-only", a.remotePath(name)},
		Timeout: a.cfg.ProbeTimeout,
	})
	if err != nil {
		if out != nil && out.ExitCode == exitDirNotFound {
			return nil, nil
		}
		return nil, err
	}
	var vs []string
	for _, line := range strings.Split(out.Stdout, "\n") {
		if v := strings.TrimSuffix(strings.TrimSpace(line), "/"); v != "" {
			vs = append(vs, v)
		}
	}
	sort.Strings(vs)
	return vs, nil
}

// Pull downloads version (latest when empty) of name into target.
// Pull 下载指定版本（默认最新）到 target
func (a *Adapter) Pull(ctx context.Context, name, version, target string) (*PullResult, error) {
	if err := checkName("library name", name); err != nil {
		return nil, err
	}
	if version == "" {
		vs, err := a.versions(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(vs) == 0 {
			return nil, code.ErrorShareNotFound.WithDetails(name)
		}
		version = vs[len(vs)-1]
	} else if err := checkName("version", version); err != nil {
		return nil, err
	}
	if target == "" {
		target = filepath.Join(a.cfg.PullRoot, name)
	}
	if err := fileurl.CreatePath(target, 0o755); err != nil {
		return nil, err
	}

	out, err := a.run(ctx, execx.Command{
		Args: []string{"copy", a.remotePath(name, version), target, "--exclude", "/" + NoteFile},
	})
	res := &PullResult{CommandResult: out, Version: version, Target: target}
	if err != nil {
		return res, err
	}
	a.logger.Info("library pulled",
		zap.String(logger.FieldLibrary, name),
		zap.String(logger.FieldVersion, version),
		zap.String(logger.FieldPath, target))
	return res, nil
}

type lsEntry struct {
	Path  string `json:"Path"`
	Size  int64  `json:"Size"`
	IsDir bool   `json:"IsDir"`
}

// List enumerates every library under the share root with its versions and sizes.
// List 列出共享目录下的所有资料库及其版本
func (a *Adapter) List(ctx context.Context) (map[string]*Library, error) {
	out, err := a.run(ctx, execx.Command{
		Args:    []string{"lsjson", "-R", a.remotePath()},
		Timeout: a.cfg.ProbeTimeout * 4,
	})
	if err != nil {
		if out != nil && out.ExitCode == exitDirNotFound {
			return map[string]*Library{}, nil
		}
		return nil, err
	}

	var entries []lsEntry
	if err := json.Unmarshal([]byte(out.Stdout), &entries); err != nil {
		return nil, code.ErrorParse.WithDetails("rclone lsjson: " + err.Error())
	}

	type versionAcc struct {
		bytes   int64
		hasNote bool
	}
	acc := map[string]map[string]*versionAcc{}
	touch := func(name, version string) *versionAcc {
		if acc[name] == nil {
			acc[name] = map[string]*versionAcc{}
		}
		if version == "" {
			return nil
		}
		if acc[name][version] == nil {
			acc[name][version] = &versionAcc{}
		}
		return acc[name][version]
	}

	for _, e := range entries {
		parts := strings.SplitN(e.Path, "/", 3)
		switch {
		case len(parts) == 1:
			if e.IsDir {
				touch(parts[0], "")
			}
		case len(parts) == 2:
			if e.IsDir {
				touch(parts[0], parts[1])
			}
		default:
			v := touch(parts[0], parts[1])
			if e.IsDir {
				continue
			}
			if parts[2] == NoteFile {
				v.hasNote = true
				continue
			}
			v.bytes += e.Size
		}
	}

	libs := make(map[string]*Library, len(acc))
	type noteRef struct {
		lib *Library
		idx int
	}
	var notes []noteRef
	for name, versions := range acc {
		lib := &Library{Name: name, Versions: make([]Version, 0, len(versions))}
		for v := range versions {
			lib.Versions = append(lib.Versions, Version{Version: v, TotalBytes: versions[v].bytes})
		}
		sort.Slice(lib.Versions, func(i, j int) bool { return lib.Versions[i].Version < lib.Versions[j].Version })
		if n := len(lib.Versions); n > 0 {
			lib.Latest = lib.Versions[n-1].Version
		}
		for i, v := range lib.Versions {
			if versions[v.Version].hasNote {
				notes = append(notes, noteRef{lib: lib, idx: i})
			}
		}
		libs[name] = lib
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ref := range notes {
		g.Go(func() error {
			v := &ref.lib.Versions[ref.idx]
			res, err := a.run(gctx, execx.Command{
				Args:    []string{"cat", a.remotePath(ref.lib.Name, v.Version, NoteFile)},
				Timeout: a.cfg.ProbeTimeout,
			})
			if err != nil {
				a.logger.Warn("read share note failed",
					zap.String(logger.FieldLibrary, ref.lib.Name),
					zap.String(logger.FieldVersion, v.Version),
					zap.Error(err))
				return nil
			}
			v.Note = strings.TrimSpace(res.Stdout)
			return nil
		})
	}
	_ = g.Wait()

	return libs, nil
}

// Sync pulls the latest version of every library into targetRoot/<name>.
// One failing library does not stop the others.
// Sync 将每个资料库的最新版本拉取到 targetRoot 下
func (a *Adapter) Sync(ctx context.Context, targetRoot string) (*SyncResult, error) {
	libs, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	if targetRoot == "" {
		targetRoot = a.cfg.PullRoot
	}

	names := make([]string, 0, len(libs))
	for n := range libs {
		names = append(names, n)
	}
	sort.Strings(names)

	res := &SyncResult{TargetRoot: targetRoot, Items: make([]SyncItem, 0, len(names))}
	for _, n := range names {
		lib := libs[n]
		if lib.Latest == "" {
			continue
		}
		item := SyncItem{Name: n, Version: lib.Latest, Target: filepath.Join(targetRoot, n)}
		pr, err := a.Pull(ctx, n, lib.Latest, item.Target)
		if err != nil {
			item.Message = err.Error()
			if pr != nil && pr.CommandResult != nil {
				item.Message = ErrorMessage(pr.CommandResult)
			}
		} else {
			item.OK = true
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}
