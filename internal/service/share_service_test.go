package service

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/haierkeys/library-backup-service/internal/library"
	"github.com/haierkeys/library-backup-service/internal/quickshare"
	"github.com/haierkeys/library-backup-service/internal/remote"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/fileurl"
	"github.com/haierkeys/library-backup-service/pkg/timex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRemote stores published versions as directories under root
type memRemote struct {
	ShareRemote
	root     string
	pullRoot string

	mu    sync.Mutex
	notes map[string]map[string]string
}

func newMemRemote(t *testing.T) *memRemote {
	return &memRemote{root: t.TempDir(), pullRoot: t.TempDir(), notes: map[string]map[string]string{}}
}

func (m *memRemote) Publish(_ context.Context, name, source, version, note string) (*remote.CommandResult, error) {
	if version == "" {
		return nil, code.ErrorInvalidConfig
	}
	if _, err := fileurl.CopyDir(source, filepath.Join(m.root, name, version)); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notes[name] == nil {
		m.notes[name] = map[string]string{}
	}
	m.notes[name][version] = note
	return &remote.CommandResult{OK: true}, nil
}

func (m *memRemote) latest(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var vs []string
	for v := range m.notes[name] {
		vs = append(vs, v)
	}
	sort.Strings(vs)
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}

func (m *memRemote) Pull(_ context.Context, name, version, target string) (*remote.PullResult, error) {
	if version == "" {
		version = m.latest(name)
	}
	if version == "" {
		return nil, code.ErrorShareNotFound
	}
	if target == "" {
		target = filepath.Join(m.pullRoot, name)
	}
	if _, err := fileurl.CopyDir(filepath.Join(m.root, name, version), target); err != nil {
		return nil, err
	}
	return &remote.PullResult{CommandResult: &remote.CommandResult{OK: true}, Version: version, Target: target}, nil
}

func (m *memRemote) List(context.Context) (map[string]*remote.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*remote.Library{}
	for name, versions := range m.notes {
		lib := &remote.Library{Name: name}
		for v, note := range versions {
			lib.Versions = append(lib.Versions, remote.Version{Version: v, Note: note})
			if v > lib.Latest {
				lib.Latest = v
			}
		}
		out[name] = lib
	}
	return out, nil
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	}))
	sort.Strings(out)
	return out
}

type shareFixture struct {
	remote *memRemote
	clock  *timex.ManualClock
}

func (f *shareFixture) peer(t *testing.T, libRoot string) ShareService {
	lib := library.NewFS(library.Config{Root: libRoot, ExportRoot: t.TempDir()}, f.clock, nil)
	return NewShareService(f.remote, lib, f.clock, nil, ShareServiceConfig{StagingRoot: t.TempDir()}, nil)
}

func newShareFixture(t *testing.T) *shareFixture {
	return &shareFixture{
		remote: newMemRemote(t),
		clock:  timex.NewManualClock(time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)),
	}
}

func TestSendThenReceiveReproducesLibrary(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	srcRoot := t.TempDir()
	writeFile(t, srcRoot, "Drums/kick.wav", "kick")
	writeFile(t, srcRoot, "Drums/snare.wav", "snare")
	writeFile(t, srcRoot, "Pads/warm.wav", "pad")

	sent, err := f.peer(t, srcRoot).Send(ctx, "AB12CD34", quickshare.ScopeLibrary, nil)
	require.NoError(t, err)
	assert.Equal(t, "peer-ab12cd34", sent.LibraryName)
	assert.Equal(t, "20260504T083000Z", sent.Version)
	assert.Equal(t, 3, sent.Files)
	assert.Equal(t, "quick-share|code=AB12CD34|scope=library|collections=", sent.Note)
	assert.NoDirExists(t, sent.ExportPath, "staging copy is removed after publishing")

	dstRoot := t.TempDir()
	got, err := f.peer(t, dstRoot).Receive(ctx, " ab12cd34 ", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", got.Code)
	assert.Equal(t, sent.Version, got.Version)
	assert.Equal(t, listFiles(t, srcRoot), listFiles(t, got.Target))
	assert.Equal(t, listFiles(t, srcRoot), listFiles(t, dstRoot))
}

func TestReceiveCollectionsFallsBackToNote(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	srcRoot := t.TempDir()
	writeFile(t, srcRoot, "Drums/kick.wav", "new kick")
	writeFile(t, srcRoot, "Pads/warm.wav", "pad")
	_, err := f.peer(t, srcRoot).Send(ctx, "ZZ9PLURA", quickshare.ScopeCollections, []string{"Drums"})
	require.NoError(t, err)

	dstRoot := t.TempDir()
	writeFile(t, dstRoot, "Drums/old.wav", "old")
	got, err := f.peer(t, dstRoot).Receive(ctx, "zz9plura", "", quickshare.ScopeCollections, nil)
	require.NoError(t, err)

	imported, ok := got.Import.(*library.ImportResult)
	require.True(t, ok)
	assert.Equal(t, library.ModeReplace, imported.Mode)
	assert.Equal(t, []string{"Drums"}, imported.Collections)
	assert.Equal(t, []string{"Drums/kick.wav"}, listFiles(t, dstRoot))
}

func TestSendValidation(t *testing.T) {
	f := newShareFixture(t)
	svc := f.peer(t, t.TempDir())
	ctx := context.Background()

	_, err := svc.Send(ctx, "short", quickshare.ScopeLibrary, nil)
	assert.ErrorIs(t, err, code.ErrorShareCodeInvalid)

	_, err = svc.Send(ctx, "AB12CD34", quickshare.ScopeCollections, []string{" "})
	assert.ErrorIs(t, err, code.ErrorInvalidParams)

	_, err = svc.Send(ctx, "AB12CD34", "everything", nil)
	assert.ErrorIs(t, err, code.ErrorInvalidParams)

	_, err = svc.Receive(ctx, "AB12CD34", "", quickshare.ScopeLibrary, nil)
	assert.ErrorIs(t, err, code.ErrorShareNotFound)
}

func TestLibrariesDecodeMeta(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "a.txt", "a")

	svc := f.peer(t, src)
	_, err := svc.Publish(ctx, "zeta", src, "v1", "hand written")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "AB12CD34", quickshare.ScopeLibrary, nil)
	require.NoError(t, err)

	libs, err := svc.Libraries(ctx)
	require.NoError(t, err)
	require.Len(t, libs, 2)
	assert.Equal(t, "peer-ab12cd34", libs[0].Name)
	require.NotNil(t, libs[0].Versions[0].Meta)
	assert.Equal(t, quickshare.ScopeLibrary, libs[0].Versions[0].Meta.Scope)
	assert.Equal(t, "zeta", libs[1].Name)
	assert.Nil(t, libs[1].Versions[0].Meta)
}

func TestGenerateCodeReportsDegraded(t *testing.T) {
	f := newShareFixture(t)
	svc := f.peer(t, t.TempDir()).(*shareService)

	c := svc.GenerateCode()
	assert.Len(t, c.Code, quickshare.CodeLength)
	assert.Equal(t, quickshare.LibraryName(c.Code), c.LibraryName)
	assert.False(t, c.Degraded)

	svc.codes = func() (string, bool) { return "WEAKCODE", true }
	c = svc.GenerateCode()
	assert.True(t, c.Degraded)
	assert.Equal(t, "peer-weakcode", c.LibraryName)
}
