package util

import (
	"archive/zip"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipDirFilter(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Jazz"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "library.db"), []byte("db"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Jazz", "take5.mp3"), []byte("mp3"), 0o644))

	var buf bytes.Buffer
	n, err := ZipDir(&buf, root, func(rel string, _ fs.DirEntry) bool {
		return !strings.HasSuffix(rel, ".mp3")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "library.db", zr.File[0].Name)
}

func TestDeriveKeyStringIsStable(t *testing.T) {
	a := DeriveKeyString("secret", "library-backup/config/1", 1000, 32)
	b := DeriveKeyString("secret", "library-backup/config/1", 1000, 32)
	c := DeriveKeyString("secret", "library-backup/config/2", 1000, 32)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "=")
}

func TestArrayUnique(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, ArrayUnique([]string{"b", "a", "b"}))
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer("app-secret")
	require.NoError(t, err)

	sealed, err := s.Seal(`{"password":"pw"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:v1:"))
	assert.NotContains(t, sealed, "pw")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"password":"pw"}`, plain)

	legacy, err := s.Open(`{"targetDir":"/tmp"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"targetDir":"/tmp"}`, legacy)

	other, _ := NewSealer("other-secret")
	_, err = other.Open(sealed)
	assert.Error(t, err)
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(24)
	require.NoError(t, err)
	b, err := RandomToken(24)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
