package vfs

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memArchive is an in-memory Archive.
type memArchive map[string]string

func (m memArchive) List() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m memArchive) Read(name string) ([]byte, error) {
	body, ok := m[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(body), nil
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func TestGet_Normalization(t *testing.T) {
	root := writeTree(t, map[string]string{"Materials/Brick/Wall01.VMT": "disk"})
	l := New(root)

	a, err := l.Get("materials/brick/wall01.vmt")
	require.NoError(t, err)
	b, err := l.Get("MATERIALS\\brick\\WALL01.vmt")
	require.NoError(t, err)
	c, err := l.Get("/materials//brick/./wall01.vmt")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Same(t, a, c)
	assert.Equal(t, "materials/brick/wall01.vmt", a.Key())
	assert.Equal(t, OriginDisk, a.Origin())

	data, err := a.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "disk", string(data))
}

func TestGet_ExactMatch(t *testing.T) {
	root := writeTree(t, map[string]string{
		"materials/brick/wall01.vmt": "nested",
		"materials/wall01.vmt":       "top",
	})
	l := New(root)

	data, err := l.Read("materials/wall01.vmt")
	require.NoError(t, err)
	assert.Equal(t, "top", string(data))

	_, err = l.Get("wall01.vmt")
	assert.ErrorIs(t, err, ErrResourceNotFound, "suffix of an indexed key must not match")
	_, err = l.Get("brick/wall01")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestGet_NotFoundLeavesIndexUnchanged(t *testing.T) {
	root := writeTree(t, map[string]string{"maps/de_test.bsp": "map"})
	l := New(root)
	l.Attach(memArchive{"materials/a.vmt": "a"})

	require.True(t, l.Contains("maps/de_test.bsp"))
	before := l.Keys()

	_, err := l.Get("models/missing.mdl")
	require.ErrorIs(t, err, ErrResourceNotFound)
	assert.Contains(t, err.Error(), "models/missing.mdl")
	assert.Equal(t, before, l.Keys())
}

func TestAttach_Overlay(t *testing.T) {
	root := writeTree(t, map[string]string{
		"materials/a.vmt": "disk a",
		"materials/b.vmt": "disk b",
	})
	l := New(root)
	require.Empty(t, l.Keys(), "nothing is indexed before the first lookup")

	_, err := l.Get("materials/a.vmt")
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())

	n := l.Attach(memArchive{"Materials/B.vmt": "archive b", "materials/c.vmt": "archive c"})
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, l.Len())

	tests := []struct {
		path   string
		body   string
		origin Origin
	}{
		{"materials/a.vmt", "disk a", OriginDisk},
		{"materials/b.vmt", "archive b", OriginArchive},
		{"materials/c.vmt", "archive c", OriginArchive},
	}
	for _, tt := range tests {
		r, err := l.Get(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.origin, r.Origin(), tt.path)
		data, err := r.Bytes()
		require.NoError(t, err)
		assert.Equal(t, tt.body, string(data), tt.path)
	}
}

func TestAttach_BeforeIndexWins(t *testing.T) {
	root := writeTree(t, map[string]string{"materials/a.vmt": "disk"})
	l := New(root)
	l.Attach(memArchive{"materials/a.vmt": "archive"})

	data, err := l.Read("materials/a.vmt")
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))
}

func TestAttach_Repeated(t *testing.T) {
	l := New("")
	l.Attach(memArchive{"a.txt": "first", "b.txt": "first"})
	l.Attach(memArchive{"b.txt": "second"})

	a, err := l.Read("a.txt")
	require.NoError(t, err)
	b, err := l.Read("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "first", string(a))
	assert.Equal(t, "second", string(b))
}

func TestAttachArchive(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("materials/maps/de_test/cubemap.vtf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("VTF\x00"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	l := New("")
	n, err := l.AttachArchive(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := l.Read("MATERIALS/MAPS/DE_TEST/CUBEMAP.VTF")
	require.NoError(t, err)
	assert.Equal(t, "VTF\x00", string(data))

	_, err = l.AttachArchive([]byte("not a zip"))
	assert.Error(t, err)
}

func TestAttachVPK_Missing(t *testing.T) {
	l := New("")
	_, err := l.AttachVPK(filepath.Join(t.TempDir(), "pak01_dir.vpk"))
	assert.Error(t, err)
}

func TestIndex_MissingRoot(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nope"))
	_, err := l.Get("anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrResourceNotFound)
}

func TestResourceLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	root := writeTree(t, map[string]string{"maps/de_test.bsp": "x", "sound/a.wav": "y"})
	l := New(root, WithResourceLog(zap.New(core)), WithLogger(zap.NewNop()))

	l.Attach(memArchive{"materials/a.vmt": "a"})
	_, err := l.Get("maps/de_test.bsp")
	require.NoError(t, err)

	var keys []string
	for _, e := range logs.All() {
		keys = append(keys, e.Message)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"maps/de_test.bsp", "materials/a.vmt", "sound/a.wav"}, keys)
}
