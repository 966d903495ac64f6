package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/srcdecomp/pkg/formats"
	"github.com/Faultbox/srcdecomp/pkg/formats/formatstest"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

var testFiles = map[string]string{
	"materials/brick/wall01.vmt": `"LightmappedGeneric" {}`,
	"materials/brick/wall01.vtf": "vtf",
	"materials/brick/wall02.vtf": "vtf2",
	"maps/de_test.nav":           "nav",
}

func TestOpenArchive_Zip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pak.zip")
	require.NoError(t, os.WriteFile(path, zipBytes(t, testFiles), 0644))

	a, kind, err := openArchive(path)
	require.NoError(t, err)
	assert.Equal(t, "ZIP", kind)
	assert.Equal(t, 4, a.Len())
	assert.True(t, a.Contains("MATERIALS\\brick\\wall01.vmt"))
}

func TestOpenArchive_BSP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "de_test.bsp")
	data := formatstest.BSP(21, map[int][]byte{formats.LumpPakfile: zipBytes(t, testFiles)}, nil)
	require.NoError(t, os.WriteFile(path, data, 0644))

	a, kind, err := openArchive(path)
	require.NoError(t, err)
	assert.Equal(t, "BSP v21 pakfile", kind)
	body, err := a.Read("maps/de_test.nav")
	require.NoError(t, err)
	assert.Equal(t, "nav", string(body))

	empty := filepath.Join(t.TempDir(), "empty.bsp")
	require.NoError(t, os.WriteFile(empty, formatstest.BSP(21, nil, nil), 0644))
	_, _, err = openArchive(empty)
	assert.ErrorContains(t, err, "no embedded pakfile")
}

func TestOpenArchive_Unrecognized(t *testing.T) {
	_, _, err := openArchive("pak01_000.vpk")
	assert.ErrorContains(t, err, "unrecognized archive")
}

func TestCountByExt(t *testing.T) {
	stats := countByExt([]string{"a.vtf", "b.VTF", "c.vmt", "README"})
	assert.Equal(t, []extStat{{".vtf", 2}, {"(no ext)", 1}, {".vmt", 1}}, stats)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		file    string
		pattern string
		want    bool
	}{
		{"materials/brick/wall01.vtf", "", true},
		{"materials/brick/wall01.vtf", "*.vtf", true},
		{"materials/brick/wall01.vtf", "brick/", true},
		{"materials/brick/wall01.vtf", "*.vmt", false},
		{"Materials/Brick/Wall01.VTF", "wall01", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matches(tt.file, tt.pattern), "%s ~ %s", tt.file, tt.pattern)
	}
}

func TestExtract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pak.zip")
	require.NoError(t, os.WriteFile(path, zipBytes(t, testFiles), 0644))
	a, _, err := openArchive(path)
	require.NoError(t, err)

	out := t.TempDir()
	written, err := extract(a, "*.VTF", out)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "materials", "brick", "wall01.vtf"),
		filepath.Join(out, "materials", "brick", "wall02.vtf"),
	}, written)

	body, err := os.ReadFile(written[1])
	require.NoError(t, err)
	assert.Equal(t, "vtf2", string(body))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "wall01.vtf", baseName("materials\\brick/wall01.vtf"))
	assert.Equal(t, "x", baseName("x"))
}
