package vpk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

type vpkFile struct {
	ext, dir, name string
	body           []byte
	preload        int    // bytes of body stored as preload
	archive        uint16 // dirArchiveIndex for inline data
}

// makeVPK builds a directory file. Bodies for numbered archives are
// returned per archive index so the test can write them next to it.
func makeVPK(version uint32, files []vpkFile) ([]byte, map[uint16][]byte) {
	var tree, inline bytes.Buffer
	archives := make(map[uint16][]byte)

	// group by extension and directory, as the tree requires
	type key struct{ ext, dir string }
	var order []key
	groups := make(map[key][]vpkFile)
	for _, f := range files {
		k := key{f.ext, f.dir}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}

	exts := make(map[string][]key)
	var extOrder []string
	for _, k := range order {
		if _, ok := exts[k.ext]; !ok {
			extOrder = append(extOrder, k.ext)
		}
		exts[k.ext] = append(exts[k.ext], k)
	}

	for _, ext := range extOrder {
		tree.WriteString(ext + "\x00")
		for _, k := range exts[ext] {
			tree.WriteString(k.dir + "\x00")
			for _, f := range groups[k] {
				tree.WriteString(f.name + "\x00")
				rest := f.body[f.preload:]

				var offset uint32
				if f.archive == dirArchiveIndex {
					offset = uint32(inline.Len())
					inline.Write(rest)
				} else {
					offset = uint32(len(archives[f.archive]))
					archives[f.archive] = append(archives[f.archive], rest...)
				}

				binary.Write(&tree, binary.LittleEndian, crc32.ChecksumIEEE(f.body))
				binary.Write(&tree, binary.LittleEndian, uint16(f.preload))
				binary.Write(&tree, binary.LittleEndian, f.archive)
				binary.Write(&tree, binary.LittleEndian, offset)
				binary.Write(&tree, binary.LittleEndian, uint32(len(rest)))
				binary.Write(&tree, binary.LittleEndian, uint16(terminator))
				tree.Write(f.body[:f.preload])
			}
			tree.WriteString("\x00")
		}
		tree.WriteString("\x00")
	}
	tree.WriteString("\x00")

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(signature))
	binary.Write(&out, binary.LittleEndian, version)
	binary.Write(&out, binary.LittleEndian, uint32(tree.Len()))
	if version == 2 {
		binary.Write(&out, binary.LittleEndian, [4]uint32{uint32(inline.Len()), 0, 0, 0})
	}
	out.Write(tree.Bytes())
	out.Write(inline.Bytes())
	return out.Bytes(), archives
}

func TestParse(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		data, _ := makeVPK(version, []vpkFile{
			{ext: "vmt", dir: "materials/brick", name: "Wall01", body: []byte(`"VertexLitGeneric" {}`), archive: dirArchiveIndex},
			{ext: "vmt", dir: "materials/brick", name: "wall02", body: []byte("abc"), preload: 3, archive: dirArchiveIndex},
			{ext: " ", dir: " ", name: "README", body: []byte("hi"), archive: dirArchiveIndex},
		})

		p, err := Parse(data, "")
		if err != nil {
			t.Fatalf("v%d: Parse failed: %v", version, err)
		}
		if p.Version != version {
			t.Errorf("expected version %d, got %d", version, p.Version)
		}
		want := []string{"materials/brick/wall01.vmt", "materials/brick/wall02.vmt", "readme"}
		got := p.List()
		if len(got) != len(want) {
			t.Fatalf("v%d: List() = %v, want %v", version, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("v%d: List()[%d] = %q, want %q", version, i, got[i], want[i])
			}
		}

		body, err := p.Read("Materials\\Brick\\WALL01.vmt")
		if err != nil {
			t.Fatalf("v%d: Read failed: %v", version, err)
		}
		if string(body) != `"VertexLitGeneric" {}` {
			t.Errorf("v%d: unexpected body %q", version, body)
		}

		body, err = p.Read("materials/brick/wall02.vmt")
		if err != nil || string(body) != "abc" {
			t.Errorf("v%d: preload-only entry: got %q, %v", version, body, err)
		}
	}
}

func TestRead_NumberedArchive(t *testing.T) {
	dir := t.TempDir()
	dirPath := filepath.Join(dir, "pak01_dir.vpk")

	data, archives := makeVPK(2, []vpkFile{
		{ext: "mdl", dir: "models/props", name: "crate", body: []byte("IDST-model-body"), preload: 4, archive: 0},
		{ext: "vvd", dir: "models/props", name: "crate", body: []byte("IDSV"), archive: 3},
	})
	if err := os.WriteFile(dirPath, data, 0644); err != nil {
		t.Fatal(err)
	}
	for index, body := range archives {
		path := filepath.Join(dir, "pak01_00"+string(rune('0'+index))+".vpk")
		if err := os.WriteFile(path, body, 0644); err != nil {
			t.Fatal(err)
		}
	}

	p, err := Open(dirPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !p.Contains("models/props/crate.vvd") {
		t.Error("expected crate.vvd entry")
	}

	body, err := p.Read("models/props/crate.mdl")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(body) != "IDST-model-body" {
		t.Errorf("unexpected body %q", body)
	}

	if got := p.archivePath(3); got != filepath.Join(dir, "pak01_003.vpk") {
		t.Errorf("archivePath(3) = %s", got)
	}
}

func TestRead_Errors(t *testing.T) {
	data, _ := makeVPK(1, []vpkFile{
		{ext: "txt", dir: "a", name: "b", body: []byte("body"), archive: dirArchiveIndex},
		{ext: "txt", dir: "a", name: "gone", body: []byte("body"), archive: 9},
	})
	p, err := Parse(data, filepath.Join(t.TempDir(), "x_dir.vpk"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := p.Read("a/missing.txt"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
	if _, err := p.Read("a/gone.txt"); err == nil {
		t.Error("expected error for missing numbered archive")
	}

	p.entries["a/b.txt"].CRC32++
	if _, err := p.Read("a/b.txt"); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	valid, _ := makeVPK(1, []vpkFile{{ext: "txt", dir: "a", name: "b", body: []byte("x"), archive: dirArchiveIndex}})

	badVersion := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(badVersion[4:], 3)

	badSig := bytes.Clone(valid)
	badSig[0] = 0

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrTruncatedTree},
		{"bad signature", badSig, ErrInvalidSignature},
		{"bad version", badVersion, ErrUnsupportedVersion},
		{"truncated tree", valid[:20], ErrTruncatedTree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data, ""); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
