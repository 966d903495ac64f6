// Package vpk reads installed game package directories (`*_dir.vpk`) and
// the numbered data archives next to them.
package vpk

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Faultbox/srcdecomp/pkg/encoding"
	"github.com/Faultbox/srcdecomp/pkg/schema"
)

const (
	signature = 0x55aa1234

	// dirArchiveIndex marks entries whose data follows the tree in the
	// directory file itself.
	dirArchiveIndex = 0x7fff
	terminator      = 0xffff
)

// Package errors.
var (
	ErrInvalidSignature   = errors.New("invalid VPK signature")
	ErrUnsupportedVersion = errors.New("unsupported VPK version")
	ErrTruncatedTree      = errors.New("truncated VPK directory tree")
	ErrEntryNotFound      = errors.New("vpk entry not found")
	ErrChecksumMismatch   = errors.New("vpk entry checksum mismatch")
)

var layouts = schema.NewRegistry()

func init() {
	layouts.MustRegister("header_v1",
		schema.F("signature", schema.Uint32()),
		schema.F("version", schema.Uint32()),
		schema.F("tree_size", schema.Uint32()),
	)
	layouts.MustRegister("header_v2",
		schema.F("signature", schema.Uint32()),
		schema.F("version", schema.Uint32()),
		schema.F("tree_size", schema.Uint32()),
		schema.F("file_data_size", schema.Uint32()),
		schema.F("archive_md5_size", schema.Uint32()),
		schema.F("other_md5_size", schema.Uint32()),
		schema.F("signature_size", schema.Uint32()),
	)
	layouts.MustRegister("directory_entry",
		schema.F("crc", schema.Uint32()),
		schema.F("preload_bytes", schema.Uint16()),
		schema.F("archive_index", schema.Uint16()),
		schema.F("entry_offset", schema.Uint32()),
		schema.F("entry_length", schema.Uint32()),
		schema.F("terminator", schema.Uint16()),
	)
}

// Package is an opened VPK directory.
type Package struct {
	Version   uint32
	dirPath   string
	data      []byte
	dataStart int
	entries   map[string]*Entry
}

// Entry is a file in the package.
type Entry struct {
	Name         string // normalized path
	CRC32        uint32
	Preload      []byte
	ArchiveIndex uint16
	Offset       uint32
	Length       uint32
}

// Open reads a `_dir.vpk` file from disk.
func Open(dirPath string) (*Package, error) {
	data, err := os.ReadFile(dirPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return Parse(data, dirPath)
}

// Parse indexes an in-memory directory file. dirPath locates the numbered
// data archives and may be empty when every entry is stored inline.
func Parse(data []byte, dirPath string) (*Package, error) {
	head, err := layouts.Decode("header_v1", data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncatedTree, err)
	}
	if head.Int("signature") != signature {
		return nil, ErrInvalidSignature
	}

	version := uint32(head.Int("version"))
	switch version {
	case 1:
	case 2:
		if head, err = layouts.Decode("header_v2", data, 0); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTruncatedTree, err)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	treeStart := head.Size()
	treeEnd := treeStart + int(head.Int("tree_size"))
	if treeEnd > len(data) {
		return nil, fmt.Errorf("%w: tree ends at %d, file has %d bytes", ErrTruncatedTree, treeEnd, len(data))
	}

	p := &Package{
		Version:   version,
		dirPath:   dirPath,
		data:      data,
		dataStart: treeEnd,
		entries:   make(map[string]*Entry),
	}
	if err := p.readTree(treeStart, treeEnd); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Package) readTree(offset, end int) error {
	tree := p.data[:end]
	next := func() (string, error) {
		idx := bytes.IndexByte(tree[offset:], 0)
		if idx < 0 {
			return "", ErrTruncatedTree
		}
		s := string(tree[offset : offset+idx])
		offset += idx + 1
		return s, nil
	}

	for {
		ext, err := next()
		if err != nil {
			return err
		}
		if ext == "" {
			return nil
		}
		for {
			dir, err := next()
			if err != nil {
				return err
			}
			if dir == "" {
				break
			}
			for {
				name, err := next()
				if err != nil {
					return err
				}
				if name == "" {
					break
				}

				raw, err := layouts.Decode("directory_entry", tree, offset)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrTruncatedTree, err)
				}
				if raw.Int("terminator") != terminator {
					return fmt.Errorf("%w: bad entry terminator for %s", ErrTruncatedTree, name)
				}
				offset = raw.End()

				preload := int(raw.Int("preload_bytes"))
				if offset+preload > len(tree) {
					return fmt.Errorf("%w: preload data for %s", ErrTruncatedTree, name)
				}

				entry := &Entry{
					Name:         encoding.NormalizePath(joinPath(dir, name, ext)),
					CRC32:        uint32(raw.Int("crc")),
					Preload:      tree[offset : offset+preload],
					ArchiveIndex: uint16(raw.Int("archive_index")),
					Offset:       uint32(raw.Int("entry_offset")),
					Length:       uint32(raw.Int("entry_length")),
				}
				offset += preload
				p.entries[entry.Name] = entry
			}
		}
	}
}

// joinPath rebuilds a path from tree parts; a single space stands for an
// empty directory or extension.
func joinPath(dir, name, ext string) string {
	var b strings.Builder
	if dir != " " {
		b.WriteString(dir)
		b.WriteByte('/')
	}
	b.WriteString(name)
	if ext != " " {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}

// Len returns the number of entries.
func (p *Package) Len() int {
	return len(p.entries)
}

// List returns all normalized entry paths, sorted.
func (p *Package) List() []string {
	result := make([]string, 0, len(p.entries))
	for name := range p.entries {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Contains checks if a file exists.
func (p *Package) Contains(path string) bool {
	_, ok := p.entries[encoding.NormalizePath(path)]
	return ok
}

// Read returns the full contents of an entry.
func (p *Package) Read(path string) ([]byte, error) {
	entry, ok := p.entries[encoding.NormalizePath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}

	result := make([]byte, 0, len(entry.Preload)+int(entry.Length))
	result = append(result, entry.Preload...)

	if entry.Length > 0 {
		body, err := p.readBody(entry)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name, err)
		}
		result = append(result, body...)
	}

	if crc32.ChecksumIEEE(result) != entry.CRC32 {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, entry.Name)
	}
	return result, nil
}

func (p *Package) readBody(entry *Entry) ([]byte, error) {
	if entry.ArchiveIndex == dirArchiveIndex {
		start := p.dataStart + int(entry.Offset)
		end := start + int(entry.Length)
		if end > len(p.data) {
			return nil, fmt.Errorf("%w: inline data out of bounds", ErrTruncatedTree)
		}
		return bytes.Clone(p.data[start:end]), nil
	}

	file, err := os.Open(p.archivePath(entry.ArchiveIndex))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	body := make([]byte, entry.Length)
	if _, err := file.ReadAt(body, int64(entry.Offset)); err != nil && err != io.EOF {
		return nil, err
	}
	return body, nil
}

// archivePath maps "pak01_dir.vpk" and an index to "pak01_007.vpk".
func (p *Package) archivePath(index uint16) string {
	dir, file := filepath.Split(p.dirPath)
	base := strings.TrimSuffix(file, filepath.Ext(file))
	base = strings.TrimSuffix(base, "_dir")
	return filepath.Join(dir, fmt.Sprintf("%s_%03d.vpk", base, index))
}
