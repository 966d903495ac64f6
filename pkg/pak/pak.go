// Package pak reads the ZIP container that compiled maps embed as their
// pakfile lump.
package pak

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/Faultbox/srcdecomp/pkg/encoding"
	"github.com/Faultbox/srcdecomp/pkg/schema"
)

const (
	eocdSignature    = 0x06054b50
	centralSignature = 0x02014b50
	localSignature   = 0x04034b50

	eocdSize      = 22
	maxCommentLen = 0xFFFF
)

// Compression methods.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// Archive errors.
var (
	ErrInvalidArchive    = errors.New("invalid pak archive")
	ErrEntryNotFound     = errors.New("pak entry not found")
	ErrUnsupportedMethod = errors.New("unsupported compression method")
	ErrChecksumMismatch  = errors.New("pak entry checksum mismatch")
)

var layouts = schema.NewRegistry()

func init() {
	layouts.MustRegister("eocd",
		schema.F("signature", schema.Uint32()),
		schema.F("disk", schema.Uint16()),
		schema.F("cd_disk", schema.Uint16()),
		schema.F("disk_entries", schema.Uint16()),
		schema.F("total_entries", schema.Uint16()),
		schema.F("cd_size", schema.Uint32()),
		schema.F("cd_offset", schema.Uint32()),
		schema.F("comment_length", schema.Uint16()),
	)
	layouts.MustRegister("central_header",
		schema.F("signature", schema.Uint32()),
		schema.F("version_made_by", schema.Uint16()),
		schema.F("version_needed", schema.Uint16()),
		schema.F("flags", schema.Uint16()),
		schema.F("method", schema.Uint16()),
		schema.F("mod_time", schema.Uint16()),
		schema.F("mod_date", schema.Uint16()),
		schema.F("crc32", schema.Uint32()),
		schema.F("compressed_size", schema.Uint32()),
		schema.F("uncompressed_size", schema.Uint32()),
		schema.F("name_length", schema.Uint16()),
		schema.F("extra_length", schema.Uint16()),
		schema.F("comment_length", schema.Uint16()),
		schema.F("disk_start", schema.Uint16()),
		schema.F("internal_attr", schema.Uint16()),
		schema.F("external_attr", schema.Uint32()),
		schema.F("local_header_offset", schema.Uint32()),
	)
	layouts.MustRegister("local_header",
		schema.F("signature", schema.Uint32()),
		schema.F("version_needed", schema.Uint16()),
		schema.F("flags", schema.Uint16()),
		schema.F("method", schema.Uint16()),
		schema.F("mod_time", schema.Uint16()),
		schema.F("mod_date", schema.Uint16()),
		schema.F("crc32", schema.Uint32()),
		schema.F("compressed_size", schema.Uint32()),
		schema.F("uncompressed_size", schema.Uint32()),
		schema.F("name_length", schema.Uint16()),
		schema.F("extra_length", schema.Uint16()),
	)
}

// Archive is an in-memory pak archive.
type Archive struct {
	data     []byte
	fileList map[string]*Entry
}

// Entry is a file entry in the archive.
type Entry struct {
	Name             string // normalized path
	Method           uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	HeaderOffset     uint32
}

// Open indexes an archive held in memory. The archive keeps a reference to data.
func Open(data []byte) (*Archive, error) {
	archive := &Archive{
		data:     data,
		fileList: make(map[string]*Entry),
	}
	if err := archive.readDirectory(); err != nil {
		return nil, err
	}
	return archive, nil
}

// OpenFile reads and indexes an archive from disk.
func OpenFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return Open(data)
}

func (a *Archive) findEOCD() (int, error) {
	if len(a.data) < eocdSize {
		return 0, fmt.Errorf("%w: %d bytes is too small", ErrInvalidArchive, len(a.data))
	}
	lowest := len(a.data) - eocdSize - maxCommentLen
	if lowest < 0 {
		lowest = 0
	}
	for off := len(a.data) - eocdSize; off >= lowest; off-- {
		if a.data[off] == 0x50 && a.data[off+1] == 0x4b && a.data[off+2] == 0x05 && a.data[off+3] == 0x06 {
			return off, nil
		}
	}
	return 0, fmt.Errorf("%w: end of central directory not found", ErrInvalidArchive)
}

func (a *Archive) readDirectory() error {
	eocdOffset, err := a.findEOCD()
	if err != nil {
		return err
	}
	eocd, err := layouts.Decode("eocd", a.data, eocdOffset)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if eocd.Int("signature") != eocdSignature {
		return fmt.Errorf("%w: bad end record signature", ErrInvalidArchive)
	}

	count := int(eocd.Int("total_entries"))
	offset := int(eocd.Int("cd_offset"))
	for i := 0; i < count; i++ {
		header, err := layouts.Decode("central_header", a.data, offset)
		if err != nil {
			return fmt.Errorf("%w: central header %d: %w", ErrInvalidArchive, i, err)
		}
		if header.Int("signature") != centralSignature {
			return fmt.Errorf("%w: central header %d: bad signature", ErrInvalidArchive, i)
		}

		nameStart := header.End()
		nameEnd := nameStart + int(header.Int("name_length"))
		if nameEnd > len(a.data) {
			return fmt.Errorf("%w: central header %d: name out of bounds", ErrInvalidArchive, i)
		}
		name := string(a.data[nameStart:nameEnd])
		offset = nameEnd + int(header.Int("extra_length")) + int(header.Int("comment_length"))

		if strings.HasSuffix(name, "/") || strings.HasSuffix(name, "\\") {
			continue
		}

		entry := &Entry{
			Name:             encoding.NormalizePath(name),
			Method:           uint16(header.Int("method")),
			CRC32:            uint32(header.Int("crc32")),
			CompressedSize:   uint32(header.Int("compressed_size")),
			UncompressedSize: uint32(header.Int("uncompressed_size")),
			HeaderOffset:     uint32(header.Int("local_header_offset")),
		}
		a.fileList[entry.Name] = entry
	}
	return nil
}

// Len returns the number of file entries.
func (a *Archive) Len() int {
	return len(a.fileList)
}

// List returns all normalized file paths, sorted.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.fileList))
	for path := range a.fileList {
		result = append(result, path)
	}
	sort.Strings(result)
	return result
}

// Contains checks if a file exists.
func (a *Archive) Contains(path string) bool {
	_, ok := a.fileList[encoding.NormalizePath(path)]
	return ok
}

// Stat returns the entry for a path.
func (a *Archive) Stat(path string) (*Entry, bool) {
	entry, ok := a.fileList[encoding.NormalizePath(path)]
	return entry, ok
}

// Read extracts a file from the archive.
func (a *Archive) Read(path string) ([]byte, error) {
	entry, ok := a.fileList[encoding.NormalizePath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}

	local, err := layouts.Decode("local_header", a.data, int(entry.HeaderOffset))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArchive, entry.Name, err)
	}
	if local.Int("signature") != localSignature {
		return nil, fmt.Errorf("%w: %s: bad local header signature", ErrInvalidArchive, entry.Name)
	}

	start := local.End() + int(local.Int("name_length")) + int(local.Int("extra_length"))
	end := start + int(entry.CompressedSize)
	if end > len(a.data) {
		return nil, fmt.Errorf("%w: %s: data out of bounds", ErrInvalidArchive, entry.Name)
	}
	raw := a.data[start:end]

	var result []byte
	switch entry.Method {
	case MethodStore:
		result = bytes.Clone(raw)
	case MethodDeflate:
		reader := flate.NewReader(bytes.NewReader(raw))
		defer reader.Close()
		result = make([]byte, entry.UncompressedSize)
		if _, err := io.ReadFull(reader, result); err != nil {
			return nil, fmt.Errorf("inflating %s: %w", entry.Name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %d (%s)", ErrUnsupportedMethod, entry.Method, entry.Name)
	}

	if crc32.ChecksumIEEE(result) != entry.CRC32 {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, entry.Name)
	}
	return result, nil
}
