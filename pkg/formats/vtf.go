package formats

import (
	"fmt"
	"os"

	"github.com/Faultbox/srcdecomp/pkg/schema"
)

// VTF errors.
var (
	ErrInvalidVTFMagic       = fmt.Errorf("%w: invalid VTF magic: expected 'VTF\\0'", ErrMalformedStructure)
	ErrUnsupportedVTFVersion = fmt.Errorf("%w: unsupported VTF version", ErrMalformedStructure)
	ErrUnsupportedVTFFormat  = fmt.Errorf("%w: unsupported VTF image format", ErrMalformedStructure)
)

const (
	vtfMagic        = "VTF\x00"
	vtfMajorVersion = 7
	vtfMaxMinor     = 5

	vtfFlagEnvMap = 0x4000

	// vtfResourceHighRes tags the full resolution image in the resource
	// dictionary of 7.3+ files.
	vtfResourceHighRes = "\x30\x00\x00"
)

// ImageFormat is a VTF pixel format.
type ImageFormat int32

// Pixel formats.
const (
	ImageFormatNone ImageFormat = iota - 1
	ImageFormatRGBA8888
	ImageFormatABGR8888
	ImageFormatRGB888
	ImageFormatBGR888
	ImageFormatRGB565
	ImageFormatI8
	ImageFormatIA88
	ImageFormatP8
	ImageFormatA8
	ImageFormatRGB888BlueScreen
	ImageFormatBGR888BlueScreen
	ImageFormatARGB8888
	ImageFormatBGRA8888
	ImageFormatDXT1
	ImageFormatDXT3
	ImageFormatDXT5
	ImageFormatBGRX8888
	ImageFormatBGR565
	ImageFormatBGRX5551
	ImageFormatBGRA4444
	ImageFormatDXT1OneBitAlpha
	ImageFormatBGRA5551
	ImageFormatUV88
	ImageFormatUVWQ8888
	ImageFormatRGBA16161616F
	ImageFormatRGBA16161616
	ImageFormatUVLX8888
)

type imageFormatInfo struct {
	name string
	// bits per pixel for uncompressed formats, bytes per 4x4 block otherwise
	size       int
	compressed bool
}

var imageFormats = map[ImageFormat]imageFormatInfo{
	ImageFormatRGBA8888:         {"RGBA8888", 32, false},
	ImageFormatABGR8888:         {"ABGR8888", 32, false},
	ImageFormatRGB888:           {"RGB888", 24, false},
	ImageFormatBGR888:           {"BGR888", 24, false},
	ImageFormatRGB565:           {"RGB565", 16, false},
	ImageFormatI8:               {"I8", 8, false},
	ImageFormatIA88:             {"IA88", 16, false},
	ImageFormatP8:               {"P8", 8, false},
	ImageFormatA8:               {"A8", 8, false},
	ImageFormatRGB888BlueScreen: {"RGB888_BLUESCREEN", 24, false},
	ImageFormatBGR888BlueScreen: {"BGR888_BLUESCREEN", 24, false},
	ImageFormatARGB8888:         {"ARGB8888", 32, false},
	ImageFormatBGRA8888:         {"BGRA8888", 32, false},
	ImageFormatDXT1:             {"DXT1", 8, true},
	ImageFormatDXT3:             {"DXT3", 16, true},
	ImageFormatDXT5:             {"DXT5", 16, true},
	ImageFormatBGRX8888:         {"BGRX8888", 32, false},
	ImageFormatBGR565:           {"BGR565", 16, false},
	ImageFormatBGRX5551:         {"BGRX5551", 16, false},
	ImageFormatBGRA4444:         {"BGRA4444", 16, false},
	ImageFormatDXT1OneBitAlpha:  {"DXT1_ONEBITALPHA", 8, true},
	ImageFormatBGRA5551:         {"BGRA5551", 16, false},
	ImageFormatUV88:             {"UV88", 16, false},
	ImageFormatUVWQ8888:         {"UVWQ8888", 32, false},
	ImageFormatRGBA16161616F:    {"RGBA16161616F", 64, false},
	ImageFormatRGBA16161616:     {"RGBA16161616", 64, false},
	ImageFormatUVLX8888:         {"UVLX8888", 32, false},
}

func (f ImageFormat) String() string {
	if f == ImageFormatNone {
		return "NONE"
	}
	if info, ok := imageFormats[f]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(f))
}

// ImageSize returns the byte size of a width x height x depth image.
func (f ImageFormat) ImageSize(width, height, depth int) (int, bool) {
	info, ok := imageFormats[f]
	if !ok {
		return 0, false
	}
	if info.compressed {
		return ((width + 3) / 4) * ((height + 3) / 4) * info.size * depth, true
	}
	return width * height * depth * info.size / 8, true
}

var vtfHeader70 = []schema.Field{
	schema.F("signature", schema.Chars(4)),
	schema.F("version_major", schema.Uint32()),
	schema.F("version_minor", schema.Uint32()),
	schema.F("header_size", schema.Uint32()),
	schema.F("width", schema.Uint16()),
	schema.F("height", schema.Uint16()),
	schema.F("flags", schema.Uint32()),
	schema.F("frames", schema.Uint16()),
	schema.F("first_frame", schema.Uint16()),
	schema.F("padding0", schema.Chars(4)),
	schema.F("reflectivity", schema.Vector3()),
	schema.F("padding1", schema.Chars(4)),
	schema.F("bumpmap_scale", schema.Float32()),
	schema.F("high_res_format", schema.Int32()),
	schema.F("mipmap_count", schema.Uint8()),
	schema.F("low_res_format", schema.Int32()),
	schema.F("low_res_width", schema.Uint8()),
	schema.F("low_res_height", schema.Uint8()),
}

func init() {
	layouts.MustRegister("vtf_header_70", vtfHeader70...)
	layouts.MustRegister("vtf_header_72", fields(vtfHeader70, []schema.Field{
		schema.F("depth", schema.Uint16()),
	})...)
	layouts.MustRegister("vtf_header_73", fields(vtfHeader70, []schema.Field{
		schema.F("depth", schema.Uint16()),
		schema.F("padding2", schema.Chars(3)),
		schema.F("resource_count", schema.Uint32()),
		schema.F("padding3", schema.Chars(8)),
		schema.F("resources", schema.Dynamic("vtf_resource", "resource_count")),
	})...)
	layouts.MustRegister("vtf_resource",
		schema.F("tag", schema.Chars(3)),
		schema.F("flags", schema.Uint8()),
		schema.F("data", schema.Uint32()),
	)
}

// VTF is a decoded texture reduced to its largest image.
type VTF struct {
	Version      [2]uint32
	Width        int
	Height       int
	Depth        int
	Flags        uint32
	Frames       int
	MipCount     int
	Reflectivity [3]float32
	Format       ImageFormat
	LowResFormat ImageFormat

	// ImageData is frame 0, face 0 of the largest mip level.
	ImageData []byte
}

// ParseVTF decodes a texture container.
func ParseVTF(data []byte) (*VTF, error) {
	h, err := decode("vtf_header_70", data, 0)
	if err != nil {
		return nil, err
	}
	if string(h.Bytes("signature")) != vtfMagic {
		return nil, ErrInvalidVTFMagic
	}
	major, minor := uint32(h.Int("version_major")), uint32(h.Int("version_minor"))
	if major != vtfMajorVersion || minor > vtfMaxMinor {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedVTFVersion, major, minor)
	}

	depth := 1
	switch {
	case minor >= 3:
		if h, err = decode("vtf_header_73", data, 0); err != nil {
			return nil, err
		}
	case minor == 2:
		if h, err = decode("vtf_header_72", data, 0); err != nil {
			return nil, err
		}
	}
	if minor >= 2 && h.Int("depth") > 0 {
		depth = int(h.Int("depth"))
	}

	t := &VTF{
		Version:      [2]uint32{major, minor},
		Width:        int(h.Int("width")),
		Height:       int(h.Int("height")),
		Depth:        depth,
		Flags:        uint32(h.Int("flags")),
		Frames:       int(h.Int("frames")),
		MipCount:     int(h.Int("mipmap_count")),
		Reflectivity: h.Vec3("reflectivity"),
		Format:       ImageFormat(h.Int("high_res_format")),
		LowResFormat: ImageFormat(h.Int("low_res_format")),
	}
	if t.Frames < 1 {
		t.Frames = 1
	}
	if t.MipCount < 1 {
		t.MipCount = 1
	}
	if _, ok := imageFormats[t.Format]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVTFFormat, t.Format)
	}

	start, err := t.highResOffset(h)
	if err != nil {
		return nil, err
	}

	faces := 1
	if t.Flags&vtfFlagEnvMap != 0 {
		faces = 6
	}

	// Mips are stored smallest first; skip to mip 0.
	offset := start
	for mip := t.MipCount - 1; mip > 0; mip-- {
		size, _ := t.Format.ImageSize(mipDim(t.Width, mip), mipDim(t.Height, mip), mipDim(t.Depth, mip))
		offset += size * t.Frames * faces
	}
	size, _ := t.Format.ImageSize(t.Width, t.Height, t.Depth)
	if offset < 0 || offset+size > len(data) {
		return nil, fmt.Errorf("%w: image data [%d, %d) exceeds %d bytes", ErrMalformedStructure, offset, offset+size, len(data))
	}
	t.ImageData = append([]byte(nil), data[offset:offset+size]...)
	return t, nil
}

// ParseVTFFile reads and decodes a texture file from disk.
func ParseVTFFile(path string) (*VTF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading VTF file: %w", err)
	}
	return ParseVTF(data)
}

// highResOffset locates the full resolution image data: through the
// resource dictionary from 7.3, after the low resolution thumbnail before.
func (t *VTF) highResOffset(h *schema.Struct) (int, error) {
	if t.Version[1] >= 3 {
		for _, r := range h.Structs("resources") {
			if string(r.Bytes("tag")) == vtfResourceHighRes {
				return int(r.Int("data")), nil
			}
		}
		return 0, fmt.Errorf("%w: no high resolution image resource", ErrMalformedStructure)
	}

	offset := int(h.Int("header_size"))
	if t.LowResFormat != ImageFormatNone {
		lw, lh := int(h.Int("low_res_width")), int(h.Int("low_res_height"))
		size, ok := t.LowResFormat.ImageSize(lw, lh, 1)
		if !ok {
			return 0, fmt.Errorf("%w: low resolution %s", ErrUnsupportedVTFFormat, t.LowResFormat)
		}
		offset += size
	}
	return offset, nil
}

func mipDim(n, mip int) int {
	n >>= mip
	if n < 1 {
		return 1
	}
	return n
}
