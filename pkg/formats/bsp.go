package formats

import (
	"fmt"
	"os"

	"github.com/Faultbox/srcdecomp/pkg/encoding"
	"github.com/Faultbox/srcdecomp/pkg/math"
	"github.com/Faultbox/srcdecomp/pkg/schema"
)

// BSP errors.
var (
	ErrInvalidBSPMagic       = fmt.Errorf("%w: invalid BSP magic: expected 'VBSP'", ErrMalformedStructure)
	ErrUnsupportedBSPVersion = fmt.Errorf("%w: unsupported BSP version", ErrMalformedStructure)
	ErrCompressedLump        = fmt.Errorf("%w: compressed lumps are not supported", ErrMalformedStructure)
)

const (
	bspMagic      = "VBSP"
	bspLumpCount  = 64
	bspMinVersion = 19
	bspMaxVersion = 21
)

// Lump indices used by the reader.
const (
	LumpEntities           = 0
	LumpPlanes             = 1
	LumpTexData            = 2
	LumpVertexes           = 3
	LumpTexInfo            = 6
	LumpFaces              = 7
	LumpEdges              = 12
	LumpSurfEdges          = 13
	LumpGameLump           = 35
	LumpPakfile            = 40
	LumpTexDataStringData  = 43
	LumpTexDataStringTable = 44
)

// Surface flags that mark faces without renderable geometry.
const (
	SurfSky2D   = 0x0002
	SurfSky     = 0x0004
	SurfTrigger = 0x0040
	SurfNoDraw  = 0x0080
	SurfHint    = 0x0100
	SurfSkip    = 0x0200
)

const skipSurfaces = SurfSky2D | SurfSky | SurfTrigger | SurfNoDraw | SurfHint | SurfSkip

// GameLumpStaticProps is the game lump id of the static prop section ("sprp").
const GameLumpStaticProps = 0x73707270

func init() {
	layouts.MustRegister("bsp_header",
		schema.F("ident", schema.Chars(4)),
		schema.F("version", schema.Int32()),
	)
	layouts.MustRegister("bsp_lump",
		schema.F("file_offset", schema.Int32()),
		schema.F("file_length", schema.Int32()),
		schema.F("version", schema.Int32()),
		schema.F("four_cc", schema.Int32()),
	)
	layouts.MustRegister("bsp_revision",
		schema.F("map_revision", schema.Int32()),
	)
	layouts.MustRegister("bsp_plane",
		schema.F("normal", schema.Vector3()),
		schema.F("distance", schema.Float32()),
		schema.F("type", schema.Int32()),
	)
	layouts.MustRegister("bsp_vertex",
		schema.F("position", schema.Vector3()),
	)
	layouts.MustRegister("bsp_edge",
		schema.F("vertices", schema.Array(schema.Uint16(), 2)),
	)
	layouts.MustRegister("bsp_surfedge",
		schema.F("edge", schema.Int32()),
	)
	layouts.MustRegister("bsp_face",
		schema.F("plane", schema.Uint16()),
		schema.F("side", schema.Uint8()),
		schema.F("on_node", schema.Uint8()),
		schema.F("first_edge", schema.Int32()),
		schema.F("edge_count", schema.Int16()),
		schema.F("texinfo", schema.Int16()),
		schema.F("dispinfo", schema.Int16()),
		schema.F("surface_fog_volume", schema.Int16()),
		schema.F("styles", schema.Array(schema.Uint8(), 4)),
		schema.F("light_offset", schema.Int32()),
		schema.F("area", schema.Float32()),
		schema.F("lightmap_mins", schema.Array(schema.Int32(), 2)),
		schema.F("lightmap_size", schema.Array(schema.Int32(), 2)),
		schema.F("original_face", schema.Int32()),
		schema.F("prim_count", schema.Uint16()),
		schema.F("first_prim", schema.Uint16()),
		schema.F("smoothing_groups", schema.Uint32()),
	)
	layouts.MustRegister("bsp_texinfo",
		schema.F("texture_vecs", schema.Array(schema.Float32(), 8)),
		schema.F("lightmap_vecs", schema.Array(schema.Float32(), 8)),
		schema.F("flags", schema.Int32()),
		schema.F("texdata", schema.Int32()),
	)
	layouts.MustRegister("bsp_texdata",
		schema.F("reflectivity", schema.Vector3()),
		schema.F("name_id", schema.Int32()),
		schema.F("width", schema.Int32()),
		schema.F("height", schema.Int32()),
		schema.F("view_width", schema.Int32()),
		schema.F("view_height", schema.Int32()),
	)
	layouts.MustRegister("bsp_string_offset",
		schema.F("offset", schema.Int32()),
	)
	layouts.MustRegister("bsp_gamelump_header",
		schema.F("lump_count", schema.Int32()),
		schema.F("lumps", schema.Dynamic("bsp_gamelump", "lump_count")),
	)
	layouts.MustRegister("bsp_gamelump",
		schema.F("id", schema.Uint32()),
		schema.F("flags", schema.Uint16()),
		schema.F("version", schema.Uint16()),
		schema.F("file_offset", schema.Int32()),
		schema.F("file_length", schema.Int32()),
	)
}

// Lump is one header directory entry.
type Lump struct {
	Offset  int32
	Length  int32
	Version int32
	FourCC  int32 // uncompressed size when the lump is LZMA compressed
}

// Plane is a face plane.
type Plane struct {
	Normal   [3]float32
	Distance float32
	Type     int32
}

// Face is a brush face as stored in the faces lump.
type Face struct {
	Plane     uint16
	Side      uint8
	FirstEdge int32
	EdgeCount int16
	TexInfo   int16
	DispInfo  int16
}

// TexInfo projects face vertices into texture space.
type TexInfo struct {
	TextureVecs [2][4]float32
	Flags       int32
	TexData     int32
}

// TexData links a texinfo to a texture name and its dimensions.
type TexData struct {
	Reflectivity [3]float32
	NameID       int32
	Name         string
	Width        int32
	Height       int32
}

// GameLump is one entry of the game lump directory.
type GameLump struct {
	ID      uint32
	Flags   uint16
	Version uint16
	Data    []byte
}

// BSP is a decoded compiled map.
type BSP struct {
	Version     int32
	MapRevision int32
	Lumps       [bspLumpCount]Lump

	Entities  string
	Planes    []Plane
	Vertices  [][3]float32
	Edges     [][2]uint16
	SurfEdges []int32
	Faces     []Face
	TexInfos  []TexInfo
	TexDatas  []TexData

	// Textures is the texture name table, unique names in first-use order.
	Textures []string

	// Pakfile is the embedded ZIP archive, empty when the map has none.
	Pakfile   []byte
	GameLumps []GameLump

	data []byte
}

// ParseBSP decodes a compiled map.
func ParseBSP(data []byte) (*BSP, error) {
	head, err := decode("bsp_header", data, 0)
	if err != nil {
		return nil, err
	}
	if head.String("ident") != bspMagic {
		return nil, ErrInvalidBSPMagic
	}

	b := &BSP{Version: int32(head.Int("version")), data: data}
	if b.Version < bspMinVersion || b.Version > bspMaxVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBSPVersion, b.Version)
	}

	lumps, err := decodeArray("bsp_lump", data, head.End(), bspLumpCount)
	if err != nil {
		return nil, fmt.Errorf("reading lump directory: %w", err)
	}
	for i, l := range lumps {
		b.Lumps[i] = Lump{
			Offset:  int32(l.Int("file_offset")),
			Length:  int32(l.Int("file_length")),
			Version: int32(l.Int("version")),
			FourCC:  int32(l.Int("four_cc")),
		}
	}
	if rev, err := decode("bsp_revision", data, lumps[len(lumps)-1].End()); err == nil {
		b.MapRevision = int32(rev.Int("map_revision"))
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"planes", b.readPlanes},
		{"vertexes", b.readVertices},
		{"edges", b.readEdges},
		{"surfedges", b.readSurfEdges},
		{"faces", b.readFaces},
		{"texinfo", b.readTexInfos},
		{"texdata", b.readTexDatas},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", step.name, err)
		}
	}

	// Optional sections: a malformed one is skipped, never repaired.
	if raw, err := b.lump(LumpEntities); err == nil {
		b.Entities = encoding.FixedString(raw)
	}
	if raw, err := b.lump(LumpPakfile); err == nil {
		b.Pakfile = raw
	}
	b.readGameLumps()

	return b, nil
}

// ParseBSPFile reads and decodes a map file from disk.
func ParseBSPFile(path string) (*BSP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading BSP file: %w", err)
	}
	return ParseBSP(data)
}

// lump returns the raw bytes of a lump.
func (b *BSP) lump(index int) ([]byte, error) {
	l := b.Lumps[index]
	if l.FourCC != 0 {
		return nil, fmt.Errorf("%w: lump %d", ErrCompressedLump, index)
	}
	start, end := int(l.Offset), int(l.Offset)+int(l.Length)
	if l.Offset < 0 || l.Length < 0 || end > len(b.data) {
		return nil, fmt.Errorf("%w: lump %d spans [%d, %d) of %d bytes", ErrMalformedStructure, index, start, end, len(b.data))
	}
	return b.data[start:end], nil
}

// lumpItems decodes a lump as a packed array of one schema.
func (b *BSP) lumpItems(index int, name string) ([]*schema.Struct, error) {
	raw, err := b.lump(index)
	if err != nil {
		return nil, err
	}
	size := layoutSize(name)
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%w: lump %d length %d is not a multiple of %d", ErrMalformedStructure, index, len(raw), size)
	}
	return decodeArray(name, raw, 0, len(raw)/size)
}

func (b *BSP) readPlanes() error {
	items, err := b.lumpItems(LumpPlanes, "bsp_plane")
	if err != nil {
		return err
	}
	b.Planes = make([]Plane, len(items))
	for i, s := range items {
		b.Planes[i] = Plane{Normal: s.Vec3("normal"), Distance: s.Float("distance"), Type: int32(s.Int("type"))}
	}
	return nil
}

func (b *BSP) readVertices() error {
	items, err := b.lumpItems(LumpVertexes, "bsp_vertex")
	if err != nil {
		return err
	}
	b.Vertices = make([][3]float32, len(items))
	for i, s := range items {
		b.Vertices[i] = s.Vec3("position")
	}
	return nil
}

func (b *BSP) readEdges() error {
	items, err := b.lumpItems(LumpEdges, "bsp_edge")
	if err != nil {
		return err
	}
	b.Edges = make([][2]uint16, len(items))
	for i, s := range items {
		v := s.Ints("vertices")
		b.Edges[i] = [2]uint16{uint16(v[0]), uint16(v[1])}
	}
	return nil
}

func (b *BSP) readSurfEdges() error {
	items, err := b.lumpItems(LumpSurfEdges, "bsp_surfedge")
	if err != nil {
		return err
	}
	b.SurfEdges = make([]int32, len(items))
	for i, s := range items {
		b.SurfEdges[i] = int32(s.Int("edge"))
	}
	return nil
}

func (b *BSP) readFaces() error {
	items, err := b.lumpItems(LumpFaces, "bsp_face")
	if err != nil {
		return err
	}
	b.Faces = make([]Face, len(items))
	for i, s := range items {
		b.Faces[i] = Face{
			Plane:     uint16(s.Int("plane")),
			Side:      uint8(s.Int("side")),
			FirstEdge: int32(s.Int("first_edge")),
			EdgeCount: int16(s.Int("edge_count")),
			TexInfo:   int16(s.Int("texinfo")),
			DispInfo:  int16(s.Int("dispinfo")),
		}
	}
	return nil
}

func (b *BSP) readTexInfos() error {
	items, err := b.lumpItems(LumpTexInfo, "bsp_texinfo")
	if err != nil {
		return err
	}
	b.TexInfos = make([]TexInfo, len(items))
	for i, s := range items {
		vecs := s.Floats("texture_vecs")
		var ti TexInfo
		copy(ti.TextureVecs[0][:], vecs[0:4])
		copy(ti.TextureVecs[1][:], vecs[4:8])
		ti.Flags = int32(s.Int("flags"))
		ti.TexData = int32(s.Int("texdata"))
		b.TexInfos[i] = ti
	}
	return nil
}

// readTexDatas decodes texdata and resolves names through the string
// table, building the unique texture name table.
func (b *BSP) readTexDatas() error {
	items, err := b.lumpItems(LumpTexData, "bsp_texdata")
	if err != nil {
		return err
	}
	offsets, err := b.lumpItems(LumpTexDataStringTable, "bsp_string_offset")
	if err != nil {
		return fmt.Errorf("string table: %w", err)
	}
	strs, err := b.lump(LumpTexDataStringData)
	if err != nil {
		return fmt.Errorf("string data: %w", err)
	}

	seen := make(map[string]bool)
	b.TexDatas = make([]TexData, len(items))
	for i, s := range items {
		td := TexData{
			Reflectivity: s.Vec3("reflectivity"),
			NameID:       int32(s.Int("name_id")),
			Width:        int32(s.Int("width")),
			Height:       int32(s.Int("height")),
		}
		if td.NameID < 0 || int(td.NameID) >= len(offsets) {
			return fmt.Errorf("%w: texdata %d name id %d of %d", ErrMalformedStructure, i, td.NameID, len(offsets))
		}
		at := int(offsets[td.NameID].Int("offset"))
		if at < 0 || at >= len(strs) {
			return fmt.Errorf("%w: texdata %d string offset %d", ErrMalformedStructure, i, at)
		}
		td.Name = encoding.CString(strs, at)
		b.TexDatas[i] = td

		if !seen[td.Name] {
			seen[td.Name] = true
			b.Textures = append(b.Textures, td.Name)
		}
	}
	return nil
}

func (b *BSP) readGameLumps() {
	raw, err := b.lump(LumpGameLump)
	if err != nil || len(raw) == 0 {
		return
	}
	dir, err := decode("bsp_gamelump_header", raw, 0)
	if err != nil {
		return
	}
	for _, g := range dir.Structs("lumps") {
		// Game lump offsets are file relative.
		start, length := int(g.Int("file_offset")), int(g.Int("file_length"))
		if start < 0 || length < 0 || start+length > len(b.data) {
			continue
		}
		b.GameLumps = append(b.GameLumps, GameLump{
			ID:      uint32(g.Int("id")),
			Flags:   uint16(g.Int("flags")),
			Version: uint16(g.Int("version")),
			Data:    b.data[start : start+length],
		})
	}
}

// GameLump finds a game lump by id.
func (b *BSP) GameLump(id uint32) (GameLump, bool) {
	for _, g := range b.GameLumps {
		if g.ID == id {
			return g, true
		}
	}
	return GameLump{}, false
}

// StaticProps decodes the static prop game lump. A map without one yields
// an empty lump.
func (b *BSP) StaticProps() (*StaticPropLump, error) {
	g, ok := b.GameLump(GameLumpStaticProps)
	if !ok {
		return &StaticPropLump{}, nil
	}
	return ParseStaticProps(g.Data, g.Version)
}

// TextureIndex returns the position of a texture name in Textures.
func (b *BSP) TextureIndex(name string) int {
	for i, t := range b.Textures {
		if t == name {
			return i
		}
	}
	return -1
}

// ConvertToMesh triangulates the renderable brush faces. Faces are fanned
// from their first vertex; displacements and tool faces are skipped, as are
// faces whose references fall outside the decoded tables.
//
// Positions and normals are converted to Y-up axes. UV holds the texel
// coordinates normalized by texture size, with the third component set to
// the face's index in Textures.
func (b *BSP) ConvertToMesh() *Mesh {
	mesh := &Mesh{}

	slots := make([]int, len(b.TexDatas))
	for i, td := range b.TexDatas {
		slots[i] = b.TextureIndex(td.Name)
	}

	for _, face := range b.Faces {
		if face.DispInfo != -1 || face.EdgeCount < 3 {
			continue
		}
		if face.TexInfo < 0 || int(face.TexInfo) >= len(b.TexInfos) || int(face.Plane) >= len(b.Planes) {
			continue
		}
		ti := b.TexInfos[face.TexInfo]
		if ti.Flags&skipSurfaces != 0 || ti.TexData < 0 || int(ti.TexData) >= len(b.TexDatas) {
			continue
		}
		td := b.TexDatas[ti.TexData]

		corners, ok := b.faceVertices(face)
		if !ok {
			continue
		}

		n := math.V3(b.Planes[face.Plane].Normal).Normalize()
		if face.Side != 0 {
			n = n.Negate()
		}
		normal := n.YUp().Array()

		width, height := float32(td.Width), float32(td.Height)
		if width == 0 {
			width = 1
		}
		if height == 0 {
			height = 1
		}

		base := uint32(len(mesh.Vertices))
		for _, p := range corners {
			u := project(ti.TextureVecs[0], p) / width
			v := project(ti.TextureVecs[1], p) / height
			mesh.Vertices = append(mesh.Vertices, MeshVertex{
				Position: yUp(p),
				UV:       [3]float32{u, v, float32(slots[ti.TexData])},
				Normal:   normal,
			})
		}
		for k := uint32(1); k+1 < uint32(len(corners)); k++ {
			mesh.Indices = append(mesh.Indices, base, base+k, base+k+1)
		}
	}
	return mesh
}

// project applies a texture axis (xyz, offset) to a position.
func project(axis [4]float32, p [3]float32) float32 {
	return math.V3([3]float32{axis[0], axis[1], axis[2]}).Dot(math.V3(p)) + axis[3]
}

// faceVertices walks a face's surfedges into its corner positions.
func (b *BSP) faceVertices(face Face) ([][3]float32, bool) {
	first, count := int(face.FirstEdge), int(face.EdgeCount)
	if first < 0 || first+count > len(b.SurfEdges) {
		return nil, false
	}

	corners := make([][3]float32, 0, count)
	for _, se := range b.SurfEdges[first : first+count] {
		var vi uint16
		switch {
		case se >= 0 && int(se) < len(b.Edges):
			vi = b.Edges[se][0]
		case se < 0 && int(-se) < len(b.Edges):
			vi = b.Edges[-se][1]
		default:
			return nil, false
		}
		if int(vi) >= len(b.Vertices) {
			return nil, false
		}
		corners = append(corners, b.Vertices[vi])
	}
	return corners, true
}
