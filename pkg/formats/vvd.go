package formats

import (
	"fmt"
	"os"

	"github.com/Faultbox/srcdecomp/pkg/schema"
)

// VVD errors.
var (
	ErrInvalidVVDMagic       = fmt.Errorf("%w: invalid VVD magic: expected 'IDSV'", ErrMalformedStructure)
	ErrUnsupportedVVDVersion = fmt.Errorf("%w: unsupported VVD version", ErrMalformedStructure)
)

const (
	vvdMagic   = "IDSV"
	vvdVersion = 4
	vvdMaxLODs = 8
)

func init() {
	layouts.MustRegister("vvd_header",
		schema.F("id", schema.Chars(4)),
		schema.F("version", schema.Int32()),
		schema.F("checksum", schema.Int32()),
		schema.F("lod_count", schema.Int32()),
		schema.F("lod_vertex_count", schema.Array(schema.Int32(), vvdMaxLODs)),
		schema.F("fixup_count", schema.Int32()),
		schema.F("fixup_offset", schema.Int32()),
		schema.F("vertex_offset", schema.Int32()),
		schema.F("tangent_offset", schema.Int32()),
	)
	layouts.MustRegister("vvd_fixup",
		schema.F("lod", schema.Int32()),
		schema.F("source_vertex", schema.Int32()),
		schema.F("vertex_count", schema.Int32()),
	)
	layouts.MustRegister("vvd_bone_weights",
		schema.F("weight", schema.Array(schema.Float32(), 3)),
		schema.F("bone", schema.Array(schema.Int8(), 3)),
		schema.F("bone_count", schema.Uint8()),
	)
	layouts.MustRegister("vvd_vertex",
		schema.F("bone_weights", schema.Nested("vvd_bone_weights")),
		schema.F("position", schema.Vector3()),
		schema.F("normal", schema.Vector3()),
		schema.F("texcoord", schema.Vector2()),
	)
}

// BoneWeights binds a vertex to up to three bones.
type BoneWeights struct {
	Weight    [3]float32
	Bone      [3]int8
	BoneCount uint8
}

// VVDVertex is one raw model vertex in engine axes.
type VVDVertex struct {
	BoneWeights BoneWeights
	Position    [3]float32
	Normal      [3]float32
	TexCoord    [2]float32
}

// VVDFixup remaps a run of vertices for LODs up to LOD.
type VVDFixup struct {
	LOD          int32
	SourceVertex int32
	VertexCount  int32
}

// VVD is decoded model vertex data.
type VVD struct {
	Version        int32
	Checksum       int32
	LODCount       int32
	LODVertexCount [vvdMaxLODs]int32
	Fixups         []VVDFixup
	Vertices       []VVDVertex
}

// ParseVVD decodes a vertex data file. Only the root LOD vertex range is
// decoded.
func ParseVVD(data []byte) (*VVD, error) {
	h, err := decode("vvd_header", data, 0)
	if err != nil {
		return nil, err
	}
	if h.String("id") != vvdMagic {
		return nil, ErrInvalidVVDMagic
	}
	v := &VVD{
		Version:  int32(h.Int("version")),
		Checksum: int32(h.Int("checksum")),
		LODCount: int32(h.Int("lod_count")),
	}
	if v.Version != vvdVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVVDVersion, v.Version)
	}
	for i, n := range h.Ints("lod_vertex_count") {
		v.LODVertexCount[i] = int32(n)
	}

	fixups, err := decodeArray("vvd_fixup", data, int(h.Int("fixup_offset")), int(h.Int("fixup_count")))
	if err != nil {
		return nil, fmt.Errorf("reading fixups: %w", err)
	}
	for _, f := range fixups {
		v.Fixups = append(v.Fixups, VVDFixup{
			LOD:          int32(f.Int("lod")),
			SourceVertex: int32(f.Int("source_vertex")),
			VertexCount:  int32(f.Int("vertex_count")),
		})
	}

	vertices, err := decodeArray("vvd_vertex", data, int(h.Int("vertex_offset")), int(v.LODVertexCount[0]))
	if err != nil {
		return nil, fmt.Errorf("reading vertices: %w", err)
	}
	v.Vertices = make([]VVDVertex, len(vertices))
	for i, s := range vertices {
		bw := s.Struct("bone_weights")
		var out VVDVertex
		copy(out.BoneWeights.Weight[:], bw.Floats("weight"))
		for j, b := range bw.Ints("bone") {
			out.BoneWeights.Bone[j] = int8(b)
		}
		out.BoneWeights.BoneCount = uint8(bw.Int("bone_count"))
		out.Position = s.Vec3("position")
		out.Normal = s.Vec3("normal")
		out.TexCoord = s.Vec2("texcoord")
		v.Vertices[i] = out
	}

	for i, f := range v.Fixups {
		if f.SourceVertex < 0 || f.VertexCount < 0 || int(f.SourceVertex+f.VertexCount) > len(v.Vertices) {
			return nil, fmt.Errorf("%w: fixup %d covers [%d, %d) of %d vertices",
				ErrMalformedStructure, i, f.SourceVertex, f.SourceVertex+f.VertexCount, len(v.Vertices))
		}
	}
	return v, nil
}

// ParseVVDFile reads and decodes a vertex data file from disk.
func ParseVVDFile(path string) (*VVD, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading VVD file: %w", err)
	}
	return ParseVVD(data)
}

// LODVertices returns the vertex array as seen by a LOD, applying fixups
// when the file has any.
func (v *VVD) LODVertices(lod int) []VVDVertex {
	if len(v.Fixups) == 0 {
		return v.Vertices
	}
	var out []VVDVertex
	for _, f := range v.Fixups {
		if int(f.LOD) >= lod {
			out = append(out, v.Vertices[f.SourceVertex:f.SourceVertex+f.VertexCount]...)
		}
	}
	return out
}

// ConvertToMesh returns the root LOD vertices in file order as Y-up mesh
// vertices. The mesh has no indices; triangles come from the VTX file.
func (v *VVD) ConvertToMesh() *Mesh {
	vertices := v.LODVertices(0)
	mesh := &Mesh{Vertices: make([]MeshVertex, len(vertices))}
	for i, vert := range vertices {
		mesh.Vertices[i] = MeshVertex{
			Position: yUp(vert.Position),
			UV:       [3]float32{vert.TexCoord[0], vert.TexCoord[1], 0},
			Normal:   yUp(vert.Normal),
		}
	}
	return mesh
}
