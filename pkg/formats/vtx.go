package formats

import (
	"fmt"
	"os"

	"github.com/Faultbox/srcdecomp/pkg/schema"
)

// ErrUnsupportedVTXVersion is returned for optimized model files other than
// version 7.
var ErrUnsupportedVTXVersion = fmt.Errorf("%w: unsupported VTX version", ErrMalformedStructure)

const vtxVersion = 7

func init() {
	layouts.MustRegister("vtx_header",
		schema.F("version", schema.Int32()),
		schema.F("vert_cache_size", schema.Int32()),
		schema.F("max_bones_per_strip", schema.Uint16()),
		schema.F("max_bones_per_tri", schema.Uint16()),
		schema.F("max_bones_per_vert", schema.Int32()),
		schema.F("checksum", schema.Int32()),
		schema.F("lod_count", schema.Int32()),
		schema.F("material_replacement_offset", schema.Int32()),
		schema.F("bodypart_count", schema.Int32()),
		schema.F("bodypart_offset", schema.Int32()),
	)
	layouts.MustRegister("vtx_bodypart",
		schema.F("model_count", schema.Int32()),
		schema.F("model_offset", schema.Int32()),
	)
	layouts.MustRegister("vtx_model",
		schema.F("lod_count", schema.Int32()),
		schema.F("lod_offset", schema.Int32()),
	)
	layouts.MustRegister("vtx_model_lod",
		schema.F("mesh_count", schema.Int32()),
		schema.F("mesh_offset", schema.Int32()),
		schema.F("switch_point", schema.Float32()),
	)
	layouts.MustRegister("vtx_mesh",
		schema.F("strip_group_count", schema.Int32()),
		schema.F("strip_group_offset", schema.Int32()),
		schema.F("flags", schema.Uint8()),
	)
	layouts.MustRegister("vtx_strip_group",
		schema.F("vertex_count", schema.Int32()),
		schema.F("vertex_offset", schema.Int32()),
		schema.F("index_count", schema.Int32()),
		schema.F("index_offset", schema.Int32()),
		schema.F("strip_count", schema.Int32()),
		schema.F("strip_offset", schema.Int32()),
		schema.F("flags", schema.Uint8()),
	)
	layouts.MustRegister("vtx_vertex",
		schema.F("bone_weight_index", schema.Array(schema.Uint8(), 3)),
		schema.F("bone_count", schema.Uint8()),
		schema.F("orig_mesh_vertex", schema.Uint16()),
		schema.F("bone_id", schema.Array(schema.Int8(), 3)),
	)
	layouts.MustRegister("vtx_index", schema.F("index", schema.Uint16()))
}

// VTXStripGroup holds one vertex/index batch of a mesh.
type VTXStripGroup struct {
	Flags uint8
	// Vertices maps each batch vertex to a vertex of the owning MDL mesh.
	Vertices []uint16
	// Indices are triangle list indices into Vertices.
	Indices []uint16
}

// VTXMesh is the optimized form of one MDL mesh.
type VTXMesh struct {
	Flags       uint8
	StripGroups []VTXStripGroup
}

// VTXLOD is one level of detail of a model.
type VTXLOD struct {
	SwitchPoint float32
	Meshes      []VTXMesh
}

// VTXModel mirrors an MDL body part model.
type VTXModel struct {
	LODs []VTXLOD
}

// VTXBodyPart mirrors an MDL body part.
type VTXBodyPart struct {
	Models []VTXModel
}

// VTX is a decoded optimized model file.
type VTX struct {
	Version   int32
	Checksum  int32
	LODCount  int32
	BodyParts []VTXBodyPart
}

// ParseVTX decodes an optimized model file. Every table offset is relative
// to the structure that holds it.
func ParseVTX(data []byte) (*VTX, error) {
	h, err := decode("vtx_header", data, 0)
	if err != nil {
		return nil, err
	}
	v := &VTX{
		Version:  int32(h.Int("version")),
		Checksum: int32(h.Int("checksum")),
		LODCount: int32(h.Int("lod_count")),
	}
	if v.Version != vtxVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVTXVersion, v.Version)
	}

	parts, err := children("vtx_bodypart", data, h, "bodypart_offset", "bodypart_count")
	if err != nil {
		return nil, fmt.Errorf("reading body parts: %w", err)
	}
	for i, p := range parts {
		part, err := readVTXBodyPart(data, p)
		if err != nil {
			return nil, fmt.Errorf("body part %d: %w", i, err)
		}
		v.BodyParts = append(v.BodyParts, part)
	}
	return v, nil
}

// ParseVTXFile reads and decodes an optimized model file from disk.
func ParseVTXFile(path string) (*VTX, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading VTX file: %w", err)
	}
	return ParseVTX(data)
}

// children decodes the array a parent struct points at with a relative
// offset and a count field.
func children(name string, data []byte, parent *schema.Struct, offsetField, countField string) ([]*schema.Struct, error) {
	return decodeArray(name, data, parent.Offset()+int(parent.Int(offsetField)), int(parent.Int(countField)))
}

func readVTXBodyPart(data []byte, p *schema.Struct) (VTXBodyPart, error) {
	var part VTXBodyPart
	models, err := children("vtx_model", data, p, "model_offset", "model_count")
	if err != nil {
		return part, err
	}
	for _, m := range models {
		var model VTXModel
		lods, err := children("vtx_model_lod", data, m, "lod_offset", "lod_count")
		if err != nil {
			return part, err
		}
		for _, l := range lods {
			lod := VTXLOD{SwitchPoint: l.Float("switch_point")}
			meshes, err := children("vtx_mesh", data, l, "mesh_offset", "mesh_count")
			if err != nil {
				return part, err
			}
			for _, ms := range meshes {
				mesh, err := readVTXMesh(data, ms)
				if err != nil {
					return part, err
				}
				lod.Meshes = append(lod.Meshes, mesh)
			}
			model.LODs = append(model.LODs, lod)
		}
		part.Models = append(part.Models, model)
	}
	return part, nil
}

func readVTXMesh(data []byte, ms *schema.Struct) (VTXMesh, error) {
	mesh := VTXMesh{Flags: uint8(ms.Int("flags"))}
	groups, err := children("vtx_strip_group", data, ms, "strip_group_offset", "strip_group_count")
	if err != nil {
		return mesh, err
	}
	for _, g := range groups {
		group := VTXStripGroup{Flags: uint8(g.Int("flags"))}

		vertices, err := children("vtx_vertex", data, g, "vertex_offset", "vertex_count")
		if err != nil {
			return mesh, fmt.Errorf("strip group vertices: %w", err)
		}
		group.Vertices = make([]uint16, len(vertices))
		for i, vert := range vertices {
			group.Vertices[i] = uint16(vert.Int("orig_mesh_vertex"))
		}

		indices, err := children("vtx_index", data, g, "index_offset", "index_count")
		if err != nil {
			return mesh, fmt.Errorf("strip group indices: %w", err)
		}
		group.Indices = make([]uint16, len(indices))
		for i, idx := range indices {
			group.Indices[i] = uint16(idx.Int("index"))
		}

		mesh.StripGroups = append(mesh.StripGroups, group)
	}
	return mesh, nil
}

// Remap flattens one LOD into the two arrays the geometry assembler joins
// against the vertex file: vertexIndices selects vertex file entries in
// render order, and indices are triangle indices into vertexIndices.
//
// bases gives the vertex file index of each mesh's first vertex, by body
// part, model and mesh (see MDL.MeshVertexBases); missing entries count as
// zero. Only the first model of each body part is used.
func (v *VTX) Remap(lod int, bases [][][]int) (vertexIndices, indices []uint32, err error) {
	for bp, part := range v.BodyParts {
		if len(part.Models) == 0 {
			continue
		}
		model := part.Models[0]
		if lod < 0 || lod >= len(model.LODs) {
			continue
		}
		for mi, mesh := range model.LODs[lod].Meshes {
			base := meshBase(bases, bp, 0, mi)
			for gi, group := range mesh.StripGroups {
				start := uint32(len(vertexIndices))
				for _, orig := range group.Vertices {
					vertexIndices = append(vertexIndices, uint32(base+int(orig)))
				}
				for _, idx := range group.Indices {
					if int(idx) >= len(group.Vertices) {
						return nil, nil, fmt.Errorf("%w: body part %d mesh %d strip group %d: index %d of %d vertices",
							ErrMalformedStructure, bp, mi, gi, idx, len(group.Vertices))
					}
					indices = append(indices, start+uint32(idx))
				}
			}
		}
	}
	return vertexIndices, indices, nil
}

func meshBase(bases [][][]int, part, model, mesh int) int {
	if part >= len(bases) || model >= len(bases[part]) || mesh >= len(bases[part][model]) {
		return 0
	}
	return bases[part][model][mesh]
}
