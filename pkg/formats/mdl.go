package formats

import (
	"fmt"
	"os"

	"github.com/Faultbox/srcdecomp/pkg/encoding"
	"github.com/Faultbox/srcdecomp/pkg/schema"
)

// MDL errors.
var (
	ErrInvalidMDLMagic       = fmt.Errorf("%w: invalid MDL magic: expected 'IDST'", ErrMalformedStructure)
	ErrUnsupportedMDLVersion = fmt.Errorf("%w: unsupported MDL version", ErrMalformedStructure)
)

const (
	mdlMagic         = "IDST"
	mdlLegacyVersion = 10
	mdlMinVersion    = 44
	mdlMaxVersion    = 49
)

// MDLVersion identifies the header revision of a model.
type MDLVersion int32

// IsLegacy reports whether the model uses the pre-Source header.
func (v MDLVersion) IsLegacy() bool { return v == mdlLegacyVersion }

func (v MDLVersion) String() string {
	if v.IsLegacy() {
		return fmt.Sprintf("%d (legacy)", int32(v))
	}
	return fmt.Sprintf("%d", int32(v))
}

var mdlCommonHeader = []schema.Field{
	schema.F("id", schema.Chars(4)),
	schema.F("version", schema.Int32()),
}

func init() {
	layouts.MustRegister("mdl_ident", mdlCommonHeader...)

	// Legacy header: no checksum, textures stored inline.
	layouts.MustRegister("mdl_header_v10", fields(mdlCommonHeader, []schema.Field{
		schema.F("name", schema.Chars(64)),
		schema.F("data_length", schema.Int32()),
		schema.F("eye_position", schema.Vector3()),
		schema.F("hull_min", schema.Vector3()),
		schema.F("hull_max", schema.Vector3()),
		schema.F("view_bbmin", schema.Vector3()),
		schema.F("view_bbmax", schema.Vector3()),
		schema.F("flags", schema.Int32()),
		schema.F("bone_count", schema.Int32()),
		schema.F("bone_offset", schema.Int32()),
		schema.F("bone_controller_count", schema.Int32()),
		schema.F("bone_controller_offset", schema.Int32()),
		schema.F("hitbox_count", schema.Int32()),
		schema.F("hitbox_offset", schema.Int32()),
		schema.F("sequence_count", schema.Int32()),
		schema.F("sequence_offset", schema.Int32()),
		schema.F("sequence_group_count", schema.Int32()),
		schema.F("sequence_group_offset", schema.Int32()),
		schema.F("texture_count", schema.Int32()),
		schema.F("texture_offset", schema.Int32()),
		schema.F("texture_data_offset", schema.Int32()),
		schema.F("skin_reference_count", schema.Int32()),
		schema.F("skin_family_count", schema.Int32()),
		schema.F("skin_offset", schema.Int32()),
		schema.F("bodypart_count", schema.Int32()),
		schema.F("bodypart_offset", schema.Int32()),
		schema.F("attachment_count", schema.Int32()),
		schema.F("attachment_offset", schema.Int32()),
		schema.F("sound_table", schema.Int32()),
		schema.F("sound_offset", schema.Int32()),
		schema.F("sound_group_count", schema.Int32()),
		schema.F("sound_group_offset", schema.Int32()),
		schema.F("transition_count", schema.Int32()),
		schema.F("transition_offset", schema.Int32()),
	})...)
	layouts.MustRegister("mdl_texture_v10",
		schema.F("name", schema.Chars(64)),
		schema.F("flags", schema.Int32()),
		schema.F("width", schema.Int32()),
		schema.F("height", schema.Int32()),
		schema.F("index", schema.Int32()),
	)

	layouts.MustRegister("mdl_header", fields(mdlCommonHeader, []schema.Field{
		schema.F("checksum", schema.Int32()),
		schema.F("name", schema.Chars(64)),
		schema.F("data_length", schema.Int32()),
		schema.F("eye_position", schema.Vector3()),
		schema.F("illum_position", schema.Vector3()),
		schema.F("hull_min", schema.Vector3()),
		schema.F("hull_max", schema.Vector3()),
		schema.F("view_bbmin", schema.Vector3()),
		schema.F("view_bbmax", schema.Vector3()),
		schema.F("flags", schema.Int32()),
		schema.F("bone_count", schema.Int32()),
		schema.F("bone_offset", schema.Int32()),
		schema.F("bone_controller_count", schema.Int32()),
		schema.F("bone_controller_offset", schema.Int32()),
		schema.F("hitbox_set_count", schema.Int32()),
		schema.F("hitbox_set_offset", schema.Int32()),
		schema.F("local_anim_count", schema.Int32()),
		schema.F("local_anim_offset", schema.Int32()),
		schema.F("local_seq_count", schema.Int32()),
		schema.F("local_seq_offset", schema.Int32()),
		schema.F("activity_list_version", schema.Int32()),
		schema.F("events_indexed", schema.Int32()),
		schema.F("texture_count", schema.Int32()),
		schema.F("texture_offset", schema.Int32()),
		schema.F("texture_dir_count", schema.Int32()),
		schema.F("texture_dir_offset", schema.Int32()),
		schema.F("skin_reference_count", schema.Int32()),
		schema.F("skin_family_count", schema.Int32()),
		schema.F("skin_offset", schema.Int32()),
		schema.F("bodypart_count", schema.Int32()),
		schema.F("bodypart_offset", schema.Int32()),
		schema.F("attachment_count", schema.Int32()),
		schema.F("attachment_offset", schema.Int32()),
		schema.F("local_node_count", schema.Int32()),
		schema.F("local_node_index", schema.Int32()),
		schema.F("local_node_name_index", schema.Int32()),
		schema.F("flex_desc_count", schema.Int32()),
		schema.F("flex_desc_index", schema.Int32()),
		schema.F("flex_controller_count", schema.Int32()),
		schema.F("flex_controller_index", schema.Int32()),
		schema.F("flex_rule_count", schema.Int32()),
		schema.F("flex_rule_index", schema.Int32()),
		schema.F("ik_chain_count", schema.Int32()),
		schema.F("ik_chain_index", schema.Int32()),
		schema.F("mouth_count", schema.Int32()),
		schema.F("mouth_index", schema.Int32()),
		schema.F("local_pose_param_count", schema.Int32()),
		schema.F("local_pose_param_index", schema.Int32()),
		schema.F("surface_prop_index", schema.Int32()),
		schema.F("key_value_index", schema.Int32()),
		schema.F("key_value_size", schema.Int32()),
		schema.F("local_ik_autoplay_lock_count", schema.Int32()),
		schema.F("local_ik_autoplay_lock_index", schema.Int32()),
		schema.F("mass", schema.Float32()),
		schema.F("contents", schema.Int32()),
		schema.F("include_model_count", schema.Int32()),
		schema.F("include_model_index", schema.Int32()),
		schema.F("virtual_model", schema.Int32()),
		schema.F("anim_block_name_index", schema.Int32()),
		schema.F("anim_block_count", schema.Int32()),
		schema.F("anim_block_index", schema.Int32()),
		schema.F("anim_block_model", schema.Int32()),
		schema.F("bone_table_by_name_index", schema.Int32()),
		schema.F("vertex_base", schema.Int32()),
		schema.F("index_base", schema.Int32()),
		schema.F("const_directional_light_dot", schema.Uint8()),
		schema.F("root_lod", schema.Uint8()),
		schema.F("allowed_root_lod_count", schema.Uint8()),
		schema.F("unused", schema.Uint8()),
		schema.F("unused4", schema.Int32()),
		schema.F("flex_controller_ui_count", schema.Int32()),
		schema.F("flex_controller_ui_index", schema.Int32()),
		schema.F("vert_anim_fixed_point_scale", schema.Float32()),
		schema.F("surface_prop_lookup", schema.Int32()),
		schema.F("studiohdr2_index", schema.Int32()),
		schema.F("unused2", schema.Int32()),
	})...)

	layouts.MustRegister("mdl_texture",
		schema.F("name_offset", schema.Int32()),
		schema.F("flags", schema.Int32()),
		schema.F("used", schema.Int32()),
		schema.F("unused", schema.Int32()),
		schema.F("material", schema.Int32()),
		schema.F("client_material", schema.Int32()),
		schema.F("unused2", schema.Array(schema.Int32(), 10)),
	)
	layouts.MustRegister("mdl_offset", schema.F("offset", schema.Int32()))
	layouts.MustRegister("mdl_bodypart",
		schema.F("name_offset", schema.Int32()),
		schema.F("model_count", schema.Int32()),
		schema.F("base", schema.Int32()),
		schema.F("model_offset", schema.Int32()),
	)
	layouts.MustRegister("mdl_model_vertex_data",
		schema.F("vertex_data", schema.Int32()),
		schema.F("tangent_data", schema.Int32()),
	)
	layouts.MustRegister("mdl_model",
		schema.F("name", schema.Chars(64)),
		schema.F("type", schema.Int32()),
		schema.F("bounding_radius", schema.Float32()),
		schema.F("mesh_count", schema.Int32()),
		schema.F("mesh_offset", schema.Int32()),
		schema.F("vertex_count", schema.Int32()),
		schema.F("vertex_index", schema.Int32()),
		schema.F("tangent_index", schema.Int32()),
		schema.F("attachment_count", schema.Int32()),
		schema.F("attachment_offset", schema.Int32()),
		schema.F("eyeball_count", schema.Int32()),
		schema.F("eyeball_offset", schema.Int32()),
		schema.F("vertex_data", schema.Nested("mdl_model_vertex_data")),
		schema.F("unused", schema.Array(schema.Int32(), 8)),
	)
	layouts.MustRegister("mdl_mesh_vertex_data",
		schema.F("model_vertex_data", schema.Int32()),
		schema.F("lod_vertex_count", schema.Array(schema.Int32(), 8)),
	)
	layouts.MustRegister("mdl_mesh",
		schema.F("material", schema.Int32()),
		schema.F("model_offset", schema.Int32()),
		schema.F("vertex_count", schema.Int32()),
		schema.F("vertex_offset", schema.Int32()),
		schema.F("flex_count", schema.Int32()),
		schema.F("flex_offset", schema.Int32()),
		schema.F("material_type", schema.Int32()),
		schema.F("material_param", schema.Int32()),
		schema.F("mesh_id", schema.Int32()),
		schema.F("center", schema.Vector3()),
		schema.F("vertex_data", schema.Nested("mdl_mesh_vertex_data")),
		schema.F("unused", schema.Array(schema.Int32(), 8)),
	)
}

// mdlVertexSize is the size of one vertex in the companion vertex file;
// model vertex indices in the model table are byte offsets in its units.
const mdlVertexSize = 48

// MDLTexture is a material reference.
type MDLTexture struct {
	Name   string
	Flags  int32
	Width  int32 // legacy models only
	Height int32 // legacy models only
}

// MDLMesh is one mesh of a body part model.
type MDLMesh struct {
	Material     int32
	VertexCount  int32
	VertexOffset int32
	MeshID       int32
	Center       [3]float32
}

// MDLModel is one selectable model of a body part.
type MDLModel struct {
	Name           string
	BoundingRadius float32
	VertexCount    int32
	VertexIndex    int32 // byte offset into the vertex file's vertex array
	Meshes         []MDLMesh
}

// MDLBodyPart groups alternative models.
type MDLBodyPart struct {
	Name   string
	Base   int32
	Models []MDLModel
}

// MDL is a decoded compiled model header with its material and body part
// tables.
type MDL struct {
	Version     MDLVersion
	Checksum    int32
	Name        string
	DataLength  int32
	Flags       int32
	EyePosition [3]float32
	HullMin     [3]float32
	HullMax     [3]float32
	Mass        float32

	Textures    []MDLTexture
	TextureDirs []string
	BodyParts   []MDLBodyPart
}

// ParseMDL decodes a compiled model. Every table is decoded from the first
// DataLength bytes only.
func ParseMDL(data []byte) (*MDL, error) {
	ident, err := decode("mdl_ident", data, 0)
	if err != nil {
		return nil, err
	}
	if ident.String("id") != mdlMagic {
		return nil, ErrInvalidMDLMagic
	}

	version := MDLVersion(ident.Int("version"))
	switch {
	case version.IsLegacy():
		return parseLegacyMDL(data)
	case version >= mdlMinVersion && version <= mdlMaxVersion:
		return parseStudioMDL(data, version)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMDLVersion, int32(version))
	}
}

// ParseMDLFile reads and decodes a model file from disk.
func ParseMDLFile(path string) (*MDL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MDL file: %w", err)
	}
	return ParseMDL(data)
}

// bounded returns data cut at the declared length after checking the header
// itself fits.
func bounded(data []byte, declared int64, headerSize int) ([]byte, error) {
	if declared < int64(headerSize) {
		return nil, fmt.Errorf("%w: declared length %d is shorter than the %d byte header", ErrMalformedStructure, declared, headerSize)
	}
	if declared > int64(len(data)) {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d bytes", ErrMalformedStructure, declared, len(data))
	}
	return data[:declared], nil
}

func parseLegacyMDL(data []byte) (*MDL, error) {
	size := layoutSize("mdl_header_v10")
	if len(data) < size {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrMalformedStructure, size, len(data))
	}
	length, err := decode("mdl_header_v10", data, 0)
	if err != nil {
		return nil, err
	}
	body, err := bounded(data, length.Int("data_length"), size)
	if err != nil {
		return nil, err
	}
	h, err := decode("mdl_header_v10", body, 0)
	if err != nil {
		return nil, err
	}

	m := &MDL{
		Version:     mdlLegacyVersion,
		Name:        h.String("name"),
		DataLength:  int32(h.Int("data_length")),
		Flags:       int32(h.Int("flags")),
		EyePosition: h.Vec3("eye_position"),
		HullMin:     h.Vec3("hull_min"),
		HullMax:     h.Vec3("hull_max"),
	}

	textures, err := decodeArray("mdl_texture_v10", body, int(h.Int("texture_offset")), int(h.Int("texture_count")))
	if err != nil {
		return nil, fmt.Errorf("reading textures: %w", err)
	}
	for _, t := range textures {
		m.Textures = append(m.Textures, MDLTexture{
			Name:   encoding.FixedString(t.Bytes("name")),
			Flags:  int32(t.Int("flags")),
			Width:  int32(t.Int("width")),
			Height: int32(t.Int("height")),
		})
	}
	return m, nil
}

func parseStudioMDL(data []byte, version MDLVersion) (*MDL, error) {
	size := layoutSize("mdl_header")
	if len(data) < size {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrMalformedStructure, size, len(data))
	}
	probe, err := decode("mdl_header", data, 0)
	if err != nil {
		return nil, err
	}
	body, err := bounded(data, probe.Int("data_length"), size)
	if err != nil {
		return nil, err
	}
	h, err := decode("mdl_header", body, 0)
	if err != nil {
		return nil, err
	}

	m := &MDL{
		Version:     version,
		Checksum:    int32(h.Int("checksum")),
		Name:        h.String("name"),
		DataLength:  int32(h.Int("data_length")),
		Flags:       int32(h.Int("flags")),
		EyePosition: h.Vec3("eye_position"),
		HullMin:     h.Vec3("hull_min"),
		HullMax:     h.Vec3("hull_max"),
		Mass:        h.Float("mass"),
	}

	if err := m.readTextures(body, h); err != nil {
		return nil, fmt.Errorf("reading textures: %w", err)
	}
	if err := m.readTextureDirs(body, h); err != nil {
		return nil, fmt.Errorf("reading texture directories: %w", err)
	}
	if err := m.readBodyParts(body, h); err != nil {
		return nil, fmt.Errorf("reading body parts: %w", err)
	}
	return m, nil
}

func (m *MDL) readTextures(body []byte, h *schema.Struct) error {
	textures, err := decodeArray("mdl_texture", body, int(h.Int("texture_offset")), int(h.Int("texture_count")))
	if err != nil {
		return err
	}
	for _, t := range textures {
		// Name offsets are relative to the texture record.
		m.Textures = append(m.Textures, MDLTexture{
			Name:  encoding.CString(body, t.Offset()+int(t.Int("name_offset"))),
			Flags: int32(t.Int("flags")),
		})
	}
	return nil
}

func (m *MDL) readTextureDirs(body []byte, h *schema.Struct) error {
	offsets, err := decodeArray("mdl_offset", body, int(h.Int("texture_dir_offset")), int(h.Int("texture_dir_count")))
	if err != nil {
		return err
	}
	for _, o := range offsets {
		m.TextureDirs = append(m.TextureDirs, encoding.CString(body, int(o.Int("offset"))))
	}
	return nil
}

func (m *MDL) readBodyParts(body []byte, h *schema.Struct) error {
	parts, err := decodeArray("mdl_bodypart", body, int(h.Int("bodypart_offset")), int(h.Int("bodypart_count")))
	if err != nil {
		return err
	}
	for i, p := range parts {
		part := MDLBodyPart{
			Name: encoding.CString(body, p.Offset()+int(p.Int("name_offset"))),
			Base: int32(p.Int("base")),
		}
		models, err := decodeArray("mdl_model", body, p.Offset()+int(p.Int("model_offset")), int(p.Int("model_count")))
		if err != nil {
			return fmt.Errorf("body part %d: %w", i, err)
		}
		for j, md := range models {
			model := MDLModel{
				Name:           md.String("name"),
				BoundingRadius: md.Float("bounding_radius"),
				VertexCount:    int32(md.Int("vertex_count")),
				VertexIndex:    int32(md.Int("vertex_index")),
			}
			meshes, err := decodeArray("mdl_mesh", body, md.Offset()+int(md.Int("mesh_offset")), int(md.Int("mesh_count")))
			if err != nil {
				return fmt.Errorf("body part %d model %d: %w", i, j, err)
			}
			for _, ms := range meshes {
				model.Meshes = append(model.Meshes, MDLMesh{
					Material:     int32(ms.Int("material")),
					VertexCount:  int32(ms.Int("vertex_count")),
					VertexOffset: int32(ms.Int("vertex_offset")),
					MeshID:       int32(ms.Int("mesh_id")),
					Center:       ms.Vec3("center"),
				})
			}
			part.Models = append(part.Models, model)
		}
		m.BodyParts = append(m.BodyParts, part)
	}
	return nil
}

// MeshVertexBases returns, per body part, model and mesh, the index of the
// mesh's first vertex in the companion vertex file.
func (m *MDL) MeshVertexBases() [][][]int {
	bases := make([][][]int, len(m.BodyParts))
	for i, part := range m.BodyParts {
		bases[i] = make([][]int, len(part.Models))
		for j, model := range part.Models {
			bases[i][j] = make([]int, len(model.Meshes))
			for k, mesh := range model.Meshes {
				bases[i][j][k] = int(model.VertexIndex)/mdlVertexSize + int(mesh.VertexOffset)
			}
		}
	}
	return bases
}

// MaterialCandidates lists the material paths a texture may live at, one
// per texture directory, in directory order. Paths are relative to the
// "materials" root and carry no extension.
func (m *MDL) MaterialCandidates(texture int) []string {
	if texture < 0 || texture >= len(m.Textures) || m.Textures[texture].Name == "" {
		return nil
	}
	name := m.Textures[texture].Name
	if len(m.TextureDirs) == 0 {
		return []string{encoding.NormalizePath(name)}
	}
	out := make([]string, 0, len(m.TextureDirs))
	for _, dir := range m.TextureDirs {
		out = append(out, encoding.NormalizePath(dir+name))
	}
	return out
}
