package formats

import (
	"fmt"

	"github.com/Faultbox/srcdecomp/pkg/schema"
)

// ErrUnsupportedStaticPropVersion is returned for static prop lump versions
// outside 4..11.
var ErrUnsupportedStaticPropVersion = fmt.Errorf("%w: unsupported static prop lump version", ErrMalformedStructure)

const (
	staticPropMinVersion = 4
	staticPropMaxVersion = 11
)

// staticPropFields returns the per-instance record layout for a lump
// version. Later versions append to the v4 record.
func staticPropFields(version int) []schema.Field {
	base := []schema.Field{
		schema.F("origin", schema.Vector3()),
		schema.F("angles", schema.Vector3()),
		schema.F("prop_type", schema.Uint16()),
		schema.F("first_leaf", schema.Uint16()),
		schema.F("leaf_count", schema.Uint16()),
		schema.F("solid", schema.Uint8()),
		schema.F("flags", schema.Uint8()),
		schema.F("skin", schema.Int32()),
		schema.F("fade_min_dist", schema.Float32()),
		schema.F("fade_max_dist", schema.Float32()),
		schema.F("lighting_origin", schema.Vector3()),
	}
	var extra []schema.Field
	if version >= 5 {
		extra = append(extra, schema.F("forced_fade_scale", schema.Float32()))
	}
	if version == 6 || version == 7 {
		extra = append(extra,
			schema.F("min_dx_level", schema.Uint16()),
			schema.F("max_dx_level", schema.Uint16()),
		)
	}
	if version == 7 {
		extra = append(extra, schema.F("diffuse_modulation", schema.Array(schema.Uint8(), 4)))
	}
	if version >= 8 {
		extra = append(extra,
			schema.F("min_cpu_level", schema.Uint8()),
			schema.F("max_cpu_level", schema.Uint8()),
			schema.F("min_gpu_level", schema.Uint8()),
			schema.F("max_gpu_level", schema.Uint8()),
			schema.F("diffuse_modulation", schema.Array(schema.Uint8(), 4)),
		)
	}
	if version >= 9 {
		extra = append(extra, schema.F("disable_x360", schema.Uint32()))
	}
	if version >= 10 {
		extra = append(extra, schema.F("flags_ex", schema.Uint32()))
	}
	if version >= 11 {
		extra = append(extra, schema.F("uniform_scale", schema.Float32()))
	}
	return fields(base, extra)
}

func staticPropSchema(version int) string {
	return fmt.Sprintf("static_prop_v%d", version)
}

func init() {
	layouts.MustRegister("sprp_name", schema.F("name", schema.Chars(128)))
	layouts.MustRegister("sprp_dictionary",
		schema.F("count", schema.Int32()),
		schema.F("names", schema.Dynamic("sprp_name", "count")),
	)
	layouts.MustRegister("sprp_leaf", schema.F("leaf", schema.Uint16()))
	layouts.MustRegister("sprp_leaves",
		schema.F("count", schema.Int32()),
		schema.F("leaves", schema.Dynamic("sprp_leaf", "count")),
	)
	for v := staticPropMinVersion; v <= staticPropMaxVersion; v++ {
		layouts.MustRegister(staticPropSchema(v), staticPropFields(v)...)
		layouts.MustRegister(fmt.Sprintf("sprp_props_v%d", v),
			schema.F("count", schema.Int32()),
			schema.F("props", schema.Dynamic(staticPropSchema(v), "count")),
		)
	}
}

// StaticProp is one placed model instance.
type StaticProp struct {
	Origin         [3]float32
	Angles         [3]float32 // pitch, yaw, roll in degrees
	PropType       uint16
	ModelName      string // empty when PropType is outside the dictionary
	FirstLeaf      uint16
	LeafCount      uint16
	Solid          uint8
	Flags          uint8
	Skin           int32
	FadeMinDist    float32
	FadeMaxDist    float32
	LightingOrigin [3]float32
	FadeScale      float32
	UniformScale   float32 // zero before version 11
}

// StaticPropLump is the decoded "sprp" game lump.
type StaticPropLump struct {
	Version uint16
	Names   []string
	Leaves  []uint16
	Props   []StaticProp
}

// ParseStaticProps decodes a static prop game lump of the given version.
func ParseStaticProps(data []byte, version uint16) (*StaticPropLump, error) {
	if version < staticPropMinVersion || version > staticPropMaxVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedStaticPropVersion, version)
	}
	lump := &StaticPropLump{Version: version}

	dict, err := decode("sprp_dictionary", data, 0)
	if err != nil {
		return nil, fmt.Errorf("reading model dictionary: %w", err)
	}
	for _, n := range dict.Structs("names") {
		lump.Names = append(lump.Names, n.String("name"))
	}

	leaves, err := decode("sprp_leaves", data, dict.End())
	if err != nil {
		return nil, fmt.Errorf("reading leaf list: %w", err)
	}
	for _, l := range leaves.Structs("leaves") {
		lump.Leaves = append(lump.Leaves, uint16(l.Int("leaf")))
	}

	props, err := decode(fmt.Sprintf("sprp_props_v%d", version), data, leaves.End())
	if err != nil {
		return nil, fmt.Errorf("reading props: %w", err)
	}
	for _, p := range props.Structs("props") {
		prop := StaticProp{
			Origin:         p.Vec3("origin"),
			Angles:         p.Vec3("angles"),
			PropType:       uint16(p.Int("prop_type")),
			FirstLeaf:      uint16(p.Int("first_leaf")),
			LeafCount:      uint16(p.Int("leaf_count")),
			Solid:          uint8(p.Int("solid")),
			Flags:          uint8(p.Int("flags")),
			Skin:           int32(p.Int("skin")),
			FadeMinDist:    p.Float("fade_min_dist"),
			FadeMaxDist:    p.Float("fade_max_dist"),
			LightingOrigin: p.Vec3("lighting_origin"),
			FadeScale:      p.Float("forced_fade_scale"),
			UniformScale:   p.Float("uniform_scale"),
		}
		if int(prop.PropType) < len(lump.Names) {
			prop.ModelName = lump.Names[prop.PropType]
		}
		lump.Props = append(lump.Props, prop)
	}
	return lump, nil
}
