package formats

import (
	"errors"
	"testing"

	"github.com/Faultbox/srcdecomp/pkg/formats/formatstest"
)

func TestVVDLayoutSizes(t *testing.T) {
	if got := layoutSize("vvd_header"); got != 64 {
		t.Errorf("header size = %d, want 64", got)
	}
	if got := layoutSize("vvd_vertex"); got != 48 {
		t.Errorf("vertex size = %d, want 48", got)
	}
}

func TestParseVVD(t *testing.T) {
	positions := [][3]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	v, err := ParseVVD(formatstest.VVD(0x1234, positions, nil))
	if err != nil {
		t.Fatalf("ParseVVD failed: %v", err)
	}
	if v.Checksum != 0x1234 || len(v.Vertices) != 3 {
		t.Fatalf("checksum %x, %d vertices", v.Checksum, len(v.Vertices))
	}
	if v.Vertices[1].Position != positions[1] || v.Vertices[1].BoneWeights.BoneCount != 1 {
		t.Errorf("unexpected vertex %+v", v.Vertices[1])
	}

	mesh := v.ConvertToMesh()
	if len(mesh.Vertices) != 3 || len(mesh.Indices) != 0 {
		t.Fatalf("mesh has %d vertices, %d indices", len(mesh.Vertices), len(mesh.Indices))
	}
	got := mesh.Vertices[2]
	if got.Position != [3]float32{-7, 9, 8} {
		t.Errorf("Position = %v, want Y-up (-7 9 8)", got.Position)
	}
	if got.Normal != [3]float32{0, 1, 0} {
		t.Errorf("Normal = %v, want (0 1 0)", got.Normal)
	}
	if got.UV != [3]float32{2, -2, 0} {
		t.Errorf("UV = %v, want (2 -2 0)", got.UV)
	}
}

func TestVVD_Fixups(t *testing.T) {
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	v, err := ParseVVD(formatstest.VVD(0x1234, positions, []formatstest.Fixup{
		{LOD: 0, Source: 2, Count: 2},
		{LOD: 1, Source: 0, Count: 1},
		{LOD: 0, Source: 1, Count: 1},
	}))
	if err != nil {
		t.Fatalf("ParseVVD failed: %v", err)
	}

	tests := []struct {
		lod  int
		want []float32
	}{
		{0, []float32{2, 3, 0, 1}},
		{1, []float32{0}},
	}
	for _, tt := range tests {
		got := v.LODVertices(tt.lod)
		if len(got) != len(tt.want) {
			t.Fatalf("lod %d: %d vertices, want %d", tt.lod, len(got), len(tt.want))
		}
		for i, x := range tt.want {
			if got[i].Position[0] != x {
				t.Errorf("lod %d vertex %d x = %v, want %v", tt.lod, i, got[i].Position[0], x)
			}
		}
	}
}

func TestParseVVD_Errors(t *testing.T) {
	valid := formatstest.VVD(0x1234, [][3]float32{{1, 1, 1}}, nil)

	badMagic := append([]byte(nil), valid...)
	copy(badMagic, "IDSX")

	badVersion := append([]byte(nil), valid...)
	formatstest.SetI32(badVersion, 4, 5)

	badFixup := formatstest.VVD(0x1234, [][3]float32{{1, 1, 1}}, []formatstest.Fixup{{LOD: 0, Source: 0, Count: 4}})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"bad magic", badMagic, ErrInvalidVVDMagic},
		{"bad version", badVersion, ErrUnsupportedVVDVersion},
		{"truncated vertices", valid[:len(valid)-1], ErrMalformedStructure},
		{"fixup out of range", badFixup, ErrMalformedStructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseVVD(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
