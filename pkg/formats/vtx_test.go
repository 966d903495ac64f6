package formats

import (
	"errors"
	"testing"

	"github.com/Faultbox/srcdecomp/pkg/formats/formatstest"
)

func TestVTXLayoutSizes(t *testing.T) {
	want := map[string]int{
		"vtx_header": 36, "vtx_bodypart": 8, "vtx_model": 8, "vtx_model_lod": 12,
		"vtx_mesh": 9, "vtx_strip_group": 25, "vtx_vertex": 9,
	}
	for name, size := range want {
		if got := layoutSize(name); got != size {
			t.Errorf("%s size = %d, want %d", name, got, size)
		}
	}
}

func TestParseVTX(t *testing.T) {
	v, err := ParseVTX(formatstest.VTX(7, 0x1234, []formatstest.StripGroup{
		{Vertices: []uint16{2, 0, 1}, Indices: []uint16{0, 1, 2}},
		{Vertices: []uint16{0, 1, 2, 3}, Indices: []uint16{0, 1, 2, 2, 3, 0}},
	}))
	if err != nil {
		t.Fatalf("ParseVTX failed: %v", err)
	}
	if v.Checksum != 0x1234 || len(v.BodyParts) != 1 {
		t.Fatalf("checksum %x, %d body parts", v.Checksum, len(v.BodyParts))
	}
	lod := v.BodyParts[0].Models[0].LODs[0]
	if len(lod.Meshes) != 2 {
		t.Fatalf("expected 2 meshes, got %d", len(lod.Meshes))
	}
	group := lod.Meshes[0].StripGroups[0]
	if len(group.Vertices) != 3 || group.Vertices[0] != 2 || len(group.Indices) != 3 {
		t.Errorf("unexpected strip group %+v", group)
	}
}

func TestParseVTX_Version(t *testing.T) {
	_, err := ParseVTX(formatstest.VTX(6, 0x1234, nil))
	if !errors.Is(err, ErrUnsupportedVTXVersion) {
		t.Errorf("expected ErrUnsupportedVTXVersion, got %v", err)
	}
	if _, err := ParseVTX([]byte{7, 0, 0}); !errors.Is(err, ErrMalformedStructure) {
		t.Errorf("expected ErrMalformedStructure, got %v", err)
	}
}

func TestVTX_Remap(t *testing.T) {
	v, err := ParseVTX(formatstest.VTX(7, 0x1234, []formatstest.StripGroup{
		{Vertices: []uint16{2, 0, 1}, Indices: []uint16{0, 1, 2}},
		{Vertices: []uint16{1, 0, 2}, Indices: []uint16{2, 1, 0}},
	}))
	if err != nil {
		t.Fatalf("ParseVTX failed: %v", err)
	}

	// Second mesh starts at vertex 3 of the vertex file.
	vertexIndices, indices, err := v.Remap(0, [][][]int{{{0, 3}}})
	if err != nil {
		t.Fatalf("Remap failed: %v", err)
	}

	wantVertices := []uint32{2, 0, 1, 4, 3, 5}
	wantIndices := []uint32{0, 1, 2, 5, 4, 3}
	if len(vertexIndices) != len(wantVertices) || len(indices) != len(wantIndices) {
		t.Fatalf("Remap = %v, %v", vertexIndices, indices)
	}
	for i := range wantVertices {
		if vertexIndices[i] != wantVertices[i] {
			t.Errorf("vertexIndices[%d] = %d, want %d", i, vertexIndices[i], wantVertices[i])
		}
	}
	for i := range wantIndices {
		if indices[i] != wantIndices[i] {
			t.Errorf("indices[%d] = %d, want %d", i, indices[i], wantIndices[i])
		}
	}

	// Bases are optional.
	vertexIndices, _, err = v.Remap(0, nil)
	if err != nil || vertexIndices[3] != 1 {
		t.Errorf("Remap without bases = %v, %v", vertexIndices, err)
	}

	// LOD beyond the model's LODs contributes nothing.
	vertexIndices, indices, err = v.Remap(3, nil)
	if err != nil || len(vertexIndices) != 0 || len(indices) != 0 {
		t.Errorf("Remap(3) = %v, %v, %v", vertexIndices, indices, err)
	}
}

func TestVTX_Remap_IndexOutOfRange(t *testing.T) {
	v, err := ParseVTX(formatstest.VTX(7, 0x1234, []formatstest.StripGroup{
		{Vertices: []uint16{0, 1}, Indices: []uint16{0, 1, 2}},
	}))
	if err != nil {
		t.Fatalf("ParseVTX failed: %v", err)
	}
	if _, _, err := v.Remap(0, nil); !errors.Is(err, ErrMalformedStructure) {
		t.Errorf("expected ErrMalformedStructure, got %v", err)
	}
}

// Joining the remap against the vertex file yields one vertex per remap
// entry, each equal to the vertex file entry it names.
func TestVTX_RemapAgainstVVD(t *testing.T) {
	positions := [][3]float32{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}, {3, 3, 3}}
	vvd, err := ParseVVD(formatstest.VVD(0x1234, positions, nil))
	if err != nil {
		t.Fatalf("ParseVVD failed: %v", err)
	}
	vtx, err := ParseVTX(formatstest.VTX(7, 0x1234, []formatstest.StripGroup{
		{Vertices: []uint16{3, 1, 1, 0}, Indices: []uint16{0, 1, 2, 0, 2, 3}},
	}))
	if err != nil {
		t.Fatalf("ParseVTX failed: %v", err)
	}

	remap, _, err := vtx.Remap(0, nil)
	if err != nil {
		t.Fatalf("Remap failed: %v", err)
	}
	source := vvd.ConvertToMesh().Vertices
	for i, r := range remap {
		if int(r) >= len(source) {
			t.Fatalf("remap[%d] = %d out of range", i, r)
		}
		if source[r].Position != yUp(positions[r]) {
			t.Errorf("remap[%d] selects %v", i, source[r].Position)
		}
	}
	if len(remap) != 4 {
		t.Errorf("expected 4 remapped vertices, got %d", len(remap))
	}
}
