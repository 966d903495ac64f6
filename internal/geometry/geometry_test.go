package geometry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/srcdecomp/pkg/formats"
)

func TestFlatten(t *testing.T) {
	out := Flatten([]formats.MeshVertex{
		{Position: [3]float32{1, 2, 3}, UV: [3]float32{4, 5, 6}, Normal: [3]float32{7, 8, 9}},
		{Position: [3]float32{10, 11, 12}},
	})
	require.Len(t, out, 2*VertexStride)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, out[:VertexStride])
	assert.Equal(t, float32(10), out[VertexStride])
}

func TestEntry_Validate(t *testing.T) {
	tri := make([]float32, 3*VertexStride)

	tests := []struct {
		name     string
		vertices []float32
		indices  []uint32
		wantErr  bool
	}{
		{"valid", tri, []uint32{0, 1, 2}, false},
		{"empty", nil, nil, false},
		{"index out of range", tri, []uint32{0, 1, 3}, true},
		{"partial vertex", tri[:10], nil, true},
		{"partial triangle", tri, []uint32{0, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry("x")
			e.Vertices, e.Indices = tt.vertices, tt.indices
			err := e.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGeometry)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("de_test")
	assert.Equal(t, [3]float64{1, 1, 1}, e.Scale)
	assert.Equal(t, [3]float64{}, e.Position)
	assert.False(t, e.Populated())
	assert.Empty(t, e.TextureKeys())

	e.Textures["b"] = &Texture{Name: "b"}
	e.Textures["a"] = &Texture{Name: "a"}
	assert.Equal(t, []string{"a", "b"}, e.TextureKeys())
}

func TestSet_ConcurrentAdd(t *testing.T) {
	var s Set
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := NewEntry("prop")
			e.Vertices = make([]float32, 3*VertexStride)
			e.Indices = []uint32{0, 1, 2}
			s.Add(e)
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, s.Len())
	assert.Len(t, s.Entries(), 32)

	st := s.Stats()
	assert.Equal(t, Stats{Entries: 32, Vertices: 96, Triangles: 32}, st)
}
