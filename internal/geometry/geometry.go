// Package geometry holds the decompiled output: flat vertex buffers with
// their indices, textures and per-instance transforms.
package geometry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/Faultbox/srcdecomp/pkg/formats"
)

// VertexStride is the number of floats per vertex: position, uv (three
// components), normal.
const VertexStride = 9

// ErrInvalidGeometry is returned by Validate.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Texture is a resolved base color image.
type Texture struct {
	Name   string // normalized texture path
	Width  int
	Height int
	Format string
	Data   []byte
}

// Entry is one placed piece of geometry. Instances of the same model share
// Vertices, Indices and Textures and differ only in their transform.
type Entry struct {
	Name     string
	Vertices []float32
	Indices  []uint32
	Textures map[string]*Texture

	Scale    [3]float64
	Origin   [3]float64 // pivot; always zero, placement is carried by Position
	Position [3]float64
	Rotation [3]float64 // radians
}

// NewEntry returns an empty entry with an identity transform.
func NewEntry(name string) *Entry {
	return &Entry{
		Name:     name,
		Textures: make(map[string]*Texture),
		Scale:    [3]float64{1, 1, 1},
	}
}

// Flatten interleaves mesh vertices into a VertexStride buffer.
func Flatten(vertices []formats.MeshVertex) []float32 {
	out := make([]float32, 0, len(vertices)*VertexStride)
	for _, v := range vertices {
		out = append(out, v.Position[:]...)
		out = append(out, v.UV[:]...)
		out = append(out, v.Normal[:]...)
	}
	return out
}

// VertexCount returns the number of vertices in the buffer.
func (e *Entry) VertexCount() int {
	return len(e.Vertices) / VertexStride
}

// Populated reports whether the entry has vertex data.
func (e *Entry) Populated() bool {
	return len(e.Vertices) > 0
}

// TextureKeys returns the texture mapping keys, sorted.
func (e *Entry) TextureKeys() []string {
	keys := lo.Keys(e.Textures)
	sort.Strings(keys)
	return keys
}

// Validate checks the buffer stride and that every index references a
// vertex.
func (e *Entry) Validate() error {
	if len(e.Vertices)%VertexStride != 0 {
		return fmt.Errorf("%w: %s: %d floats is not a multiple of %d", ErrInvalidGeometry, e.Name, len(e.Vertices), VertexStride)
	}
	if len(e.Indices)%3 != 0 {
		return fmt.Errorf("%w: %s: %d indices do not form triangles", ErrInvalidGeometry, e.Name, len(e.Indices))
	}
	n := uint32(e.VertexCount())
	for i, idx := range e.Indices {
		if idx >= n {
			return fmt.Errorf("%w: %s: index %d at %d exceeds %d vertices", ErrInvalidGeometry, e.Name, idx, i, n)
		}
	}
	return nil
}

// Set is an unordered, concurrency-safe collection of entries.
type Set struct {
	mu      sync.Mutex
	entries []*Entry
}

// Add inserts an entry.
func (s *Set) Add(e *Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

// Entries returns a snapshot of the entries in insertion order.
func (s *Set) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Entry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats summarizes a set.
type Stats struct {
	Entries   int
	Vertices  int
	Triangles int
	Textures  int // distinct texture names
}

// Stats counts vertices, triangles and distinct textures over all entries.
func (s *Set) Stats() Stats {
	entries := s.Entries()
	names := make(map[string]struct{})
	st := Stats{Entries: len(entries)}
	for _, e := range entries {
		st.Vertices += e.VertexCount()
		st.Triangles += len(e.Indices) / 3
		for _, tex := range e.Textures {
			names[tex.Name] = struct{}{}
		}
	}
	st.Textures = len(names)
	return st
}
