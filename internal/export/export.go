// Package export writes a YAML manifest describing an assembled scene.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/srcdecomp/internal/geometry"
	"github.com/Faultbox/srcdecomp/internal/resolver"
)

// Manifest is the exported form of a scene.
type Manifest struct {
	Map      string    `yaml:"map"`
	Stats    Stats     `yaml:"stats"`
	Entries  []Entry   `yaml:"entries"`
	Types    []Type    `yaml:"types,omitempty"`
	Textures []Texture `yaml:"textures,omitempty"`
}

// Stats summarizes the geometry set.
type Stats struct {
	Entries     int `yaml:"entries"`
	Vertices    int `yaml:"vertices"`
	Triangles   int `yaml:"triangles"`
	Textures    int `yaml:"textures"`
	Types       int `yaml:"types"`
	FailedTypes int `yaml:"failed_types"`
}

// Entry is one placed piece of geometry.
type Entry struct {
	Name      string            `yaml:"name"`
	Vertices  int               `yaml:"vertices"`
	Triangles int               `yaml:"triangles"`
	Textures  map[string]string `yaml:"textures,omitempty"` // material key -> texture name
	Position  [3]float64        `yaml:"position,flow"`
	Rotation  [3]float64        `yaml:"rotation,flow"`
	Scale     [3]float64        `yaml:"scale,flow"`
}

// Type is the outcome of one prop model.
type Type struct {
	Model     string `yaml:"model"`
	Instances int    `yaml:"instances"`
	Error     string `yaml:"error,omitempty"`
}

// Texture describes one distinct texture payload.
type Texture struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Format string `yaml:"format"`
	Bytes  int    `yaml:"bytes"`
}

// Build summarizes a scene. The map entry comes first, props follow sorted
// by model and position so output does not depend on decode order.
func Build(scene *resolver.Scene) *Manifest {
	entries := scene.Geometry.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a == scene.Map) != (b == scene.Map) {
			return a == scene.Map
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return lessVec(a.Position, b.Position)
	})

	st := scene.Geometry.Stats()
	m := &Manifest{
		Map: scene.Name,
		Stats: Stats{
			Entries:     st.Entries,
			Vertices:    st.Vertices,
			Triangles:   st.Triangles,
			Textures:    st.Textures,
			Types:       len(scene.Types),
			FailedTypes: len(scene.Failed()),
		},
		Entries: lo.Map(entries, func(e *geometry.Entry, _ int) Entry {
			out := Entry{
				Name:      e.Name,
				Vertices:  e.VertexCount(),
				Triangles: len(e.Indices) / 3,
				Position:  e.Position,
				Rotation:  e.Rotation,
				Scale:     e.Scale,
			}
			if len(e.Textures) > 0 {
				out.Textures = lo.MapValues(e.Textures, func(t *geometry.Texture, _ string) string { return t.Name })
			}
			return out
		}),
		Types: lo.Map(scene.Types, func(r resolver.TypeResult, _ int) Type {
			t := Type{Model: r.Model, Instances: r.Instances}
			if r.Err != nil {
				t.Error = r.Err.Error()
			}
			return t
		}),
	}

	var textures []*geometry.Texture
	for _, e := range entries {
		textures = append(textures, lo.Values(e.Textures)...)
	}
	textures = lo.UniqBy(textures, func(t *geometry.Texture) string { return t.Name })
	sort.Slice(textures, func(i, j int) bool { return textures[i].Name < textures[j].Name })
	m.Textures = lo.Map(textures, func(t *geometry.Texture, _ int) Texture {
		return Texture{Name: t.Name, Width: t.Width, Height: t.Height, Format: t.Format, Bytes: len(t.Data)}
	})
	return m
}

func lessVec(a, b [3]float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Write encodes a manifest as YAML.
func Write(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return enc.Close()
}

// WriteFile builds and writes the manifest of a scene to path.
func WriteFile(path string, scene *resolver.Scene) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, Build(scene)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read decodes a manifest.
func Read(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}
