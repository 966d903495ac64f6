// Package formats provides readers for compiled engine asset formats:
// maps (BSP), models (MDL), vertex data (VVD), optimized index data (VTX),
// materials (VMT) and textures (VTF).
//
// Binary layouts are declared as schemas (see layouts.go) and decoded with
// pkg/schema; the readers add the offset and indirection logic of each format.
package formats

import "github.com/Faultbox/srcdecomp/pkg/math"

// MeshVertex is one render vertex. UV carries three components; the third
// is a per-format slot (texture table index for maps, zero for models).
type MeshVertex struct {
	Position [3]float32
	UV       [3]float32
	Normal   [3]float32
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []MeshVertex
	Indices  []uint32
}

func yUp(v [3]float32) [3]float32 {
	return math.V3(v).YUp().Array()
}
