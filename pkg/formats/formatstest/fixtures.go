package formatstest

import (
	"bytes"
	"fmt"
)

const (
	bspLumpCount = 64
	lumpGameLump = 35
)

// GameLump is one game lump of a BSP fixture.
type GameLump struct {
	ID      uint32
	Version uint16
	Data    []byte
}

// BSP lays out a map with the given lumps after the header. Game lumps are
// appended last so their file-relative offsets can be computed. The map
// revision is 7.
func BSP(version int32, lumps map[int][]byte, gameLumps []GameLump) []byte {
	const headerSize = 8 + bspLumpCount*16 + 4

	offsets := make(map[int]int)
	offset := headerSize
	for i := 0; i < bspLumpCount; i++ {
		if len(lumps[i]) > 0 {
			offsets[i] = offset
			offset += len(lumps[i])
		}
	}

	var game []byte
	if len(gameLumps) > 0 {
		g := New().I32(int32(len(gameLumps)))
		dataAt := offset + 4 + 16*len(gameLumps)
		for _, gl := range gameLumps {
			g.U32(gl.ID).U16(0, gl.Version).I32(int32(dataAt), int32(len(gl.Data)))
			dataAt += len(gl.Data)
		}
		for _, gl := range gameLumps {
			g.Raw(gl.Data)
		}
		game = g.Bytes()
		offsets[lumpGameLump] = offset
	}

	b := New().Chars("VBSP", 4).I32(version)
	for i := 0; i < bspLumpCount; i++ {
		size := len(lumps[i])
		if i == lumpGameLump && game != nil {
			size = len(game)
		}
		if size == 0 {
			b.I32(0, 0, 0, 0)
			continue
		}
		b.I32(int32(offsets[i]), int32(size), 0, 0)
	}
	b.I32(7)
	for i := 0; i < bspLumpCount; i++ {
		b.Raw(lumps[i])
	}
	b.Raw(game)
	return b.Bytes()
}

// Face encodes a 56-byte brush face.
func Face(plane uint16, side uint8, firstEdge int32, edgeCount, texinfo, dispinfo int16) []byte {
	return New().U16(plane).U8(side, 0).I32(firstEdge).I16(edgeCount, texinfo, dispinfo, -1).
		U8(0, 0, 0, 0).I32(-1).F32(0).I32(0, 0, 0, 0, 0).U16(0, 0).U32(0).Bytes()
}

// TexInfo encodes a texinfo with the given texture projection.
func TexInfo(s, t [4]float32, flags, texdata int32) []byte {
	return New().F32(s[:]...).F32(t[:]...).Zero(32).I32(flags, texdata).Bytes()
}

// TexData encodes a texdata entry.
func TexData(nameID, width, height int32) []byte {
	return New().F32(0.5, 0.5, 0.5).I32(nameID, width, height, width, height).Bytes()
}

// TexturedQuads returns the geometry lumps of one 64x64 floor quad per
// texture, laid out side by side along x.
func TexturedQuads(textures []string) map[int][]byte {
	vertices, edges, surfedges := New(), New().U16(0, 0), New()
	faces, texinfos, texdatas := New(), New(), New()
	strData, strTable := New(), New()

	for i, name := range textures {
		x := float32(64 * i)
		vertices.F32(x, 0, 0, x+64, 0, 0, x+64, 64, 0, x, 64, 0)
		v := uint16(4 * i)
		e := int32(1 + 4*i)
		edges.U16(v, v+1, v+1, v+2, v+2, v+3, v+3, v)
		surfedges.I32(e, e+1, e+2, e+3)
		faces.Raw(Face(0, 0, int32(4*i), 4, int16(i), -1))
		texinfos.Raw(TexInfo([4]float32{1.0 / 64, 0, 0, 0}, [4]float32{0, 1.0 / 64, 0, 0}, 0, int32(i)))
		texdatas.Raw(TexData(int32(i), 1, 1))
		strTable.I32(int32(strData.Len()))
		strData.Chars(name, len(name)+1)
	}

	return map[int][]byte{
		1:  New().F32(0, 0, 1, 0).I32(2).Bytes(),
		2:  texdatas.Bytes(),
		3:  vertices.Bytes(),
		6:  texinfos.Bytes(),
		7:  faces.Bytes(),
		12: edges.Bytes(),
		13: surfedges.Bytes(),
		43: strData.Bytes(),
		44: strTable.Bytes(),
	}
}

// Prop is one static prop record.
type Prop struct {
	Origin   [3]float32
	Angles   [3]float32
	PropType uint16
	Scale    float32 // written from version 11
}

var staticPropSizes = map[int]int{4: 56, 5: 60, 6: 64, 7: 68, 8: 68, 9: 72, 10: 76, 11: 80}

// StaticPropRecordSize returns the record size of a static prop version.
func StaticPropRecordSize(version int) int {
	size, ok := staticPropSizes[version]
	if !ok {
		panic(fmt.Sprintf("no static prop version %d", version))
	}
	return size
}

// StaticProps encodes a static prop game lump with a two-entry leaf list.
// Every prop has solid 6, fade distances 100..200 and leaf count 2.
func StaticProps(version int, names []string, props []Prop) []byte {
	b := New().I32(int32(len(names)))
	for _, n := range names {
		b.Chars(n, 128)
	}
	b.I32(2).U16(11, 12)

	size := StaticPropRecordSize(version)
	b.I32(int32(len(props)))
	for _, p := range props {
		start := b.Len()
		b.F32(p.Origin[:]...).F32(p.Angles[:]...)
		b.U16(p.PropType, 0, 2).U8(6, 0).I32(0).F32(100, 200).F32(p.Origin[:]...)
		if version >= 11 {
			b.PadTo(start + size - 4).F32(p.Scale)
		}
		b.PadTo(start + size)
	}
	return b.Bytes()
}

// Studio header field offsets.
const (
	MDLOffChecksum      = 8
	MDLOffName          = 12
	MDLOffDataLength    = 76
	MDLOffTextureCount  = 204
	MDLOffTextureOffset = 208
	MDLOffDirCount      = 212
	MDLOffDirOffset     = 216
	MDLOffBodyCount     = 232
	MDLOffBodyOffset    = 236

	mdlHeaderSize = 408
	mdlVertexSize = 48
)

// MDLSpec describes a studio model with one body part holding one model.
type MDLSpec struct {
	Version   int32
	Checksum  int32
	Name      string
	Textures  []string
	Dirs      []string
	BodyPart  string
	ModelName string
	// FirstVertex is the model's first vertex in the vertex file.
	FirstVertex int32
	// MeshOffsets are per-mesh vertex offsets relative to the model.
	MeshOffsets []int32
}

// MDL encodes a studio model.
func MDL(spec MDLSpec) []byte {
	texAt := mdlHeaderSize
	dirsAt := texAt + 64*len(spec.Textures)
	bodyAt := dirsAt + 4*len(spec.Dirs)
	modelAt := bodyAt + 16
	meshAt := modelAt + 148
	strAt := meshAt + 116*len(spec.MeshOffsets)

	var strs []string
	strs = append(strs, spec.Textures...)
	strs = append(strs, spec.Dirs...)
	strs = append(strs, spec.BodyPart)
	strOffsets := make([]int, len(strs))
	at := strAt
	for i, s := range strs {
		strOffsets[i] = at
		at += len(s) + 1
	}

	b := New().Chars("IDST", 4).I32(spec.Version).Zero(texAt - 8)
	for i := range spec.Textures {
		// name offset is relative to the record
		b.I32(int32(strOffsets[i] - b.Len())).Zero(60)
	}
	for i := range spec.Dirs {
		b.I32(int32(strOffsets[len(spec.Textures)+i]))
	}
	b.I32(int32(strOffsets[len(strs)-1]-bodyAt), 1, 1, int32(modelAt-bodyAt))

	var vertexCount int32
	for range spec.MeshOffsets {
		vertexCount += 3
	}
	b.Chars(spec.ModelName, 64).I32(0).F32(32)
	b.I32(int32(len(spec.MeshOffsets)), int32(meshAt-modelAt), vertexCount, spec.FirstVertex*mdlVertexSize, 0, 0, 0, 0, 0)
	b.PadTo(meshAt)

	for i, offset := range spec.MeshOffsets {
		start := b.Len()
		b.I32(0, int32(modelAt-start), 3, offset, 0, 0, 0, 0, int32(i)).F32(1, 2, 3)
		b.PadTo(start + 116)
	}
	for _, s := range strs {
		b.Chars(s, len(s)+1)
	}

	b.PutI32(MDLOffChecksum, spec.Checksum)
	copy(b.Bytes()[MDLOffName:MDLOffName+63], spec.Name)
	b.PutI32(MDLOffDataLength, int32(b.Len()))
	b.PutI32(MDLOffTextureCount, int32(len(spec.Textures)))
	b.PutI32(MDLOffTextureOffset, int32(texAt))
	b.PutI32(MDLOffDirCount, int32(len(spec.Dirs)))
	b.PutI32(MDLOffDirOffset, int32(dirsAt))
	b.PutI32(MDLOffBodyCount, 1)
	b.PutI32(MDLOffBodyOffset, int32(bodyAt))
	return b.Bytes()
}

// Fixup is a VVD fixup record.
type Fixup struct {
	LOD, Source, Count int32
}

// VVD encodes one vertex per position. Texcoords are (i, -i), normals point
// along +z and every vertex is bound to bone 0.
func VVD(checksum int32, positions [][3]float32, fixups []Fixup) []byte {
	const headerSize = 64
	fixupAt := headerSize
	vertexAt := fixupAt + 12*len(fixups)

	b := New().Chars("IDSV", 4).I32(4, checksum, 1, int32(len(positions))).Zero(7 * 4)
	b.I32(int32(len(fixups)), int32(fixupAt), int32(vertexAt), 0)
	for _, f := range fixups {
		b.I32(f.LOD, f.Source, f.Count)
	}
	for i, p := range positions {
		b.F32(1, 0, 0).I8(0, 0, 0).U8(1)
		b.F32(p[:]...).F32(0, 0, 1).F32(float32(i), -float32(i))
	}
	return b.Bytes()
}

// StripGroup is one VTX strip group: original mesh vertex ids and triangle
// indices into them.
type StripGroup struct {
	Vertices []uint16
	Indices  []uint16
}

// VTX encodes one body part with one model and one LOD; each strip group
// becomes its own mesh.
func VTX(version, checksum int32, meshes []StripGroup) []byte {
	const (
		bodyAt  = 36
		modelAt = bodyAt + 8
		lodAt   = modelAt + 8
		meshAt  = lodAt + 12
	)
	groupAt := meshAt + 9*len(meshes)
	dataAt := groupAt + 25*len(meshes)

	b := New().I32(version, 24).U16(53, 9).I32(3, checksum, 1, 0, 1, bodyAt)
	b.I32(1, modelAt-bodyAt)
	b.I32(1, lodAt-modelAt)
	b.I32(int32(len(meshes)), meshAt-lodAt).F32(0)
	for i := range meshes {
		start := meshAt + 9*i
		b.I32(1, int32(groupAt+25*i-start)).U8(0)
	}

	at := dataAt
	for i, g := range meshes {
		start := groupAt + 25*i
		vertexAt := at
		indexAt := vertexAt + 9*len(g.Vertices)
		at = indexAt + 2*len(g.Indices)
		b.I32(int32(len(g.Vertices)), int32(vertexAt-start), int32(len(g.Indices)), int32(indexAt-start), 0, 0).U8(0)
	}
	for _, g := range meshes {
		for _, v := range g.Vertices {
			b.U8(0, 1, 2, 1).U16(v).I8(0, -1, -1)
		}
		b.U16(g.Indices...)
	}
	return b.Bytes()
}

// VTF pixel formats known to the fixture writer.
const (
	FormatRGBA8888 = 0
	FormatRGB888   = 2
	FormatBGR888   = 3
	FormatDXT1     = 13
	FormatDXT5     = 15
)

// VTFSpec describes a texture fixture.
type VTFSpec struct {
	Minor         uint32
	Format        int32
	Width, Height int
	Mips          int
	Frames        int
	Flags         uint32
}

// ImageSize returns the byte size of one image for the fixture formats.
func ImageSize(format int32, width, height int) int {
	switch format {
	case FormatRGBA8888:
		return width * height * 4
	case FormatRGB888, FormatBGR888:
		return width * height * 3
	case FormatDXT1:
		return ((width + 3) / 4) * ((height + 3) / 4) * 8
	case FormatDXT5:
		return ((width + 3) / 4) * ((height + 3) / 4) * 16
	}
	panic(fmt.Sprintf("no fixture size for format %d", format))
}

// VTF encodes a 7.x texture with a 4x4 DXT1 thumbnail and mips stored
// smallest first; every byte of mip m is 0x10+m.
func VTF(spec VTFSpec) []byte {
	if spec.Frames == 0 {
		spec.Frames = 1
	}
	if spec.Mips == 0 {
		spec.Mips = 1
	}
	headerSize := 80
	if spec.Minor >= 3 {
		headerSize = 80 + 2*8
	}
	lowResAt := headerSize
	highResAt := lowResAt + 8

	b := New().Chars("VTF\x00", 4).U32(7, spec.Minor, uint32(headerSize))
	b.U16(uint16(spec.Width), uint16(spec.Height)).U32(spec.Flags).U16(uint16(spec.Frames), 0).Zero(4)
	b.F32(0.25, 0.5, 0.75).Zero(4).F32(1).I32(spec.Format).U8(uint8(spec.Mips))
	b.I32(FormatDXT1).U8(4, 4)
	if spec.Minor >= 2 {
		b.U16(1)
	}
	if spec.Minor >= 3 {
		b.Zero(3).U32(2).Zero(8)
		b.U8(0x01, 0, 0, 0).U32(uint32(lowResAt))
		b.U8(0x30, 0, 0, 0).U32(uint32(highResAt))
	}
	b.PadTo(headerSize)
	b.Zero(8)

	for mip := spec.Mips - 1; mip >= 0; mip-- {
		size := ImageSize(spec.Format, mipDim(spec.Width, mip), mipDim(spec.Height, mip))
		b.Raw(bytes.Repeat([]byte{byte(0x10 + mip)}, size*spec.Frames))
	}
	return b.Bytes()
}

func mipDim(n, mip int) int {
	n >>= mip
	if n < 1 {
		return 1
	}
	return n
}

// VMT returns a material document for a shader and base texture.
func VMT(shader, baseTexture string) []byte {
	return []byte(fmt.Sprintf("%q\n{\n\t\"$basetexture\" %q\n}\n", shader, baseTexture))
}
