// Package resolver assembles a decompiled map: the map's own geometry plus
// every placed static prop, with each distinct prop model decoded once.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/srcdecomp/internal/geometry"
	"github.com/Faultbox/srcdecomp/internal/vfs"
	"github.com/Faultbox/srcdecomp/pkg/encoding"
	"github.com/Faultbox/srcdecomp/pkg/formats"
	"github.com/Faultbox/srcdecomp/pkg/math"
)

// ErrMissingObjectTypeKey is returned when a placed prop names no model.
var ErrMissingObjectTypeKey = errors.New("static prop has no model")

// maxPatchDepth bounds patch material include chains.
const maxPatchDepth = 8

// ObjectTypeError reports why one prop model could not be decoded.
type ObjectTypeError struct {
	Model string
	Err   error
}

func (e *ObjectTypeError) Error() string {
	return fmt.Sprintf("object type %s: %v", e.Model, e.Err)
}

func (e *ObjectTypeError) Unwrap() error { return e.Err }

// Locator is the resource lookup the resolver reads through.
type Locator interface {
	Read(path string) ([]byte, error)
	AttachArchive(data []byte) (int, error)
}

// TypeResult is the outcome of one distinct prop model.
type TypeResult struct {
	Model     string
	Instances int
	Err       error
}

// Scene is an assembled map.
type Scene struct {
	Name     string
	Map      *geometry.Entry
	Geometry *geometry.Set
	Types    []TypeResult
}

// Failed returns the prop models that could not be decoded.
func (s *Scene) Failed() []TypeResult {
	return lo.Filter(s.Types, func(r TypeResult, _ int) bool { return r.Err != nil })
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithWorkers bounds the number of prop models decoded at once. Zero or
// less decodes every model concurrently.
func WithWorkers(n int) Option {
	return func(s *Session) { s.workers = n }
}

// WithProgress registers a callback invoked after each prop model settles.
// Calls are serialized.
func WithProgress(fn func(done, total int)) Option {
	return func(s *Session) { s.progress = fn }
}

// objectType caches one prop model decode.
type objectType struct {
	once sync.Once
	geo  *typeGeometry
	err  error
}

// typeGeometry is the content shared by every instance of a prop model.
type typeGeometry struct {
	vertices []float32
	indices  []uint32
	textures map[string]*geometry.Texture
}

// Session scopes the object type cache of one or more map loads.
type Session struct {
	loc      Locator
	log      *zap.Logger
	workers  int
	progress func(done, total int)

	mu    sync.Mutex
	types map[string]*objectType
}

// NewSession creates a session reading through loc.
func NewSession(loc Locator, opts ...Option) *Session {
	s := &Session{
		loc:   loc,
		log:   zap.NewNop(),
		types: make(map[string]*objectType),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MapPath returns the resource key of a map name. Names without a
// directory are looked up under maps/.
func MapPath(name string) string {
	key := encoding.NormalizePath(name)
	if !strings.HasSuffix(key, ".bsp") {
		key += ".bsp"
	}
	if !strings.Contains(key, "/") {
		key = "maps/" + key
	}
	return key
}

// LoadMap decodes a map, attaches its embedded archive, resolves its
// textures and assembles every static prop. Failures of single prop models
// are reported in Scene.Types; the error is reserved for failures that
// leave nothing to assemble.
func (s *Session) LoadMap(ctx context.Context, name string) (*Scene, error) {
	path := MapPath(name)
	data, err := s.loc.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading map %s", name)
	}
	bsp, err := formats.ParseBSP(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding map %s", path)
	}
	if len(bsp.Pakfile) > 0 {
		n, err := s.loc.AttachArchive(bsp.Pakfile)
		if err != nil {
			return nil, errors.Wrapf(err, "attaching pakfile of %s", path)
		}
		s.log.Info("attached pakfile", zap.String("map", path), zap.Int("entries", n))
	}

	scene := &Scene{Name: name, Geometry: &geometry.Set{}}
	scene.Map = s.mapEntry(name, bsp)
	scene.Geometry.Add(scene.Map)

	props, err := bsp.StaticProps()
	if err != nil {
		return nil, errors.Wrapf(err, "decoding static props of %s", path)
	}

	var keys []string
	instances := make(map[string][]*geometry.Entry)
	for i, prop := range props.Props {
		if prop.ModelName == "" {
			return nil, errors.Wrapf(ErrMissingObjectTypeKey, "prop %d of %s", i, path)
		}
		key := encoding.NormalizePath(prop.ModelName)
		if _, ok := instances[key]; !ok {
			keys = append(keys, key)
		}
		e := geometry.NewEntry(key)
		e.Position, e.Rotation, e.Scale = InstanceTransform(prop)
		instances[key] = append(instances[key], e)
	}
	s.log.Info("map decoded",
		zap.String("map", path),
		zap.Int("textures", len(scene.Map.Textures)),
		zap.Int("props", len(props.Props)),
		zap.Int("types", len(keys)),
	)

	scene.Types = s.assemble(ctx, keys, instances, scene.Geometry)
	return scene, nil
}

// InstanceTransform converts a prop placement to Y-up position, rotation in
// radians and scale.
func InstanceTransform(prop formats.StaticProp) (position, rotation, scale [3]float64) {
	s := float64(prop.UniformScale)
	if s == 0 {
		s = 1
	}
	return math.YUpPosition(prop.Origin), math.YUpRotation(prop.Angles), [3]float64{s, s, s}
}

func (s *Session) mapEntry(name string, bsp *formats.BSP) *geometry.Entry {
	mesh := bsp.ConvertToMesh()
	e := geometry.NewEntry(name)
	e.Vertices = geometry.Flatten(mesh.Vertices)
	e.Indices = mesh.Indices
	for _, tex := range bsp.Textures {
		if t, ok := s.resolveMaterial(materialPath(tex)); ok {
			e.Textures[tex] = t
		}
	}
	return e
}

// assemble decodes every distinct prop model concurrently and populates its
// instances. It waits for all of them regardless of failures.
func (s *Session) assemble(ctx context.Context, keys []string, instances map[string][]*geometry.Entry, set *geometry.Set) []TypeResult {
	results := make([]TypeResult, len(keys))

	var (
		g        errgroup.Group
		progress sync.Mutex
		done     int
	)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			results[i] = s.assembleType(ctx, key, instances[key], set)

			progress.Lock()
			done++
			if s.progress != nil {
				s.progress(done, len(keys))
			}
			progress.Unlock()
			return nil
		})
	}
	// Tasks never fail; failures are recorded per type in results.
	_ = g.Wait()
	return results
}

func (s *Session) assembleType(ctx context.Context, key string, entries []*geometry.Entry, set *geometry.Set) TypeResult {
	result := TypeResult{Model: key, Instances: len(entries)}
	if err := ctx.Err(); err != nil {
		result.Err = &ObjectTypeError{Model: key, Err: err}
		return result
	}

	geo, err := s.objectType(key)
	if err != nil {
		s.log.Warn("object type failed", zap.String("model", key), zap.Error(err))
		result.Err = &ObjectTypeError{Model: key, Err: err}
		return result
	}
	for _, e := range entries {
		e.Vertices = geo.vertices
		e.Indices = geo.indices
		e.Textures = geo.textures
		set.Add(e)
	}
	return result
}

// objectType returns the decoded geometry of a prop model, decoding it on
// first use.
func (s *Session) objectType(key string) (*typeGeometry, error) {
	s.mu.Lock()
	t, ok := s.types[key]
	if !ok {
		t = &objectType{}
		s.types[key] = t
	}
	s.mu.Unlock()

	t.once.Do(func() {
		t.geo, t.err = s.loadType(key)
	})
	return t.geo, t.err
}

// loadType decodes a model, its textures, its vertex file and its index
// file, in that order.
func (s *Session) loadType(key string) (*typeGeometry, error) {
	data, err := s.loc.Read(key)
	if err != nil {
		return nil, err
	}
	mdl, err := formats.ParseMDL(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", key)
	}

	geo := &typeGeometry{textures: make(map[string]*geometry.Texture)}
	for i := range mdl.Textures {
		// Directories are searched in order; the first material found wins.
		for _, candidate := range mdl.MaterialCandidates(i) {
			if t, ok := s.resolveMaterial(materialPath(candidate)); ok {
				geo.textures[candidate] = t
				break
			}
		}
	}

	base := strings.TrimSuffix(key, ".mdl")
	vvdPath := base + ".vvd"
	data, err = s.loc.Read(vvdPath)
	if err != nil {
		return nil, err
	}
	vvd, err := formats.ParseVVD(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", vvdPath)
	}

	vtxPath := base + ".dx90.vtx"
	data, err = s.loc.Read(vtxPath)
	if errors.Is(err, vfs.ErrResourceNotFound) {
		vtxPath = base + ".vtx"
		data, err = s.loc.Read(vtxPath)
	}
	if err != nil {
		return nil, err
	}
	vtx, err := formats.ParseVTX(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", vtxPath)
	}

	if vvd.Checksum != mdl.Checksum || vtx.Checksum != mdl.Checksum {
		s.log.Warn("checksum mismatch",
			zap.String("model", key),
			zap.Int32("mdl", mdl.Checksum),
			zap.Int32("vvd", vvd.Checksum),
			zap.Int32("vtx", vtx.Checksum),
		)
	}

	remap, indices, err := vtx.Remap(0, mdl.MeshVertexBases())
	if err != nil {
		return nil, errors.Wrapf(err, "remapping %s", vtxPath)
	}
	source := vvd.ConvertToMesh().Vertices
	vertices := make([]formats.MeshVertex, len(remap))
	for i, r := range remap {
		if int(r) >= len(source) {
			return nil, errors.Wrapf(formats.ErrMalformedStructure, "%s: remapped vertex %d exceeds %d vertices", vtxPath, r, len(source))
		}
		vertices[i] = source[r]
	}

	geo.vertices = geometry.Flatten(vertices)
	geo.indices = indices
	check := geometry.Entry{Name: key, Vertices: geo.vertices, Indices: geo.indices}
	if err := check.Validate(); err != nil {
		return nil, err
	}
	s.log.Debug("object type decoded",
		zap.String("model", key),
		zap.Int("vertices", len(remap)),
		zap.Int("triangles", len(indices)/3),
		zap.Int("textures", len(geo.textures)),
	)
	return geo, nil
}

// materialPath returns the resource key of a material name.
func materialPath(name string) string {
	key := encoding.NormalizePath(name)
	if !strings.HasPrefix(key, "materials/") {
		key = "materials/" + key
	}
	if !strings.HasSuffix(key, ".vmt") {
		key += ".vmt"
	}
	return key
}

// texturePath returns the resource key of a base texture name.
func texturePath(name string) string {
	key := encoding.NormalizePath(name)
	if !strings.HasPrefix(key, "materials/") {
		key = "materials/" + key
	}
	if !strings.HasSuffix(key, ".vtf") {
		key += ".vtf"
	}
	return key
}

// resolveMaterial follows a material to its base texture. The texture is
// omitted on any miss.
func (s *Session) resolveMaterial(path string) (*geometry.Texture, bool) {
	vmt, err := s.material(path, 0)
	if err != nil {
		s.log.Debug("material omitted", zap.String("material", path), zap.Error(err))
		return nil, false
	}
	base, ok := vmt.BaseTexture()
	if !ok {
		s.log.Debug("material has no base texture", zap.String("material", path), zap.String("shader", vmt.Shader))
		return nil, false
	}

	texPath := texturePath(base)
	data, err := s.loc.Read(texPath)
	if err != nil {
		s.log.Debug("texture omitted", zap.String("texture", texPath), zap.Error(err))
		return nil, false
	}
	vtf, err := formats.ParseVTF(data)
	if err != nil {
		s.log.Warn("texture omitted", zap.String("texture", texPath), zap.Error(err))
		return nil, false
	}
	return &geometry.Texture{
		Name:   texPath,
		Width:  vtf.Width,
		Height: vtf.Height,
		Format: vtf.Format.String(),
		Data:   vtf.ImageData,
	}, true
}

// material decodes a material, applying patch materials on top of the
// material they include.
func (s *Session) material(path string, depth int) (*formats.VMT, error) {
	data, err := s.loc.Read(path)
	if err != nil {
		return nil, err
	}
	vmt, err := formats.ParseVMT(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	include, ok := vmt.Include()
	if !ok {
		return vmt, nil
	}
	if depth >= maxPatchDepth {
		return nil, errors.Errorf("%s: patch include chain deeper than %d", path, maxPatchDepth)
	}
	base, err := s.material(materialPath(include), depth+1)
	if err != nil {
		return nil, err
	}
	return vmt.Patch(base), nil
}
