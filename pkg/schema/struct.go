package schema

import "bytes"

// Struct is one decoded schema instance. Values are immutable once decoded;
// accessors return zero values for unknown names or mismatched kinds.
type Struct struct {
	schema string
	offset int
	size   int
	names  []string
	values map[string]any
}

// Schema returns the schema name the struct was decoded with.
func (s *Struct) Schema() string { return s.schema }

// Offset returns the buffer offset the struct was decoded at.
func (s *Struct) Offset() int { return s.offset }

// Size returns the number of bytes consumed, including nested arrays.
func (s *Struct) Size() int { return s.size }

// End returns the offset just past the struct.
func (s *Struct) End() int { return s.offset + s.size }

// Fields returns field names in declaration order.
func (s *Struct) Fields() []string {
	return append([]string(nil), s.names...)
}

// Value returns the raw decoded value of a field.
func (s *Struct) Value(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Int returns an integer field of any width.
func (s *Struct) Int(name string) int64 {
	v, _ := s.values[name].(int64)
	return v
}

// Float returns a float32 field.
func (s *Struct) Float(name string) float32 {
	v, _ := s.values[name].(float32)
	return v
}

// Bytes returns a copy of a char array field, padding included.
func (s *Struct) Bytes(name string) []byte {
	v, _ := s.values[name].([]byte)
	return bytes.Clone(v)
}

// String returns a char array field up to its first zero byte.
func (s *Struct) String(name string) string {
	v, _ := s.values[name].([]byte)
	if idx := bytes.IndexByte(v, 0); idx >= 0 {
		v = v[:idx]
	}
	return string(v)
}

// Vec3 returns a vector3 field.
func (s *Struct) Vec3(name string) [3]float32 {
	v, _ := s.values[name].([3]float32)
	return v
}

// Vec2 returns a vector2 field.
func (s *Struct) Vec2(name string) [2]float32 {
	v, _ := s.values[name].([2]float32)
	return v
}

// Ints returns a fixed integer array field.
func (s *Struct) Ints(name string) []int64 {
	v, _ := s.values[name].([]int64)
	return append([]int64(nil), v...)
}

// Floats returns a fixed float array field.
func (s *Struct) Floats(name string) []float32 {
	v, _ := s.values[name].([]float32)
	return append([]float32(nil), v...)
}

// Struct returns a nested struct field.
func (s *Struct) Struct(name string) *Struct {
	v, _ := s.values[name].(*Struct)
	return v
}

// Structs returns a dynamic array field.
func (s *Struct) Structs(name string) []*Struct {
	v, _ := s.values[name].([]*Struct)
	return append([]*Struct(nil), v...)
}
