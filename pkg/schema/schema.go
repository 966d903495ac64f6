// Package schema decodes little-endian binary structures from declarative
// field layouts.
//
// A layout is an ordered list of named, typed fields registered under a
// schema name. Decoding walks the fields in declaration order, so a
// variable-length array may only reference a length field declared before it.
// The package knows nothing about any particular file format.
package schema

import (
	"errors"
	"fmt"
	"sync"
)

// Decoder errors.
var (
	ErrTruncatedBuffer = errors.New("truncated buffer")
	ErrUnknownSchema   = errors.New("unknown schema")
	ErrInvalidSchema   = errors.New("invalid schema definition")
	ErrInvalidLength   = errors.New("invalid array length")
)

// maxDepth bounds nesting so a self-referencing schema fails instead of
// recursing forever.
const maxDepth = 32

// Kind is the tag of a field type.
type Kind uint8

const (
	KindInt8 Kind = iota + 1
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindFloat32
	KindChars   // fixed-length byte/char array
	KindVector3 // three float32
	KindVector2 // two float32
	KindArray   // fixed-length array of a scalar kind
	KindStruct  // inline nested schema
	KindDynamic // array of a nested schema sized by a sibling field
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "int8"
	case KindUint8:
		return "uint8"
	case KindInt16:
		return "int16"
	case KindUint16:
		return "uint16"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindFloat32:
		return "float32"
	case KindChars:
		return "chars"
	case KindVector3:
		return "vector3"
	case KindVector2:
		return "vector2"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// scalarWidth returns the byte width of a scalar kind, or 0 for other kinds.
func scalarWidth(k Kind) int {
	switch k {
	case KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	}
	return 0
}

func isInteger(k Kind) bool {
	return scalarWidth(k) > 0 && k != KindFloat32
}

// Type describes how one field is laid out.
type Type struct {
	Kind        Kind
	Len         int    // element count for KindChars and KindArray
	Elem        Kind   // element kind for KindArray
	Schema      string // nested schema for KindStruct and KindDynamic
	LengthField string // sibling count field for KindDynamic
}

func Int8() Type    { return Type{Kind: KindInt8} }
func Uint8() Type   { return Type{Kind: KindUint8} }
func Int16() Type   { return Type{Kind: KindInt16} }
func Uint16() Type  { return Type{Kind: KindUint16} }
func Int32() Type   { return Type{Kind: KindInt32} }
func Uint32() Type  { return Type{Kind: KindUint32} }
func Float32() Type { return Type{Kind: KindFloat32} }
func Vector3() Type { return Type{Kind: KindVector3} }
func Vector2() Type { return Type{Kind: KindVector2} }

// Chars is a fixed-length byte string. Trailing zero bytes are padding.
func Chars(n int) Type { return Type{Kind: KindChars, Len: n} }

// Array is a fixed-length array of a scalar type.
func Array(elem Type, n int) Type { return Type{Kind: KindArray, Elem: elem.Kind, Len: n} }

// Nested is an inline nested schema.
func Nested(schema string) Type { return Type{Kind: KindStruct, Schema: schema} }

// Dynamic is an array of schema whose length is the value of lengthField.
func Dynamic(schema, lengthField string) Type {
	return Type{Kind: KindDynamic, Schema: schema, LengthField: lengthField}
}

// Field is a named field of a schema.
type Field struct {
	Name string
	Type Type
}

// F is shorthand for a Field literal.
func F(name string, t Type) Field {
	return Field{Name: name, Type: t}
}

// Registry maps schema names to field layouts.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string][]Field
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string][]Field)}
}

// Register adds a schema. Nested schemas may be registered later, but they
// must exist by the time the schema is decoded.
func (r *Registry) Register(name string, fields ...Field) error {
	if name == "" {
		return fmt.Errorf("%w: empty schema name", ErrInvalidSchema)
	}

	declared := make(map[string]Kind, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s: empty field name", ErrInvalidSchema, name)
		}
		if _, dup := declared[f.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidSchema, name, f.Name)
		}
		if err := checkType(f.Type, declared); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, name, f.Name, err)
		}
		declared[f.Name] = f.Type.Kind
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[name]; exists {
		return fmt.Errorf("%w: %s registered twice", ErrInvalidSchema, name)
	}
	r.schemas[name] = append([]Field(nil), fields...)
	return nil
}

// MustRegister is Register that panics on error. Meant for package init.
func (r *Registry) MustRegister(name string, fields ...Field) {
	if err := r.Register(name, fields...); err != nil {
		panic(err)
	}
}

func checkType(t Type, declared map[string]Kind) error {
	switch t.Kind {
	case KindInt8, KindUint8, KindInt16, KindUint16, KindInt32, KindUint32, KindFloat32,
		KindVector3, KindVector2:
		return nil
	case KindChars:
		if t.Len < 0 {
			return fmt.Errorf("negative length %d", t.Len)
		}
	case KindArray:
		if t.Len < 0 {
			return fmt.Errorf("negative length %d", t.Len)
		}
		if scalarWidth(t.Elem) == 0 {
			return fmt.Errorf("array element must be scalar, got %s", t.Elem)
		}
	case KindStruct:
		if t.Schema == "" {
			return errors.New("missing nested schema name")
		}
	case KindDynamic:
		if t.Schema == "" {
			return errors.New("missing nested schema name")
		}
		kind, ok := declared[t.LengthField]
		if !ok {
			return fmt.Errorf("length field %q must be declared before use", t.LengthField)
		}
		if !isInteger(kind) {
			return fmt.Errorf("length field %q is %s, not an integer", t.LengthField, kind)
		}
	default:
		return fmt.Errorf("unknown kind %s", t.Kind)
	}
	return nil
}

// Has reports whether a schema is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

func (r *Registry) lookup(name string) ([]Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.schemas[name]
	return fields, ok
}

// Size returns the fixed byte width of a schema. Schemas containing dynamic
// arrays have no fixed width and return ErrInvalidSchema.
func (r *Registry) Size(name string) (int, error) {
	return r.size(name, 0)
}

func (r *Registry) size(name string, depth int) (int, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: %s nests too deeply", ErrInvalidSchema, name)
	}
	fields, ok := r.lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}

	total := 0
	for _, f := range fields {
		switch f.Type.Kind {
		case KindChars:
			total += f.Type.Len
		case KindVector3:
			total += 12
		case KindVector2:
			total += 8
		case KindArray:
			total += scalarWidth(f.Type.Elem) * f.Type.Len
		case KindStruct:
			n, err := r.size(f.Type.Schema, depth+1)
			if err != nil {
				return 0, err
			}
			total += n
		case KindDynamic:
			return 0, fmt.Errorf("%w: %s.%s has no fixed size", ErrInvalidSchema, name, f.Name)
		default:
			total += scalarWidth(f.Type.Kind)
		}
	}
	return total, nil
}

// Decode applies the named schema to buf starting at offset.
func (r *Registry) Decode(name string, buf []byte, offset int) (*Struct, error) {
	d := decoder{registry: r, buf: buf}
	return d.decode(name, offset, 0)
}

// DecodeArray decodes count consecutive repetitions of a schema.
func (r *Registry) DecodeArray(name string, buf []byte, offset, count int) ([]*Struct, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, count)
	}
	d := decoder{registry: r, buf: buf}
	return d.repeat(name, offset, count, 0)
}
