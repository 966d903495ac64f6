package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

type decoder struct {
	registry *Registry
	buf      []byte
}

func (d *decoder) decode(name string, offset, depth int) (*Struct, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: %s nests too deeply", ErrInvalidSchema, name)
	}
	fields, ok := d.registry.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}

	s := &Struct{
		schema: name,
		offset: offset,
		names:  make([]string, 0, len(fields)),
		values: make(map[string]any, len(fields)),
	}

	cursor := offset
	for _, f := range fields {
		v, n, err := d.field(s, f, cursor, depth)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, f.Name, err)
		}
		s.names = append(s.names, f.Name)
		s.values[f.Name] = v
		cursor += n
	}
	s.size = cursor - offset
	return s, nil
}

func (d *decoder) repeat(name string, offset, count, depth int) ([]*Struct, error) {
	if count == 0 {
		if !d.registry.Has(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
		}
		return []*Struct{}, nil
	}
	// Every registered element is at least one byte unless the schema is
	// empty, so a count beyond the remaining bytes can never succeed.
	if width, err := d.registry.Size(name); err == nil && width > 0 {
		if offset < 0 || count > (len(d.buf)-offset)/width {
			return nil, fmt.Errorf("%w: %d x %s (%d bytes) at offset %d, have %d",
				ErrTruncatedBuffer, count, name, width, offset, len(d.buf))
		}
	}

	items := make([]*Struct, 0, count)
	cursor := offset
	for i := 0; i < count; i++ {
		item, err := d.decode(name, cursor, depth+1)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		items = append(items, item)
		cursor += item.size
	}
	return items, nil
}

func (d *decoder) need(at, width int) error {
	if at < 0 || width < 0 || at+width > len(d.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedBuffer, width, at, len(d.buf))
	}
	return nil
}

func (d *decoder) field(s *Struct, f Field, at, depth int) (any, int, error) {
	t := f.Type
	switch t.Kind {
	case KindChars:
		if err := d.need(at, t.Len); err != nil {
			return nil, 0, err
		}
		return bytes.Clone(d.buf[at : at+t.Len]), t.Len, nil

	case KindVector3:
		if err := d.need(at, 12); err != nil {
			return nil, 0, err
		}
		return [3]float32{d.float(at), d.float(at + 4), d.float(at + 8)}, 12, nil

	case KindVector2:
		if err := d.need(at, 8); err != nil {
			return nil, 0, err
		}
		return [2]float32{d.float(at), d.float(at + 4)}, 8, nil

	case KindArray:
		w := scalarWidth(t.Elem)
		if err := d.need(at, w*t.Len); err != nil {
			return nil, 0, err
		}
		if t.Elem == KindFloat32 {
			out := make([]float32, t.Len)
			for i := range out {
				out[i] = d.float(at + i*w)
			}
			return out, w * t.Len, nil
		}
		out := make([]int64, t.Len)
		for i := range out {
			out[i] = d.integer(t.Elem, at+i*w)
		}
		return out, w * t.Len, nil

	case KindStruct:
		child, err := d.decode(t.Schema, at, depth+1)
		if err != nil {
			return nil, 0, err
		}
		return child, child.size, nil

	case KindDynamic:
		count := s.Int(t.LengthField)
		if count < 0 || count > math.MaxInt32 {
			return nil, 0, fmt.Errorf("%w: %s = %d", ErrInvalidLength, t.LengthField, count)
		}
		items, err := d.repeat(t.Schema, at, int(count), depth)
		if err != nil {
			return nil, 0, err
		}
		consumed := 0
		for _, item := range items {
			consumed += item.size
		}
		return items, consumed, nil

	case KindFloat32:
		if err := d.need(at, 4); err != nil {
			return nil, 0, err
		}
		return d.float(at), 4, nil

	default:
		w := scalarWidth(t.Kind)
		if w == 0 {
			return nil, 0, fmt.Errorf("%w: unknown kind %s", ErrInvalidSchema, t.Kind)
		}
		if err := d.need(at, w); err != nil {
			return nil, 0, err
		}
		return d.integer(t.Kind, at), w, nil
	}
}

func (d *decoder) float(at int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(d.buf[at:]))
}

func (d *decoder) integer(k Kind, at int) int64 {
	switch k {
	case KindInt8:
		return int64(int8(d.buf[at]))
	case KindUint8:
		return int64(d.buf[at])
	case KindInt16:
		return int64(int16(binary.LittleEndian.Uint16(d.buf[at:])))
	case KindUint16:
		return int64(binary.LittleEndian.Uint16(d.buf[at:]))
	case KindInt32:
		return int64(int32(binary.LittleEndian.Uint32(d.buf[at:])))
	case KindUint32:
		return int64(binary.LittleEndian.Uint32(d.buf[at:]))
	}
	return 0
}
