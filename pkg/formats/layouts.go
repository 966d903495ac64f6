package formats

import (
	"errors"
	"fmt"

	"github.com/Faultbox/srcdecomp/pkg/schema"
)

// ErrMalformedStructure is wrapped by every reader error caused by short or
// inconsistent input.
var ErrMalformedStructure = errors.New("malformed structure")

// layouts holds the binary structure definitions of every format in this
// package. Each format file registers its own schemas in init.
var layouts = schema.NewRegistry()

// decode applies a registered layout. Decoder failures are reported as
// malformed input; unknown schemas are programming errors and pass through.
func decode(name string, data []byte, offset int) (*schema.Struct, error) {
	s, err := layouts.Decode(name, data, offset)
	if err != nil {
		return nil, malformed(err)
	}
	return s, nil
}

func decodeArray(name string, data []byte, offset, count int) ([]*schema.Struct, error) {
	items, err := layouts.DecodeArray(name, data, offset, count)
	if err != nil {
		return nil, malformed(err)
	}
	return items, nil
}

func layoutSize(name string) int {
	n, err := layouts.Size(name)
	if err != nil {
		panic(err)
	}
	return n
}

func malformed(err error) error {
	if errors.Is(err, schema.ErrUnknownSchema) || errors.Is(err, ErrMalformedStructure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedStructure, err)
}

// fields concatenates layout fragments; used to build versioned variants.
func fields(parts ...[]schema.Field) []schema.Field {
	var out []schema.Field
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
