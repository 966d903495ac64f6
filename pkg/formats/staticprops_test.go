package formats

import (
	"errors"
	"testing"

	"github.com/Faultbox/srcdecomp/pkg/formats/formatstest"
)

func TestStaticPropRecordSizes(t *testing.T) {
	want := map[int]int{4: 56, 5: 60, 6: 64, 7: 68, 8: 68, 9: 72, 10: 76, 11: 80}
	for version, size := range want {
		if got := layoutSize(staticPropSchema(version)); got != size {
			t.Errorf("v%d record size = %d, want %d", version, got, size)
		}
	}
}

func TestParseStaticProps(t *testing.T) {
	for _, version := range []int{4, 5, 6, 7, 8, 9, 10, 11} {
		data := formatstest.StaticProps(version, []string{"models/a.mdl", "models/b.mdl"}, []formatstest.Prop{
			{Origin: [3]float32{10, 20, 30}, Angles: [3]float32{0, 90, 0}, PropType: 1, Scale: 2},
			{Origin: [3]float32{1, 2, 3}, PropType: 0, Scale: 1},
			{PropType: 9},
		})

		lump, err := ParseStaticProps(data, uint16(version))
		if err != nil {
			t.Fatalf("v%d: ParseStaticProps failed: %v", version, err)
		}
		if len(lump.Names) != 2 || len(lump.Leaves) != 2 || len(lump.Props) != 3 {
			t.Fatalf("v%d: got %d names, %d leaves, %d props", version, len(lump.Names), len(lump.Leaves), len(lump.Props))
		}

		p := lump.Props[0]
		if p.ModelName != "models/b.mdl" || p.Origin != [3]float32{10, 20, 30} || p.Angles != [3]float32{0, 90, 0} {
			t.Errorf("v%d: unexpected first prop %+v", version, p)
		}
		if p.LeafCount != 2 || p.Solid != 6 || p.FadeMaxDist != 200 {
			t.Errorf("v%d: misaligned base fields %+v", version, p)
		}

		wantScale := float32(0)
		if version >= 11 {
			wantScale = 2
		}
		if p.UniformScale != wantScale {
			t.Errorf("v%d: UniformScale = %v, want %v", version, p.UniformScale, wantScale)
		}

		if lump.Props[2].ModelName != "" {
			t.Errorf("v%d: out of range prop type should have no model, got %q", version, lump.Props[2].ModelName)
		}
	}
}

func TestParseStaticProps_Errors(t *testing.T) {
	valid := formatstest.StaticProps(10, []string{"models/a.mdl"}, []formatstest.Prop{{}})

	tests := []struct {
		name    string
		data    []byte
		version uint16
		wantErr error
	}{
		{"unsupported version", valid, 3, ErrUnsupportedStaticPropVersion},
		{"future version", valid, 12, ErrUnsupportedStaticPropVersion},
		{"truncated dictionary", valid[:50], 10, ErrMalformedStructure},
		{"truncated props", valid[:len(valid)-10], 10, ErrMalformedStructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStaticProps(tt.data, tt.version); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
