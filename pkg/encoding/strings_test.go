package encoding

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"materials/Brick/Wall01.vmt", "materials/brick/wall01.vmt"},
		{"MATERIALS\\brick\\wall01.VMT", "materials/brick/wall01.vmt"},
		{"/models//props\\\\crate.mdl", "models/props/crate.mdl"},
		{"./maps/de_test.bsp", "maps/de_test.bsp"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePath(tt.in); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFixedString(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"padded", []byte{'a', 'b', 0, 0}, "ab"},
		{"unterminated", []byte{'a', 'b', 'c'}, "abc"},
		{"garbage after zero", []byte{'x', 0, 'y'}, "x"},
		{"empty", nil, ""},
		{"windows-1252", []byte{'c', 0xE9, 0}, "cé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FixedString(tt.data); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCString(t *testing.T) {
	data := []byte("first\x00second\x00")

	if got := CString(data, 0); got != "first" {
		t.Errorf("got %q, want first", got)
	}
	if got := CString(data, 6); got != "second" {
		t.Errorf("got %q, want second", got)
	}
	if got := CString(data, 100); got != "" {
		t.Errorf("out of range offset: got %q, want empty", got)
	}
	if got := CString(data, -1); got != "" {
		t.Errorf("negative offset: got %q, want empty", got)
	}
}
