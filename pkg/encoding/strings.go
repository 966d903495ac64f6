// Package encoding provides text and path utilities shared by the asset readers.
package encoding

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Windows1252ToUTF8 converts Windows-1252 encoded bytes to a UTF-8 string.
// Plain ASCII is returned unchanged; the original bytes are returned if
// conversion fails.
func Windows1252ToUTF8(data []byte) string {
	if isASCII(data) {
		return string(data)
	}
	result, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// FixedString converts a zero-padded char array to a UTF-8 string. Only
// bytes before the first zero are significant.
func FixedString(data []byte) string {
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		data = data[:idx]
	}
	return Windows1252ToUTF8(data)
}

// CString reads a zero-terminated string starting at offset. A string that
// runs to the end of data without a terminator is returned as is.
func CString(data []byte, offset int) string {
	if offset < 0 || offset >= len(data) {
		return ""
	}
	return FixedString(data[offset:])
}

// NormalizePath produces the canonical lookup key for a resource path:
// forward slashes only, no repeated or leading separators, lower case.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ToLower(path)

	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}
