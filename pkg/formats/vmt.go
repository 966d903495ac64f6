package formats

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidVMT is returned for material documents that are not balanced
// key-value text.
var ErrInvalidVMT = fmt.Errorf("%w: invalid VMT document", ErrMalformedStructure)

// Shaders whose base texture is read by the resolver.
const (
	ShaderLightmappedGeneric    = "lightmappedgeneric"
	ShaderWorldVertexTransition = "worldvertextransition"
	ShaderVertexLitGeneric      = "vertexlitgeneric"
	ShaderPatch                 = "patch"
)

var recognizedShaders = map[string]bool{
	ShaderLightmappedGeneric:    true,
	ShaderWorldVertexTransition: true,
	ShaderVertexLitGeneric:      true,
}

// IsRecognizedShader reports whether a shader carries a usable $basetexture.
func IsRecognizedShader(shader string) bool {
	return recognizedShaders[strings.ToLower(shader)]
}

// KeyValue is one node of a key-value document. Keys are lower case; a
// node with Children is a block and has no Value.
type KeyValue struct {
	Key      string
	Value    string
	Children []*KeyValue
}

// IsBlock reports whether the node is a block.
func (kv *KeyValue) IsBlock() bool { return kv.Children != nil }

// Find returns the first child with the given key.
func (kv *KeyValue) Find(key string) (*KeyValue, bool) {
	key = strings.ToLower(key)
	for _, c := range kv.Children {
		if c.Key == key {
			return c, true
		}
	}
	return nil, false
}

// VMT is a decoded material.
type VMT struct {
	Shader string // lower case
	Params *KeyValue
}

// ParseVMT decodes a material document. The first top-level block names
// the shader.
func ParseVMT(data []byte) (*VMT, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	p := &kvParser{data: data}

	nodes, err := p.block(false)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.IsBlock() {
			return &VMT{Shader: n.Key, Params: n}, nil
		}
	}
	return nil, fmt.Errorf("%w: no shader block", ErrInvalidVMT)
}

// ParseVMTFile reads and decodes a material file from disk.
func ParseVMTFile(path string) (*VMT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading VMT file: %w", err)
	}
	return ParseVMT(data)
}

// Param returns a top-level shader parameter.
func (m *VMT) Param(name string) (string, bool) {
	kv, ok := m.Params.Find(name)
	if !ok || kv.IsBlock() {
		return "", false
	}
	return kv.Value, true
}

// BaseTexture returns the $basetexture of a recognized shader.
func (m *VMT) BaseTexture() (string, bool) {
	if !IsRecognizedShader(m.Shader) {
		return "", false
	}
	tex, ok := m.Param("$basetexture")
	if !ok || tex == "" {
		return "", false
	}
	return tex, true
}

// Include returns the base material of a patch material.
func (m *VMT) Include() (string, bool) {
	if m.Shader != ShaderPatch {
		return "", false
	}
	return m.Param("include")
}

// Patch applies a patch material's "replace" and "insert" blocks on top of
// base and returns the result. base is not modified.
func (m *VMT) Patch(base *VMT) *VMT {
	out := &VMT{Shader: base.Shader, Params: cloneKV(base.Params)}
	if replace, ok := m.Params.Find("replace"); ok {
		for _, c := range replace.Children {
			if existing, ok := out.Params.Find(c.Key); ok {
				*existing = *cloneKV(c)
			}
		}
	}
	if insert, ok := m.Params.Find("insert"); ok {
		for _, c := range insert.Children {
			if existing, ok := out.Params.Find(c.Key); ok {
				*existing = *cloneKV(c)
				continue
			}
			out.Params.Children = append(out.Params.Children, cloneKV(c))
		}
	}
	return out
}

func cloneKV(kv *KeyValue) *KeyValue {
	out := &KeyValue{Key: kv.Key, Value: kv.Value}
	if kv.Children != nil {
		out.Children = make([]*KeyValue, len(kv.Children))
		for i, c := range kv.Children {
			out.Children[i] = cloneKV(c)
		}
	}
	return out
}

type kvToken int

const (
	tokEOF kvToken = iota
	tokString
	tokOpen
	tokClose
)

type kvParser struct {
	data []byte
	pos  int
	line int
}

// block reads key-value pairs until '}' (nested) or end of input.
func (p *kvParser) block(nested bool) ([]*KeyValue, error) {
	nodes := []*KeyValue{}
	for {
		tok, key, err := p.next()
		if err != nil {
			return nil, err
		}
		switch tok {
		case tokEOF:
			if nested {
				return nil, fmt.Errorf("%w: unexpected end of input in block", ErrInvalidVMT)
			}
			return nodes, nil
		case tokClose:
			if !nested {
				return nil, fmt.Errorf("%w: unexpected '}' on line %d", ErrInvalidVMT, p.line+1)
			}
			return nodes, nil
		case tokOpen:
			return nil, fmt.Errorf("%w: block without key on line %d", ErrInvalidVMT, p.line+1)
		}

		tok, value, err := p.next()
		if err != nil {
			return nil, err
		}
		node := &KeyValue{Key: strings.ToLower(key)}
		switch tok {
		case tokString:
			node.Value = value
		case tokOpen:
			children, err := p.block(true)
			if err != nil {
				return nil, err
			}
			node.Children = children
		default:
			return nil, fmt.Errorf("%w: key %q without value on line %d", ErrInvalidVMT, key, p.line+1)
		}
		p.skipConditional()
		nodes = append(nodes, node)
	}
}

func (p *kvParser) skipSpace() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch {
		case c == '\n':
			p.line++
			p.pos++
		case c == ' ' || c == '\t' || c == '\r':
			p.pos++
		case c == '/' && p.pos+1 < len(p.data) && p.data[p.pos+1] == '/':
			for p.pos < len(p.data) && p.data[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

// skipConditional drops a trailing platform condition such as [$X360].
func (p *kvParser) skipConditional() {
	p.skipSpace()
	if p.pos < len(p.data) && p.data[p.pos] == '[' {
		if end := bytes.IndexByte(p.data[p.pos:], ']'); end >= 0 {
			p.pos += end + 1
		}
	}
}

func (p *kvParser) next() (kvToken, string, error) {
	p.skipSpace()
	if p.pos >= len(p.data) {
		return tokEOF, "", nil
	}

	switch c := p.data[p.pos]; c {
	case '{':
		p.pos++
		return tokOpen, "", nil
	case '}':
		p.pos++
		return tokClose, "", nil
	case '"':
		end := bytes.IndexByte(p.data[p.pos+1:], '"')
		if end < 0 {
			return tokEOF, "", fmt.Errorf("%w: unterminated string on line %d", ErrInvalidVMT, p.line+1)
		}
		s := string(p.data[p.pos+1 : p.pos+1+end])
		p.line += strings.Count(s, "\n")
		p.pos += end + 2
		return tokString, s, nil
	}

	start := p.pos
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '"' || c == '{' || c == '}' {
			break
		}
		p.pos++
	}
	return tokString, string(p.data[start:p.pos]), nil
}
