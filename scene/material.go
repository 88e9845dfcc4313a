package scene

import (
	"fmt"

	"github.com/binzume/modelio/geom"
)

// Well known material keys.
const (
	KeyName            = "?mat.name"
	KeyColorDiffuse    = "$clr.diffuse"
	KeyColorAmbient    = "$clr.ambient"
	KeyColorSpecular   = "$clr.specular"
	KeyColorEmissive   = "$clr.emissive"
	KeyOpacity         = "$mat.opacity"
	KeyShininess       = "$mat.shininess"
	KeyTwoSided        = "$mat.twosided"
	KeyMetallicFactor  = "$mat.metallicFactor"
	KeyRoughnessFactor = "$mat.roughnessFactor"
	KeyAlphaMode       = "$mat.alphaMode"
	KeyAlphaCutoff     = "$mat.alphaCutoff"
	KeyShadingModel    = "$mat.shadingm"
	KeyTexture         = "$tex.file"
	KeyUVWSource       = "$tex.uvwsrc"
)

type TextureType int

const (
	TextureNone TextureType = iota
	TextureDiffuse
	TextureSpecular
	TextureAmbient
	TextureEmissive
	TextureHeight
	TextureNormals
	TextureShininess
	TextureOpacity
	TextureDisplacement
	TextureLightmap
	TextureReflection
	TextureBaseColor
	TextureMetalness
	TextureRoughness
	TextureAmbientOcclusion
	TextureUnknown
)

var textureTypeNames = [...]string{
	"none", "diffuse", "specular", "ambient", "emissive", "height", "normals", "shininess",
	"opacity", "displacement", "lightmap", "reflection", "basecolor", "metalness", "roughness",
	"ao", "unknown",
}

func (t TextureType) String() string {
	if t < 0 || int(t) >= len(textureTypeNames) {
		return fmt.Sprintf("TextureType(%d)", int(t))
	}
	return textureTypeNames[t]
}

type PropertyType int

const (
	PropertyFloat PropertyType = iota
	PropertyInt
	PropertyString
)

// Property is identified by Key, Semantic and Index.
// Semantic and Index are only used by texture related keys.
type Property struct {
	Key      string
	Semantic TextureType
	Index    int
	Type     PropertyType
	Floats   []float32
	Ints     []int32
	Str      string
}

func (p *Property) sameSlot(key string, sem TextureType, index int) bool {
	return p.Key == key && p.Semantic == sem && p.Index == index
}

// Equal compares type and value.
func (p *Property) Equal(o *Property) bool {
	if !p.sameSlot(o.Key, o.Semantic, o.Index) || p.Type != o.Type || p.Str != o.Str ||
		len(p.Floats) != len(o.Floats) || len(p.Ints) != len(o.Ints) {
		return false
	}
	for i := range p.Floats {
		if p.Floats[i] != o.Floats[i] {
			return false
		}
	}
	for i := range p.Ints {
		if p.Ints[i] != o.Ints[i] {
			return false
		}
	}
	return true
}

type TextureRef struct {
	Semantic TextureType
	Index    int
	Path     string
	UVIndex  int
}

// Material is an ordered list of typed properties.
type Material struct {
	Properties []Property
}

func NewMaterial(name string) *Material {
	m := &Material{}
	m.SetString(KeyName, name)
	return m
}

// Set replaces the property in the same slot or appends it.
func (m *Material) Set(p Property) {
	for i := range m.Properties {
		if m.Properties[i].sameSlot(p.Key, p.Semantic, p.Index) {
			m.Properties[i] = p
			return
		}
	}
	m.Properties = append(m.Properties, p)
}

func (m *Material) Get(key string, sem TextureType, index int) (*Property, bool) {
	for i := range m.Properties {
		if m.Properties[i].sameSlot(key, sem, index) {
			return &m.Properties[i], true
		}
	}
	return nil, false
}

func (m *Material) Remove(key string, sem TextureType, index int) {
	for i := range m.Properties {
		if m.Properties[i].sameSlot(key, sem, index) {
			m.Properties = append(m.Properties[:i], m.Properties[i+1:]...)
			return
		}
	}
}

func (m *Material) Name() string {
	s, _ := m.GetString(KeyName)
	return s
}

func (m *Material) SetString(key, value string) {
	m.Set(Property{Key: key, Type: PropertyString, Str: value})
}

func (m *Material) SetFloat(key string, value float32) {
	m.Set(Property{Key: key, Type: PropertyFloat, Floats: []float32{value}})
}

func (m *Material) SetInt(key string, value int32) {
	m.Set(Property{Key: key, Type: PropertyInt, Ints: []int32{value}})
}

func (m *Material) SetBool(key string, value bool) {
	v := int32(0)
	if value {
		v = 1
	}
	m.SetInt(key, v)
}

func (m *Material) SetColor(key string, c geom.Vector4) {
	m.Set(Property{Key: key, Type: PropertyFloat, Floats: []float32{c.X, c.Y, c.Z, c.W}})
}

func (m *Material) GetString(key string) (string, bool) {
	p, ok := m.Get(key, TextureNone, 0)
	if !ok || p.Type != PropertyString {
		return "", false
	}
	return p.Str, true
}

func (m *Material) GetFloat(key string) (float32, bool) {
	p, ok := m.Get(key, TextureNone, 0)
	if !ok {
		return 0, false
	}
	switch {
	case len(p.Floats) > 0:
		return p.Floats[0], true
	case len(p.Ints) > 0:
		return float32(p.Ints[0]), true
	}
	return 0, false
}

func (m *Material) GetInt(key string) (int32, bool) {
	p, ok := m.Get(key, TextureNone, 0)
	if !ok {
		return 0, false
	}
	switch {
	case len(p.Ints) > 0:
		return p.Ints[0], true
	case len(p.Floats) > 0:
		return int32(p.Floats[0]), true
	}
	return 0, false
}

func (m *Material) GetBool(key string) bool {
	v, ok := m.GetInt(key)
	return ok && v != 0
}

// GetColor returns an RGBA color. RGB values get alpha 1.
func (m *Material) GetColor(key string) (geom.Vector4, bool) {
	p, ok := m.Get(key, TextureNone, 0)
	if !ok || len(p.Floats) < 3 {
		return geom.Vector4{}, false
	}
	c := geom.Vector4{X: p.Floats[0], Y: p.Floats[1], Z: p.Floats[2], W: 1}
	if len(p.Floats) >= 4 {
		c.W = p.Floats[3]
	}
	return c, true
}

// AddTexture stores t at the next free index of its semantic and returns that index.
func (m *Material) AddTexture(t TextureRef) int {
	t.Index = m.TextureCount(t.Semantic)
	m.Set(Property{Key: KeyTexture, Semantic: t.Semantic, Index: t.Index, Type: PropertyString, Str: t.Path})
	if t.UVIndex != 0 {
		m.Set(Property{Key: KeyUVWSource, Semantic: t.Semantic, Index: t.Index, Type: PropertyInt, Ints: []int32{int32(t.UVIndex)}})
	}
	return t.Index
}

// SetTexturePath rewrites the path of an existing texture reference.
func (m *Material) SetTexturePath(sem TextureType, index int, path string) {
	if p, ok := m.Get(KeyTexture, sem, index); ok {
		p.Str = path
	}
}

func (m *Material) TextureCount(sem TextureType) int {
	n := 0
	for _, p := range m.Properties {
		if p.Key == KeyTexture && p.Semantic == sem {
			n++
		}
	}
	return n
}

func (m *Material) Texture(sem TextureType, index int) (TextureRef, bool) {
	p, ok := m.Get(KeyTexture, sem, index)
	if !ok {
		return TextureRef{}, false
	}
	t := TextureRef{Semantic: sem, Index: index, Path: p.Str}
	if uv, ok := m.Get(KeyUVWSource, sem, index); ok && len(uv.Ints) > 0 {
		t.UVIndex = int(uv.Ints[0])
	}
	return t, true
}

func (m *Material) Textures(sem TextureType) []TextureRef {
	var r []TextureRef
	for i := 0; i < m.TextureCount(sem); i++ {
		if t, ok := m.Texture(sem, i); ok {
			r = append(r, t)
		}
	}
	return r
}

// AllTextures returns every texture reference in property order.
func (m *Material) AllTextures() []TextureRef {
	var r []TextureRef
	for _, p := range m.Properties {
		if p.Key == KeyTexture {
			if t, ok := m.Texture(p.Semantic, p.Index); ok {
				r = append(r, t)
			}
		}
	}
	return r
}
