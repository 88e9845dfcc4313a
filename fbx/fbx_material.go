package fbx

import (
	"path"
	"strings"

	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"github.com/h2non/filetype"
)

// textureSlots maps material property names to texture semantics.
var textureSlots = map[string]scene.TextureType{
	"DiffuseColor":       scene.TextureDiffuse,
	"DiffuseFactor":      scene.TextureDiffuse,
	"SpecularColor":      scene.TextureSpecular,
	"SpecularFactor":     scene.TextureSpecular,
	"AmbientColor":       scene.TextureAmbient,
	"EmissiveColor":      scene.TextureEmissive,
	"EmissiveFactor":     scene.TextureEmissive,
	"NormalMap":          scene.TextureNormals,
	"Bump":               scene.TextureHeight,
	"TransparentColor":   scene.TextureOpacity,
	"TransparencyFactor": scene.TextureOpacity,
	"ShininessExponent":  scene.TextureShininess,
	"ReflectionColor":    scene.TextureReflection,
	"ReflectionFactor":   scene.TextureReflection,
	"DisplacementColor":  scene.TextureDisplacement,
}

// Material wraps a "Material" object.
type Material struct {
	*Object
}

func (m Material) Color(name string, def [3]float32) geom.Vector4 {
	c := m.PropertyVec3(name, def)
	return geom.Vector4{X: c[0], Y: c[1], Z: c[2], W: 1}
}

// Opacity prefers "Opacity" and falls back to 1 - TransparencyFactor.
func (m Material) Opacity() float32 {
	if p := m.Property("Opacity"); len(p) > 0 {
		return p[0].ToFloat32(1)
	}
	if tf := m.PropertyFloat("TransparencyFactor", 0); tf > 0 && tf <= 1 {
		return 1 - tf
	}
	return 1
}

// Texture wraps a "Texture" object.
type Texture struct {
	*Object
}

func (t Texture) FileName() string {
	name := t.ChildString("RelativeFilename")
	if name == "" {
		name = t.ChildString("FileName")
	}
	if name == "" {
		name = t.PropertyString("Path")
	}
	return strings.ReplaceAll(name, "\\", "/")
}

// Content returns the image data of a connected "Video" object.
func (t Texture) Content() (key string, data []byte) {
	for _, v := range t.ChildObjects("Video") {
		content := v.FindChild("Content")
		raw := content.Prop(0).ToBytes()
		if len(content.Properties) > 1 {
			// ASCII files may split the base64 text into several strings.
			var sb strings.Builder
			for _, p := range content.Properties {
				sb.WriteString(p.ToString(""))
			}
			raw = (&Property{Value: sb.String()}).ToBytes()
		}
		if len(raw) > 0 {
			return v.Key, raw
		}
	}
	return "", nil
}

func (b *sceneBuilder) material(o *Object) int {
	if i, ok := b.materials[o.Key]; ok {
		return i
	}
	m := Material{o}
	mat := scene.NewMaterial(o.Name())
	diffuse := m.Color("DiffuseColor", [3]float32{0.8, 0.8, 0.8})
	if len(m.Property("DiffuseColor")) == 0 {
		diffuse = m.Color("Diffuse", [3]float32{0.8, 0.8, 0.8})
	}
	diffuse.W = m.Opacity()
	mat.SetColor(scene.KeyColorDiffuse, diffuse)
	mat.SetFloat(scene.KeyOpacity, diffuse.W)
	mat.SetColor(scene.KeyColorAmbient, m.Color("AmbientColor", zero3))
	mat.SetColor(scene.KeyColorSpecular, m.Color("SpecularColor", [3]float32{0.2, 0.2, 0.2}))
	emissive := m.Color("EmissiveColor", zero3)
	if f := m.PropertyFloat("EmissiveFactor", 1); f != 1 {
		emissive = geom.Vector4{X: emissive.X * f, Y: emissive.Y * f, Z: emissive.Z * f, W: 1}
	}
	mat.SetColor(scene.KeyColorEmissive, emissive)
	if p := m.Property("ShininessExponent"); len(p) > 0 {
		mat.SetFloat(scene.KeyShininess, p[0].ToFloat32(20))
	} else if p := m.Property("Shininess"); len(p) > 0 {
		mat.SetFloat(scene.KeyShininess, p[0].ToFloat32(20))
	}

	for _, ref := range o.Refs {
		if ref.Class() != "Texture" {
			continue
		}
		sem, ok := textureSlots[ref.Prop]
		if !ok {
			sem = scene.TextureUnknown
		}
		p := b.texturePath(Texture{ref.Object})
		if p == "" {
			continue
		}
		mat.AddTexture(scene.TextureRef{Semantic: sem, Path: p})
	}

	i := b.s.AddMaterial(mat)
	b.materials[o.Key] = i
	return i
}

// texturePath embeds Video content and returns its "*N" token, or the
// external file name.
func (b *sceneBuilder) texturePath(t Texture) string {
	key, data := t.Content()
	if data == nil {
		return t.FileName()
	}
	if i, ok := b.textures[key]; ok {
		return scene.TextureToken(i)
	}
	name := t.FileName()
	hint := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		hint = kind.Extension
	}
	if hint == "jpeg" {
		hint = "jpg"
	}
	tex := &scene.EmbeddedTexture{FormatHint: hint, Data: data}
	if name != "" {
		tex.Filename = path.Base(name)
	}
	i := b.s.AddTexture(tex)
	b.textures[key] = i
	return scene.TextureToken(i)
}
