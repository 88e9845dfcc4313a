package mmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// PMXReader imports .pmx models.
type PMXReader struct{}

func (PMXReader) Format() string       { return pmxFormat }
func (PMXReader) Extensions() []string { return []string{"pmx"} }

func (PMXReader) CanRead(data []byte) bool {
	return bytes.HasPrefix(data, pmxMagic)
}

func (PMXReader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	doc, err := NewPMXParser(data).Parse()
	if err != nil {
		return nil, err
	}
	return (&sceneBuilder{doc: doc, opts: opts, format: pmxFormat}).build()
}

// PMDReader imports .pmd models.
type PMDReader struct{}

func (PMDReader) Format() string       { return pmdFormat }
func (PMDReader) Extensions() []string { return []string{"pmd"} }

func (PMDReader) CanRead(data []byte) bool {
	return bytes.HasPrefix(data, pmdMagic)
}

func (PMDReader) Read(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	doc, err := NewPMDParser(data).Parse()
	if err != nil {
		return nil, err
	}
	return (&sceneBuilder{doc: doc, opts: opts, format: pmdFormat}).build()
}

// mirror converts between the left-handed MMD space and the scene's
// right-handed space.
func mirror(v geom.Vector3) geom.Vector3 {
	return geom.Vector3{X: v.X, Y: v.Y, Z: -v.Z}
}

func mirrorRotation(q geom.Vector4) geom.Quaternion {
	return geom.Quaternion{X: -q.X, Y: -q.Y, Z: q.Z, W: q.W}
}

type sceneBuilder struct {
	doc    *Document
	opts   *format.ReadOptions
	format string
	s      *scene.Scene
	model  *scene.Node
}

func (b *sceneBuilder) build() (*scene.Scene, error) {
	b.s = scene.New()
	name := b.doc.Name
	if name == "" {
		name = "model"
	}
	b.model = b.s.RootNode.AddChild(scene.NewNode(name))

	for _, m := range b.doc.Materials {
		mat, err := b.material(m)
		if err != nil {
			return nil, err
		}
		b.s.AddMaterial(mat)
	}
	if err := b.meshes(); err != nil {
		return nil, err
	}
	if len(b.s.Meshes) == 0 {
		return nil, format.Malformed(b.format, "no geometry")
	}
	if err := b.bones(); err != nil {
		return nil, err
	}
	if len(b.doc.Morphs) > 0 {
		b.opts.Log().Debug("morphs not imported", zap.String("format", b.format), zap.Int("morphs", len(b.doc.Morphs)))
	}

	md := &b.s.Metadata
	md.SetString("SourceAsset_Format", fmt.Sprintf("%s %.1f", b.format, b.doc.Header.Version))
	if b.doc.Comment != "" {
		md.SetString("Comment", b.doc.Comment)
	}
	return b.s, nil
}

func (b *sceneBuilder) texturePath(id int, what string) (string, error) {
	if id < 0 {
		return "", nil
	}
	if id >= len(b.doc.Textures) {
		return "", b.opts.Recover(format.Malformed(b.format, "%s texture %d out of range [0,%d)", what, id, len(b.doc.Textures)))
	}
	return strings.ReplaceAll(b.doc.Textures[id], "\\", "/"), nil
}

func (b *sceneBuilder) material(m *Material) (*scene.Material, error) {
	name := m.Name
	if name == "" {
		name = m.NameEn
	}
	mat := scene.NewMaterial(name)
	mat.SetColor(scene.KeyColorDiffuse, m.Color)
	mat.SetFloat(scene.KeyOpacity, m.Color.W)
	mat.SetColor(scene.KeyColorSpecular, geom.Vector4{X: m.Specular.X, Y: m.Specular.Y, Z: m.Specular.Z, W: 1})
	mat.SetColor(scene.KeyColorAmbient, geom.Vector4{X: m.AColor.X, Y: m.AColor.Y, Z: m.AColor.Z, W: 1})
	mat.SetFloat(scene.KeyShininess, m.Specularity)
	if m.Flags&MaterialFlagDoubleSided != 0 {
		mat.SetBool(scene.KeyTwoSided, true)
	}
	tex, err := b.texturePath(m.TextureID, "diffuse")
	if err != nil {
		return nil, err
	}
	if tex != "" {
		mat.AddTexture(scene.TextureRef{Semantic: scene.TextureDiffuse, Path: tex})
	}
	env, err := b.texturePath(m.EnvID, "sphere")
	if err != nil {
		return nil, err
	}
	if env != "" {
		mat.AddTexture(scene.TextureRef{Semantic: scene.TextureReflection, Path: env})
	}
	return mat, nil
}

// meshes turns the face range of each material into one mesh. Corners are
// reversed to counter-clockwise order and V is flipped to a bottom-left
// origin.
func (b *sceneBuilder) meshes() error {
	faces := b.doc.Faces
	type faceRange struct{ material, start, end int }
	var ranges []faceRange
	start := 0
	for mi, m := range b.doc.Materials {
		if m.Count%3 != 0 || m.Count < 0 {
			if err := b.opts.Recover(format.Malformed(b.format, "material %q: index count %d is not a multiple of 3", m.Name, m.Count)); err != nil {
				return err
			}
		}
		end := start + max(m.Count, 0)/3
		if end > len(faces) {
			if err := b.opts.Recover(format.Malformed(b.format, "material %q: faces [%d,%d) exceed face count %d", m.Name, start, end, len(faces))); err != nil {
				return err
			}
			end = len(faces)
		}
		ranges = append(ranges, faceRange{mi, start, end})
		start = end
	}
	if start < len(faces) {
		if len(b.doc.Materials) > 0 {
			b.opts.Log().Warn("faces without material", zap.String("format", b.format), zap.Int("faces", len(faces)-start))
		}
		ranges = append(ranges, faceRange{scene.NoMaterial, start, len(faces)})
	}

	for _, r := range ranges {
		if r.start == r.end {
			continue
		}
		name := b.model.Name
		if r.material >= 0 {
			name = b.s.Materials[r.material].Name()
		}
		mesh := scene.NewMesh(name)
		mesh.MaterialIndex = r.material
		mesh.AddTexCoordChannel(2)
		remap := map[int]int{}
		for fi := r.start; fi < r.end; fi++ {
			f := faces[fi]
			valid := true
			for _, v := range f.Verts {
				valid = valid && v >= 0 && v < len(b.doc.Vertexes)
			}
			if !valid {
				if err := b.opts.Recover(format.Malformed(b.format, "face %d: vertex index out of range [0,%d)", fi, len(b.doc.Vertexes))); err != nil {
					return err
				}
				continue
			}
			idx := make([]int, 3)
			for k, v := range [3]int{f.Verts[0], f.Verts[2], f.Verts[1]} {
				i, ok := remap[v]
				if !ok {
					i = b.addVertex(mesh, b.doc.Vertexes[v])
					remap[v] = i
				}
				idx[k] = i
			}
			mesh.Faces = append(mesh.Faces, scene.Face{Indices: idx})
		}
		if len(mesh.Faces) == 0 {
			continue
		}
		mesh.UpdatePrimitiveTypes()
		b.model.Meshes = append(b.model.Meshes, b.s.AddMesh(mesh))
	}
	return nil
}

func (b *sceneBuilder) addVertex(m *scene.Mesh, v *Vertex) int {
	m.Vertices = append(m.Vertices, mirror(v.Pos))
	m.Normals = append(m.Normals, mirror(v.Normal))
	m.TexCoords[0] = append(m.TexCoords[0], *v.UV.FlipV().Vector3())
	return len(m.Vertices) - 1
}

// bones adds one node per bone below the model node. Node transforms are
// the bone offsets from their parents.
func (b *sceneBuilder) bones() error {
	bones := b.doc.Bones
	if len(bones) == 0 {
		return nil
	}
	parents := make([]int, len(bones))
	for i, bone := range bones {
		parents[i] = bone.ParentID
		if bone.ParentID >= len(bones) || bone.ParentID == i {
			if err := b.opts.Recover(format.Malformed(b.format, "bone %q: parent %d out of range", bone.Name, bone.ParentID)); err != nil {
				return err
			}
			parents[i] = -1
		}
	}
	// break parent cycles at the bone where they are found
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(bones))
	for i := range bones {
		var path []int
		for j := i; j >= 0 && state[j] != done; j = parents[j] {
			if state[j] == visiting {
				if err := b.opts.Recover(format.Malformed(b.format, "bone %q: parent cycle", bones[j].Name)); err != nil {
					return err
				}
				parents[j] = -1
				break
			}
			state[j] = visiting
			path = append(path, j)
		}
		for _, j := range path {
			state[j] = done
		}
	}

	nodes := make([]*scene.Node, len(bones))
	for i, bone := range bones {
		nodes[i] = scene.NewNode(bone.Name)
		offset := mirror(bone.Pos)
		if p := parents[i]; p >= 0 {
			parent := mirror(bones[p].Pos)
			offset = *offset.Sub(&parent)
		}
		nodes[i].Transform = *geom.NewTranslateMatrix4(offset.X, offset.Y, offset.Z)
		nodes[i].Metadata.SetInt("BoneIndex", int64(i))
	}
	for i, n := range nodes {
		if p := parents[i]; p >= 0 {
			nodes[p].AddChild(n)
		} else {
			b.model.AddChild(n)
		}
	}
	b.opts.Log().Debug("skin weights not imported", zap.String("format", b.format), zap.Int("bones", len(bones)))
	return nil
}
