package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// Writer writes every mesh instance of a scene as one PLY mesh in world space.
type Writer struct {
	Encoding Encoding
}

func (w *Writer) ID() string {
	if w.Encoding == ASCII {
		return "ply"
	}
	return "plyb"
}

func (w *Writer) Extension() string { return "ply" }

type flatMesh struct {
	meshes []*scene.Mesh
	// first vertex index of each mesh
	offsets     []int
	numVertices int
	numFaces    int
	normals     bool
	colors      bool
	uvs         bool
	texture     string
}

func flatten(s *scene.Scene) *flatMesh {
	f := &flatMesh{}
	for _, inst := range s.Instances() {
		if inst.Mesh < 0 || inst.Mesh >= len(s.Meshes) {
			continue
		}
		src := s.Meshes[inst.Mesh]
		m := scene.TransformMesh(src, &inst.Transform)
		f.meshes = append(f.meshes, m)
		f.offsets = append(f.offsets, f.numVertices)
		f.numVertices += len(m.Vertices)
		f.numFaces += len(m.Faces)
		f.normals = f.normals || m.HasNormals()
		f.colors = f.colors || m.HasVertexColors(0)
		f.uvs = f.uvs || m.HasTextureCoords(0)
		if f.texture == "" && src.MaterialIndex >= 0 && src.MaterialIndex < len(s.Materials) {
			if t, ok := s.Materials[src.MaterialIndex].Texture(scene.TextureDiffuse, 0); ok {
				f.texture = t.Path
			}
		}
	}
	return f
}

// resolveTexture replaces an embedded texture reference by the name of its
// extracted side-car file. It is dropped when it cannot be extracted.
func (f *flatMesh) resolveTexture(s *scene.Scene, id string, opts *format.WriteOptions) error {
	i, embedded := scene.ParseTextureToken(f.texture)
	if !embedded {
		return nil
	}
	name, ok, err := format.ExtractTexture(s, i, opts.Base("model"), id, opts)
	if err != nil {
		return err
	}
	if !ok {
		f.texture = ""
		return nil
	}
	f.texture = name
	return nil
}

func (f *flatMesh) header(enc Encoding) string {
	h := "ply\nformat " + enc.String() + " 1.0\ncomment Created by modelio\n"
	if f.texture != "" {
		h += "comment TextureFile " + f.texture + "\n"
	}
	h += fmt.Sprintf("element vertex %d\n", f.numVertices)
	h += "property float x\nproperty float y\nproperty float z\n"
	if f.normals {
		h += "property float nx\nproperty float ny\nproperty float nz\n"
	}
	if f.uvs {
		h += "property float s\nproperty float t\n"
	}
	if f.colors {
		h += "property uchar red\nproperty uchar green\nproperty uchar blue\nproperty uchar alpha\n"
	}
	h += fmt.Sprintf("element face %d\n", f.numFaces)
	h += "property list uchar int vertex_indices\n"
	h += "end_header\n"
	return h
}

// vertex returns the attribute values of vertex i in header order.
func (f *flatMesh) vertex(m *scene.Mesh, i int) (floats []float32, colors []uint8) {
	v := m.Vertices[i]
	floats = append(floats, v.X, v.Y, v.Z)
	if f.normals {
		if m.HasNormals() {
			n := m.Normals[i]
			floats = append(floats, n.X, n.Y, n.Z)
		} else {
			floats = append(floats, 0, 0, 0)
		}
	}
	if f.uvs {
		if m.HasTextureCoords(0) {
			uv := m.TexCoords[0][i]
			floats = append(floats, uv.X, uv.Y)
		} else {
			floats = append(floats, 0, 0)
		}
	}
	if f.colors {
		if m.HasVertexColors(0) {
			c := m.Colors[0][i]
			colors = append(colors, toByte(c.X), toByte(c.Y), toByte(c.Z), toByte(c.W))
		} else {
			colors = append(colors, 255, 255, 255, 255)
		}
	}
	return
}

func toByte(v float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, float64(v))) * 255))
}

func (w *Writer) Write(out io.Writer, s *scene.Scene, opts *format.WriteOptions) error {
	f := flatten(s)
	if f.numVertices == 0 {
		return format.Unsupported(w.ID(), "scene has no mesh instances")
	}
	for _, m := range f.meshes {
		for _, face := range m.Faces {
			if len(face.Indices) > 255 {
				return format.Unsupported(w.ID(), "face with %d indices", len(face.Indices))
			}
		}
	}
	if err := f.resolveTexture(s, w.ID(), opts); err != nil {
		return err
	}
	bw := bufio.NewWriter(out)
	if _, err := bw.WriteString(f.header(w.Encoding)); err != nil {
		return format.WrapIO(w.ID(), err)
	}
	var err error
	if w.Encoding == ASCII {
		err = f.writeASCII(bw)
	} else {
		var order binary.ByteOrder = binary.LittleEndian
		if w.Encoding == BinaryBigEndian {
			order = binary.BigEndian
		}
		err = f.writeBinary(bw, order)
	}
	if err != nil {
		return format.WrapIO(w.ID(), err)
	}
	opts.Log().Debug("ply written", zap.Int("vertices", f.numVertices), zap.Int("faces", f.numFaces))
	return format.WrapIO(w.ID(), bw.Flush())
}

func (f *flatMesh) writeASCII(w *bufio.Writer) error {
	buf := make([]byte, 0, 256)
	for _, m := range f.meshes {
		for i := range m.Vertices {
			floats, colors := f.vertex(m, i)
			buf = buf[:0]
			for k, v := range floats {
				if k > 0 {
					buf = append(buf, ' ')
				}
				buf = strconv.AppendFloat(buf, float64(v), 'g', -1, 32)
			}
			for _, c := range colors {
				buf = append(buf, ' ')
				buf = strconv.AppendUint(buf, uint64(c), 10)
			}
			buf = append(buf, '\n')
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	for mi, m := range f.meshes {
		for _, face := range m.Faces {
			buf = strconv.AppendInt(buf[:0], int64(len(face.Indices)), 10)
			for _, idx := range face.Indices {
				buf = append(buf, ' ')
				buf = strconv.AppendInt(buf, int64(idx+f.offsets[mi]), 10)
			}
			buf = append(buf, '\n')
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *flatMesh) writeBinary(w *bufio.Writer, order binary.ByteOrder) error {
	for _, m := range f.meshes {
		for i := range m.Vertices {
			floats, colors := f.vertex(m, i)
			if err := binary.Write(w, order, floats); err != nil {
				return err
			}
			if _, err := w.Write(colors); err != nil {
				return err
			}
		}
	}
	for mi, m := range f.meshes {
		for _, face := range m.Faces {
			if err := w.WriteByte(uint8(len(face.Indices))); err != nil {
				return err
			}
			idx := make([]int32, len(face.Indices))
			for k, v := range face.Indices {
				idx[k] = int32(v + f.offsets[mi])
			}
			if err := binary.Write(w, order, idx); err != nil {
				return err
			}
		}
	}
	return nil
}
