package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// Writer writes every mesh instance in world space. Binary output stores
// vertex colors of the first corner as VisCAM face colors.
type Writer struct {
	Binary bool
}

func (w *Writer) ID() string {
	if w.Binary {
		return "stlb"
	}
	return "stl"
}

func (w *Writer) Extension() string { return "stl" }

func (w *Writer) Prepare() []string { return []string{"Triangulate"} }

type triangle struct {
	normal geom.Vector3
	v      [3]geom.Vector3
	color  *geom.Vector4
}

type solid struct {
	name      string
	triangles []triangle
}

func collect(s *scene.Scene, log *zap.Logger) []solid {
	var solids []solid
	skipped := 0
	for _, inst := range s.Instances() {
		if inst.Mesh < 0 || inst.Mesh >= len(s.Meshes) {
			continue
		}
		m := scene.TransformMesh(s.Meshes[inst.Mesh], &inst.Transform)
		sd := solid{name: m.Name}
		for _, f := range m.Faces {
			if len(f.Indices) < 3 {
				skipped++
				continue
			}
			// fan for polygons left untriangulated
			for k := 1; k+1 < len(f.Indices); k++ {
				t := triangle{v: [3]geom.Vector3{m.Vertices[f.Indices[0]], m.Vertices[f.Indices[k]], m.Vertices[f.Indices[k+1]]}}
				t.normal = facetNormal(geom.Vector3{}, &t.v[0], &t.v[1], &t.v[2])
				if m.HasVertexColors(0) {
					c := m.Colors[0][f.Indices[0]]
					t.color = &c
				}
				sd.triangles = append(sd.triangles, t)
			}
		}
		solids = append(solids, sd)
	}
	if skipped > 0 {
		log.Warn("skipping point and line faces", zap.Int("faces", skipped))
	}
	return solids
}

func (w *Writer) Write(out io.Writer, s *scene.Scene, opts *format.WriteOptions) error {
	solids := collect(s, opts.Log())
	n := 0
	for _, sd := range solids {
		n += len(sd.triangles)
	}
	if n == 0 {
		return format.Unsupported(w.ID(), "scene has no triangles")
	}
	bw := bufio.NewWriter(out)
	if w.Binary {
		writeBinary(bw, solids, n)
	} else {
		writeASCII(bw, solids)
	}
	if err := bw.Flush(); err != nil {
		return format.WrapIO(w.ID(), err)
	}
	return nil
}

func ftoa(v float32) string {
	return strconv.FormatFloat(float64(v), 'e', -1, 32)
}

func writeASCII(w *bufio.Writer, solids []solid) {
	for i, sd := range solids {
		name := sd.name
		if name == "" {
			name = "solid" + strconv.Itoa(i)
		}
		fmt.Fprintf(w, "solid %s\n", name)
		for _, t := range sd.triangles {
			fmt.Fprintf(w, "  facet normal %s %s %s\n    outer loop\n", ftoa(t.normal.X), ftoa(t.normal.Y), ftoa(t.normal.Z))
			for _, v := range t.v {
				fmt.Fprintf(w, "      vertex %s %s %s\n", ftoa(v.X), ftoa(v.Y), ftoa(v.Z))
			}
			w.WriteString("    endloop\n  endfacet\n")
		}
		fmt.Fprintf(w, "endsolid %s\n", name)
	}
}

func colorBits(v float32) uint16 {
	return uint16(max(0, min(31, v*31+0.5)))
}

func writeBinary(w *bufio.Writer, solids []solid, n int) {
	var header [headerSize]byte
	copy(header[:], "binary STL written by modelio")
	w.Write(header[:])
	binary.Write(w, binary.LittleEndian, uint32(n))
	for _, sd := range solids {
		for _, t := range sd.triangles {
			rec := [12]float32{t.normal.X, t.normal.Y, t.normal.Z}
			for i, v := range t.v {
				rec[3+i*3], rec[4+i*3], rec[5+i*3] = v.X, v.Y, v.Z
			}
			binary.Write(w, binary.LittleEndian, rec)
			var attr uint16
			if t.color != nil {
				attr = colorValid | colorBits(t.color.X)<<10 | colorBits(t.color.Y)<<5 | colorBits(t.color.Z)
			}
			binary.Write(w, binary.LittleEndian, attr)
		}
	}
}
