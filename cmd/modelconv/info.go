package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/binzume/modelio/scene"
)

func (c *converter) info(w io.Writer, input string) error {
	s, err := c.load(input)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", input)
	writeSummary(w, s)
	return nil
}

func writeSummary(w io.Writer, s *scene.Scene) {
	if e, ok := s.Metadata.Get("SourceAsset_Format"); ok {
		fmt.Fprintf(w, "  format: %v\n", e.Value())
	}
	if s.Flags&scene.FlagIncomplete != 0 {
		fmt.Fprintln(w, "  incomplete: no geometry")
	}
	fmt.Fprintf(w, "  vertices: %d faces: %d\n", s.NumVertices(), s.NumFaces())

	fmt.Fprintf(w, "  meshes: %d\n", len(s.Meshes))
	for i, m := range s.Meshes {
		mat := "-"
		if m.MaterialIndex >= 0 && m.MaterialIndex < len(s.Materials) {
			mat = s.Materials[m.MaterialIndex].Name()
		}
		var attrs []string
		if m.HasNormals() {
			attrs = append(attrs, "normals")
		}
		if len(m.Tangents) > 0 {
			attrs = append(attrs, "tangents")
		}
		for ch := range m.TexCoords {
			attrs = append(attrs, fmt.Sprintf("uv%d", ch))
		}
		if m.HasVertexColors(0) {
			attrs = append(attrs, "colors")
		}
		fmt.Fprintf(w, "    [%d] %q %s v=%d f=%d material=%s %s\n",
			i, m.Name, m.PrimitiveTypes, len(m.Vertices), len(m.Faces), mat, strings.Join(attrs, ","))
	}

	fmt.Fprintf(w, "  materials: %d\n", len(s.Materials))
	for i, m := range s.Materials {
		fmt.Fprintf(w, "    [%d] %q\n", i, m.Name())
	}
	if len(s.Textures) > 0 {
		fmt.Fprintf(w, "  embedded textures: %d\n", len(s.Textures))
	}
	for _, a := range s.Animations {
		fmt.Fprintf(w, "  animation %q: %d channels, %.1f ticks at %.0f/s\n", a.Name, len(a.Channels), a.Duration, a.TicksPerSecond)
	}

	fmt.Fprintln(w, "  nodes:")
	_ = s.Walk(func(n, parent *scene.Node, depth int) error {
		fmt.Fprintf(w, "  %s%s", strings.Repeat("  ", depth+1), n.Name)
		if len(n.Meshes) > 0 {
			fmt.Fprintf(w, " meshes=%v", n.Meshes)
		}
		fmt.Fprintln(w)
		return nil
	})
}
