package stl

import (
	"strconv"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type asciiParser struct {
	opts  *format.ReadOptions
	line  int
	mesh  *scene.Mesh
	facet *facet
	scene *scene.Scene
}

type facet struct {
	normal geom.Vector3
	verts  []geom.Vector3
}

func (p *asciiParser) errorf(msg string, args ...interface{}) *format.Error {
	e := format.Malformed(formatName, msg, args...)
	e.Msg = "line " + strconv.Itoa(p.line) + ": " + e.Msg
	return e
}

func parseVector(args []string) (geom.Vector3, bool) {
	if len(args) < 3 {
		return geom.Vector3{}, false
	}
	var v [3]float32
	for i := range v {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return geom.Vector3{}, false
		}
		v[i] = float32(f)
	}
	return geom.Vector3{X: v[0], Y: v[1], Z: v[2]}, true
}

// readASCII reads one mesh per solid.
func readASCII(data []byte, opts *format.ReadOptions) (*scene.Scene, error) {
	p := &asciiParser{opts: opts, scene: newScene(defaultColor)}
	sc := format.NewLineScanner(data)
	for sc.Scan() {
		p.line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if err := p.statement(strings.ToLower(fields[0]), fields[1:]); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, p.errorf("%v", err)
	}
	if p.mesh != nil {
		if err := p.opts.Recover(p.errorf("missing endsolid")); err != nil {
			return nil, err
		}
		p.endSolid()
	}
	s := p.scene
	if len(s.Meshes) == 0 {
		return nil, format.Malformed(formatName, "no facets")
	}
	s.Metadata.SetString("SourceAsset_Format", "stl ascii")
	return s, nil
}

func (p *asciiParser) statement(keyword string, args []string) error {
	switch keyword {
	case "solid":
		if p.mesh != nil {
			if err := p.opts.Recover(p.errorf("solid inside solid")); err != nil {
				return err
			}
			p.endSolid()
		}
		p.mesh = scene.NewMesh(strings.Join(args, " "))
		p.mesh.MaterialIndex = 0
	case "endsolid":
		if p.mesh == nil {
			return p.opts.Recover(p.errorf("endsolid without solid"))
		}
		p.endSolid()
	case "facet":
		if p.mesh == nil || p.facet != nil {
			return p.opts.Recover(p.errorf("unexpected facet"))
		}
		p.facet = &facet{}
		if len(args) > 0 && strings.EqualFold(args[0], "normal") {
			n, ok := parseVector(args[1:])
			if !ok {
				return p.opts.Recover(p.errorf("invalid facet normal"))
			}
			p.facet.normal = n
		}
	case "outer", "endloop":
	case "vertex":
		if p.facet == nil {
			return p.opts.Recover(p.errorf("vertex outside facet"))
		}
		v, ok := parseVector(args)
		if !ok {
			return p.errorf("invalid vertex")
		}
		p.facet.verts = append(p.facet.verts, v)
	case "endfacet":
		if p.facet == nil {
			return p.opts.Recover(p.errorf("endfacet without facet"))
		}
		f := p.facet
		p.facet = nil
		if len(f.verts) < 3 {
			return p.opts.Recover(p.errorf("facet with %d vertices", len(f.verts)))
		}
		addFacet(p.mesh, f.normal, f.verts)
	default:
		p.opts.Log().Debug("ignoring stl keyword", zap.String("keyword", keyword), zap.Int("line", p.line))
	}
	return nil
}

func (p *asciiParser) endSolid() {
	if p.facet != nil {
		p.opts.Log().Warn("dropping unterminated facet", zap.Int("line", p.line))
		p.facet = nil
	}
	m := p.mesh
	p.mesh = nil
	if len(m.Vertices) == 0 {
		p.opts.Log().Warn("empty solid", zap.String("solid", m.Name))
		return
	}
	m.UpdatePrimitiveTypes()
	p.scene.RootNode.Meshes = append(p.scene.RootNode.Meshes, p.scene.AddMesh(m))
}
