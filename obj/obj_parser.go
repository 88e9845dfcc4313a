package obj

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"go.uber.org/zap"
)

type parser struct {
	doc     *Document
	opts    *format.ReadOptions
	line    int
	objCur  *Object
	matCur  string
	mtlCur  *Material
	objLine func(fields []string, raw string) error
}

// Parse decodes an OBJ file. Material libraries are loaded through
// opts.Open when available.
func Parse(data []byte, opts *format.ReadOptions) (*Document, error) {
	p := &parser{doc: &Document{UVComponents: 2}, opts: opts}
	if err := p.parse(data, p.parseObjLine); err != nil {
		return nil, err
	}
	for _, lib := range p.doc.MaterialLibs {
		if err := p.loadMaterialLib(lib); err != nil {
			return nil, err
		}
	}
	return p.doc, nil
}

// ParseMaterials decodes an MTL file.
func ParseMaterials(data []byte, opts *format.ReadOptions) ([]*Material, error) {
	p := &parser{doc: &Document{}, opts: opts}
	if err := p.parse(data, p.parseMtlLine); err != nil {
		return nil, err
	}
	return p.doc.Materials, nil
}

func (p *parser) parse(data []byte, parseLine func(fields []string, raw string) error) error {
	sc := format.NewLineScanner(data)
	p.line = 0
	var cont string
	for sc.Scan() {
		p.line++
		line := sc.Text()
		if strings.HasSuffix(line, "\\") {
			cont += strings.TrimSuffix(line, "\\") + " "
			continue
		}
		line = cont + line
		cont = ""
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := parseLine(fields, strings.TrimSpace(line)); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return format.Malformed(formatName, "line %d: %v", p.line+1, err)
	}
	return nil
}

func (p *parser) formatError(msg string, args ...interface{}) *format.Error {
	e := format.Malformed(formatName, msg, args...)
	e.Msg = "line " + strconv.Itoa(p.line) + ": " + e.Msg
	return e
}

// recover skips the current statement unless strict.
func (p *parser) recover(msg string, args ...interface{}) error {
	return p.opts.Recover(p.formatError(msg, args...))
}

func parseFloats(fields []string, min int) ([]float32, bool) {
	if len(fields) < min {
		return nil, false
	}
	r := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, false
		}
		r[i] = float32(v)
	}
	return r, true
}

func (p *parser) parseObjLine(fields []string, raw string) error {
	args := fields[1:]
	switch fields[0] {
	case "v":
		return p.parseVertex(args)
	case "vn":
		v, ok := parseFloats(args, 3)
		if !ok {
			return p.recover("invalid vn statement")
		}
		p.doc.Normals = append(p.doc.Normals, geom.Vector3{X: v[0], Y: v[1], Z: v[2]})
	case "vt":
		v, ok := parseFloats(args, 1)
		if !ok {
			return p.recover("invalid vt statement")
		}
		uv := geom.Vector3{X: v[0]}
		if len(v) > 1 {
			uv.Y = v[1]
		}
		if len(v) > 2 {
			uv.Z = v[2]
			if v[2] != 0 {
				p.doc.UVComponents = 3
			}
		}
		p.doc.UVs = append(p.doc.UVs, uv)
	case "f", "fo":
		return p.parseFace(args, 3)
	case "l":
		return p.parseFace(args, 2)
	case "p":
		for _, a := range args {
			if err := p.parseFace([]string{a}, 1); err != nil {
				return err
			}
		}
	case "o", "g":
		name := strings.TrimSpace(strings.TrimPrefix(raw, fields[0]))
		if name == "" {
			name = "default"
		}
		p.objCur = &Object{Name: name}
		p.doc.Objects = append(p.doc.Objects, p.objCur)
	case "usemtl":
		if len(args) < 1 {
			return p.recover("usemtl with no name")
		}
		p.matCur = strings.Join(args, " ")
	case "mtllib":
		if len(args) < 1 {
			return p.recover("mtllib with no file")
		}
		p.doc.MaterialLibs = append(p.doc.MaterialLibs, strings.TrimSpace(strings.TrimPrefix(raw, "mtllib")))
	case "s", "mg", "vp", "cstype", "deg", "curv", "curv2", "surf", "parm", "trim", "hole", "end", "bmat", "step", "call", "csh", "usemap", "maplib", "lod", "shadow_obj", "trace_obj":
		p.opts.Log().Debug("ignoring obj statement", zap.String("statement", fields[0]), zap.Int("line", p.line))
	default:
		return p.recover("unknown statement %q", fields[0])
	}
	return nil
}

// v x y z [w] or v x y z r g b
func (p *parser) parseVertex(args []string) error {
	v, ok := parseFloats(args, 3)
	if !ok {
		return p.recover("invalid v statement")
	}
	p.doc.Vertices = append(p.doc.Vertices, geom.Vector3{X: v[0], Y: v[1], Z: v[2]})
	c := geom.Vector4{X: 1, Y: 1, Z: 1, W: 1}
	if len(v) >= 6 {
		if !p.doc.HasColors {
			p.doc.HasColors = true
			p.doc.Colors = make([]geom.Vector4, len(p.doc.Vertices)-1, cap(p.doc.Vertices))
			for i := range p.doc.Colors {
				p.doc.Colors[i] = c
			}
		}
		c = geom.Vector4{X: v[3], Y: v[4], Z: v[5], W: 1}
	}
	if p.doc.HasColors {
		p.doc.Colors = append(p.doc.Colors, c)
	}
	return nil
}

// resolveIndex converts a one based or negative relative index.
func resolveIndex(s string, count int) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil || v == 0 {
		return 0, false
	}
	if v < 0 {
		v = count + v
	} else {
		v--
	}
	return v, v >= 0 && v < count
}

func (p *parser) parseFace(args []string, min int) error {
	if len(args) < min {
		return p.recover("face with %d corners", len(args))
	}
	if p.objCur == nil {
		p.objCur = &Object{Name: "default"}
		p.doc.Objects = append(p.doc.Objects, p.objCur)
	}
	face := Face{Corners: make([]Corner, len(args)), Material: p.matCur}
	for i, a := range args {
		parts := strings.Split(a, "/")
		c := Corner{V: -1, VT: -1, VN: -1}
		var ok bool
		if c.V, ok = resolveIndex(parts[0], len(p.doc.Vertices)); !ok {
			return p.recover("vertex index %q out of range [1,%d]", parts[0], len(p.doc.Vertices))
		}
		if len(parts) > 1 && parts[1] != "" {
			if c.VT, ok = resolveIndex(parts[1], len(p.doc.UVs)); !ok {
				return p.recover("texture coordinate index %q out of range [1,%d]", parts[1], len(p.doc.UVs))
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			if c.VN, ok = resolveIndex(parts[2], len(p.doc.Normals)); !ok {
				return p.recover("normal index %q out of range [1,%d]", parts[2], len(p.doc.Normals))
			}
		}
		face.Corners[i] = c
	}
	p.objCur.Faces = append(p.objCur.Faces, face)
	return nil
}

func (p *parser) loadMaterialLib(name string) error {
	r, err := p.opts.OpenFile(formatName, name)
	if err != nil {
		p.opts.Log().Warn("material library not loaded", zap.String("file", name), zap.Error(err))
		return nil
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return format.WrapIO(formatName, err)
	}
	data = bytes.TrimPrefix(data, []byte{0xef, 0xbb, 0xbf})
	mats, err := ParseMaterials(data, p.opts)
	if err != nil {
		return err
	}
	for _, m := range mats {
		if p.doc.material(m.Name) == nil {
			p.doc.Materials = append(p.doc.Materials, m)
		}
	}
	return nil
}

// texture option names and their fixed argument counts; -o -s -t take up to three numbers
var textureOptions = map[string]int{
	"-blendu": 1, "-blendv": 1, "-boost": 1, "-mm": 2, "-texres": 1, "-clamp": 1,
	"-bm": 1, "-imfchan": 1, "-type": 1, "-cc": 1, "-o": 3, "-s": 3, "-t": 3,
}

func textureFile(args []string) string {
	for i := 0; i < len(args); i++ {
		n, ok := textureOptions[args[i]]
		if !ok {
			return strings.Join(args[i:], " ")
		}
		for k := 0; k < n && i+1 < len(args); k++ {
			if n == 3 && k > 0 {
				if _, err := strconv.ParseFloat(args[i+1], 32); err != nil {
					break
				}
			}
			i++
		}
	}
	return ""
}

func (p *parser) parseMtlLine(fields []string, raw string) error {
	args := fields[1:]
	if fields[0] == "newmtl" {
		name := strings.TrimSpace(strings.TrimPrefix(raw, "newmtl"))
		p.mtlCur = &Material{Name: name, Textures: map[string]string{}}
		p.doc.Materials = append(p.doc.Materials, p.mtlCur)
		return nil
	}
	if p.mtlCur == nil {
		return p.recover("%s before newmtl", fields[0])
	}
	m := p.mtlCur
	color := func() (*geom.Vector3, error) {
		v, ok := parseFloats(args, 1)
		if !ok {
			return nil, p.recover("invalid %s statement", fields[0])
		}
		if len(v) < 3 {
			return &geom.Vector3{X: v[0], Y: v[0], Z: v[0]}, nil
		}
		return &geom.Vector3{X: v[0], Y: v[1], Z: v[2]}, nil
	}
	scalar := func() (*float32, error) {
		v, ok := parseFloats(args[:min(1, len(args))], 1)
		if !ok {
			return nil, p.recover("invalid %s statement", fields[0])
		}
		return &v[0], nil
	}
	var err error
	switch key := fields[0]; key {
	case "Ka":
		m.Ambient, err = color()
	case "Kd":
		m.Diffuse, err = color()
	case "Ks":
		m.Specular, err = color()
	case "Ke":
		m.Emissive, err = color()
	case "Ns":
		m.Shininess, err = scalar()
	case "d":
		m.Opacity, err = scalar()
	case "Tr":
		var tr *float32
		if tr, err = scalar(); tr != nil {
			d := 1 - *tr
			m.Opacity = &d
		}
	case "Pr":
		m.Roughness, err = scalar()
	case "Pm":
		m.Metallic, err = scalar()
	case "illum":
		v, e := strconv.Atoi(firstOr(args, ""))
		if e != nil {
			return p.recover("invalid illum statement")
		}
		m.Illum = &v
	case "map_Kd", "map_Ks", "map_Ka", "map_Ke", "map_d", "map_bump", "bump", "map_Bump", "norm", "map_Ns", "disp", "map_Pr", "map_Pm", "refl":
		file := textureFile(args)
		if file == "" {
			return p.recover("%s without file", key)
		}
		if _, ok := m.Textures[key]; !ok {
			m.TextureKeys = append(m.TextureKeys, key)
		}
		m.Textures[key] = file
	case "Ni", "Tf", "sharpness", "Ps", "Pc", "Pcr", "aniso", "anisor":
	default:
		p.opts.Log().Debug("ignoring mtl statement", zap.String("statement", key), zap.Int("line", p.line))
	}
	return err
}

func firstOr(a []string, def string) string {
	if len(a) == 0 {
		return def
	}
	return a[0]
}
