package mqo

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var (
	headerPattern   = regexp.MustCompile(`^Metasequoia Document\r?\nFormat\s+(\w+)\s+Ver\s+([\d.]+)`)
	codePagePattern = regexp.MustCompile(`CodePage\s+utf8`)
)

// parser decodes the text document. The first error is sticky: every later
// read returns zero values and loops stop.
type parser struct {
	s     scanner.Scanner
	opts  *format.ReadOptions
	limit int
	err   *format.Error

	// scanner errors inside skipped blocks are ignored
	skipping int
}

type backSlashReplacer struct{ transform.NopResetter }

func (backSlashReplacer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	n := copy(dst, src)
	for i := 0; i < n; i++ {
		if dst[i] == '\\' {
			dst[i] = '/'
		}
	}
	if n < len(src) {
		err = transform.ErrShortDst
	}
	return n, n, err
}

// Parse decodes a Metasequoia text document. Shift-JIS is assumed unless
// the header declares CodePage utf8.
func Parse(data []byte, opts *format.ReadOptions) (*Document, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	m := headerPattern.FindSubmatch(format.Head(data, 256))
	if m == nil {
		return nil, format.Unrecognized(formatName, "missing Metasequoia Document header")
	}
	if string(m[1]) != "Text" {
		return nil, format.Unsupported(formatName, "%s format", m[1])
	}
	if !strings.HasPrefix(string(m[2]), "1.") {
		return nil, format.Unsupported(formatName, "version %s", m[2])
	}

	var t transform.Transformer = backSlashReplacer{}
	if !codePagePattern.Match(format.Head(data, 256)) {
		t = transform.Chain(japanese.ShiftJIS.NewDecoder(), backSlashReplacer{})
	}
	p := &parser{opts: opts, limit: len(data)}
	p.s.Init(transform.NewReader(bytes.NewReader(data), t))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings
	p.s.Error = func(s *scanner.Scanner, msg string) {
		if p.skipping == 0 {
			p.fail("%s", msg)
		}
	}
	return p.parse()
}

func (p *parser) fail(msg string, args ...interface{}) {
	if p.err == nil {
		p.err = format.Malformed(formatName, msg, args...)
		p.err.Msg = "line " + strconv.Itoa(p.s.Pos().Line) + ": " + p.err.Msg
	}
}

func (p *parser) scan() rune {
	if p.err != nil {
		return scanner.EOF
	}
	return p.s.Scan()
}

func (p *parser) text() string {
	if p.err != nil {
		return ""
	}
	return p.s.TokenText()
}

// number scans an optionally signed numeric token.
func (p *parser) number() (string, bool) {
	tok := p.scan()
	sign := ""
	if tok == '-' || tok == '+' {
		sign = p.text()
		tok = p.scan()
	}
	if tok != scanner.Int && tok != scanner.Float {
		p.fail("expected number, got %q", p.text())
		return "", false
	}
	return sign + p.text(), true
}

func (p *parser) readFloat() float32 {
	s, ok := p.number()
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		p.fail("invalid number %q", s)
	}
	return float32(f)
}

func (p *parser) readInt() int {
	s, ok := p.number()
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.fail("invalid integer %q", s)
	}
	return int(n)
}

func (p *parser) readStr() string {
	p.scan()
	return strings.Trim(p.text(), "\"")
}

func (p *parser) readIdent() string {
	p.scan()
	return p.text()
}

func (p *parser) skip(t string) {
	p.scan()
	if p.text() != t && p.err == nil {
		p.fail("expected %q, got %q", t, p.text())
	}
}

// atLineEnd skips blanks and reports whether the line ends.
func (p *parser) atLineEnd() bool {
	for {
		switch p.s.Peek() {
		case ' ', '\t':
			p.s.Next()
		case '\r', '\n', scanner.EOF:
			return true
		default:
			return false
		}
	}
}

// procAttrs reads name(args) pairs until the end of the line.
func (p *parser) procAttrs(handlers map[string]func(), name string) {
	for p.err == nil && !p.atLineEnd() {
		p.scan()
		attr := p.text()
		p.skip("(")
		if handler, ok := handlers[attr]; ok {
			handler()
			p.skip(")")
			continue
		}
		p.opts.Log().Debug("skipping attribute", zap.String("in", name), zap.String("attr", attr))
		for tok := p.scan(); tok != scanner.EOF && p.text() != ")"; tok = p.scan() {
		}
	}
}

func (p *parser) skipBlock() {
	p.skipping++
	defer func() { p.skipping-- }()
	for tok := p.scan(); tok != scanner.EOF; tok = p.scan() {
		switch p.text() {
		case "}":
			return
		case "{":
			p.skipBlock()
		}
	}
	p.fail("unterminated block")
}

// procArray reads "N { elem... }". Counts larger than the document are
// rejected before allocation.
func (p *parser) procArray(init, elem func(n int), name string) {
	n := p.readInt()
	if n < 0 || n > p.limit {
		p.fail("%s count %d out of range", name, n)
		return
	}
	p.skip("{")
	init(n)
	for i := 0; i < n && p.err == nil; i++ {
		elem(i)
	}
	p.skip("}")
}

func (p *parser) procObj(handlers map[string]func(), name string) {
	p.skip("{")
	for tok := p.scan(); tok != scanner.EOF; tok = p.scan() {
		switch t := p.text(); t {
		case "}":
			return
		case "{":
			p.skipBlock()
		default:
			if handler, ok := handlers[t]; ok {
				handler()
			}
		}
	}
	p.fail("unterminated %s", name)
}

func (p *parser) readMaterial() *Material {
	m := &Material{Name: p.readStr(), Color: geom.Vector4{X: 1, Y: 1, Z: 1, W: 1}}
	p.procAttrs(map[string]func(){
		"col": func() {
			m.Color = geom.Vector4{X: p.readFloat(), Y: p.readFloat(), Z: p.readFloat(), W: p.readFloat()}
		},
		"emi_col": func() {
			m.EmissionColor = &geom.Vector3{X: p.readFloat(), Y: p.readFloat(), Z: p.readFloat()}
		},
		"dif":    func() { m.Diffuse = p.readFloat() },
		"amb":    func() { m.Ambient = p.readFloat() },
		"emi":    func() { m.Emission = p.readFloat() },
		"spc":    func() { m.Specular = p.readFloat() },
		"power":  func() { m.Power = p.readFloat() },
		"tex":    func() { m.Texture = p.readStr() },
		"aplane": func() { m.AlphaPlane = p.readStr() },
		"bump":   func() { m.BumpTexture = p.readStr() },
		"dbls":   func() { m.DoubleSided = p.readInt() != 0 },
		"uid":    func() { m.UID = p.readInt() },
	}, "Material "+m.Name)
	return m
}

func (p *parser) readMaterialEx() (int, *MaterialEx2) {
	ex := &MaterialEx2{ShaderParams: map[string]interface{}{}}
	p.skip("material")
	mid := p.readInt()

	readTypedKeyValue := func() (string, interface{}) {
		n := p.readStr()
		t := p.readIdent()
		switch t {
		case "int":
			return n, p.readInt()
		case "float":
			return n, p.readFloat()
		case "bool":
			v := p.readStr()
			return n, v == "true" || v == "1"
		case "color":
			return n, []float32{p.readFloat(), p.readFloat(), p.readFloat(), p.readFloat()}
		}
		return n, p.readStr()
	}

	p.procObj(map[string]func(){
		"shadertype": func() { ex.ShaderType = p.readStr() },
		"shadername": func() { ex.ShaderName = p.readStr() },
		"shaderparam": func() {
			p.procArray(func(n int) {}, func(i int) {
				key, value := readTypedKeyValue()
				ex.ShaderParams[key] = value
			}, "shaderparam")
		},
	}, "MaterialEx2")
	return mid, ex
}

func (p *parser) readFace(o *Object) *Face {
	f := &Face{Material: -1}
	vn := p.readInt()
	if vn < 1 || vn > p.limit {
		p.fail("face with %d vertices", vn)
		return f
	}
	p.procAttrs(map[string]func(){
		"V": func() {
			f.Verts = make([]int, vn)
			for i := range f.Verts {
				f.Verts[i] = p.readInt()
			}
		},
		"M": func() { f.Material = p.readInt() },
		"UV": func() {
			f.UVs = make([]geom.Vector2, vn)
			for i := range f.UVs {
				f.UVs[i] = geom.Vector2{X: p.readFloat(), Y: p.readFloat()}
			}
		},
		"COL": func() {
			f.Colors = make([]uint32, vn)
			for i := range f.Colors {
				f.Colors[i] = uint32(p.readInt())
			}
		},
		"CRS": func() {
			for i := 0; i < vn; i++ {
				p.readFloat()
			}
		},
		"UID": func() { f.UID = p.readInt() },
	}, "face")
	return f
}

func (p *parser) readObject() *Object {
	o := NewObject(p.readStr())
	p.procObj(map[string]func(){
		"uid":        func() { o.UID = p.readInt() },
		"depth":      func() { o.Depth = p.readInt() },
		"visible":    func() { o.Visible = p.readInt() > 0 },
		"locking":    func() { o.Locked = p.readInt() > 0 },
		"shading":    func() { o.Shading = p.readInt() },
		"facet":      func() { o.Facet = p.readFloat() },
		"patch":      func() { o.Patch = p.readInt() },
		"segment":    func() { o.Segment = p.readInt() },
		"mirror":     func() { o.Mirror = p.readInt() },
		"mirror_dis": func() { o.MirrorDis = p.readFloat() },
		"vertex": func() {
			p.procArray(func(n int) {
				o.Vertexes = make([]geom.Vector3, n)
			}, func(i int) {
				o.Vertexes[i] = geom.Vector3{X: p.readFloat(), Y: p.readFloat(), Z: p.readFloat()}
			}, "vertex")
		},
		"BVertex": func() {
			if p.err == nil {
				p.err = format.Unsupported(formatName, "binary vertex chunk in object %q", o.Name)
			}
		},
		"face": func() {
			p.procArray(func(n int) {
				o.Faces = make([]*Face, 0, n)
			}, func(i int) {
				o.Faces = append(o.Faces, p.readFace(o))
			}, "face")
		},
	}, "Object "+o.Name)
	return o
}

func (p *parser) parse() (*Document, error) {
	doc := &Document{}
	for tok := p.scan(); tok != scanner.EOF; tok = p.scan() {
		if tok != scanner.Ident {
			if p.text() == "{" {
				p.skipBlock()
			}
			continue
		}
		switch p.text() {
		case "Material":
			p.procArray(func(n int) {}, func(i int) {
				doc.Materials = append(doc.Materials, p.readMaterial())
			}, "Material")
		case "MaterialEx2":
			p.procArray(func(n int) {}, func(i int) {
				mid, ex := p.readMaterialEx()
				if mid >= 0 && mid < len(doc.Materials) {
					doc.Materials[mid].Ex2 = ex
				}
			}, "MaterialEx2")
		case "Object":
			doc.Objects = append(doc.Objects, p.readObject())
		case "Eof":
			return doc, p.error()
		}
	}
	if p.err == nil {
		p.opts.Log().Warn("mqo document without Eof")
	}
	return doc, p.error()
}

func (p *parser) error() error {
	if p.err != nil {
		return p.err
	}
	return nil
}
