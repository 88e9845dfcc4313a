package ply

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/binzume/modelio/format"
)

var supportedVersions = mustConstraint("^1.0")

func mustConstraint(c string) *semver.Constraints {
	v, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return v
}

type parser struct {
	data []byte
	opts *format.ReadOptions
	doc  *Document
}

// Parse decodes a PLY file into a Document.
func Parse(data []byte, opts *format.ReadOptions) (*Document, error) {
	p := &parser{data: data, opts: opts, doc: &Document{}}
	body, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	if p.doc.Encoding == ASCII {
		err = p.parseASCII(body)
	} else {
		var order binary.ByteOrder = binary.LittleEndian
		if p.doc.Encoding == BinaryBigEndian {
			order = binary.BigEndian
		}
		err = p.parseBinary(format.NewBinaryReader(body, order, formatName))
	}
	if err != nil {
		return nil, err
	}
	return p.doc, nil
}

func malformed(msg string, args ...interface{}) *format.Error {
	return format.Malformed(formatName, msg, args...)
}

// nextLine returns the line at pos without its terminator and the offset of
// the next line. Both LF and CRLF are accepted.
func nextLine(data []byte, pos int) (string, int, bool) {
	if pos >= len(data) {
		return "", pos, false
	}
	end := bytes.IndexByte(data[pos:], '\n')
	if end < 0 {
		return strings.TrimRight(string(data[pos:]), "\r"), len(data), true
	}
	return strings.TrimRight(string(data[pos:pos+end]), "\r"), pos + end + 1, true
}

func (p *parser) parseHeader() ([]byte, error) {
	line, pos, ok := nextLine(p.data, 0)
	if !ok || strings.TrimSpace(strings.TrimPrefix(line, "\ufeff")) != "ply" {
		return nil, format.Unrecognized(formatName, "missing ply magic")
	}
	hasFormat := false
	var current *Element
	for {
		line, pos, ok = nextLine(p.data, pos)
		if !ok {
			return nil, malformed("missing end_header")
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 3 {
				return nil, malformed("invalid format line %q", line)
			}
			enc, ok := encodingNames[fields[1]]
			if !ok {
				return nil, format.Unsupported(formatName, "encoding %q", fields[1])
			}
			v, err := semver.NewVersion(fields[2])
			if err != nil {
				return nil, malformed("invalid version %q", fields[2])
			}
			if !supportedVersions.Check(v) {
				return nil, format.Unsupported(formatName, "version %s", fields[2])
			}
			p.doc.Encoding = enc
			p.doc.Version = fields[2]
			hasFormat = true
		case "comment":
			p.doc.Comments = append(p.doc.Comments, strings.TrimSpace(strings.TrimPrefix(line, "comment")))
		case "obj_info":
			p.doc.ObjInfo = append(p.doc.ObjInfo, strings.TrimSpace(strings.TrimPrefix(line, "obj_info")))
		case "element":
			if len(fields) != 3 {
				return nil, malformed("invalid element line %q", line)
			}
			if p.doc.Element(fields[1]) != nil {
				return nil, malformed("duplicate element %q", fields[1])
			}
			count, err := strconv.ParseUint(fields[2], 10, 31)
			if err != nil {
				return nil, malformed("invalid element count %q", fields[2])
			}
			current = &Element{Name: fields[1], Count: int(count)}
			p.doc.Elements = append(p.doc.Elements, current)
		case "property":
			if current == nil {
				return nil, malformed("property before element")
			}
			prop, err := parseProperty(fields)
			if err != nil {
				return nil, err
			}
			if current.PropertyIndex(prop.Name) >= 0 {
				return nil, malformed("duplicate property %q in element %q", prop.Name, current.Name)
			}
			current.Properties = append(current.Properties, prop)
		case "end_header":
			if !hasFormat {
				return nil, malformed("missing format line")
			}
			return p.data[pos:], nil
		default:
			if err := p.opts.Recover(malformed("unknown header keyword %q", fields[0])); err != nil {
				return nil, err
			}
		}
	}
}

func parseProperty(fields []string) (*Property, error) {
	if len(fields) >= 2 && fields[1] == "list" {
		if len(fields) != 5 {
			return nil, malformed("invalid list property %q", strings.Join(fields, " "))
		}
		ct, it := parseDataType(fields[2]), parseDataType(fields[3])
		if ct == TypeInvalid || it == TypeInvalid {
			return nil, malformed("unknown property type in %q", strings.Join(fields, " "))
		}
		if !ct.IsInteger() {
			return nil, malformed("list count type %q is not an integer", fields[2])
		}
		return &Property{Name: fields[4], Type: it, IsList: true, CountType: ct}, nil
	}
	if len(fields) != 3 {
		return nil, malformed("invalid property %q", strings.Join(fields, " "))
	}
	t := parseDataType(fields[1])
	if t == TypeInvalid {
		return nil, malformed("unknown property type %q", fields[1])
	}
	return &Property{Name: fields[2], Type: t}, nil
}

func (e *Element) alloc() {
	e.Scalars = make([][]float64, len(e.Properties))
	e.Lists = make([][][]float64, len(e.Properties))
	for i, p := range e.Properties {
		if p.IsList {
			e.Lists[i] = make([][]float64, e.Count)
		} else {
			e.Scalars[i] = make([]float64, e.Count)
		}
	}
}

// minSize is the smallest encoded size of one element instance in bytes.
func (e *Element) minSize() int {
	n := 0
	for _, p := range e.Properties {
		if p.IsList {
			n += p.CountType.Size()
		} else {
			n += p.Type.Size()
		}
	}
	return n
}

type asciiTokens struct {
	data []byte
	pos  int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (t *asciiTokens) next() (string, bool) {
	for t.pos < len(t.data) && isSpace(t.data[t.pos]) {
		t.pos++
	}
	if t.pos >= len(t.data) {
		return "", false
	}
	start := t.pos
	for t.pos < len(t.data) && !isSpace(t.data[t.pos]) {
		t.pos++
	}
	return string(t.data[start:t.pos]), true
}

func (t *asciiTokens) value(typ DataType) (float64, error) {
	tok, ok := t.next()
	if !ok {
		return 0, malformed("unexpected end of data")
	}
	var v float64
	var err error
	if typ.IsInteger() {
		var i int64
		i, err = strconv.ParseInt(tok, 10, 64)
		if err != nil {
			// some exporters write integers as floats
			v, err = strconv.ParseFloat(tok, 64)
		} else {
			v = float64(i)
		}
	} else {
		v, err = strconv.ParseFloat(tok, 64)
	}
	if err != nil {
		return 0, malformed("invalid number %q", tok)
	}
	return v, nil
}

func (p *parser) parseASCII(body []byte) error {
	t := &asciiTokens{data: body}
	for _, e := range p.doc.Elements {
		// every value needs at least one digit and one separator
		if n := len(e.Properties); n > 0 && uint64(e.Count)*uint64(n) > uint64(len(body)-t.pos+1)/2+1 {
			return malformed("element %q count %d exceeds data", e.Name, e.Count)
		}
		e.alloc()
		for i := 0; i < e.Count; i++ {
			for j, prop := range e.Properties {
				if !prop.IsList {
					v, err := t.value(prop.Type)
					if err != nil {
						return err
					}
					e.Scalars[j][i] = v
					continue
				}
				c, err := t.value(prop.CountType)
				if err != nil {
					return err
				}
				if c < 0 || c != float64(int(c)) || c > float64(len(body)-t.pos) {
					return malformed("invalid list length %v in element %q", c, e.Name)
				}
				list := make([]float64, int(c))
				for k := range list {
					if list[k], err = t.value(prop.Type); err != nil {
						return err
					}
				}
				e.Lists[j][i] = list
			}
		}
	}
	return nil
}

func readValue(r *format.BinaryReader, t DataType) float64 {
	switch t {
	case TypeInt8:
		return float64(r.Int8())
	case TypeUint8:
		return float64(r.Uint8())
	case TypeInt16:
		return float64(r.Int16())
	case TypeUint16:
		return float64(r.Uint16())
	case TypeInt32:
		return float64(r.Int32())
	case TypeUint32:
		return float64(r.Uint32())
	case TypeFloat32:
		return float64(r.Float32())
	case TypeFloat64:
		return r.Float64()
	}
	return 0
}

func (p *parser) parseBinary(r *format.BinaryReader) error {
	for _, e := range p.doc.Elements {
		if !r.CheckCount(uint64(e.Count), e.minSize(), "element "+e.Name) {
			return r.Err()
		}
		e.alloc()
		for i := 0; i < e.Count && r.Err() == nil; i++ {
			for j, prop := range e.Properties {
				if !prop.IsList {
					e.Scalars[j][i] = readValue(r, prop.Type)
					continue
				}
				c := readValue(r, prop.CountType)
				if c < 0 {
					return malformed("negative list length in element %q", e.Name)
				}
				if !r.CheckCount(uint64(c), prop.Type.Size(), "list "+prop.Name) {
					return r.Err()
				}
				list := make([]float64, int(c))
				for k := range list {
					list[k] = readValue(r, prop.Type)
				}
				e.Lists[j][i] = list
			}
		}
	}
	return r.Err()
}
