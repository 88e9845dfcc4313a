package fbx

import (
	"strconv"
	"strings"

	"github.com/binzume/modelio/format"
)

type tokenType int

const (
	Ident tokenType = iota
	Number
	String
	Operator
	BlockStart
	BlockEnd
	EOL
	EOF
)

func (t tokenType) String() string {
	return [...]string{"identifier", "number", "string", "operator", "'{'", "'}'", "end of line", "end of file"}[t]
}

type token struct {
	typ  tokenType
	text string
}

type textParser struct {
	data   []byte
	pos    int
	line   int
	peeked *token
	err    error
}

func newTextParser(data []byte) *textParser {
	return &textParser{data: data, line: 1}
}

func (p *textParser) errorf(f string, a ...interface{}) {
	if p.err == nil {
		p.err = format.Malformed(formatName, "line %d: "+f, append([]interface{}{p.line}, a...)...)
	}
}

func isIdentChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '|' || c == '-'
}

func isNumberChar(c byte) bool {
	return c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '-' || c == '+'
}

func (p *textParser) scan() token {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		switch {
		case c == ';':
			for p.pos < len(p.data) && p.data[p.pos] != '\n' {
				p.pos++
			}
		case c == '\n':
			p.line++
			return token{EOL, ""}
		case c == ' ' || c == '\t' || c == '\r':
		case c == '{':
			return token{BlockStart, "{"}
		case c == '}':
			return token{BlockEnd, "}"}
		case c == '*' || c == ':' || c == ',':
			return token{Operator, string(c)}
		case c == '"':
			start := p.pos
			for p.pos < len(p.data) && p.data[p.pos] != '"' {
				if p.data[p.pos] == '\n' {
					p.line++
				}
				p.pos++
			}
			s := string(p.data[start:p.pos])
			if p.pos >= len(p.data) {
				p.errorf("unterminated string")
			}
			p.pos++
			return token{String, strings.ReplaceAll(s, "&quot;", `"`)}
		case c >= '0' && c <= '9' || c == '.' || c == '-' || c == '+':
			start := p.pos - 1
			for p.pos < len(p.data) && isNumberChar(p.data[p.pos]) {
				p.pos++
			}
			return token{Number, string(p.data[start:p.pos])}
		case isIdentChar(c):
			start := p.pos - 1
			for p.pos < len(p.data) && isIdentChar(p.data[p.pos]) {
				p.pos++
			}
			return token{Ident, string(p.data[start:p.pos])}
		default:
			p.errorf("unexpected character %q", c)
			return token{EOF, ""}
		}
	}
	return token{EOF, ""}
}

func (p *textParser) next() token {
	if p.peeked != nil {
		t := *p.peeked
		p.peeked = nil
		return t
	}
	return p.scan()
}

func (p *textParser) peek() token {
	if p.peeked == nil {
		t := p.scan()
		p.peeked = &t
	}
	return *p.peeked
}

// nextValue skips line breaks, which may follow a comma.
func (p *textParser) nextValue() token {
	t := p.next()
	for t.typ == EOL && p.err == nil {
		t = p.next()
	}
	return t
}

func (p *textParser) expect(typ tokenType, text string) {
	t := p.nextValue()
	if t.typ != typ || text != "" && t.text != text {
		p.errorf("expected %v %s, got %v %q", typ, text, t.typ, t.text)
	}
}

func parseNumber(s string) (interface{}, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// parseArray reads "*N { a: v,v,... }" after the '*'.
func (p *textParser) parseArray() *Property {
	t := p.next()
	count, err := strconv.Atoi(t.text)
	if t.typ != Number || err != nil || count < 0 {
		p.errorf("bad array size %q", t.text)
		return nil
	}
	if count > len(p.data)-p.pos {
		p.errorf("array size %d exceeds remaining input", count)
		return nil
	}
	p.expect(BlockStart, "")
	p.expect(Ident, "a")
	p.expect(Operator, ":")
	ints := make([]int64, 0, count)
	var floats []float64
	for p.err == nil {
		t := p.nextValue()
		if t.typ == BlockEnd {
			break
		}
		if t.typ == Operator && t.text == "," {
			continue
		}
		if t.typ != Number {
			p.errorf("unexpected %v %q in array", t.typ, t.text)
			break
		}
		v, ok := parseNumber(t.text)
		if !ok {
			p.errorf("bad number %q", t.text)
			break
		}
		switch v := v.(type) {
		case int64:
			if floats != nil {
				floats = append(floats, float64(v))
			} else {
				ints = append(ints, v)
			}
		case float64:
			if floats == nil {
				floats = make([]float64, len(ints), count)
				for i, iv := range ints {
					floats[i] = float64(iv)
				}
			}
			floats = append(floats, v)
		}
	}
	n := len(ints)
	if floats != nil {
		n = len(floats)
	}
	if n != count {
		p.errorf("array declares %d values, has %d", count, n)
	}
	if floats != nil {
		return &Property{Value: floats}
	}
	return &Property{Value: ints}
}

// parseProperties reads the values after "Name:" up to the end of the line
// or an opening brace.
func (p *textParser) parseProperties(n *Node, depth int) {
	for p.err == nil {
		t := p.next()
		switch t.typ {
		case EOL, EOF:
			return
		case BlockStart:
			n.Children = p.parseNodeList(depth + 1)
			return
		case BlockEnd:
			// "}" closing the parent on the same line.
			p.peeked = &t
			return
		case Number:
			v, ok := parseNumber(t.text)
			if !ok {
				p.errorf("bad number %q", t.text)
				return
			}
			n.Properties = append(n.Properties, &Property{Value: v})
		case String, Ident:
			n.Properties = append(n.Properties, &Property{Value: t.text})
		case Operator:
			switch t.text {
			case "*":
				n.Properties = append(n.Properties, p.parseArray())
			case ",":
				for p.peek().typ == EOL && p.err == nil {
					p.next()
				}
			default:
				p.errorf("unexpected %q", t.text)
			}
		}
	}
}

func (p *textParser) parseNodeList(depth int) []*Node {
	if depth > maxNodeDepth {
		p.errorf("blocks nested deeper than %d", maxNodeDepth)
		return nil
	}
	var nodes []*Node
	for p.err == nil {
		t := p.next()
		switch t.typ {
		case EOL:
			continue
		case EOF:
			if depth > 0 {
				p.errorf("unexpected end of file")
			}
			return nodes
		case BlockEnd:
			if depth == 0 {
				p.errorf("unbalanced '}'")
			}
			return nodes
		case Ident:
			p.expect(Operator, ":")
			node := &Node{Name: t.text}
			nodes = append(nodes, node)
			p.parseProperties(node, depth)
		default:
			p.errorf("unexpected %v %q", t.typ, t.text)
		}
	}
	return nodes
}

func (p *textParser) Parse() (*Node, error) {
	root := &Node{Name: rootNodeName}
	root.Children = p.parseNodeList(0)
	if p.err != nil {
		return nil, p.err
	}
	return root, nil
}
