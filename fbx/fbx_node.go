package fbx

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Node is one record of the FBX node tree. Binary and ASCII files decode
// to the same tree.
type Node struct {
	Name       string
	Properties PropertyList
	Children   []*Node
}

func NewNode(name string, values ...interface{}) *Node {
	n := &Node{Name: name}
	for _, v := range values {
		n.Properties = append(n.Properties, &Property{Value: v})
	}
	return n
}

func (n *Node) AddChild(c ...*Node) *Node {
	n.Children = append(n.Children, c...)
	return n
}

func (n *Node) FindChild(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) FindChildren(name string) []*Node {
	if n == nil {
		return nil
	}
	var r []*Node
	for _, c := range n.Children {
		if c.Name == name {
			r = append(r, c)
		}
	}
	return r
}

func (n *Node) GetChildren() []*Node {
	if n == nil {
		return nil
	}
	return n.Children
}

func (n *Node) Prop(i int) *Property {
	if n == nil {
		return nil
	}
	return n.Properties.Get(i)
}

func (n *Node) PropInt(i int) int {
	return int(n.Prop(i).ToInt64(0))
}

func (n *Node) PropFloat(i int) float32 {
	return n.Prop(i).ToFloat32(0)
}

func (n *Node) PropString(i int) string {
	return n.Prop(i).ToString("")
}

// ChildString returns the first property of the named child.
func (n *Node) ChildString(name string) string {
	return n.FindChild(name).PropString(0)
}

func (n *Node) ChildInt(name string, def int) int {
	return int(n.FindChild(name).Prop(0).ToInt64(int64(def)))
}

// Property is a node value. Scalars decode to int16, int32, int64,
// float32, float64, bool, string or []byte. Arrays decode to []bool,
// []int32, []int64, []float32 or []float64.
type Property struct {
	Value interface{}
}

type PropertyList []*Property

func (p PropertyList) Get(i int) *Property {
	if i < 0 || i >= len(p) {
		return nil
	}
	return p[i]
}

func (p *Property) IsArray() bool {
	if p == nil {
		return false
	}
	switch p.Value.(type) {
	case []bool, []int32, []int64, []float32, []float64:
		return true
	}
	return false
}

func (p *Property) ToInt64(def int64) int64 {
	if p == nil {
		return def
	}
	switch v := p.Value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return def
}

func (p *Property) ToFloat64(def float64) float64 {
	if p == nil {
		return def
	}
	switch v := p.Value.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func (p *Property) ToFloat32(def float32) float32 {
	return float32(p.ToFloat64(float64(def)))
}

func (p *Property) ToString(def string) string {
	if p == nil {
		return def
	}
	switch v := p.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return def
}

// ToBytes returns raw data. ASCII files store it as base64 text.
func (p *Property) ToBytes() []byte {
	if p == nil {
		return nil
	}
	switch v := p.Value.(type) {
	case []byte:
		return v
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil
		}
		return b
	}
	return nil
}

// ToFloat64Array converts any numeric array.
func (p *Property) ToFloat64Array() []float64 {
	if p == nil {
		return nil
	}
	switch vv := p.Value.(type) {
	case []float64:
		return vv
	case []float32:
		r := make([]float64, len(vv))
		for i, v := range vv {
			r[i] = float64(v)
		}
		return r
	case []int32:
		r := make([]float64, len(vv))
		for i, v := range vv {
			r[i] = float64(v)
		}
		return r
	case []int64:
		r := make([]float64, len(vv))
		for i, v := range vv {
			r[i] = float64(v)
		}
		return r
	}
	return nil
}

// ToInt64Array converts any integer array. Float arrays are truncated.
func (p *Property) ToInt64Array() []int64 {
	if p == nil {
		return nil
	}
	switch vv := p.Value.(type) {
	case []int64:
		return vv
	case []int32:
		r := make([]int64, len(vv))
		for i, v := range vv {
			r[i] = int64(v)
		}
		return r
	case []bool:
		r := make([]int64, len(vv))
		for i, v := range vv {
			if v {
				r[i] = 1
			}
		}
		return r
	case []float32:
		r := make([]int64, len(vv))
		for i, v := range vv {
			r[i] = int64(v)
		}
		return r
	case []float64:
		r := make([]int64, len(vv))
		for i, v := range vv {
			r[i] = int64(v)
		}
		return r
	}
	return nil
}

// Float64s returns the node's values as one float list. A leading array
// property is used as is, otherwise every scalar property is collected.
func (n *Node) Float64s() []float64 {
	if n == nil {
		return nil
	}
	if p := n.Prop(0); p.IsArray() {
		return p.ToFloat64Array()
	}
	r := make([]float64, 0, len(n.Properties))
	for _, p := range n.Properties {
		r = append(r, p.ToFloat64(0))
	}
	return r
}

func (n *Node) Int64s() []int64 {
	if n == nil {
		return nil
	}
	if p := n.Prop(0); p.IsArray() {
		return p.ToInt64Array()
	}
	r := make([]int64, 0, len(n.Properties))
	for _, p := range n.Properties {
		r = append(r, p.ToInt64(0))
	}
	return r
}

func (p *Property) String() string {
	switch v := p.Value.(type) {
	case string:
		return `"` + strings.ReplaceAll(v, `"`, "&quot;") + `"`
	case []byte:
		return `"` + base64.StdEncoding.EncodeToString(v) + `"`
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if p.IsArray() {
		var sb strings.Builder
		n := 0
		switch vv := p.Value.(type) {
		case []float32:
			n = len(vv)
			for i, v := range vv {
				sb.WriteString(sep(i) + strconv.FormatFloat(float64(v), 'g', -1, 32))
			}
		case []float64:
			n = len(vv)
			for i, v := range vv {
				sb.WriteString(sep(i) + strconv.FormatFloat(v, 'g', -1, 64))
			}
		default:
			iv := p.ToInt64Array()
			n = len(iv)
			for i, v := range iv {
				sb.WriteString(sep(i) + strconv.FormatInt(v, 10))
			}
		}
		return fmt.Sprintf("*%d {\n\ta: %s\n}", n, sb.String())
	}
	return fmt.Sprint(p.Value)
}

func sep(i int) string {
	if i == 0 {
		return ""
	}
	return ","
}

// Dump writes n and its children as ASCII FBX. Arrays longer than 16
// values are elided unless full is set.
func (n *Node) Dump(w io.Writer, d int, full bool) {
	indent := strings.Repeat("\t", d)
	fmt.Fprint(w, indent, n.Name, ":")
	for i, p := range n.Properties {
		s := p.String()
		if p.IsArray() {
			if !full && len(p.ToFloat64Array()) > 16 {
				s = "*0 {\n\ta: \n}"
			}
			s = strings.ReplaceAll(s, "\n", "\n"+indent)
		}
		if i == 0 {
			fmt.Fprint(w, " ", s)
		} else {
			fmt.Fprint(w, ", ", s)
		}
	}
	if len(n.Children) > 0 || len(n.Properties) == 0 {
		fmt.Fprintln(w, " {")
		for _, c := range n.Children {
			c.Dump(w, d+1, full)
		}
		fmt.Fprintln(w, indent+"}")
	} else {
		fmt.Fprintln(w)
	}
}
