package fbx

import (
	"strconv"
	"strings"
)

// Document indexes the Objects and Connections of a parsed file.
type Document struct {
	Version   int
	Creator   string
	Objects   map[string]*Object
	Scene     *Object
	Templates map[string]*Node
	RawNode   *Node

	order []*Object
}

// Ref is one end of a connection. Prop names the target property for
// object-property ("OP") connections.
type Ref struct {
	*Object
	Prop string
}

// Object is a node under "Objects" with its connections resolved.
type Object struct {
	*Node
	Key      string
	Template *Node
	// Refs are the objects connected to this one.
	Refs    []Ref
	Parents []Ref

	properties map[string]PropertyList
}

// legacy reports whether the object uses the 6.x layout, where the
// first value is the name instead of a numeric id.
func (o *Object) legacy() bool {
	_, ok := o.Prop(0).Value.(string)
	return ok
}

func (o *Object) Class() string {
	return o.Node.Name
}

// Name returns the object name without its class prefix or suffix.
func (o *Object) Name() string {
	s := o.PropString(1)
	if o.legacy() {
		s = o.PropString(0)
	}
	if i := strings.Index(s, "\x00\x01"); i >= 0 {
		return s[:i]
	}
	if i := strings.Index(s, "::"); i >= 0 {
		return s[i+2:]
	}
	return s
}

func (o *Object) Kind() string {
	if o.legacy() {
		return o.PropString(1)
	}
	return o.PropString(2)
}

// Property returns the values of a Properties70 "P" or Properties60
// "Property" entry, falling back to the class template.
func (o *Object) Property(name string) PropertyList {
	if o.properties == nil {
		o.properties = map[string]PropertyList{}
		if o.Template != nil {
			collectProperties(o.Template, o.properties)
		}
		collectProperties(o.Node, o.properties)
	}
	return o.properties[name]
}

func collectProperties(n *Node, dst map[string]PropertyList) {
	for _, p := range n.FindChild("Properties70").GetChildren() {
		if p.Name == "P" && len(p.Properties) >= 4 {
			dst[p.PropString(0)] = p.Properties[4:]
		}
	}
	for _, p := range n.FindChild("Properties60").GetChildren() {
		if p.Name == "Property" && len(p.Properties) >= 3 {
			dst[p.PropString(0)] = p.Properties[3:]
		}
	}
}

func (o *Object) PropertyFloat(name string, def float32) float32 {
	return o.Property(name).Get(0).ToFloat32(def)
}

func (o *Object) PropertyInt(name string, def int) int {
	return int(o.Property(name).Get(0).ToInt64(int64(def)))
}

func (o *Object) PropertyString(name string) string {
	return o.Property(name).Get(0).ToString("")
}

// PropertyVec3 returns a 3 component property or def.
func (o *Object) PropertyVec3(name string, def [3]float32) [3]float32 {
	p := o.Property(name)
	if len(p) < 3 {
		return def
	}
	return [3]float32{p[0].ToFloat32(def[0]), p[1].ToFloat32(def[1]), p[2].ToFloat32(def[2])}
}

// ChildObjects returns the objects connected to o with the given class.
func (o *Object) ChildObjects(class string) []*Object {
	var r []*Object
	for _, c := range o.Refs {
		if c.Class() == class {
			r = append(r, c.Object)
		}
	}
	return r
}

func (o *Object) ParentObjects(class string) []*Object {
	var r []*Object
	for _, c := range o.Parents {
		if c.Class() == class {
			r = append(r, c.Object)
		}
	}
	return r
}

// BuildDocument resolves objects, templates and connections of a node tree.
func BuildDocument(root *Node, version int) *Document {
	doc := &Document{
		Version:   version,
		Objects:   map[string]*Object{},
		Templates: map[string]*Node{},
		RawNode:   root,
	}
	doc.Creator = root.ChildString("Creator")
	if doc.Creator == "" {
		doc.Creator = root.FindChild("FBXHeaderExtension").ChildString("Creator")
	}

	for _, t := range root.FindChild("Definitions").FindChildren("ObjectType") {
		if tmpl := t.FindChild("PropertyTemplate"); tmpl != nil {
			doc.Templates[t.PropString(0)] = tmpl
		}
	}

	for _, n := range root.FindChild("Objects").GetChildren() {
		o := &Object{Node: n, Template: doc.Templates[n.Name]}
		o.Key = objectKey(n.Prop(0))
		if o.Key == "" {
			continue
		}
		doc.Objects[o.Key] = o
		doc.order = append(doc.order, o)
	}

	// The scene root is implicit: id 0 in 7.x, "Model::Scene" in 6.x.
	doc.Scene = &Object{Node: NewNode("Model", int64(0), "Scene\x00\x01Model", "Root"), Key: "0"}
	doc.Objects["0"] = doc.Scene
	doc.Objects["Model::Scene"] = doc.Scene

	for _, c := range root.FindChild("Connections").GetChildren() {
		if c.Name != "C" && c.Name != "Connect" {
			continue
		}
		child := doc.Objects[objectKey(c.Prop(1))]
		parent := doc.Objects[objectKey(c.Prop(2))]
		if child == nil || parent == nil || child == parent {
			continue
		}
		prop := ""
		if c.PropString(0) == "OP" {
			prop = c.PropString(3)
		}
		parent.Refs = append(parent.Refs, Ref{Object: child, Prop: prop})
		child.Parents = append(child.Parents, Ref{Object: parent, Prop: prop})
	}
	return doc
}

func objectKey(p *Property) string {
	if p == nil {
		return ""
	}
	if s, ok := p.Value.(string); ok {
		return s
	}
	return strconv.FormatInt(p.ToInt64(0), 10)
}

// ObjectsOf returns the objects of a class in file order.
func (doc *Document) ObjectsOf(class string) []*Object {
	var r []*Object
	for _, o := range doc.order {
		if o.Class() == class {
			r = append(r, o)
		}
	}
	return r
}

// GlobalSettings returns the property holder of the GlobalSettings node.
func (doc *Document) GlobalSettings() *Object {
	n := doc.RawNode.FindChild("GlobalSettings")
	if n == nil {
		return nil
	}
	return &Object{Node: n}
}
