package scene

import "github.com/binzume/modelio/geom"

// Node is an element of the scene tree. Children are owned exclusively.
type Node struct {
	Name      string
	Transform geom.Matrix4
	Children  []*Node
	Meshes    []int
	Metadata  Metadata
}

func NewNode(name string) *Node {
	return &Node{Name: name, Transform: *geom.NewMatrix4()}
}

// AddChild appends c and returns it.
func (n *Node) AddChild(c *Node) *Node {
	n.Children = append(n.Children, c)
	return c
}

func (n *Node) IsIdentity() bool {
	return n.Transform.IsIdentity()
}
