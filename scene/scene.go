// Package scene is the format neutral in-memory representation of an imported asset.
//
// A Scene owns every mesh, material, texture and animation. Nodes form a tree
// rooted at RootNode and refer to meshes by index into Scene.Meshes.
package scene

import (
	"errors"

	"github.com/binzume/modelio/geom"
	"github.com/jinzhu/copier"
)

type Flags uint32

const (
	// FlagIncomplete marks a scene that intentionally carries no geometry,
	// e.g. a motion-only file.
	FlagIncomplete Flags = 1 << iota
	FlagValidated
	FlagValidationWarning
)

var errStopWalk = errors.New("stop walk")

type Scene struct {
	Flags      Flags
	RootNode   *Node
	Meshes     []*Mesh
	Materials  []*Material
	Animations []*Animation
	Textures   []*EmbeddedTexture
	Metadata   Metadata
}

// New returns an empty scene with a root node.
func New() *Scene {
	return &Scene{RootNode: NewNode("RootNode")}
}

func (s *Scene) AddMesh(m *Mesh) int {
	s.Meshes = append(s.Meshes, m)
	return len(s.Meshes) - 1
}

func (s *Scene) AddMaterial(m *Material) int {
	s.Materials = append(s.Materials, m)
	return len(s.Materials) - 1
}

func (s *Scene) AddTexture(t *EmbeddedTexture) int {
	s.Textures = append(s.Textures, t)
	return len(s.Textures) - 1
}

// Texture resolves an embedded texture reference like "*0".
func (s *Scene) Texture(ref string) (*EmbeddedTexture, bool) {
	i, ok := ParseTextureToken(ref)
	if !ok || i >= len(s.Textures) {
		return nil, false
	}
	return s.Textures[i], true
}

// Walk visits nodes in pre-order. parent is nil for the root.
// Returning an error from fn stops the walk and Walk returns it.
func (s *Scene) Walk(fn func(n, parent *Node, depth int) error) error {
	if s.RootNode == nil {
		return nil
	}
	return walk(s.RootNode, nil, 0, fn)
}

func walk(n, parent *Node, depth int, fn func(n, parent *Node, depth int) error) error {
	if err := fn(n, parent, depth); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, n, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scene) FindNode(name string) *Node {
	var found *Node
	_ = s.Walk(func(n, _ *Node, _ int) error {
		if n.Name == name {
			found = n
			return errStopWalk
		}
		return nil
	})
	return found
}

// Instance is a placement of a mesh in world space.
type Instance struct {
	Mesh      int
	Transform geom.Matrix4
	Node      *Node
}

// Instances returns every mesh reference with its accumulated transform.
func (s *Scene) Instances() []Instance {
	var result []Instance
	if s.RootNode == nil {
		return nil
	}
	var visit func(n *Node, parent *geom.Matrix4)
	visit = func(n *Node, parent *geom.Matrix4) {
		world := parent.Mul(&n.Transform)
		for _, m := range n.Meshes {
			result = append(result, Instance{Mesh: m, Transform: *world, Node: n})
		}
		for _, c := range n.Children {
			visit(c, world)
		}
	}
	visit(s.RootNode, geom.NewMatrix4())
	return result
}

func (s *Scene) NumVertices() int {
	n := 0
	for _, m := range s.Meshes {
		n += len(m.Vertices)
	}
	return n
}

func (s *Scene) NumFaces() int {
	n := 0
	for _, m := range s.Meshes {
		n += len(m.Faces)
	}
	return n
}

// Clone returns a deep copy of the scene.
func (s *Scene) Clone() (*Scene, error) {
	dst := &Scene{}
	if err := copier.CopyWithOption(dst, s, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return dst, nil
}
