package modelio

import (
	"github.com/binzume/modelio/fbx"
	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/gltfio"
	"github.com/binzume/modelio/mmd"
	"github.com/binzume/modelio/mqo"
	"github.com/binzume/modelio/obj"
	"github.com/binzume/modelio/ply"
	"github.com/binzume/modelio/stl"
)

// DefaultRegistry returns a registry with every built-in format.
//
// Readers are tried in the order ply, stl, gltf, fbx, pmx, pmd, vmd, mqo,
// obj: formats with a magic number first, weak text heuristics last.
// Writer ids are ply, plyb, obj, stl, stlb, mqo, gltf2, glb2, vrm and pmx.
func DefaultRegistry() *format.Registry {
	r := format.NewRegistry()
	r.RegisterReader(
		ply.Reader{},
		stl.Reader{},
		gltfio.Reader{},
		fbx.Reader{},
		mmd.PMXReader{},
		mmd.PMDReader{},
		mmd.VMDReader{},
		mqo.Reader{},
		obj.Reader{},
	)
	r.RegisterWriter(
		&ply.Writer{Encoding: ply.ASCII},
		&ply.Writer{Encoding: ply.BinaryLittleEndian},
		obj.Writer{},
		&stl.Writer{},
		&stl.Writer{Binary: true},
		mqo.Writer{},
		gltfio.Writer{},
		gltfio.Writer{Binary: true},
		gltfio.Writer{Avatar: true},
		mmd.Writer{},
	)
	return r
}
