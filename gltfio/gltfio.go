// Package gltfio reads and writes glTF 2.0 assets (.gltf, .glb and .vrm).
package gltfio

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/h2non/filetype"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

const formatName = "gltf"

var glbMagic = []byte("glTF")

// Reader imports glTF 2.0 JSON and binary files.
type Reader struct{}

func (Reader) Format() string       { return formatName }
func (Reader) Extensions() []string { return []string{"gltf", "glb", "vrm"} }

func (Reader) CanRead(data []byte) bool {
	if bytes.HasPrefix(data, glbMagic) {
		return true
	}
	if !format.HasPrefixFold(data, "{") {
		return false
	}
	head := format.Head(data, 4096)
	return bytes.Contains(head, []byte(`"asset"`)) && bytes.Contains(head, []byte(`"version"`))
}

func components(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4, gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	}
	return 0
}

func componentSize(t gltf.ComponentType) int {
	switch t {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	}
	return 0
}

// bufferViewData returns the bytes of a buffer view after checking that
// it lies inside its buffer.
func bufferViewData(doc *gltf.Document, i uint32) ([]byte, error) {
	if int(i) >= len(doc.BufferViews) {
		return nil, format.Malformed(formatName, "buffer view %d out of range", i)
	}
	bv := doc.BufferViews[i]
	if int(bv.Buffer) >= len(doc.Buffers) {
		return nil, format.Malformed(formatName, "buffer view %d: buffer %d out of range", i, bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := uint64(bv.ByteOffset) + uint64(bv.ByteLength)
	if end > uint64(len(data)) {
		return nil, format.Malformed(formatName, "buffer view %d: range %d exceeds buffer size %d", i, end, len(data))
	}
	return data[bv.ByteOffset:end], nil
}

// checkAccessor validates that every element of accessor i can be read
// from its buffer view.
func checkAccessor(doc *gltf.Document, i uint32) (*gltf.Accessor, error) {
	if int(i) >= len(doc.Accessors) {
		return nil, format.Malformed(formatName, "accessor %d out of range", i)
	}
	acr := doc.Accessors[i]
	if acr.Sparse != nil {
		return nil, format.Unsupported(formatName, "accessor %d: sparse storage", i)
	}
	elem := components(acr.Type) * componentSize(acr.ComponentType)
	if elem == 0 {
		return nil, format.Malformed(formatName, "accessor %d: unknown element type", i)
	}
	if acr.BufferView == nil || acr.Count == 0 {
		return acr, nil
	}
	view, err := bufferViewData(doc, *acr.BufferView)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", i, err)
	}
	stride := uint64(doc.BufferViews[*acr.BufferView].ByteStride)
	if stride == 0 {
		stride = uint64(elem)
	}
	end := uint64(acr.ByteOffset) + stride*uint64(acr.Count-1) + uint64(elem)
	if end > uint64(len(view)) {
		return nil, format.Malformed(formatName, "accessor %d: %d elements exceed buffer view size %d", i, acr.Count, len(view))
	}
	return acr, nil
}

// readFloats decodes accessor i as a flat float list. Normalized integers
// are mapped to [0,1] or [-1,1].
func readFloats(doc *gltf.Document, i uint32) ([]float32, int, error) {
	acr, err := checkAccessor(doc, i)
	if err != nil {
		return nil, 0, err
	}
	n := components(acr.Type)
	if acr.BufferView == nil || acr.Count == 0 {
		return make([]float32, int(acr.Count)*n), n, nil
	}
	data, err := modeler.ReadAccessor(doc, acr, nil)
	if err != nil {
		return nil, 0, &format.Error{Kind: format.MalformedInput, Format: formatName, Msg: fmt.Sprintf("accessor %d", i), Err: err}
	}
	out := make([]float32, 0, int(acr.Count)*n)
	out = flatten(reflect.ValueOf(data), acr.Normalized, out)
	return out, n, nil
}

func flatten(v reflect.Value, normalized bool, out []float32) []float32 {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			out = flatten(v.Index(i), normalized, out)
		}
		return out
	case reflect.Float32, reflect.Float64:
		return append(out, float32(v.Float()))
	case reflect.Int8, reflect.Int16, reflect.Int32:
		f := float32(v.Int())
		if normalized {
			f = max(f/float32(int64(1)<<(v.Type().Bits()-1)-1), -1)
		}
		return append(out, f)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		f := float32(v.Uint())
		if normalized {
			f /= float32(uint64(1)<<v.Type().Bits() - 1)
		}
		return append(out, f)
	}
	return out
}

func readIndices(doc *gltf.Document, i uint32) ([]uint32, error) {
	acr, err := checkAccessor(doc, i)
	if err != nil {
		return nil, err
	}
	if acr.Type != gltf.AccessorScalar {
		return nil, format.Malformed(formatName, "index accessor %d is not scalar", i)
	}
	if acr.BufferView == nil || acr.Count == 0 {
		return make([]uint32, acr.Count), nil
	}
	indices, err := modeler.ReadIndices(doc, acr, []uint32{})
	if err != nil {
		return nil, &format.Error{Kind: format.MalformedInput, Format: formatName, Msg: fmt.Sprintf("accessor %d", i), Err: err}
	}
	return indices, nil
}

// imageExtension returns a short file extension for image data.
func imageExtension(mimeType string, data []byte) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		if kind.Extension == "jpeg" {
			return "jpg"
		}
		return kind.Extension
	}
	return strings.TrimPrefix(mimeType, "image/")
}

func mimeType(ext string, data []byte) string {
	switch strings.ToLower(ext) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return "image/" + strings.ToLower(ext)
}
