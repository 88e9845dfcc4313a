// Package ply reads and writes Stanford PLY polygon files.
package ply

import (
	"strings"
)

const formatName = "ply"

type Encoding int

const (
	ASCII Encoding = iota
	BinaryLittleEndian
	BinaryBigEndian
)

var encodingNames = map[string]Encoding{
	"ascii":                ASCII,
	"binary_little_endian": BinaryLittleEndian,
	"binary_big_endian":    BinaryBigEndian,
}

func (e Encoding) String() string {
	for k, v := range encodingNames {
		if v == e {
			return k
		}
	}
	return "unknown"
}

type DataType int

const (
	TypeInvalid DataType = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeFloat32
	TypeFloat64
)

var typeNames = map[string]DataType{
	"char": TypeInt8, "int8": TypeInt8,
	"uchar": TypeUint8, "uint8": TypeUint8,
	"short": TypeInt16, "int16": TypeInt16,
	"ushort": TypeUint16, "uint16": TypeUint16,
	"int": TypeInt32, "int32": TypeInt32,
	"uint": TypeUint32, "uint32": TypeUint32,
	"float": TypeFloat32, "float32": TypeFloat32,
	"double": TypeFloat64, "float64": TypeFloat64,
}

func parseDataType(s string) DataType {
	return typeNames[strings.ToLower(s)]
}

func (t DataType) Size() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	}
	return 0
}

func (t DataType) IsInteger() bool {
	return t >= TypeInt8 && t <= TypeUint32
}

// MaxValue is the normalization divisor of integer color channels.
func (t DataType) MaxValue() float64 {
	switch t {
	case TypeInt8:
		return 127
	case TypeUint8:
		return 255
	case TypeInt16:
		return 32767
	case TypeUint16:
		return 65535
	case TypeInt32:
		return 2147483647
	case TypeUint32:
		return 4294967295
	}
	return 1
}

type Property struct {
	Name      string
	Type      DataType
	IsList    bool
	CountType DataType
}

type Element struct {
	Name       string
	Count      int
	Properties []*Property

	// per property values; Lists is used for list properties
	Scalars [][]float64
	Lists   [][][]float64
}

func (e *Element) PropertyIndex(names ...string) int {
	for _, n := range names {
		for i, p := range e.Properties {
			if p.Name == n {
				return i
			}
		}
	}
	return -1
}

// Document is a parsed PLY file.
type Document struct {
	Encoding Encoding
	Version  string
	Comments []string
	ObjInfo  []string
	Elements []*Element
}

func (d *Document) Element(name string) *Element {
	for _, e := range d.Elements {
		if e.Name == name {
			return e
		}
	}
	return nil
}
