package scene

import (
	"fmt"

	"github.com/binzume/modelio/geom"
)

type MetaType int

const (
	MetaBool MetaType = iota
	MetaInt
	MetaUint
	MetaFloat
	MetaString
	MetaVector3
	MetaFloats
)

type MetaEntry struct {
	Key    string
	Type   MetaType
	Bool   bool
	Int    int64
	Uint   uint64
	Float  float64
	Str    string
	Vec    geom.Vector3
	Floats []float64
}

// Value returns the entry value as an interface.
func (e *MetaEntry) Value() interface{} {
	switch e.Type {
	case MetaBool:
		return e.Bool
	case MetaInt:
		return e.Int
	case MetaUint:
		return e.Uint
	case MetaFloat:
		return e.Float
	case MetaString:
		return e.Str
	case MetaVector3:
		return e.Vec
	case MetaFloats:
		return e.Floats
	}
	return nil
}

// Metadata is an ordered key/value list.
type Metadata []MetaEntry

// Set stores value under key. Unsupported value types return an error.
func (md *Metadata) Set(key string, value interface{}) error {
	e := MetaEntry{Key: key}
	switch v := value.(type) {
	case bool:
		e.Type, e.Bool = MetaBool, v
	case int:
		e.Type, e.Int = MetaInt, int64(v)
	case int32:
		e.Type, e.Int = MetaInt, int64(v)
	case int64:
		e.Type, e.Int = MetaInt, v
	case uint32:
		e.Type, e.Uint = MetaUint, uint64(v)
	case uint64:
		e.Type, e.Uint = MetaUint, v
	case float32:
		e.Type, e.Float = MetaFloat, float64(v)
	case float64:
		e.Type, e.Float = MetaFloat, v
	case string:
		e.Type, e.Str = MetaString, v
	case geom.Vector3:
		e.Type, e.Vec = MetaVector3, v
	case []float64:
		e.Type, e.Floats = MetaFloats, v
	default:
		return fmt.Errorf("unsupported metadata type %T for %q", value, key)
	}
	md.put(e)
	return nil
}

func (md *Metadata) SetString(key, v string) {
	md.put(MetaEntry{Key: key, Type: MetaString, Str: v})
}

func (md *Metadata) SetBool(key string, v bool) {
	md.put(MetaEntry{Key: key, Type: MetaBool, Bool: v})
}

func (md *Metadata) SetInt(key string, v int64) {
	md.put(MetaEntry{Key: key, Type: MetaInt, Int: v})
}

func (md *Metadata) SetFloat(key string, v float64) {
	md.put(MetaEntry{Key: key, Type: MetaFloat, Float: v})
}

// put replaces the entry with the same key or appends e.
func (md *Metadata) put(e MetaEntry) {
	for i := range *md {
		if (*md)[i].Key == e.Key {
			(*md)[i] = e
			return
		}
	}
	*md = append(*md, e)
}

func (md Metadata) Get(key string) (MetaEntry, bool) {
	for _, e := range md {
		if e.Key == key {
			return e, true
		}
	}
	return MetaEntry{}, false
}

func (md Metadata) Keys() []string {
	keys := make([]string, len(md))
	for i, e := range md {
		keys[i] = e.Key
	}
	return keys
}
