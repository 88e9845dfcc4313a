package format

import (
	"sort"
	"strings"
)

// Registry holds the available readers and writers. Registration happens
// once at startup; afterwards a Registry may be shared between goroutines.
//
// Reader selection order:
//  1. readers whose extensions contain the hint, in registration order,
//     that recognize the content;
//  2. any reader recognizing the content, in registration order.
//
// Readers with weak content heuristics should be registered last.
type Registry struct {
	readers []Reader
	writers []Writer
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) RegisterReader(rd ...Reader) {
	r.readers = append(r.readers, rd...)
}

func (r *Registry) RegisterWriter(w ...Writer) {
	r.writers = append(r.writers, w...)
}

func (r *Registry) Readers() []Reader {
	return append([]Reader(nil), r.readers...)
}

func (r *Registry) Writers() []Writer {
	return append([]Writer(nil), r.writers...)
}

// NormalizeExt lower-cases ext and strips a leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}

func (r *Registry) SelectReader(data []byte, extHint string) (Reader, error) {
	ext := NormalizeExt(extHint)
	if ext != "" {
		for _, rd := range r.readers {
			if hasExt(rd.Extensions(), ext) && rd.CanRead(data) {
				return rd, nil
			}
		}
	}
	for _, rd := range r.readers {
		if rd.CanRead(data) {
			return rd, nil
		}
	}
	if ext != "" {
		return nil, Unrecognized("", "no reader recognizes the content (extension %q)", ext)
	}
	return nil, Unrecognized("", "no reader recognizes the content")
}

// ReaderForFormat returns the reader named name.
func (r *Registry) ReaderForFormat(name string) (Reader, error) {
	for _, rd := range r.readers {
		if rd.Format() == name {
			return rd, nil
		}
	}
	return nil, Unrecognized("", "unknown reader %q", name)
}

func (r *Registry) SelectWriter(id string) (Writer, error) {
	for _, w := range r.writers {
		if w.ID() == id {
			return w, nil
		}
	}
	return nil, Unrecognized("", "unknown export format %q (available: %s)", id, strings.Join(r.WriterIDs(), ", "))
}

// WriterForExtension returns the first writer producing ext.
func (r *Registry) WriterForExtension(ext string) (Writer, error) {
	ext = NormalizeExt(ext)
	for _, w := range r.writers {
		if w.Extension() == ext {
			return w, nil
		}
	}
	return nil, Unrecognized("", "no writer for extension %q", ext)
}

func (r *Registry) WriterIDs() []string {
	ids := make([]string, 0, len(r.writers))
	for _, w := range r.writers {
		ids = append(ids, w.ID())
	}
	sort.Strings(ids)
	return ids
}

func hasExt(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
