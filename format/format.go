// Package format defines the reader and writer capabilities that every file
// format implements, the error kinds they report and the registry that
// selects them.
package format

import (
	"io"

	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type ReadFlags uint32

const (
	// FlagStrict aborts on any structural anomaly instead of skipping the
	// offending element.
	FlagStrict ReadFlags = 1 << iota
)

// OpenFunc opens a file referenced by the asset, e.g. a material library.
type OpenFunc func(name string) (io.ReadCloser, error)

// CreateFunc creates a side-car file next to the exported asset.
type CreateFunc func(name string) (io.WriteCloser, error)

type ReadOptions struct {
	Flags  ReadFlags
	Open   OpenFunc
	Logger *zap.Logger
}

// Reader parses one file format. Implementations keep no state between
// calls to Read.
type Reader interface {
	Format() string
	Extensions() []string
	// CanRead reports whether data looks like this format.
	CanRead(data []byte) bool
	Read(data []byte, opts *ReadOptions) (*scene.Scene, error)
}

type WriteOptions struct {
	// BaseName names side-car files, e.g. "model" for "model.mtl".
	BaseName string
	Create   CreateFunc
	Logger   *zap.Logger
}

type Writer interface {
	ID() string
	Extension() string
	Write(w io.Writer, s *scene.Scene, opts *WriteOptions) error
}

// Preparer is implemented by writers that need post-process steps
// applied before Write. Names are post-process flag names.
type Preparer interface {
	Prepare() []string
}

func (o *ReadOptions) Strict() bool {
	return o != nil && o.Flags&FlagStrict != 0
}

func (o *ReadOptions) Log() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Recover decides what to do with a recoverable anomaly. In strict mode err
// is returned; otherwise it is logged and nil is returned so that the
// reader can skip the element.
func (o *ReadOptions) Recover(err *Error) error {
	if o.Strict() {
		return err
	}
	o.Log().Warn("skipping malformed element", zap.String("format", err.Format), zap.String("reason", err.Msg))
	return nil
}

// OpenFile opens a referenced file or returns an IOFailure when no
// opener is configured.
func (o *ReadOptions) OpenFile(format, name string) (io.ReadCloser, error) {
	if o == nil || o.Open == nil {
		return nil, &Error{Kind: IOFailure, Format: format, Msg: "cannot open " + name + ": no file access"}
	}
	r, err := o.Open(name)
	if err != nil {
		return nil, &Error{Kind: IOFailure, Format: format, Msg: "open " + name, Err: err}
	}
	return r, nil
}

func (o *WriteOptions) Log() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// CreateFile creates a side-car file. ok is false when side-cars are not
// supported by the destination.
func (o *WriteOptions) CreateFile(name string) (w io.WriteCloser, ok bool, err error) {
	if o == nil || o.Create == nil {
		return nil, false, nil
	}
	w, err = o.Create(name)
	return w, true, err
}

func (o *WriteOptions) Base(def string) string {
	if o == nil || o.BaseName == "" {
		return def
	}
	return o.BaseName
}
