// Package modelio imports 3D model files into a unified scene, runs
// post-process steps over it and exports scenes to any supported format.
//
//	s, err := modelio.ImportFile("model.ply", postprocess.Triangulate|postprocess.GenNormals)
//	...
//	err = modelio.ExportFile(s, "glb2", "model.glb")
package modelio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/postprocess"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type options struct {
	registry *format.Registry
	logger   *zap.Logger
	strict   bool
	steps    *postprocess.Config
	open     format.OpenFunc
	ordered  []postprocess.Flags
}

// Option configures an Importer or Exporter.
type Option func(*options)

// WithRegistry replaces DefaultRegistry.
func WithRegistry(r *format.Registry) Option {
	return func(o *options) { o.registry = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStrict makes readers abort on malformed elements instead of
// skipping them.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithStepConfig sets the parameters of the post-process steps.
func WithStepConfig(cfg *postprocess.Config) Option {
	return func(o *options) { o.steps = cfg }
}

// WithOpen sets how side-car files referenced by the input are opened.
func WithOpen(open format.OpenFunc) Option {
	return func(o *options) { o.open = open }
}

// WithOrderedSteps runs the given steps in this order after the flag steps
// passed to Import.
func WithOrderedSteps(steps ...postprocess.Flags) Option {
	return func(o *options) { o.ordered = steps }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.steps == nil {
		o.steps = postprocess.DefaultConfig()
	}
	return o
}

func (o *options) stepConfig() *postprocess.Config {
	cfg := *o.steps
	if cfg.Logger == nil {
		cfg.Logger = o.logger
	}
	if cfg.Open == nil {
		cfg.Open = o.open
	}
	return &cfg
}

// Importer reads model data and applies post-process steps. An Importer
// holds no per-call state and may be shared between goroutines.
type Importer struct {
	opts *options
}

func NewImporter(opts ...Option) *Importer {
	return &Importer{opts: newOptions(opts)}
}

// Import reads data. extHint is a file extension used to prefer a reader
// and may be empty.
func (im *Importer) Import(data []byte, extHint string, steps postprocess.Flags) (*scene.Scene, error) {
	o := im.opts
	rd, err := o.registry.SelectReader(data, extHint)
	if err != nil {
		return nil, err
	}
	ropts := &format.ReadOptions{Open: o.open, Logger: o.logger}
	if o.strict {
		ropts.Flags |= format.FlagStrict
	}
	o.logger.Debug("import", zap.String("format", rd.Format()), zap.Int("bytes", len(data)))
	s, err := rd.Read(data, ropts)
	if err != nil {
		return nil, err
	}
	if err := im.postProcess(s, steps); err != nil {
		return nil, err
	}
	return s, nil
}

func (im *Importer) postProcess(s *scene.Scene, steps postprocess.Flags) error {
	cfg := im.opts.stepConfig()
	if steps != 0 {
		if err := postprocess.Apply(s, steps, cfg); err != nil {
			return err
		}
	}
	if len(im.opts.ordered) > 0 {
		chain, err := postprocess.NewChainOrdered(im.opts.ordered)
		if err != nil {
			return err
		}
		if err := chain.Run(s, cfg); err != nil {
			return err
		}
	}
	return nil
}

// ImportFile reads the file at path. Side-car files are opened relative to
// the directory of path unless WithOpen is given.
func (im *Importer) ImportFile(path string, steps postprocess.Flags) (*scene.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, format.WrapIO("", err)
	}
	fi := im
	if im.opts.open == nil {
		o := *im.opts
		o.open = DirOpener(filepath.Dir(path))
		fi = &Importer{opts: &o}
	}
	s, err := fi.Import(data, filepath.Ext(path), steps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Exporter writes scenes. Writer preparation steps run on a copy so the
// caller's scene is never modified.
type Exporter struct {
	opts *options
}

func NewExporter(opts ...Option) *Exporter {
	return &Exporter{opts: newOptions(opts)}
}

// Export writes s in the format formatID. baseName names side-car files and
// create receives them; both may be empty.
func (ex *Exporter) Export(s *scene.Scene, formatID string, w io.Writer, baseName string, create format.CreateFunc) error {
	o := ex.opts
	wr, err := o.registry.SelectWriter(formatID)
	if err != nil {
		return err
	}
	if s == nil || s.RootNode == nil {
		return format.Validation(formatID, "scene has no root node")
	}
	if p, ok := wr.(format.Preparer); ok {
		flags, err := postprocess.ParseFlags(p.Prepare())
		if err != nil {
			return err
		}
		if flags != 0 {
			if s, err = s.Clone(); err != nil {
				return fmt.Errorf("clone scene: %w", err)
			}
			if err := postprocess.Apply(s, flags, o.stepConfig()); err != nil {
				return err
			}
		}
	}
	o.logger.Debug("export", zap.String("format", formatID), zap.Int("meshes", len(s.Meshes)))
	return wr.Write(w, s, &format.WriteOptions{BaseName: baseName, Create: create, Logger: o.logger})
}

// ExportFile writes s to path. Side-car files are created next to path.
func (ex *Exporter) ExportFile(s *scene.Scene, formatID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return format.WrapIO(formatID, err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	err = ex.Export(s, formatID, f, base, DirCreator(filepath.Dir(path)))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = format.WrapIO(formatID, cerr)
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// DirOpener opens files relative to dir. Names escaping dir are rejected.
func DirOpener(dir string) format.OpenFunc {
	return func(name string) (io.ReadCloser, error) {
		p, err := resolve(dir, name)
		if err != nil {
			return nil, err
		}
		return os.Open(p)
	}
}

// DirCreator creates files in dir.
func DirCreator(dir string) format.CreateFunc {
	return func(name string) (io.WriteCloser, error) {
		p, err := resolve(dir, name)
		if err != nil {
			return nil, err
		}
		return os.Create(p)
	}
}

func resolve(dir, name string) (string, error) {
	name = filepath.FromSlash(strings.ReplaceAll(name, "\\", "/"))
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%q is outside %s", name, dir)
	}
	return filepath.Join(dir, name), nil
}

// Import reads data with a new Importer.
func Import(data []byte, extHint string, steps postprocess.Flags, opts ...Option) (*scene.Scene, error) {
	return NewImporter(opts...).Import(data, extHint, steps)
}

// ImportFile reads path with a new Importer.
func ImportFile(path string, steps postprocess.Flags, opts ...Option) (*scene.Scene, error) {
	return NewImporter(opts...).ImportFile(path, steps)
}

// Export writes s without side-car files.
func Export(s *scene.Scene, formatID string, w io.Writer, opts ...Option) error {
	return NewExporter(opts...).Export(s, formatID, w, "", nil)
}

// ExportFile writes s to path with side-car files next to it.
func ExportFile(s *scene.Scene, formatID, path string, opts ...Option) error {
	return NewExporter(opts...).ExportFile(s, formatID, path)
}
