package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/binzume/modelio"
	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/geom"
	"github.com/binzume/modelio/internal/config"
	"github.com/binzume/modelio/postprocess"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const fallbackFormat = "glb2"

type job struct {
	input  string
	output string
	format string
}

type converter struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *format.Registry
	importer *modelio.Importer
	exporter *modelio.Exporter
	steps    postprocess.Flags
	scale    float32
	motions  []*scene.Animation
}

func newConverter(cfg *config.Config, log *zap.Logger) (*converter, error) {
	steps, err := cfg.Steps()
	if err != nil {
		return nil, err
	}
	stepCfg, err := cfg.StepConfig()
	if err != nil {
		return nil, err
	}
	reg := modelio.DefaultRegistry()
	opts := []modelio.Option{
		modelio.WithRegistry(reg),
		modelio.WithLogger(log),
		modelio.WithStrict(cfg.Import.Strict),
		modelio.WithStepConfig(stepCfg),
	}
	return &converter{
		cfg:      cfg,
		log:      log,
		registry: reg,
		importer: modelio.NewImporter(opts...),
		exporter: modelio.NewExporter(opts...),
		steps:    steps,
		scale:    1,
	}, nil
}

// writerFor picks the writer for an output file. The configured format
// wins when it produces files with the output extension.
func (c *converter) writerFor(output string) (format.Writer, error) {
	id := c.cfg.Export.Format
	if id == "" {
		id = fallbackFormat
	}
	w, err := c.registry.SelectWriter(id)
	if err != nil {
		return nil, err
	}
	ext := format.NormalizeExt(filepath.Ext(output))
	if ext == "" || ext == w.Extension() {
		return w, nil
	}
	return c.registry.WriterForExtension(ext)
}

// plan maps inputs to output files. A single input with an output path that
// is not a directory converts to that file; otherwise outputs are named
// after the inputs.
func (c *converter) plan(inputs []string, output string) ([]job, error) {
	if len(inputs) == 1 && output != "" && !isDir(output) && filepath.Ext(output) != "" {
		w, err := c.writerFor(output)
		if err != nil {
			return nil, err
		}
		return []job{{input: inputs[0], output: output, format: w.ID()}}, nil
	}

	w, err := c.writerFor("")
	if err != nil {
		return nil, err
	}
	dir := output
	if dir == "" {
		dir = c.cfg.Export.OutputDir
	}
	jobs := make([]job, 0, len(inputs))
	for _, in := range inputs {
		jobs = append(jobs, job{input: in, output: outputPath(in, dir, w.Extension()), format: w.ID()})
	}
	return jobs, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// outputPath names the output after input with extension ext, in dir or
// next to the input. An output that would replace the input gets a suffix.
func outputPath(input, dir, ext string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	out := filepath.Join(dir, base+"."+ext)
	if filepath.Clean(out) == filepath.Clean(input) {
		out = filepath.Join(dir, base+"_converted."+ext)
	}
	return out
}

// loadMotion imports the animations of path. They are appended to every
// converted scene and bind to nodes by name.
func (c *converter) loadMotion(path string) error {
	s, err := c.importer.ImportFile(path, 0)
	if err != nil {
		return err
	}
	if len(s.Animations) == 0 {
		return fmt.Errorf("%s: no animations", path)
	}
	c.motions = s.Animations
	return nil
}

func (c *converter) load(input string) (*scene.Scene, error) {
	s, err := c.importer.ImportFile(input, c.steps)
	if err != nil {
		return nil, err
	}
	if c.scale != 1 && c.scale != 0 {
		s.RootNode.Transform = *geom.NewScaleMatrix4(c.scale, c.scale, c.scale).Mul(&s.RootNode.Transform)
	}
	s.Animations = append(s.Animations, c.motions...)
	return s, nil
}

func (c *converter) convert(j job) error {
	start := time.Now()
	s, err := c.load(j.input)
	if err != nil {
		return err
	}
	if err := c.exporter.ExportFile(s, j.format, j.output); err != nil {
		return err
	}
	c.log.Info("converted",
		zap.String("input", j.input),
		zap.String("output", j.output),
		zap.Int("meshes", len(s.Meshes)),
		zap.Int("vertices", s.NumVertices()),
		zap.Int("faces", s.NumFaces()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// convertAll runs jobs in parallel. A failed job does not stop the others.
func (c *converter) convertAll(ctx context.Context, jobs []job) error {
	var g errgroup.Group
	n := c.cfg.Batch.Jobs
	if n <= 0 {
		n = runtime.NumCPU()
	}
	g.SetLimit(n)

	var failed atomic.Int32
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.convert(j); err != nil {
				failed.Add(1)
				c.log.Error("conversion failed", zap.String("input", j.input), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if f := failed.Load(); f > 0 {
		return fmt.Errorf("%d of %d conversions failed", f, len(jobs))
	}
	return nil
}
