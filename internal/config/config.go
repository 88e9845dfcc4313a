// Package config holds the modelconv settings.
package config

import (
	"fmt"
	"strings"

	"github.com/binzume/modelio/postprocess"
	"github.com/binzume/modelio/scene"
)

// Config holds all modelconv settings.
type Config struct {
	Import      ImportConfig      `yaml:"import" toml:"import"`
	PostProcess PostProcessConfig `yaml:"postprocess" toml:"postprocess"`
	Export      ExportConfig      `yaml:"export" toml:"export"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Batch       BatchConfig       `yaml:"batch" toml:"batch"`
}

type ImportConfig struct {
	Strict bool `yaml:"strict" toml:"strict"`
	// Steps are post-process step or preset names run after import.
	Steps []string `yaml:"steps" toml:"steps"`
}

// PostProcessConfig holds the step parameters.
type PostProcessConfig struct {
	JoinEpsilon       float32 `yaml:"join_epsilon" toml:"join_epsilon"`
	SmoothingAngle    float32 `yaml:"smoothing_angle" toml:"smoothing_angle"`
	RemoveDegenerates bool    `yaml:"remove_degenerates" toml:"remove_degenerates"`
	// RemovePrimitives lists the primitive types SortByPrimitiveType drops:
	// point, line, triangle or polygon.
	RemovePrimitives []string `yaml:"remove_primitives" toml:"remove_primitives"`
	MaxTextureSize   int      `yaml:"max_texture_size" toml:"max_texture_size"`
	ValidateEachStep bool     `yaml:"validate_each_step" toml:"validate_each_step"`
}

type ExportConfig struct {
	// Format is the writer id used when it cannot be inferred from the
	// output file name.
	Format    string `yaml:"format" toml:"format"`
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
}

type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

type BatchConfig struct {
	// Jobs is the number of parallel conversions. 0 uses the CPU count.
	Jobs int `yaml:"jobs" toml:"jobs"`
	// DebounceMS delays re-conversion after a change in watch mode.
	DebounceMS int `yaml:"debounce_ms" toml:"debounce_ms"`
}

func Default() *Config {
	return &Config{
		Import: ImportConfig{
			Steps: []string{"ValidateDataStructure"},
		},
		PostProcess: PostProcessConfig{
			SmoothingAngle: 175,
			MaxTextureSize: 4096,
		},
		Export: ExportConfig{
			Format: "glb2",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Batch: BatchConfig{
			DebounceMS: 200,
		},
	}
}

// Steps returns the import steps as flags.
func (c *Config) Steps() (postprocess.Flags, error) {
	return postprocess.ParseFlags(c.Import.Steps)
}

var primitiveNames = map[string]scene.PrimitiveType{
	"point":    scene.PrimitivePoint,
	"line":     scene.PrimitiveLine,
	"triangle": scene.PrimitiveTriangle,
	"polygon":  scene.PrimitivePolygon,
}

// StepConfig returns the post-process parameters.
func (c *Config) StepConfig() (*postprocess.Config, error) {
	cfg := postprocess.DefaultConfig()
	pp := c.PostProcess
	cfg.JoinEpsilon = pp.JoinEpsilon
	cfg.SmoothingAngle = pp.SmoothingAngle
	cfg.RemoveDegenerates = pp.RemoveDegenerates
	cfg.MaxTextureSize = pp.MaxTextureSize
	cfg.ValidateEachStep = pp.ValidateEachStep
	for _, name := range pp.RemovePrimitives {
		t, ok := primitiveNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown primitive type %q", name)
		}
		cfg.RemovePrimitives |= t
	}
	return cfg, nil
}

// Validate checks the values a file or the flags may have broken.
func (c *Config) Validate() error {
	if _, err := c.Steps(); err != nil {
		return err
	}
	if _, err := c.StepConfig(); err != nil {
		return err
	}
	if c.Batch.Jobs < 0 {
		return fmt.Errorf("batch.jobs must not be negative: %d", c.Batch.Jobs)
	}
	if c.PostProcess.SmoothingAngle < 0 || c.PostProcess.SmoothingAngle > 180 {
		return fmt.Errorf("postprocess.smoothing_angle out of range [0,180]: %v", c.PostProcess.SmoothingAngle)
	}
	return nil
}
