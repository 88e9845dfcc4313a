package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/binzume/modelio/postprocess"
	"github.com/binzume/modelio/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "glb2", cfg.Export.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, float32(175), cfg.PostProcess.SmoothingAngle)
	assert.False(t, cfg.Import.Strict)

	steps, err := cfg.Steps()
	require.NoError(t, err)
	assert.Equal(t, postprocess.ValidateDataStructure, steps)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelconv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
import:
  strict: true
  steps: [Triangulate, GenSmoothNormals]
postprocess:
  smoothing_angle: 80
  remove_primitives: [point, line]
export:
  format: obj
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Import.Strict)
	assert.Equal(t, "obj", cfg.Export.Format)
	// unset values keep their defaults
	assert.Equal(t, "info", cfg.Logging.Level)

	steps, err := cfg.Steps()
	require.NoError(t, err)
	assert.Equal(t, postprocess.Triangulate|postprocess.GenSmoothNormals, steps)

	pc, err := cfg.StepConfig()
	require.NoError(t, err)
	assert.Equal(t, float32(80), pc.SmoothingAngle)
	assert.Equal(t, scene.PrimitivePoint|scene.PrimitiveLine, pc.RemovePrimitives)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelconv.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[import]
steps = ["TargetRealtimeFast"]

[batch]
jobs = 3

[logging]
level = "debug"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Batch.Jobs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	steps, err := cfg.Steps()
	require.NoError(t, err)
	assert.Equal(t, postprocess.TargetRealtimeFast, steps)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"bad.yaml", "import: [unclosed"},
		{"steps.yaml", "import:\n  steps: [Explode]\n"},
		{"prims.yaml", "postprocess:\n  remove_primitives: [voxel]\n"},
		{"jobs.toml", "[batch]\njobs = -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveTo(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Import.Steps = []string{"Triangulate"}
	cfg.PostProcess.RemovePrimitives = []string{"line"}
	cfg.Batch.Jobs = 2

	for _, name := range []string{"out.yaml", "sub/out.toml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveTo(path))
		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded)
	}
}
