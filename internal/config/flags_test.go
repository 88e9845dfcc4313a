package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelconv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("import:\n  strict: true\n  steps: [Triangulate]\nbatch:\n  jobs: 4\n"), 0644))

	fs := flag.NewFlagSet("modelconv", flag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse([]string{"-steps", "GenNormals, FlipUVs", "-strict=false", "-log-level", "warn"}))

	cfg := Default()
	require.NoError(t, loadFromFile(cfg, path))
	require.NoError(t, applyFlagSet(cfg, fs))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"GenNormals", "FlipUVs"}, cfg.Import.Steps)
	assert.False(t, cfg.Import.Strict)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// not given on the command line
	assert.Equal(t, 4, cfg.Batch.Jobs)
	assert.Equal(t, "glb2", cfg.Export.Format)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a,,b ,"))
	assert.Nil(t, splitList(""))
}
