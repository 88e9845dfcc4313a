package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/binzume/modelio/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const triangle = `ply
format ascii 1.0
element vertex 3
property float x
property float y
property float z
element face 1
property list uchar int vertex_indices
end_header
0 0 0
1 0 0
0 1 0
3 0 1 2
`

func newTestConverter(t *testing.T, mod func(*config.Config)) *converter {
	cfg := config.Default()
	if mod != nil {
		mod(cfg)
	}
	c, err := newConverter(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "model.glb"), outputPath(filepath.Join("a", "model.ply"), "", "glb"))
	assert.Equal(t, filepath.Join("out", "model.obj"), outputPath(filepath.Join("a", "model.ply"), "out", "obj"))
	assert.Equal(t, filepath.Join("a", "model_converted.ply"), outputPath(filepath.Join("a", "model.ply"), "", "ply"))
}

func TestPlan(t *testing.T) {
	c := newTestConverter(t, nil)

	jobs, err := c.plan([]string{"in.ply"}, "out.obj")
	require.NoError(t, err)
	assert.Equal(t, []job{{input: "in.ply", output: "out.obj", format: "obj"}}, jobs)

	jobs, err = c.plan([]string{"a.ply", "b.stl"}, "dist")
	require.NoError(t, err)
	assert.Equal(t, []job{
		{input: "a.ply", output: filepath.Join("dist", "a.glb"), format: "glb2"},
		{input: "b.stl", output: filepath.Join("dist", "b.glb"), format: "glb2"},
	}, jobs)

	_, err = c.plan([]string{"in.ply"}, "out.xyz")
	assert.Error(t, err)

	// the configured binary variant is kept for a matching extension
	c = newTestConverter(t, func(cfg *config.Config) { cfg.Export.Format = "plyb" })
	jobs, err = c.plan([]string{"in.obj"}, "out.ply")
	require.NoError(t, err)
	assert.Equal(t, "plyb", jobs[0].format)
	jobs, err = c.plan([]string{"in.obj"}, "out.stl")
	require.NoError(t, err)
	assert.Equal(t, "stl", jobs[0].format)
}

func TestConvertAll(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "tri.ply")
	require.NoError(t, os.WriteFile(in, []byte(triangle), 0644))
	bad := filepath.Join(dir, "bad.ply")
	require.NoError(t, os.WriteFile(bad, []byte("ply\nformat ascii 1.0\nelement vertex 3\n"), 0644))

	c := newTestConverter(t, func(cfg *config.Config) {
		cfg.Export.Format = "obj"
		cfg.Batch.Jobs = 2
	})
	c.scale = 2
	jobs, err := c.plan([]string{in}, "")
	require.NoError(t, err)
	require.NoError(t, c.convertAll(context.Background(), jobs))

	out, err := os.ReadFile(filepath.Join(dir, "tri.obj"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "v 2 0 0")

	jobs, err = c.plan([]string{in, bad}, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "out"), 0755))
	err = c.convertAll(context.Background(), jobs)
	assert.EqualError(t, err, "1 of 2 conversions failed")
	assert.FileExists(t, filepath.Join(dir, "out", "tri.obj"))
}

func TestInfo(t *testing.T) {
	in := filepath.Join(t.TempDir(), "tri.ply")
	require.NoError(t, os.WriteFile(in, []byte(triangle), 0644))

	var buf bytes.Buffer
	require.NoError(t, newTestConverter(t, nil).info(&buf, in))
	s := buf.String()
	assert.Contains(t, s, "vertices: 3 faces: 1")
	assert.Contains(t, s, "meshes: 1")
	assert.Contains(t, s, "RootNode")
}
