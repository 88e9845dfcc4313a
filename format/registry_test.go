package format

import (
	"bytes"
	"io"
	"testing"

	"github.com/binzume/modelio/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	name  string
	exts  []string
	magic string
}

func (f *fakeReader) Format() string       { return f.name }
func (f *fakeReader) Extensions() []string { return f.exts }
func (f *fakeReader) CanRead(data []byte) bool {
	return bytes.HasPrefix(data, []byte(f.magic))
}
func (f *fakeReader) Read(data []byte, opts *ReadOptions) (*scene.Scene, error) {
	return scene.New(), nil
}

type fakeWriter struct{ id, ext string }

func (f *fakeWriter) ID() string        { return f.id }
func (f *fakeWriter) Extension() string { return f.ext }
func (f *fakeWriter) Write(w io.Writer, s *scene.Scene, opts *WriteOptions) error {
	return nil
}

func TestSelectReader(t *testing.T) {
	reg := NewRegistry()
	a := &fakeReader{name: "a", exts: []string{"aaa"}, magic: "M"}
	b := &fakeReader{name: "b", exts: []string{"bbb"}, magic: "M"}
	c := &fakeReader{name: "c", exts: []string{"ccc"}, magic: "C"}
	reg.RegisterReader(a, b, c)

	for _, tc := range []struct {
		name string
		data string
		ext  string
		want string
	}{
		{"extension match wins over registration order", "M..", "bbb", "b"},
		{"extension is case insensitive with dot", "M..", ".BBB", "b"},
		{"registration order breaks ties without hint", "M..", "", "a"},
		{"content fallback when extension lies", "C..", "aaa", "c"},
		{"unknown extension falls back to content", "M..", "zzz", "a"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rd, err := reg.SelectReader([]byte(tc.data), tc.ext)
			require.NoError(t, err)
			assert.Equal(t, tc.want, rd.Format())
		})
	}

	_, err := reg.SelectReader([]byte("???"), "aaa")
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestSelectWriter(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWriter(&fakeWriter{"ply", "ply"}, &fakeWriter{"plyb", "ply"})

	w, err := reg.SelectWriter("plyb")
	require.NoError(t, err)
	assert.Equal(t, "plyb", w.ID())

	w, err = reg.WriterForExtension(".PLY")
	require.NoError(t, err)
	assert.Equal(t, "ply", w.ID())

	_, err = reg.SelectWriter("dae")
	assert.Equal(t, UnrecognizedFormat, KindOf(err))
	assert.Contains(t, err.Error(), "ply, plyb")
}
