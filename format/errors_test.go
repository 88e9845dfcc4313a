package format

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := Malformed("ply", "element %q declared twice", "vertex")
	assert.EqualError(t, err, `ply: malformed input: element "vertex" declared twice`)
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.NotErrorIs(t, err, ErrIOFailure)

	wrapped := fmt.Errorf("import a.ply: %w", err)
	assert.Equal(t, MalformedInput, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrMalformedInput)
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestWrapIO(t *testing.T) {
	assert.Nil(t, WrapIO("stl", nil))
	assert.Equal(t, MalformedInput, KindOf(WrapIO("stl", io.ErrUnexpectedEOF)))
	assert.Equal(t, IOFailure, KindOf(WrapIO("stl", errors.New("disk on fire"))))

	orig := Unsupported("fbx", "version 5000")
	assert.Same(t, orig, WrapIO("x", orig))
}

func TestRecover(t *testing.T) {
	var opts *ReadOptions
	assert.NoError(t, opts.Recover(Malformed("obj", "bad face")))

	strict := &ReadOptions{Flags: FlagStrict}
	assert.ErrorIs(t, strict.Recover(Malformed("obj", "bad face")), ErrMalformedInput)
}
