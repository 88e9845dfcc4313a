package format

import (
	"strconv"

	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

// ExtractTextures writes the embedded textures of s as side-car files named
// "<base>_<i>.<ext>" and returns the file names by "*N" token. Textures are
// skipped with a warning when the destination has no side-car support.
func ExtractTextures(s *scene.Scene, base, format string, opts *WriteOptions) (map[string]string, error) {
	files := map[string]string{}
	for i := range s.Textures {
		name, ok, err := ExtractTexture(s, i, base, format, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			files[scene.TextureToken(i)] = name
		}
	}
	return files, nil
}

// ExtractTexture writes embedded texture i of s as a side-car file and
// returns its name. ok is false when the texture does not exist or the
// destination has no side-car support.
func ExtractTexture(s *scene.Scene, i int, base, format string, opts *WriteOptions) (name string, ok bool, err error) {
	if i < 0 || i >= len(s.Textures) {
		return "", false, nil
	}
	t := s.Textures[i]
	ext := t.FormatHint
	if ext == "" {
		ext = "png"
	}
	name = base + "_" + strconv.Itoa(i) + "." + ext
	tw, ok, err := opts.CreateFile(name)
	if err != nil {
		return "", false, WrapIO(format, err)
	}
	if !ok {
		opts.Log().Warn("embedded texture not extracted: no side-car support", zap.String("format", format), zap.Int("texture", i))
		return "", false, nil
	}
	_, err = tw.Write(t.Data)
	if cerr := tw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", false, WrapIO(format, err)
	}
	return name, true, nil
}
