package postprocess

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	_ "image/gif"

	"github.com/binzume/modelio/scene"
	"github.com/blezek/tga"
	"github.com/h2non/filetype"
	_ "github.com/oov/psd"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"go.uber.org/zap"
)

type embedTexturesStep struct{ baseStep }

func (embedTexturesStep) Name() string { return "EmbedTextures" }

func (embedTexturesStep) Apply(s *scene.Scene, cfg *Config) error {
	log := cfg.log()
	loaded := map[string]string{}
	for _, mat := range s.Materials {
		for _, t := range mat.AllTextures() {
			if _, ok := scene.ParseTextureToken(t.Path); ok || t.Path == "" {
				continue
			}
			token, ok := loaded[t.Path]
			if !ok {
				tex, err := loadTexture(t.Path, cfg)
				if err != nil {
					log.Warn("texture not embedded", zap.String("path", t.Path), zap.Error(err))
					loaded[t.Path] = ""
					continue
				}
				token = scene.TextureToken(s.AddTexture(tex))
				loaded[t.Path] = token
			}
			if token != "" {
				mat.SetTexturePath(t.Semantic, t.Index, token)
			}
		}
	}
	return nil
}

func loadTexture(path string, cfg *Config) (*scene.EmbeddedTexture, error) {
	if cfg.Open == nil {
		return nil, errNoOpener
	}
	r, err := cfg.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return EncodeTexture(filepath.Base(path), data, cfg.MaxTextureSize)
}

var errNoOpener = errors.New("no file access configured")

// FormatHint returns a short file extension for image data, falling back
// to the extension of name.
func FormatHint(name string, data []byte) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		if kind.Extension == "jpeg" {
			return "jpg"
		}
		return kind.Extension
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// EncodeTexture builds an embedded texture from image file data. PNG and
// JPEG data is kept unless it exceeds maxSize; other formats are converted
// to PNG.
func EncodeTexture(name string, data []byte, maxSize int) (*scene.EmbeddedTexture, error) {
	hint := FormatHint(name, data)
	tex := &scene.EmbeddedTexture{Filename: name, FormatHint: hint, Data: data}
	if hint == "png" || hint == "jpg" {
		c, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		tex.Width, tex.Height = c.Width, c.Height
		if maxSize <= 0 || (c.Width <= maxSize && c.Height <= maxSize) {
			return tex, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil && hint == "tga" {
		img, err = tga.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	img = scaleImage(img, maxSize)
	var buf bytes.Buffer
	if hint == "jpg" {
		err = jpeg.Encode(&buf, img, nil)
	} else {
		hint = "png"
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, err
	}
	rect := img.Bounds()
	return &scene.EmbeddedTexture{Filename: name, FormatHint: hint, Width: rect.Dx(), Height: rect.Dy(), Data: buf.Bytes()}, nil
}

func scaleImage(img image.Image, limit int) image.Image {
	rect := img.Bounds()
	sz := max(rect.Dx(), rect.Dy())
	if limit <= 0 || sz <= limit {
		return img
	}
	scale := float32(limit) / float32(sz)
	w, h := max(1, int(float32(rect.Dx())*scale)), max(1, int(float32(rect.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)
	return dst
}
