package scene

import (
	"strconv"
	"strings"
)

// EmbeddedTexture is image file data stored in the scene.
// Materials refer to it with a "*N" token.
type EmbeddedTexture struct {
	Filename string
	// FormatHint is a file extension like "png" or "jpg".
	FormatHint string
	// Width and Height are 0 when unknown.
	Width  int
	Height int
	Data   []byte
}

func TextureToken(i int) string {
	return "*" + strconv.Itoa(i)
}

// ParseTextureToken parses "*N".
func ParseTextureToken(s string) (int, bool) {
	if !strings.HasPrefix(s, "*") {
		return 0, false
	}
	i, err := strconv.Atoi(s[1:])
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
