package format

import (
	"bufio"
	"bytes"
)

const maxLineSize = 16 * 1024 * 1024

// NewLineScanner returns a scanner over lines of data. Both "\n" and
// "\r\n" terminate a line and are not part of the returned text.
func NewLineScanner(data []byte) *bufio.Scanner {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}

// HasPrefixFold reports whether data starts with prefix, ignoring ASCII case
// and leading white space.
func HasPrefixFold(data []byte, prefix string) bool {
	data = bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(data) < len(prefix) {
		return false
	}
	return bytes.EqualFold(data[:len(prefix)], []byte(prefix))
}

// Head returns at most n leading bytes.
func Head(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}
