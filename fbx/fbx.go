// Package fbx reads Autodesk FBX files, binary and ASCII, versions 6.1
// to 7.x.
package fbx

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/binzume/modelio/format"
)

const (
	formatName   = "fbx"
	rootNodeName = "_FBX_ROOT"
)

var supportedVersions = mustConstraint(">= 6.1, < 8")

func mustConstraint(c string) *semver.Constraints {
	v, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return v
}

var asciiHeader = regexp.MustCompile(`^;\s*FBX\s+(\d+)\.(\d+)\.(\d+)`)

func isBinary(data []byte) bool {
	return bytes.HasPrefix(data, binaryMagic)
}

// Parse decodes a binary or ASCII file into its node tree and returns the
// file version, e.g. 7400.
func Parse(data []byte) (*Node, int, error) {
	if isBinary(data) {
		p := newBinaryParser(data)
		root, err := p.Parse()
		return root, p.version, err
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	root, err := newTextParser(data).Parse()
	if err != nil {
		return nil, 0, err
	}
	version := root.FindChild("FBXHeaderExtension").ChildInt("FBXVersion", 0)
	if version == 0 {
		if m := asciiHeader.FindSubmatch(data); m != nil {
			major, _ := strconv.Atoi(string(m[1]))
			minor, _ := strconv.Atoi(string(m[2]))
			patch, _ := strconv.Atoi(string(m[3]))
			version = major*1000 + minor*100 + patch
		}
	}
	return root, version, nil
}

// VersionString formats a file version like 7400 as "7.4.0".
func VersionString(v int) string {
	return fmt.Sprintf("%d.%d.%d", v/1000, v%1000/100, v%100)
}

func checkVersion(v int) error {
	if v == 0 {
		return format.Malformed(formatName, "missing FBX version")
	}
	sv, err := semver.NewVersion(VersionString(v))
	if err != nil {
		return format.Malformed(formatName, "bad version %d", v)
	}
	if !supportedVersions.Check(sv) {
		return format.Unsupported(formatName, "version %s", sv)
	}
	return nil
}

// Load parses and indexes a file without building a scene.
func Load(data []byte) (*Document, error) {
	root, version, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	return BuildDocument(root, version), nil
}
