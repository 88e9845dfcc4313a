package vrm

import (
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	v, err := Unmarshal([]byte(`{
		"meta": {"title": "Alicia", "author": "Nico", "version": "1.0"},
		"humanoid": {"humanBones": [{"bone": "hips", "node": 3}, {"bone": "head", "node": 7}, {"bone": "spine", "node": -1}]},
		"blendShapeMaster": {"blendShapeGroups": []},
		"exporterVersion": "UniVRM-0.53"
	}`))
	require.NoError(t, err)
	ext := v.(*VRM)
	assert.Equal(t, "Alicia", ext.Meta.Title)
	assert.Equal(t, "UniVRM-0.53", ext.ExporterVersion)
	assert.JSONEq(t, `{"blendShapeGroups": []}`, string(ext.BlendShapeMaster))

	assert.Equal(t, map[int]string{3: "hips", 7: "head"}, ext.BoneNodes())
	missing := ext.MissingBones()
	assert.Contains(t, missing, "spine")
	assert.NotContains(t, missing, "hips")
	assert.Len(t, missing, len(RequiredBones)-2)

	_, err = Unmarshal([]byte(`{"meta": 1}`))
	assert.Error(t, err)
}

func TestFromDocument(t *testing.T) {
	doc := &gltf.Document{}
	_, ok := FromDocument(doc)
	assert.False(t, ok)

	doc.Extensions = gltf.Extensions{ExtensionName: &VRM{ExporterVersion: "x"}}
	ext, ok := FromDocument(doc)
	require.True(t, ok)
	assert.Equal(t, "x", ext.ExporterVersion)
}
