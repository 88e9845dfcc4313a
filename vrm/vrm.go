// Package vrm decodes the VRM 0.x glTF extension of humanoid avatars.
package vrm

// https://github.com/vrm-c/vrm-specification/blob/master/specification/0.0/README.md

import (
	"encoding/json"

	"github.com/qmuntal/gltf"
)

const ExtensionName = "VRM"

func init() {
	gltf.RegisterExtension(ExtensionName, Unmarshal)
}

type Metadata struct {
	Title           string `json:"title"`
	Version         string `json:"version"`
	Author          string `json:"author"`
	ContactInfo     string `json:"contactInformation,omitempty"`
	Reference       string `json:"reference,omitempty"`
	AllowedUserName string `json:"allowedUserName,omitempty"`
	LicenseName     string `json:"licenseName"`
	OtherLicenseURL string `json:"otherLicenseUrl,omitempty"`
}

type Bone struct {
	Bone             string `json:"bone"`
	Node             int    `json:"node"`
	UseDefaultValues bool   `json:"useDefaultValues"`
}

type Humanoid struct {
	Bones []*Bone `json:"humanBones"`
}

// VRM is the document level extension. Parts that do not map to a scene
// are kept raw.
type VRM struct {
	Meta     Metadata `json:"meta"`
	Humanoid Humanoid `json:"humanoid"`

	FirstPerson        json.RawMessage `json:"firstPerson,omitempty"`
	BlendShapeMaster   json.RawMessage `json:"blendShapeMaster,omitempty"`
	SecondaryAnimation json.RawMessage `json:"secondaryAnimation,omitempty"`
	MaterialProperties json.RawMessage `json:"materialProperties,omitempty"`

	ExporterVersion string `json:"exporterVersion"`
}

// RequiredBones must be mapped by every VRM 0.x avatar.
var RequiredBones = []string{
	"hips", "spine", "chest", "neck", "head",
	"leftUpperArm", "leftLowerArm", "leftHand",
	"rightUpperArm", "rightLowerArm", "rightHand",
	"leftUpperLeg", "leftLowerLeg", "leftFoot",
	"rightUpperLeg", "rightLowerLeg", "rightFoot",
}

func Unmarshal(data []byte) (interface{}, error) {
	var ext VRM
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

// FromDocument returns the VRM extension of doc, if any.
func FromDocument(doc *gltf.Document) (*VRM, bool) {
	ext, ok := doc.Extensions[ExtensionName].(*VRM)
	return ext, ok
}

// Attach stores v as the VRM extension of doc and lists it in
// extensionsUsed.
func Attach(doc *gltf.Document, v *VRM) {
	if doc.Extensions == nil {
		doc.Extensions = gltf.Extensions{}
	}
	doc.Extensions[ExtensionName] = v
	for _, name := range doc.ExtensionsUsed {
		if name == ExtensionName {
			return
		}
	}
	doc.ExtensionsUsed = append(doc.ExtensionsUsed, ExtensionName)
}

// BoneNodes maps node indices to humanoid bone names.
func (v *VRM) BoneNodes() map[int]string {
	r := make(map[int]string, len(v.Humanoid.Bones))
	for _, b := range v.Humanoid.Bones {
		if b != nil && b.Node >= 0 {
			r[b.Node] = b.Bone
		}
	}
	return r
}

// MissingBones returns the required bones without a node.
func (v *VRM) MissingBones() []string {
	found := map[string]bool{}
	for _, b := range v.Humanoid.Bones {
		if b != nil && b.Node >= 0 {
			found[b.Bone] = true
		}
	}
	var missing []string
	for _, name := range RequiredBones {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
