// Package postprocess implements the ordered chain of scene transformations
// applied after import and before export.
package postprocess

import (
	"fmt"
	"strings"

	"github.com/binzume/modelio/format"
	"github.com/binzume/modelio/scene"
	"go.uber.org/zap"
)

type Flags uint32

const (
	ValidateDataStructure Flags = 1 << iota
	Triangulate
	JoinIdenticalVertices
	GenNormals
	GenSmoothNormals
	// ForceGenNormals makes the normal generators replace existing normals.
	ForceGenNormals
	CalcTangentSpace
	PreTransformVertices
	FlipUVs
	FlipWindingOrder
	MakeLeftHanded
	RemoveRedundantMaterials
	FindDegenerates
	SortByPrimitiveType
	EmbedTextures
)

const (
	ConvertToLeftHanded   = MakeLeftHanded | FlipUVs | FlipWindingOrder
	TargetRealtimeFast    = CalcTangentSpace | GenNormals | JoinIdenticalVertices | Triangulate | SortByPrimitiveType
	TargetRealtimeQuality = CalcTangentSpace | GenSmoothNormals | JoinIdenticalVertices | Triangulate |
		RemoveRedundantMaterials | FindDegenerates | SortByPrimitiveType
)

// canonicalOrder is the caller order used by NewChain.
var canonicalOrder = []Flags{
	ValidateDataStructure,
	EmbedTextures,
	PreTransformVertices,
	RemoveRedundantMaterials,
	FindDegenerates,
	Triangulate,
	SortByPrimitiveType,
	GenNormals,
	JoinIdenticalVertices,
	GenSmoothNormals,
	CalcTangentSpace,
	MakeLeftHanded,
	FlipUVs,
	FlipWindingOrder,
}

var flagNames = map[Flags]string{
	ValidateDataStructure:    "ValidateDataStructure",
	Triangulate:              "Triangulate",
	JoinIdenticalVertices:    "JoinIdenticalVertices",
	GenNormals:               "GenNormals",
	GenSmoothNormals:         "GenSmoothNormals",
	ForceGenNormals:          "ForceGenNormals",
	CalcTangentSpace:         "CalcTangentSpace",
	PreTransformVertices:     "PreTransformVertices",
	FlipUVs:                  "FlipUVs",
	FlipWindingOrder:         "FlipWindingOrder",
	MakeLeftHanded:           "MakeLeftHanded",
	RemoveRedundantMaterials: "RemoveRedundantMaterials",
	FindDegenerates:          "FindDegenerates",
	SortByPrimitiveType:      "SortByPrimitiveType",
	EmbedTextures:            "EmbedTextures",
}

var presetNames = map[string]Flags{
	"converttolefthanded":   ConvertToLeftHanded,
	"targetrealtimefast":    TargetRealtimeFast,
	"targetrealtimequality": TargetRealtimeQuality,
}

func (f Flags) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	var names []string
	for _, s := range f.List() {
		names = append(names, flagNames[s])
	}
	if f&ForceGenNormals != 0 {
		names = append(names, flagNames[ForceGenNormals])
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// List splits f into single step flags in canonical order.
// ForceGenNormals is a modifier and is not listed.
func (f Flags) List() []Flags {
	var r []Flags
	for _, s := range canonicalOrder {
		if f&s != 0 {
			r = append(r, s)
		}
	}
	return r
}

func lookupFlag(name string) (Flags, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if f, ok := presetNames[name]; ok {
		return f, true
	}
	for f, n := range flagNames {
		if strings.ToLower(n) == name {
			return f, true
		}
	}
	return 0, false
}

// ParseFlags converts step or preset names to flags. Names are case insensitive.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		v, ok := lookupFlag(n)
		if !ok {
			return 0, fmt.Errorf("unknown post-process step %q", n)
		}
		f |= v
	}
	return f, nil
}

// ParseFlagList is like ParseFlags but keeps the order of names.
// Presets expand in canonical order.
func ParseFlagList(names []string) ([]Flags, error) {
	var r []Flags
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		v, ok := lookupFlag(n)
		if !ok {
			return nil, fmt.Errorf("unknown post-process step %q", n)
		}
		if v == ForceGenNormals {
			r = append(r, v)
			continue
		}
		r = append(r, v.List()...)
	}
	return r, nil
}

type Config struct {
	// JoinEpsilon is the per component tolerance of JoinIdenticalVertices.
	// Zero joins bit-identical vertices only.
	JoinEpsilon float32
	// SmoothingAngle in degrees limits which faces GenSmoothNormals averages.
	SmoothingAngle float32
	// RemoveDegenerates makes FindDegenerates drop degenerate faces.
	RemoveDegenerates bool
	// RemovePrimitives lists the primitive types SortByPrimitiveType drops.
	RemovePrimitives scene.PrimitiveType
	// MaxTextureSize is the largest embedded texture edge. 0 is unlimited.
	MaxTextureSize   int
	ValidateEachStep bool
	Open             format.OpenFunc
	Logger           *zap.Logger

	forceNormals bool
}

func DefaultConfig() *Config {
	return &Config{SmoothingAngle: 175}
}

func (c *Config) log() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Step is one scene transformation.
type Step interface {
	Name() string
	// Requires lists steps that must run before this one.
	Requires() []Flags
	Apply(s *scene.Scene, cfg *Config) error
}

var steps = map[Flags]Step{
	ValidateDataStructure:    validateStep{},
	Triangulate:              triangulateStep{},
	JoinIdenticalVertices:    joinStep{},
	GenNormals:               genNormalsStep{},
	GenSmoothNormals:         genSmoothNormalsStep{},
	CalcTangentSpace:         tangentStep{},
	PreTransformVertices:     preTransformStep{},
	FlipUVs:                  flipUVsStep{},
	FlipWindingOrder:         flipWindingStep{},
	MakeLeftHanded:           leftHandedStep{},
	RemoveRedundantMaterials: redundantMaterialsStep{},
	FindDegenerates:          degeneratesStep{},
	SortByPrimitiveType:      sortByTypeStep{},
	EmbedTextures:            embedTexturesStep{},
}

// StepFor returns the step implementing a single flag.
func StepFor(f Flags) (Step, bool) {
	s, ok := steps[f]
	return s, ok
}

// Resolve orders the requested steps so that every step runs after its
// prerequisites. Missing prerequisites are inserted, independent steps keep
// their relative order and ValidateDataStructure goes first.
func Resolve(requested []Flags) ([]Flags, error) {
	var result []Flags
	var generators Flags
	placed := map[Flags]bool{}
	visiting := map[Flags]bool{}
	var visit func(f Flags) error
	visit = func(f Flags) error {
		if placed[f] {
			return nil
		}
		if visiting[f] {
			return fmt.Errorf("post-process dependency cycle at %s", f)
		}
		step, ok := steps[f]
		if !ok {
			return fmt.Errorf("unknown post-process step %s", f)
		}
		visiting[f] = true
		for _, dep := range step.Requires() {
			if dep == GenSmoothNormals && generators&GenNormals != 0 {
				// flat normals satisfy the normal requirement
				dep = GenNormals
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[f] = false
		placed[f] = true
		result = append(result, f)
		return nil
	}

	for _, f := range requested {
		generators |= f & (GenNormals | GenSmoothNormals)
	}
	if generators == GenNormals|GenSmoothNormals {
		return nil, fmt.Errorf("GenNormals and GenSmoothNormals are mutually exclusive")
	}
	for _, f := range requested {
		if f == ValidateDataStructure {
			if err := visit(f); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range requested {
		if f == ForceGenNormals {
			continue
		}
		if err := visit(f); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Chain is a resolved list of steps.
type Chain struct {
	flags []Flags
	force bool
}

// NewChain builds a chain from a flag set using the canonical order.
func NewChain(f Flags) (*Chain, error) {
	c, err := NewChainOrdered(f.List())
	if err != nil {
		return nil, err
	}
	c.force = f&ForceGenNormals != 0
	return c, nil
}

// NewChainOrdered builds a chain that keeps the given order where
// dependencies allow.
func NewChainOrdered(order []Flags) (*Chain, error) {
	c := &Chain{}
	for _, f := range order {
		if f == ForceGenNormals {
			c.force = true
		}
	}
	flags, err := Resolve(order)
	if err != nil {
		return nil, err
	}
	c.flags = flags
	return c, nil
}

// Steps returns the resolved order.
func (c *Chain) Steps() []Flags {
	return append([]Flags(nil), c.flags...)
}

// Run applies every step in order. The first failing step aborts the run.
func (c *Chain) Run(s *scene.Scene, cfg *Config) error {
	if s == nil || s.RootNode == nil {
		return format.Validation("postprocess", "scene has no root node")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	local := *cfg
	local.forceNormals = c.force
	for _, f := range c.flags {
		step := steps[f]
		local.log().Debug("post-process step", zap.String("step", step.Name()))
		if err := step.Apply(s, &local); err != nil {
			return fmt.Errorf("post-process %s: %w", step.Name(), err)
		}
		if local.ValidateEachStep && f != ValidateDataStructure {
			if err := (validateStep{}).Apply(s, &local); err != nil {
				return fmt.Errorf("validation after %s: %w", step.Name(), err)
			}
		}
	}
	return nil
}

// Apply is a shortcut for NewChain(f).Run(s, cfg).
func Apply(s *scene.Scene, f Flags, cfg *Config) error {
	c, err := NewChain(f)
	if err != nil {
		return err
	}
	return c.Run(s, cfg)
}

type baseStep struct{}

func (baseStep) Requires() []Flags { return nil }
