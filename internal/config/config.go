// Package config handles exporter configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Keyframe reduction modes.
const (
	ReductionNone    = "none"
	ReductionTrivial = "trivial"
)

// Config holds all exporter settings.
type Config struct {
	Export    ExportConfig    `yaml:"export"`
	Skeleton  SkeletonConfig  `yaml:"skeleton"`
	Animation AnimationConfig `yaml:"animation"`
	Converter ConverterConfig `yaml:"converter"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ExportConfig controls mesh conversion and output files.
type ExportConfig struct {
	OutputDir string   `yaml:"output_dir"`
	Objects   []string `yaml:"objects"` // Mesh objects to export, empty = all

	FixUpAxis          bool     `yaml:"fix_up_axis"`         // Z-up to Y-up
	SharedGeometry     bool     `yaml:"shared_geometry"`     // Submeshes share one vertex buffer
	ExclusiveMaterials []string `yaml:"exclusive_materials"` // Keep own buffer even when shared
	RequireMaterials   bool     `yaml:"require_materials"`   // Warn on faces without material
	ForceLayout        bool     `yaml:"force_layout"`        // Pad/truncate mismatched attribute layers
	VertexColourBGRA   bool     `yaml:"vertex_colour_bgra"`
	NormalizeWeights   bool     `yaml:"normalize_weights"`
	NameSubmeshes      bool     `yaml:"name_submeshes"`
	ColouredAmbient    bool     `yaml:"coloured_ambient"` // Ambient tinted by diffuse colour

	Materials    bool   `yaml:"materials"`     // Write a material script
	MaterialFile string `yaml:"material_file"` // Defaults to <scene>.material
	GLTF         bool   `yaml:"gltf"`          // Also write <mesh>.glb
}

// SkeletonConfig controls bone hierarchy export.
type SkeletonConfig struct {
	UseMeshName  bool     `yaml:"use_mesh_name"`
	ExcludeBones []string `yaml:"exclude_bones"` // Glob patterns
	NonDeform    bool     `yaml:"non_deform"`    // Export bones without deform flag
}

// AnimationConfig controls sampling.
type AnimationConfig struct {
	KeyframeReduction string `yaml:"keyframe_reduction"`
}

// ConverterConfig controls the binary converter post-pass.
type ConverterConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	MaxConcurrent int    `yaml:"max_concurrent"`

	EdgeLists          bool   `yaml:"edge_lists"`
	Reorganise         bool   `yaml:"reorganise"`
	OptimiseAnimations bool   `yaml:"optimise_animations"`
	Tangents           bool   `yaml:"tangents"`
	TangentSemantic    string `yaml:"tangent_semantic"` // tangent or uvw
	TangentSize        int    `yaml:"tangent_size"`     // 3 or 4
	SplitMirrored      bool   `yaml:"split_mirrored"`
	SplitRotated       bool   `yaml:"split_rotated"`
	ExtremityPoints    int    `yaml:"extremity_points"`
	LogFile            string `yaml:"log_file"`
	ExtraArgs          string `yaml:"extra_args"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			OutputDir:        ".",
			FixUpAxis:        true,
			SharedGeometry:   false,
			RequireMaterials: false,
			VertexColourBGRA: false,
			Materials:        true,
		},
		Skeleton: SkeletonConfig{
			UseMeshName: false,
		},
		Animation: AnimationConfig{
			KeyframeReduction: ReductionNone,
		},
		Converter: ConverterConfig{
			Enabled:            false,
			Path:               "OgreXMLConverter",
			MaxConcurrent:      4,
			EdgeLists:          true,
			Reorganise:         true,
			OptimiseAnimations: true,
			TangentSemantic:    "tangent",
			TangentSize:        3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch c.Animation.KeyframeReduction {
	case ReductionNone, ReductionTrivial:
	default:
		return fmt.Errorf("%w: animation.keyframe_reduction %q (want none or trivial)", ErrInvalidConfig, c.Animation.KeyframeReduction)
	}
	switch c.Converter.TangentSemantic {
	case "tangent", "uvw":
	default:
		return fmt.Errorf("%w: converter.tangent_semantic %q (want tangent or uvw)", ErrInvalidConfig, c.Converter.TangentSemantic)
	}
	if c.Converter.TangentSize != 3 && c.Converter.TangentSize != 4 {
		return fmt.Errorf("%w: converter.tangent_size %d (want 3 or 4)", ErrInvalidConfig, c.Converter.TangentSize)
	}
	if c.Converter.MaxConcurrent < 1 {
		return fmt.Errorf("%w: converter.max_concurrent %d must be at least 1", ErrInvalidConfig, c.Converter.MaxConcurrent)
	}
	if c.Converter.ExtremityPoints < 0 {
		return fmt.Errorf("%w: converter.extremity_points %d must not be negative", ErrInvalidConfig, c.Converter.ExtremityPoints)
	}
	if c.Converter.Enabled && c.Converter.Path == "" {
		return fmt.Errorf("%w: converter.path is empty", ErrInvalidConfig)
	}
	return nil
}
