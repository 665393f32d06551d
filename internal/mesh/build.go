package mesh

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// Warning kinds tallied while building.
const (
	WarnMissingMaterial  = "face without material"
	WarnUVLayers         = "too many uv layers"
	WarnColorLayers      = "too many colour layers"
	WarnTooManyWeights   = "vertex with more than 4 bone weights"
	WarnUnassigned       = "vertex without bone assignment"
	WarnUnresolvedGroup  = "vertex group without bone"
	WarnDegenerateNormal = "face too small for a normal"
)

// weightEpsilon is the smallest bone weight kept.
const weightEpsilon = 1e-6

// BoneIndexer resolves vertex group names to bone indices.
type BoneIndexer interface {
	Index(name string) (int, bool)
}

// Options controls conversion of a scene mesh.
type Options struct {
	Policy           BufferPolicy
	FixUpAxis        bool
	RequireMaterials bool
	ForceLayout      bool
	NormalizeWeights bool
}

// Build converts a mesh object into submeshes and poses. bones may be nil
// for meshes without a skeleton; warnings go to tally.
func Build(obj *scene.Object, bones BoneIndexer, opts Options, tally *logger.Tally) (*Mesh, error) {
	if obj.Mesh == nil {
		return nil, fmt.Errorf("object %q has no mesh", obj.Name)
	}
	src := obj.Mesh
	name := src.Name
	if name == "" {
		name = obj.Name
	}

	layout := VertexLayout{UVs: len(src.UVLayers), Colors: len(src.ColorLayers)}
	if layout.UVs > MaxUVLayers {
		tally.Warn(WarnUVLayers, zap.String("mesh", name), zap.Int("layers", layout.UVs))
		layout.UVs = MaxUVLayers
	}
	if layout.Colors > MaxColorLayers {
		tally.Warn(WarnColorLayers, zap.String("mesh", name), zap.Int("layers", layout.Colors))
		layout.Colors = MaxColorLayers
	}

	rest := src.RestPositions()
	influences := skinWeights(src, name, bones, opts.NormalizeWeights, tally)
	p := NewPartitioner(name, layout, opts.Policy, opts.ForceLayout, tally)

	for fi := range src.Faces {
		f := &src.Faces[fi]
		face := Face{Material: faceMaterial(src, f)}
		if face.Material == "" {
			if opts.RequireMaterials {
				tally.Warn(WarnMissingMaterial, zap.String("mesh", name), zap.Int("face", fi))
			}
			face.Material = DefaultMaterialName
		}

		var flat math.Vec3
		if !f.Smooth {
			flat = src.FaceNormal(fi, rest)
			if flat == (math.Vec3{}) {
				tally.Warn(WarnDegenerateNormal, zap.String("mesh", name), zap.Int("face", fi))
			}
		}

		face.Corners = make([]Corner, len(f.Verts))
		for ci, vi := range f.Verts {
			v := Vertex{Position: rest[vi], Normal: flat, Influences: influences[vi]}
			if f.Smooth {
				v.Normal = src.Vertices[vi].Normal.Normalize()
			}
			if opts.FixUpAxis {
				v.Position = v.Position.FixUp()
				v.Normal = v.Normal.FixUp()
			}
			if layout.UVs > 0 {
				v.UVs = make([]math.Vec2, layout.UVs)
				for l := range v.UVs {
					uv := src.UVLayers[l].Faces[fi][ci]
					v.UVs[l] = math.Vec2{X: uv.X, Y: 1 - uv.Y}
				}
			}
			if layout.Colors > 0 {
				v.Colors = make([]scene.Color, layout.Colors)
				for l := range v.Colors {
					v.Colors[l] = src.ColorLayers[l].Faces[fi][ci]
				}
			}
			face.Corners[ci] = Corner{Source: vi, Vertex: v}
		}
		if err := p.AddFace(face); err != nil {
			return nil, fmt.Errorf("mesh %s face %d: %w", name, fi, err)
		}
	}

	m := p.Mesh()
	for _, t := range m.Targets() {
		if t.Buffer.Use32BitIndexes() {
			logger.Info("using 32 bit indices",
				zap.String("mesh", name),
				zap.Int("submesh", t.Submesh),
				zap.Int("vertices", t.Buffer.Len()))
		}
	}
	if len(src.ShapeKeys) > 1 {
		m.Poses = BuildPoses(m, src.ShapeKeys[1:], opts.FixUpAxis)
	}
	return m, nil
}

func faceMaterial(m *scene.Mesh, f *scene.Face) string {
	if f.Material < 0 || f.Material >= len(m.Materials) {
		return ""
	}
	return m.Materials[f.Material]
}

// skinWeights resolves the vertex groups of every source vertex to at most
// MaxInfluences bone weights.
func skinWeights(m *scene.Mesh, name string, bones BoneIndexer, normalize bool, tally *logger.Tally) [][]Influence {
	out := make([][]Influence, len(m.Vertices))
	if bones == nil {
		return out
	}
	unresolved := make(map[string]bool)
	for vi := range m.Vertices {
		var infs []Influence
		for _, g := range m.Vertices[vi].Groups {
			if g.Weight <= weightEpsilon {
				continue
			}
			group := m.VertexGroups[g.Group]
			bone, ok := bones.Index(group)
			if !ok {
				if !unresolved[group] {
					unresolved[group] = true
					tally.Warn(WarnUnresolvedGroup, zap.String("mesh", name), zap.String("group", group))
				}
				continue
			}
			infs = append(infs, Influence{Bone: bone, Weight: g.Weight})
		}
		if len(infs) == 0 {
			tally.Warn(WarnUnassigned, zap.String("mesh", name), zap.Int("vertex", vi))
			continue
		}
		if len(infs) > MaxInfluences {
			tally.Warn(WarnTooManyWeights, zap.String("mesh", name), zap.Int("vertex", vi), zap.Int("weights", len(infs)))
			sort.SliceStable(infs, func(i, j int) bool { return infs[i].Weight > infs[j].Weight })
			infs = infs[:MaxInfluences]
		}
		if normalize {
			sum := 0.0
			for _, inf := range infs {
				sum += inf.Weight
			}
			for i := range infs {
				infs[i].Weight /= sum
			}
		}
		out[vi] = infs
	}
	return out
}
