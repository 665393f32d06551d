package mesh

import (
	"go.uber.org/zap"

	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/triangulate"
)

// DefaultMaterialName is assigned to faces without a material.
const DefaultMaterialName = "BaseWhite"

// Warning kinds tallied while partitioning.
const (
	WarnDegenerateFace = "degenerate face skipped"
	WarnForcedLayout   = "vertex layout forced"
)

// BufferPolicy decides whether a material's submesh draws from the shared
// vertex buffer. It is consulted once, when the submesh is created.
type BufferPolicy interface {
	Shared(material string) bool
}

// BufferPolicyFunc adapts a function to BufferPolicy.
type BufferPolicyFunc func(material string) bool

// Shared implements BufferPolicy.
func (f BufferPolicyFunc) Shared(material string) bool { return f(material) }

// Standard policies.
var (
	ExclusiveBuffers BufferPolicy = BufferPolicyFunc(func(string) bool { return false })
	SharedBuffers    BufferPolicy = BufferPolicyFunc(func(string) bool { return true })
)

// SharedExcept shares one buffer between all materials but the listed ones.
func SharedExcept(exclusive ...string) BufferPolicy {
	set := make(map[string]bool, len(exclusive))
	for _, m := range exclusive {
		set[m] = true
	}
	return BufferPolicyFunc(func(material string) bool { return !set[material] })
}

// Submesh is the triangle list of one material.
type Submesh struct {
	Name     string
	Material string
	Shared   bool
	// Buffer is the submesh's own vertices; nil when Shared.
	Buffer *VertexBuffer
	Faces  [][3]int
}

// Mesh is an exportable mesh: submeshes, an optional shared vertex buffer
// and poses.
type Mesh struct {
	Name         string
	Shared       *VertexBuffer
	Submeshes    []*Submesh
	Poses        []Pose
	SkeletonName string
}

// Buffer returns the vertex buffer a submesh indexes into.
func (m *Mesh) Buffer(sub int) *VertexBuffer {
	s := m.Submeshes[sub]
	if s.Shared {
		return m.Shared
	}
	return s.Buffer
}

// Target is a vertex buffer addressed by poses and vertex animation tracks.
// Submesh is -1 for the shared geometry.
type Target struct {
	Submesh int
	Buffer  *VertexBuffer
}

// Targets lists the vertex data of the mesh: the shared geometry first, then
// each submesh owning a buffer.
func (m *Mesh) Targets() []Target {
	var out []Target
	if m.Shared != nil && m.Shared.Len() > 0 {
		out = append(out, Target{Submesh: -1, Buffer: m.Shared})
	}
	for i, s := range m.Submeshes {
		if !s.Shared {
			out = append(out, Target{Submesh: i, Buffer: s.Buffer})
		}
	}
	return out
}

// Corner is one face corner: the source vertex and its render attributes.
type Corner struct {
	Source int
	Vertex Vertex
}

// Face is a polygon with a resolved material name.
type Face struct {
	Material string
	Corners  []Corner
}

// Partitioner distributes faces to per-material submeshes.
type Partitioner struct {
	mesh        *Mesh
	layout      VertexLayout
	policy      BufferPolicy
	forceLayout bool
	byMaterial  map[string]int
	tally       *logger.Tally
}

// NewPartitioner returns a partitioner for a new mesh. A nil policy keeps
// every submesh exclusive.
func NewPartitioner(name string, layout VertexLayout, policy BufferPolicy, forceLayout bool, tally *logger.Tally) *Partitioner {
	if policy == nil {
		policy = ExclusiveBuffers
	}
	return &Partitioner{
		mesh:        &Mesh{Name: name},
		layout:      layout,
		policy:      policy,
		forceLayout: forceLayout,
		byMaterial:  make(map[string]int),
		tally:       tally,
	}
}

// AddFace triangulates a face into its material's submesh. Degenerate faces
// are skipped with a tallied warning. A channel mismatch fails unless the
// layout is forced.
func (p *Partitioner) AddFace(f Face) error {
	points := make([]math.Vec3, len(f.Corners))
	for i := range f.Corners {
		points[i] = f.Corners[i].Vertex.Position
	}
	tris, err := triangulate.Triangulate(points)
	if err != nil {
		p.tally.Warn(WarnDegenerateFace,
			zap.String("mesh", p.mesh.Name),
			zap.Int("corners", len(points)),
			zap.Error(err))
		return nil
	}

	sub := p.submesh(f.Material)
	buf := sub.Buffer
	if sub.Shared {
		buf = p.mesh.Shared
	}

	locals := make([]int, len(f.Corners))
	for i := range f.Corners {
		c := f.Corners[i]
		if p.forceLayout && c.Vertex.conform(p.layout) {
			p.tally.Warn(WarnForcedLayout,
				zap.String("mesh", p.mesh.Name),
				zap.Int("vertex", c.Source))
		}
		if locals[i], err = buf.Add(c.Source, c.Vertex); err != nil {
			return err
		}
	}
	for _, t := range tris {
		sub.Faces = append(sub.Faces, [3]int{locals[t[0]], locals[t[1]], locals[t[2]]})
	}
	return nil
}

func (p *Partitioner) submesh(material string) *Submesh {
	if material == "" {
		material = DefaultMaterialName
	}
	if i, ok := p.byMaterial[material]; ok {
		return p.mesh.Submeshes[i]
	}
	sub := &Submesh{Name: material, Material: material, Shared: p.policy.Shared(material)}
	if sub.Shared {
		if p.mesh.Shared == nil {
			p.mesh.Shared = NewVertexBuffer(p.layout)
		}
	} else {
		sub.Buffer = NewVertexBuffer(p.layout)
	}
	p.byMaterial[material] = len(p.mesh.Submeshes)
	p.mesh.Submeshes = append(p.mesh.Submeshes, sub)
	return sub
}

// Mesh returns the mesh built so far.
func (p *Partitioner) Mesh() *Mesh { return p.mesh }
