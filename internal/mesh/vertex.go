// Package mesh builds render vertex buffers and material submeshes from
// scene meshes.
package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// Layout limits.
const (
	MaxUVLayers    = 8
	MaxColorLayers = 2
	MaxInfluences  = 4
)

// attributeEpsilon is the per-component tolerance for merging vertices.
const attributeEpsilon = 1e-6

// max16BitVertices is the largest buffer addressable with 16-bit indices.
const max16BitVertices = 65535

// ErrLayoutMismatch is returned when a vertex carries a different number of
// UV or colour channels than its buffer.
var ErrLayoutMismatch = errors.New("vertex layout mismatch")

// VertexLayout is the channel count shared by every vertex of a buffer.
type VertexLayout struct {
	UVs    int
	Colors int
}

// Influence is one bone weight of a vertex.
type Influence struct {
	Bone   int
	Weight float64
}

// Vertex is a render vertex.
type Vertex struct {
	Position   math.Vec3
	Normal     math.Vec3
	UVs        []math.Vec2
	Colors     []scene.Color
	Influences []Influence
}

// sameShading reports whether two vertices of the same source vertex may
// share a buffer slot. Positions are not compared.
func (v *Vertex) sameShading(o *Vertex) bool {
	if !v.Normal.Near(o.Normal, attributeEpsilon) {
		return false
	}
	if len(v.UVs) != len(o.UVs) || len(v.Colors) != len(o.Colors) {
		return false
	}
	for i := range v.UVs {
		if !v.UVs[i].Near(o.UVs[i], attributeEpsilon) {
			return false
		}
	}
	for i := range v.Colors {
		for c := 0; c < 4; c++ {
			d := v.Colors[i][c] - o.Colors[i][c]
			if d > attributeEpsilon || d < -attributeEpsilon {
				return false
			}
		}
	}
	return true
}

// conform pads or truncates the vertex channels to the layout. It reports
// whether anything changed.
func (v *Vertex) conform(l VertexLayout) bool {
	changed := false
	if len(v.UVs) != l.UVs {
		uvs := make([]math.Vec2, l.UVs)
		copy(uvs, v.UVs)
		v.UVs = uvs
		changed = true
	}
	if len(v.Colors) != l.Colors {
		colors := make([]scene.Color, l.Colors)
		for i := range colors {
			colors[i] = scene.Color{1, 1, 1, 1}
		}
		copy(colors, v.Colors)
		v.Colors = colors
		changed = true
	}
	return changed
}

// VertexBuffer is an ordered list of render vertices. Vertices created from
// the same source vertex with equal shading attributes are merged.
type VertexBuffer struct {
	layout   VertexLayout
	vertices []Vertex
	sources  []int
	bySource map[int][]int
}

// NewVertexBuffer returns an empty buffer with a fixed layout.
func NewVertexBuffer(layout VertexLayout) *VertexBuffer {
	return &VertexBuffer{
		layout:   layout,
		bySource: make(map[int][]int),
	}
}

// Add returns the local index of v, appending it unless an equal vertex of
// the same source already exists.
func (b *VertexBuffer) Add(src int, v Vertex) (int, error) {
	if len(v.UVs) != b.layout.UVs || len(v.Colors) != b.layout.Colors {
		return 0, fmt.Errorf("%w: vertex %d has %d uv / %d colour channels, buffer has %d / %d",
			ErrLayoutMismatch, src, len(v.UVs), len(v.Colors), b.layout.UVs, b.layout.Colors)
	}
	for _, local := range b.bySource[src] {
		if b.vertices[local].sameShading(&v) {
			return local, nil
		}
	}
	local := len(b.vertices)
	b.vertices = append(b.vertices, v)
	b.sources = append(b.sources, src)
	b.bySource[src] = append(b.bySource[src], local)
	return local, nil
}

// Layout returns the buffer layout.
func (b *VertexBuffer) Layout() VertexLayout { return b.layout }

// Len returns the number of vertices.
func (b *VertexBuffer) Len() int { return len(b.vertices) }

// Vertex returns the vertex at a local index.
func (b *VertexBuffer) Vertex(local int) *Vertex { return &b.vertices[local] }

// Vertices returns the buffer contents in index order.
func (b *VertexBuffer) Vertices() []Vertex { return b.vertices }

// Source returns the source vertex index of a local vertex.
func (b *VertexBuffer) Source(local int) int { return b.sources[local] }

// Locals returns the local indices created from a source vertex.
func (b *VertexBuffer) Locals(src int) []int { return b.bySource[src] }

// Use32BitIndexes reports whether faces into this buffer need 32-bit indices.
func (b *VertexBuffer) Use32BitIndexes() bool { return len(b.vertices) > max16BitVertices }

// HasInfluences reports whether any vertex carries a bone weight.
func (b *VertexBuffer) HasInfluences() bool {
	for i := range b.vertices {
		if len(b.vertices[i].Influences) > 0 {
			return true
		}
	}
	return false
}
