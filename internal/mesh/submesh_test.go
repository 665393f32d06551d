package mesh

import (
	"errors"
	"testing"

	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/pkg/math"
)

func polygon(material string, srcs []int, pts ...math.Vec3) Face {
	f := Face{Material: material}
	for i, p := range pts {
		f.Corners = append(f.Corners, Corner{
			Source: srcs[i],
			Vertex: Vertex{Position: p, Normal: math.Vec3{Z: 1}},
		})
	}
	return f
}

// checkIndices fails when a face references a vertex outside its buffer.
func checkIndices(t *testing.T, m *Mesh) {
	t.Helper()
	for si, s := range m.Submeshes {
		n := m.Buffer(si).Len()
		for fi, f := range s.Faces {
			for _, idx := range f {
				if idx < 0 || idx >= n {
					t.Errorf("submesh %d face %d index %d out of range [0,%d)", si, fi, idx, n)
				}
			}
		}
	}
}

func TestPartitionerSingleTriangle(t *testing.T) {
	p := NewPartitioner("tri", VertexLayout{}, nil, false, nil)
	err := p.AddFace(polygon("Red", []int{0, 1, 2},
		math.Vec3{}, math.Vec3{X: 1}, math.Vec3{Y: 1}))
	if err != nil {
		t.Fatalf("AddFace: %v", err)
	}

	m := p.Mesh()
	if len(m.Submeshes) != 1 {
		t.Fatalf("got %d submeshes, want 1", len(m.Submeshes))
	}
	s := m.Submeshes[0]
	if s.Material != "Red" || s.Shared || s.Buffer.Len() != 3 {
		t.Errorf("submesh = %+v with %d vertices", s, s.Buffer.Len())
	}
	if len(s.Faces) != 1 || s.Faces[0] != [3]int{0, 1, 2} {
		t.Errorf("faces = %v, want [[0 1 2]]", s.Faces)
	}
}

func TestPartitionerQuadSplit(t *testing.T) {
	p := NewPartitioner("quad", VertexLayout{}, nil, false, nil)
	p.AddFace(polygon("M", []int{0, 1, 2, 3},
		math.Vec3{}, math.Vec3{X: 1}, math.Vec3{X: 1, Y: 1}, math.Vec3{Y: 1}))

	s := p.Mesh().Submeshes[0]
	if s.Buffer.Len() != 4 || len(s.Faces) != 2 {
		t.Fatalf("got %d vertices, %d faces; want 4, 2", s.Buffer.Len(), len(s.Faces))
	}
	checkIndices(t, p.Mesh())
}

func TestPartitionerWeldsSharedCorners(t *testing.T) {
	p := NewPartitioner("strip", VertexLayout{}, nil, false, nil)
	a, b, c, d := math.Vec3{}, math.Vec3{X: 1}, math.Vec3{X: 1, Y: 1}, math.Vec3{Y: 1}
	p.AddFace(polygon("M", []int{0, 1, 2}, a, b, c))
	p.AddFace(polygon("M", []int{0, 2, 3}, a, c, d))

	s := p.Mesh().Submeshes[0]
	if s.Buffer.Len() != 4 {
		t.Errorf("got %d vertices, want 4 after welding", s.Buffer.Len())
	}
	if s.Faces[1] != [3]int{0, 2, 3} {
		t.Errorf("second face = %v, want [0 2 3]", s.Faces[1])
	}
}

func TestPartitionerBufferPolicy(t *testing.T) {
	tri := func(material string, src int) Face {
		return polygon(material, []int{src, src + 1, src + 2},
			math.Vec3{}, math.Vec3{X: 1}, math.Vec3{Y: 1})
	}

	tests := []struct {
		name       string
		policy     BufferPolicy
		wantShared []bool
		sharedLen  int
	}{
		{"exclusive", ExclusiveBuffers, []bool{false, false, false}, 0},
		{"shared", SharedBuffers, []bool{true, true, true}, 9},
		{"shared except glass", SharedExcept("Glass"), []bool{true, false, true}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPartitioner("m", VertexLayout{}, tt.policy, false, nil)
			p.AddFace(tri("Wood", 0))
			p.AddFace(tri("Glass", 3))
			p.AddFace(tri("Stone", 6))

			m := p.Mesh()
			for i, s := range m.Submeshes {
				if s.Shared != tt.wantShared[i] {
					t.Errorf("submesh %s shared = %v, want %v", s.Material, s.Shared, tt.wantShared[i])
				}
				if s.Shared != (s.Buffer == nil) {
					t.Errorf("submesh %s: shared %v with own buffer %v", s.Material, s.Shared, s.Buffer != nil)
				}
			}
			got := 0
			if m.Shared != nil {
				got = m.Shared.Len()
			}
			if got != tt.sharedLen {
				t.Errorf("shared geometry has %d vertices, want %d", got, tt.sharedLen)
			}
			checkIndices(t, m)
		})
	}
}

func TestPartitionerDefaultMaterial(t *testing.T) {
	p := NewPartitioner("m", VertexLayout{}, nil, false, nil)
	p.AddFace(polygon("", []int{0, 1, 2}, math.Vec3{}, math.Vec3{X: 1}, math.Vec3{Y: 1}))
	if got := p.Mesh().Submeshes[0].Material; got != DefaultMaterialName {
		t.Errorf("material = %q, want %q", got, DefaultMaterialName)
	}
}

func TestPartitionerDegenerateFace(t *testing.T) {
	tally := logger.NewTally(nil)
	p := NewPartitioner("m", VertexLayout{}, nil, false, tally)
	err := p.AddFace(polygon("M", []int{0, 1, 2, 3, 4},
		math.Vec3{}, math.Vec3{X: 1}, math.Vec3{X: 2}, math.Vec3{X: 3}, math.Vec3{X: 4}))
	if err != nil {
		t.Fatalf("degenerate face should be skipped, got %v", err)
	}
	if len(p.Mesh().Submeshes) != 0 {
		t.Errorf("skipped face created a submesh")
	}
	if tally.Count(WarnDegenerateFace) != 1 {
		t.Errorf("degenerate warnings = %d, want 1", tally.Count(WarnDegenerateFace))
	}
}

func TestPartitionerForceLayout(t *testing.T) {
	face := polygon("M", []int{0, 1, 2}, math.Vec3{}, math.Vec3{X: 1}, math.Vec3{Y: 1})
	layout := VertexLayout{UVs: 1, Colors: 1}

	p := NewPartitioner("strict", layout, nil, false, nil)
	if err := p.AddFace(face); !errors.Is(err, ErrLayoutMismatch) {
		t.Errorf("strict layout: err = %v, want ErrLayoutMismatch", err)
	}

	tally := logger.NewTally(nil)
	p = NewPartitioner("forced", layout, nil, true, tally)
	if err := p.AddFace(face); err != nil {
		t.Fatalf("forced layout: %v", err)
	}
	if tally.Count(WarnForcedLayout) != 3 {
		t.Errorf("forced layout warnings = %d, want 3", tally.Count(WarnForcedLayout))
	}
	v := p.Mesh().Submeshes[0].Buffer.Vertex(0)
	if len(v.UVs) != 1 || len(v.Colors) != 1 || v.Colors[0][3] != 1 {
		t.Errorf("padded vertex = %+v", v)
	}
}
