package triangulate

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/Faultbox/meshexport/pkg/math"
)

func TestTriangulate_Triangle(t *testing.T) {
	tris, err := Triangulate([]math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tris) != 1 || tris[0] != (Triangle{0, 1, 2}) {
		t.Errorf("got %v, want [[0 1 2]]", tris)
	}
}

func TestSplitQuad_ShorterDiagonal(t *testing.T) {
	tests := []struct {
		name string
		quad []math.Vec3
		want []Triangle
	}{
		{
			// 0-2 diagonal is shorter.
			name: "diagonal 0-2",
			quad: []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: -2, Y: 1, Z: 0}},
			want: []Triangle{{0, 1, 2}, {0, 2, 3}},
		},
		{
			// 1-3 diagonal is shorter.
			name: "diagonal 1-3",
			quad: []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 3, Y: 0, Z: 0}, {X: 3, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}},
			want: []Triangle{{0, 1, 3}, {1, 2, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Triangulate(tt.quad)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 2 || got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Fatalf("got %v, want %v", got, tt.want)
			}

			// The two triangles share exactly the two diagonal vertices.
			shared := 0
			for _, a := range got[0] {
				for _, b := range got[1] {
					if a == b {
						shared++
					}
				}
			}
			if shared != 2 {
				t.Errorf("triangles share %d vertices, want 2", shared)
			}
		})
	}
}

func TestTriangulate_Coverage(t *testing.T) {
	tests := []struct {
		name   string
		points []math.Vec3
	}{
		{"convex pentagon", regularPolygon(5, 1)},
		{"convex octagon", regularPolygon(8, 3)},
		{"L shape", lShape()},
		{"star", star(6, 2, 0.7)},
		{"tilted L shape", transform(lShape(), math.RotateX(0.8).Mul(math.RotateY(-0.4)))},
		{"clockwise L shape", reverse(lShape())},
		{"collinear midpoint", []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}, {X: 2, Y: 2, Z: 0}, {X: 0, Y: 2, Z: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tris, err := Triangulate(tt.points)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tris) != len(tt.points)-2 {
				t.Fatalf("got %d triangles, want %d", len(tris), len(tt.points)-2)
			}

			normal := NewellNormal(tt.points)
			var area float64
			for _, tri := range tris {
				a, b, c := tt.points[tri[0]], tt.points[tri[1]], tt.points[tri[2]]
				area += Area(a, b, c)
				if b.Sub(a).Cross(c.Sub(a)).Dot(normal) <= 0 {
					t.Errorf("triangle %v has opposite winding", tri)
				}
			}
			if want := PolygonArea(tt.points); gomath.Abs(area-want) > 1e-9 {
				t.Errorf("triangle area %v, polygon area %v", area, want)
			}
		})
	}
}

func TestTriangulate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		points  []math.Vec3
		wantErr error
	}{
		{"empty", nil, ErrTooFewPoints},
		{"two points", []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}}, ErrTooFewPoints},
		{"collinear", []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}, {X: 3, Y: 0, Z: 0}, {X: 4, Y: 0, Z: 0}}, ErrDegeneratePolygon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Triangulate(tt.points)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPolygonArea(t *testing.T) {
	if got := PolygonArea(lShape()); gomath.Abs(got-3) > 1e-12 {
		t.Errorf("L shape area = %v, want 3", got)
	}
}

func regularPolygon(n int, r float64) []math.Vec3 {
	pts := make([]math.Vec3, n)
	for i := range pts {
		a := 2 * gomath.Pi * float64(i) / float64(n)
		pts[i] = math.Vec3{X: r * gomath.Cos(a), Y: r * gomath.Sin(a)}
	}
	return pts
}

func star(spikes int, outer, inner float64) []math.Vec3 {
	pts := make([]math.Vec3, 0, spikes*2)
	for i := 0; i < spikes*2; i++ {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		a := gomath.Pi * float64(i) / float64(spikes)
		pts = append(pts, math.Vec3{X: r * gomath.Cos(a), Y: r * gomath.Sin(a)})
	}
	return pts
}

func lShape() []math.Vec3 {
	return []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}, {X: 2, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 1, Y: 2, Z: 0}, {X: 0, Y: 2, Z: 0}}
}

func transform(pts []math.Vec3, m math.Mat4) []math.Vec3 {
	out := make([]math.Vec3, len(pts))
	for i, p := range pts {
		out[i] = m.TransformPoint(p)
	}
	return out
}

func reverse(pts []math.Vec3) []math.Vec3 {
	out := make([]math.Vec3, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}
