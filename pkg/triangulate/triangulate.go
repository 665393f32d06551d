// Package triangulate splits planar polygon loops into triangles.
//
// Triangles pass through unchanged, quads are split on their shorter diagonal
// and larger polygons are decomposed by ear clipping against the polygon's
// Newell normal. Output triangles index into the input loop and keep its
// winding.
package triangulate

import (
	"errors"
	"sort"

	"github.com/Faultbox/meshexport/pkg/math"
)

// Triangulation errors.
var (
	ErrTooFewPoints      = errors.New("polygon needs at least 3 points")
	ErrDegeneratePolygon = errors.New("degenerate polygon: no ear found")
)

// epsilon bounds the convexity and containment tests.
const epsilon = 1e-12

// Triangle is a triple of indices into the input loop.
type Triangle [3]int

// Triangulate returns len(points)-2 triangles covering the polygon for any
// simple polygon. Self-intersecting or strongly non-planar input yields
// ErrDegeneratePolygon.
func Triangulate(points []math.Vec3) ([]Triangle, error) {
	switch n := len(points); {
	case n < 3:
		return nil, ErrTooFewPoints
	case n == 3:
		return []Triangle{{0, 1, 2}}, nil
	case n == 4:
		return SplitQuad(points), nil
	}
	return EarClip(points)
}

// SplitQuad splits a quad on the shorter of its two diagonals.
//
//	0 - 1      0 - 1
//	| \ |  or  | / |
//	3 - 2      3 - 2
func SplitQuad(p []math.Vec3) []Triangle {
	if p[2].Distance(p[0]) < p[3].Distance(p[1]) {
		return []Triangle{{0, 1, 2}, {0, 2, 3}}
	}
	return []Triangle{{0, 1, 3}, {1, 2, 3}}
}

// NewellNormal returns the normalized polygon normal by Newell's method.
// It is the zero vector for polygons without area.
func NewellNormal(points []math.Vec3) math.Vec3 {
	var n math.Vec3
	for i, cur := range points {
		next := points[(i+1)%len(points)]
		n.X += (cur.Y - next.Y) * (cur.Z + next.Z)
		n.Y += (cur.Z - next.Z) * (cur.X + next.X)
		n.Z += (cur.X - next.X) * (cur.Y + next.Y)
	}
	return n.Normalize()
}

// EarClip triangulates an arbitrary simple polygon by ear clipping.
func EarClip(points []math.Vec3) ([]Triangle, error) {
	if len(points) < 3 {
		return nil, ErrTooFewPoints
	}
	normal := NewellNormal(points)
	if normal == (math.Vec3{}) {
		return nil, ErrDegeneratePolygon
	}

	remaining := make([]int, len(points))
	for i := range remaining {
		remaining[i] = i
	}

	tris := make([]Triangle, 0, len(points)-2)
	order := make([]int, 0, len(points))
	scores := make([]float64, len(points))

	for len(remaining) > 3 {
		order = order[:0]
		for pos := range remaining {
			scores[pos] = reflexivity(points, remaining, pos, normal)
			order = append(order, pos)
		}
		sort.SliceStable(order, func(a, b int) bool {
			return scores[order[a]] < scores[order[b]]
		})

		clipped := false
		for _, pos := range order {
			if scores[pos] >= -epsilon {
				// Remaining candidates are flat or reflex.
				break
			}
			if !isEar(points, remaining, pos, normal) {
				continue
			}
			prev, cur, next := neighbours(remaining, pos)
			tris = append(tris, Triangle{prev, cur, next})
			remaining = append(remaining[:pos], remaining[pos+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, ErrDegeneratePolygon
		}
	}

	return append(tris, Triangle{remaining[0], remaining[1], remaining[2]}), nil
}

// neighbours returns the loop indices around position pos of the working list.
func neighbours(remaining []int, pos int) (prev, cur, next int) {
	n := len(remaining)
	return remaining[(pos+n-1)%n], remaining[pos], remaining[(pos+1)%n]
}

// reflexivity scores the corner at pos: negative for convex corners (more
// negative is sharper), zero for collinear and positive for reflex corners.
func reflexivity(points []math.Vec3, remaining []int, pos int, normal math.Vec3) float64 {
	prev, cur, next := neighbours(remaining, pos)
	in := points[cur].Sub(points[prev])
	out := points[next].Sub(points[cur])
	l := in.Length() * out.Length()
	if l == 0 {
		return 0
	}
	return -in.Cross(out).Dot(normal) / l
}

// isEar reports whether no other remaining vertex lies inside the corner
// triangle at pos. Convexity is checked by the caller.
func isEar(points []math.Vec3, remaining []int, pos int, normal math.Vec3) bool {
	prev, cur, next := neighbours(remaining, pos)
	a, b, c := points[prev], points[cur], points[next]

	// Outward edge normals of the triangle in the polygon plane.
	nab := b.Sub(a).Cross(normal)
	nbc := c.Sub(b).Cross(normal)
	nca := a.Sub(c).Cross(normal)

	for _, idx := range remaining {
		if idx == prev || idx == cur || idx == next {
			continue
		}
		p := points[idx]
		if p == a || p == b || p == c {
			continue
		}
		if p.Sub(a).Dot(nab) <= epsilon &&
			p.Sub(b).Dot(nbc) <= epsilon &&
			p.Sub(c).Dot(nca) <= epsilon {
			return false
		}
	}
	return true
}

// Area returns the area of a triangle.
func Area(a, b, c math.Vec3) float64 {
	return b.Sub(a).Cross(c.Sub(a)).Length() / 2
}

// PolygonArea returns the area of a planar polygon using its Newell normal.
func PolygonArea(points []math.Vec3) float64 {
	var sum math.Vec3
	for i, cur := range points {
		sum = sum.Add(cur.Cross(points[(i+1)%len(points)]))
	}
	n := NewellNormal(points)
	if sum.Dot(n) < 0 {
		return -sum.Dot(n) / 2
	}
	return sum.Dot(n) / 2
}
