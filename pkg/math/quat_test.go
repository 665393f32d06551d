package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	n := Quat{X: 1, Y: 2, Z: 3, W: 4}.Normalize()
	length := math.Sqrt(n.Dot(n))
	if math.Abs(length-1.0) > 1e-12 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
}

func TestQuatSlerp(t *testing.T) {
	q1 := QuatIdentity()
	q2 := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, math.Pi/2)

	if r := q1.Slerp(q2, 0); math.Abs(r.W-q1.W) > 1e-9 {
		t.Errorf("Slerp at t=0 should equal q1")
	}
	if r := q1.Slerp(q2, 1); math.Abs(r.W-q2.W) > 1e-9 {
		t.Errorf("Slerp at t=1 should equal q2")
	}

	// Halfway along a 90 degree rotation is 45 degrees.
	r := q1.Slerp(q2, 0.5)
	if want := math.Cos(math.Pi / 8); math.Abs(r.W-want) > 1e-6 {
		t.Errorf("Slerp at t=0.5: expected W ~%v, got %v", want, r.W)
	}
}

func TestQuatToMat4(t *testing.T) {
	if !QuatIdentity().ToMat4().NearlyEqual(Identity(), 1e-12) {
		t.Error("Identity quat should produce identity matrix")
	}

	q := QuatFromAxisAngle(Vec3{0, 0, 1}, math.Pi/2)
	if !q.ToMat4().NearlyEqual(RotateZ(math.Pi/2), 1e-12) {
		t.Errorf("quat rotation about Z differs from RotateZ: %v", q.ToMat4())
	}
}

func TestQuatFromBasisRoundTrip(t *testing.T) {
	axes := []Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, Vec3{1, 1, 1}.Normalize(), Vec3{-1, 2, 0.5}.Normalize()}
	angles := []float64{0.1, 1, 2.5, math.Pi - 1e-3}

	for _, axis := range axes {
		for _, angle := range angles {
			q := QuatFromAxisAngle(axis, angle)
			m := q.ToMat4()
			back := QuatFromBasis(m.Column(0), m.Column(1), m.Column(2))
			if math.Abs(math.Abs(back.Dot(q))-1) > 1e-9 {
				t.Errorf("axis %v angle %v: got %v, want ±%v", axis, angle, back, q)
			}
		}
	}
}

func TestQuatAxisAngle(t *testing.T) {
	tests := []struct {
		name      string
		q         Quat
		wantAxis  Vec3
		wantAngle float64
	}{
		{"identity", QuatIdentity(), Vec3{1, 0, 0}, 0},
		{"90 about y", QuatFromAxisAngle(Vec3{0, 1, 0}, math.Pi/2), Vec3{0, 1, 0}, math.Pi / 2},
		{"negated hemisphere", Quat{X: 0, Y: -math.Sin(math.Pi / 4), Z: 0, W: -math.Cos(math.Pi / 4)}, Vec3{0, 1, 0}, math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			axis, angle := tt.q.AxisAngle()
			if !axis.Near(tt.wantAxis, 1e-9) {
				t.Errorf("axis = %v, want %v", axis, tt.wantAxis)
			}
			if math.Abs(angle-tt.wantAngle) > 1e-9 {
				t.Errorf("angle = %v, want %v", angle, tt.wantAngle)
			}
		})
	}
}

func TestLerpVec3(t *testing.T) {
	got := LerpVec3(Vec3{}, Vec3{10, 20, 30}, 0.5)
	if !got.Near(Vec3{5, 10, 15}, 1e-12) {
		t.Errorf("LerpVec3 = %v, want (5, 10, 15)", got)
	}
}
