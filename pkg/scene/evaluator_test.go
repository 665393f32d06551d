package scene

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/Faultbox/meshexport/pkg/math"
)

func mustParse(t *testing.T, doc string) *Scene {
	t.Helper()
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return s
}

func TestEvaluatorState(t *testing.T) {
	e := NewEvaluator(mustParse(t, riggedQuad))

	if e.Frame() != 3 || e.FPS() != 24 {
		t.Errorf("frame/fps = %d/%v", e.Frame(), e.FPS())
	}
	if got := e.ActiveAction("Body"); got != "Wave" {
		t.Errorf("active action = %q, want Wave", got)
	}

	e.SetFrame(10)
	if e.Frame() != 10 {
		t.Errorf("frame = %d after SetFrame(10)", e.Frame())
	}

	if err := e.SetActiveAction("Rig", "Wave"); err != nil {
		t.Fatalf("SetActiveAction failed: %v", err)
	}
	if err := e.SetActiveAction("Rig", ""); err != nil || e.ActiveAction("Rig") != "" {
		t.Errorf("clearing action: err=%v active=%q", err, e.ActiveAction("Rig"))
	}
	if err := e.SetActiveAction("Rig", "Nope"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action error = %v", err)
	}
	if err := e.SetActiveAction("Ghost", "Wave"); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("unknown object error = %v", err)
	}
}

func TestPoseMatrix(t *testing.T) {
	e := NewEvaluator(mustParse(t, riggedQuad))

	// Without an action the pose equals the rest matrix.
	rest, err := e.PoseMatrix("Rig", "Arm")
	if err != nil {
		t.Fatalf("PoseMatrix failed: %v", err)
	}
	if !rest.NearlyEqual(math.Translate(0, 1, 0), 1e-12) {
		t.Errorf("rest pose = %v", rest)
	}

	if err := e.SetActiveAction("Rig", "Wave"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		frame int
		angle float64
	}{
		{0, 0},
		{1, 0},
		{3, gomath.Pi / 4},
		{5, gomath.Pi / 2},
		{9, gomath.Pi / 2},
	}
	for _, tt := range tests {
		e.SetFrame(tt.frame)
		arm, err := e.PoseMatrix("Rig", "Arm")
		if err != nil {
			t.Fatal(err)
		}
		want := math.Translate(0, 1, 0).Mul(math.RotateZ(tt.angle))
		if !arm.NearlyEqual(want, 1e-9) {
			t.Errorf("frame %d: Arm pose = %v, want %v", tt.frame, arm, want)
		}

		// The child inherits its parent's motion.
		helper, err := e.PoseMatrix("Rig", "Helper")
		if err != nil {
			t.Fatal(err)
		}
		if !helper.NearlyEqual(want, 1e-9) {
			t.Errorf("frame %d: Helper pose = %v, want %v", tt.frame, helper, want)
		}
	}

	if _, err := e.PoseMatrix("Rig", "Tail"); !errors.Is(err, ErrUnknownBone) {
		t.Errorf("unknown bone error = %v", err)
	}
	if _, err := e.PoseMatrix("Body", "Arm"); !errors.Is(err, ErrWrongType) {
		t.Errorf("wrong type error = %v", err)
	}
}

func TestShapeKeys(t *testing.T) {
	e := NewEvaluator(mustParse(t, riggedQuad))

	tests := []struct {
		frame     int
		influence float64
	}{
		{1, 0},
		{2, 0.25},
		{5, 1},
		{7, 1},
	}
	for _, tt := range tests {
		e.SetFrame(tt.frame)
		got, err := e.ShapeKeyInfluence("Body", "Smile")
		if err != nil {
			t.Fatal(err)
		}
		if gomath.Abs(got-tt.influence) > 1e-12 {
			t.Errorf("frame %d: influence = %v, want %v", tt.frame, got, tt.influence)
		}

		pos, err := e.DeformedPositions("Body")
		if err != nil {
			t.Fatal(err)
		}
		if want := (math.Vec3{Z: tt.influence}); !pos[0].Near(want, 1e-12) {
			t.Errorf("frame %d: vertex 0 = %v, want %v", tt.frame, pos[0], want)
		}
		if pos[2] != (math.Vec3{X: 1, Y: 1}) {
			t.Errorf("frame %d: vertex 2 moved to %v", tt.frame, pos[2])
		}
	}

	// Static value applies without an action.
	if err := e.SetActiveAction("Body", ""); err != nil {
		t.Fatal(err)
	}
	if got, _ := e.ShapeKeyInfluence("Body", "Smile"); got != 0 {
		t.Errorf("static influence = %v, want 0", got)
	}
	if _, err := e.ShapeKeyInfluence("Body", "Frown"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key error = %v", err)
	}
}

func TestActionBones(t *testing.T) {
	e := NewEvaluator(mustParse(t, riggedQuad))

	bones, err := e.ActionBones("Wave")
	if err != nil {
		t.Fatal(err)
	}
	if len(bones) != 1 || bones[0] != "Arm" {
		t.Errorf("ActionBones(Wave) = %v, want [Arm]", bones)
	}
	if _, err := e.ActionBones("Nope"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action error = %v", err)
	}
}
