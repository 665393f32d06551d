package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/meshexport/pkg/math"
)

// Evaluation errors.
var (
	ErrUnknownObject = errors.New("unknown object")
	ErrUnknownBone   = errors.New("unknown bone")
	ErrUnknownKey    = errors.New("unknown shape key")
	ErrUnknownAction = errors.New("unknown action")
	ErrWrongType     = errors.New("wrong object type")
)

// Evaluator evaluates a scene at a frame. It carries the mutable state an
// authoring tool keeps globally: the current frame and the active action of
// each object. It is not safe for concurrent use.
type Evaluator struct {
	scene   *Scene
	frame   int
	actions map[string]string
}

// NewEvaluator returns an evaluator positioned at the scene's current frame
// with each object's initial action active.
func NewEvaluator(s *Scene) *Evaluator {
	e := &Evaluator{
		scene:   s,
		frame:   s.Frame,
		actions: make(map[string]string),
	}
	for _, o := range s.Objects {
		if o.Action != "" {
			e.actions[o.Name] = o.Action
		}
	}
	return e
}

// Scene returns the evaluated scene.
func (e *Evaluator) Scene() *Scene { return e.scene }

// FPS returns the scene frame rate.
func (e *Evaluator) FPS() float64 { return e.scene.FPS }

// Frame returns the current frame.
func (e *Evaluator) Frame() int { return e.frame }

// SetFrame moves the evaluation to another frame.
func (e *Evaluator) SetFrame(frame int) { e.frame = frame }

// ActiveAction returns the name of the action active on an object, or "".
func (e *Evaluator) ActiveAction(object string) string {
	return e.actions[object]
}

// SetActiveAction activates an action on an object. An empty name clears it.
func (e *Evaluator) SetActiveAction(object, action string) error {
	if e.scene.Object(object) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownObject, object)
	}
	if action == "" {
		delete(e.actions, object)
		return nil
	}
	if e.scene.Action(action) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	e.actions[object] = action
	return nil
}

// ActionBones returns the names of the bones an action keys, sorted.
func (e *Evaluator) ActionBones(action string) ([]string, error) {
	a := e.scene.Action(action)
	if a == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	out := make([]string, 0, len(a.Bones))
	for name, keys := range a.Bones {
		if len(keys) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// PoseMatrix returns the evaluated pose matrix of a bone in armature space.
func (e *Evaluator) PoseMatrix(object, bone string) (math.Mat4, error) {
	arm, err := e.armature(object)
	if err != nil {
		return math.Mat4{}, err
	}
	b, _ := arm.Bone(bone)
	if b == nil {
		return math.Mat4{}, fmt.Errorf("%w: %q in %q", ErrUnknownBone, bone, object)
	}
	return e.pose(arm, e.scene.Action(e.actions[object]), b), nil
}

// pose = parentPose * inverse(parentRest) * rest * basis.
func (e *Evaluator) pose(arm *Armature, action *Action, b *Bone) math.Mat4 {
	local := b.Rest.Mul(e.basis(action, b.Name))
	if b.Parent == "" {
		return local
	}
	p, _ := arm.Bone(b.Parent)
	return e.pose(arm, action, p).Mul(p.Rest.Inverse()).Mul(local)
}

// basis interpolates a bone channel at the current frame.
func (e *Evaluator) basis(action *Action, bone string) math.Mat4 {
	if action == nil {
		return math.Identity()
	}
	keys := action.Bones[bone]
	if len(keys) == 0 {
		return math.Identity()
	}

	f := float64(e.frame)
	if f <= keys[0].Frame {
		return keys[0].matrix()
	}
	last := keys[len(keys)-1]
	if f >= last.Frame {
		return last.matrix()
	}
	for i := 1; i < len(keys); i++ {
		a, b := keys[i-1], keys[i]
		if f > b.Frame {
			continue
		}
		t := (f - a.Frame) / (b.Frame - a.Frame)
		return math.Compose(
			math.LerpVec3(a.Location, b.Location, t),
			a.Rotation.Slerp(b.Rotation, t),
			math.LerpVec3(a.Scale, b.Scale, t),
		)
	}
	return last.matrix()
}

func (k BoneKey) matrix() math.Mat4 {
	return math.Compose(k.Location, k.Rotation, k.Scale)
}

// ShapeKeyInfluence returns the evaluated value of a shape key: its curve in
// the object's active action when one exists, the static value otherwise.
func (e *Evaluator) ShapeKeyInfluence(object, key string) (float64, error) {
	o, err := e.meshObject(object)
	if err != nil {
		return 0, err
	}
	k := o.Mesh.ShapeKey(key)
	if k == nil {
		return 0, fmt.Errorf("%w: %q in %q", ErrUnknownKey, key, object)
	}
	return e.influence(object, k), nil
}

func (e *Evaluator) influence(object string, k *ShapeKey) float64 {
	action := e.scene.Action(e.actions[object])
	if action == nil {
		return k.Value
	}
	keys := action.ShapeKeys[k.Name]
	if len(keys) == 0 {
		return k.Value
	}
	return sampleCurve(keys, float64(e.frame))
}

func sampleCurve(keys []FloatKey, f float64) float64 {
	if f <= keys[0].Frame {
		return keys[0].Value
	}
	for i := 1; i < len(keys); i++ {
		a, b := keys[i-1], keys[i]
		if f <= b.Frame {
			t := (f - a.Frame) / (b.Frame - a.Frame)
			return a.Value + t*(b.Value-a.Value)
		}
	}
	return keys[len(keys)-1].Value
}

// DeformedPositions returns the object's vertex positions with every relative
// shape key applied at its current influence.
func (e *Evaluator) DeformedPositions(object string) ([]math.Vec3, error) {
	o, err := e.meshObject(object)
	if err != nil {
		return nil, err
	}
	m := o.Mesh
	out := m.RestPositions()
	if len(m.ShapeKeys) < 2 {
		return out, nil
	}
	basis := m.ShapeKeys[0].Positions
	for i := 1; i < len(m.ShapeKeys); i++ {
		k := &m.ShapeKeys[i]
		w := e.influence(object, k)
		if w == 0 {
			continue
		}
		for v := range out {
			out[v] = out[v].Add(k.Positions[v].Sub(basis[v]).Scale(w))
		}
	}
	return out, nil
}

func (e *Evaluator) armature(object string) (*Armature, error) {
	o := e.scene.Object(object)
	if o == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObject, object)
	}
	if o.Type != TypeArmature {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongType, object, o.Type)
	}
	return o.Armature, nil
}

func (e *Evaluator) meshObject(object string) (*Object, error) {
	o := e.scene.Object(object)
	if o == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObject, object)
	}
	if o.Type != TypeMesh {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongType, object, o.Type)
	}
	return o, nil
}
