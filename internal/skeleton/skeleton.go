// Package skeleton converts armatures into bone hierarchies relative to the
// mesh they deform.
//
// An armature object and the mesh object it deforms are transformed
// independently in the scene. Bone rest poses are therefore first brought
// from armature space into mesh space:
//
//	armatureToMesh = inverse(meshWorld) * armatureWorld
//	absolute       = armatureToMesh * bone.Rest
//
// and then expressed relative to the nearest exported ancestor, or to the
// axis fix-up for root bones.
package skeleton

import (
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// Errors.
var (
	ErrNoArmature   = errors.New("object has no armature")
	ErrSingularMesh = errors.New("mesh object transform is not invertible")
	ErrBadPattern   = errors.New("bad bone exclude pattern")
)

// WarnRestScale is logged for bones whose rest transform carries scale.
const WarnRestScale = "bone rest pose has scale"

// scaleEpsilon bounds |scale-1| before a rest pose counts as scaled.
const scaleEpsilon = 1e-5

// Bone is an exported bone. Parent is -1 for roots.
type Bone struct {
	Name     string
	Parent   int
	Position math.Vec3
	Rotation math.Quat

	// Rest is the full parent-relative rest transform, fix-up included for
	// roots. Absolute is the rest transform in mesh space.
	Rest     math.Mat4
	Absolute math.Mat4
}

// Skeleton is an ordered bone hierarchy; parents precede their children.
type Skeleton struct {
	Name string
	// Armature is the name of the armature object the bones come from.
	Armature string
	// ArmatureToMesh maps armature object space to mesh object space.
	ArmatureToMesh math.Mat4
	FixUpAxis      bool
	Bones          []Bone

	index map[string]int
}

// Options selects bones and names the skeleton.
type Options struct {
	// Name overrides the skeleton name, which defaults to the armature's.
	Name      string
	FixUpAxis bool
	// NonDeform exports bones without the deform flag.
	NonDeform bool
	// Exclude lists path.Match patterns of bone names to skip.
	Exclude []string
}

// Build converts the armature deforming meshObj.
func Build(armObj, meshObj *scene.Object, opts Options) (*Skeleton, error) {
	if armObj.Armature == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoArmature, armObj.Name)
	}
	for _, p := range opts.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrBadPattern, p, err)
		}
	}
	meshInv, ok := meshObj.World.TryInverse()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSingularMesh, meshObj.Name)
	}

	arm := armObj.Armature
	s := &Skeleton{
		Name:           opts.Name,
		Armature:       armObj.Name,
		ArmatureToMesh: meshInv.Mul(armObj.World),
		FixUpAxis:      opts.FixUpAxis,
		index:          make(map[string]int),
	}
	if s.Name == "" {
		s.Name = arm.Name
	}

	exported := func(b *scene.Bone) bool {
		if !b.Deform && !opts.NonDeform {
			return false
		}
		for _, p := range opts.Exclude {
			if ok, _ := path.Match(p, b.Name); ok {
				return false
			}
		}
		return true
	}

	// Breadth first from the armature roots. Skipped bones pass their
	// children on to the nearest exported ancestor.
	type item struct {
		bone   int
		parent int
	}
	var queue []item
	for _, i := range arm.Children("") {
		queue = append(queue, item{i, -1})
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		b := &arm.Bones[it.bone]
		parent := it.parent
		if exported(b) {
			parent = s.add(b, it.parent)
		}
		for _, c := range arm.Children(b.Name) {
			queue = append(queue, item{c, parent})
		}
	}
	return s, nil
}

// add appends an exported bone and returns its index.
func (s *Skeleton) add(b *scene.Bone, parent int) int {
	abs := s.ArmatureToMesh.Mul(b.Rest)
	var rest math.Mat4
	if parent < 0 {
		rest = s.rootFrame().Mul(abs)
	} else {
		rest = s.Bones[parent].Absolute.Inverse().Mul(abs)
	}

	t, r, scale := rest.Decompose()
	if !scale.Near(math.Vec3{X: 1, Y: 1, Z: 1}, scaleEpsilon) {
		logger.Warn(WarnRestScale,
			zap.String("skeleton", s.Name),
			zap.String("bone", b.Name),
			zap.Float64s("scale", []float64{scale.X, scale.Y, scale.Z}))
	}

	i := len(s.Bones)
	s.Bones = append(s.Bones, Bone{
		Name:     b.Name,
		Parent:   parent,
		Position: t,
		Rotation: r.Normalize(),
		Rest:     rest,
		Absolute: abs,
	})
	s.index[b.Name] = i
	return i
}

// rootFrame is the transform applied to root bones.
func (s *Skeleton) rootFrame() math.Mat4 {
	if s.FixUpAxis {
		return math.FixUpAxis()
	}
	return math.Identity()
}

// RootFrame returns the fix-up transform applied to root bones, the identity
// when the axis is not fixed up.
func (s *Skeleton) RootFrame() math.Mat4 { return s.rootFrame() }

// Index returns the index of an exported bone.
func (s *Skeleton) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Roots returns the indices of the root bones.
func (s *Skeleton) Roots() []int {
	var out []int
	for i := range s.Bones {
		if s.Bones[i].Parent < 0 {
			out = append(out, i)
		}
	}
	return out
}

// Children returns the indices of a bone's direct children.
func (s *Skeleton) Children(bone int) []int {
	var out []int
	for i := range s.Bones {
		if s.Bones[i].Parent == bone {
			out = append(out, i)
		}
	}
	return out
}
