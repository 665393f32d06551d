package anim

import (
	"fmt"

	"github.com/Faultbox/meshexport/internal/skeleton"
	"github.com/Faultbox/meshexport/pkg/math"
)

// SkeletalAnimation is a clip of bone tracks.
type SkeletalAnimation struct {
	Name   string
	Length float64
	Tracks []BoneTrack
}

// BoneTrack holds the keyframes of one bone, relative to its rest pose.
type BoneTrack struct {
	Bone      int
	Name      string
	Keyframes []BoneKeyframe
}

// BoneKeyframe is a bone transform relative to the rest pose: Translate is
// added to the rest position, the rotation follows the rest rotation.
type BoneKeyframe struct {
	Time      float64
	Translate math.Vec3
	Axis      math.Vec3
	Angle     float64
	Scale     math.Vec3
}

// trivial reports whether the keyframe equals the rest pose.
func (k *BoneKeyframe) trivial() bool {
	one := math.Vec3{X: 1, Y: 1, Z: 1}
	return k.Translate.Length() <= TrackEpsilon &&
		k.Angle <= TrackEpsilon &&
		k.Scale.Sub(one).Length() <= TrackEpsilon
}

func sameBoneKey(a, b BoneKeyframe) bool {
	const eps = 1e-6
	return a.Translate.Near(b.Translate, eps) &&
		a.Axis.Scale(a.Angle).Near(b.Axis.Scale(b.Angle), eps) &&
		a.Scale.Near(b.Scale, eps)
}

// Skeletal samples a clip of the skeleton's armature. Tracks of bones that
// never leave their rest pose are dropped.
func (s *Sampler) Skeletal(skel *skeleton.Skeleton, clip Clip) (*SkeletalAnimation, error) {
	keyed, err := s.host.ActionBones(clip.Action)
	if err != nil {
		return nil, err
	}
	if !affects(skel, keyed) {
		return nil, fmt.Errorf("%w: %q on %q", ErrNoEffect, clip.Action, skel.Name)
	}

	fps := s.host.FPS()
	a := &SkeletalAnimation{Name: clip.Name, Length: clip.Length(fps)}
	tracks := make([]BoneTrack, len(skel.Bones))
	inverseRest := make([]math.Mat4, len(skel.Bones))
	for i, b := range skel.Bones {
		tracks[i] = BoneTrack{Bone: i, Name: b.Name}
		inverseRest[i] = b.Rest.Inverse()
	}

	sample := func() error {
		if err := s.host.SetActiveAction(skel.Armature, clip.Action); err != nil {
			return err
		}
		total := make([]math.Mat4, len(skel.Bones))
		for _, frame := range clip.Frames() {
			s.host.SetFrame(frame)
			time := clip.Time(frame, fps)
			// Parents precede children, so total[parent] is this frame's.
			for i, b := range skel.Bones {
				pose, err := s.host.PoseMatrix(skel.Armature, b.Name)
				if err != nil {
					return err
				}
				total[i] = skel.ArmatureToMesh.Mul(pose)
				var rel math.Mat4
				if b.Parent < 0 {
					rel = skel.RootFrame().Mul(total[i])
				} else {
					rel = total[b.Parent].Inverse().Mul(total[i])
				}
				_, r, scale := inverseRest[i].Mul(rel).Decompose()
				axis, angle := r.AxisAngle()
				tracks[i].Keyframes = append(tracks[i].Keyframes, BoneKeyframe{
					Time:      time,
					Translate: rel.Translation().Sub(b.Rest.Translation()),
					Axis:      axis,
					Angle:     angle,
					Scale:     scale,
				})
			}
		}
		return nil
	}

	finalize := func() {
		for _, t := range tracks {
			if !t.nontrivial() {
				continue
			}
			if s.reduce() {
				t.Keyframes = reduceTrivial(t.Keyframes, sameBoneKey)
			}
			a.Tracks = append(a.Tracks, t)
		}
	}

	if err := s.run([]string{skel.Armature}, sample, finalize); err != nil {
		return nil, err
	}
	return a, nil
}

func (t *BoneTrack) nontrivial() bool {
	for i := range t.Keyframes {
		if !t.Keyframes[i].trivial() {
			return true
		}
	}
	return false
}

func affects(skel *skeleton.Skeleton, bones []string) bool {
	for _, b := range bones {
		if _, ok := skel.Index(b); ok {
			return true
		}
	}
	return false
}
