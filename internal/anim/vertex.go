package anim

import (
	"github.com/Faultbox/meshexport/internal/mesh"
	"github.com/Faultbox/meshexport/pkg/math"
)

// MorphAnimation is a clip of full vertex positions per target.
type MorphAnimation struct {
	Name   string
	Length float64
	Tracks []MorphTrack
}

// MorphTrack animates one vertex buffer. Target is the submesh index, -1 for
// shared geometry.
type MorphTrack struct {
	Target    int
	Keyframes []MorphKeyframe
}

// MorphKeyframe holds one position per buffer vertex.
type MorphKeyframe struct {
	Time      float64
	Positions []math.Vec3
}

// PoseAnimation is a clip of weighted pose references per target.
type PoseAnimation struct {
	Name   string
	Length float64
	Tracks []PoseTrack
}

// PoseTrack animates the poses of one vertex buffer.
type PoseTrack struct {
	Target    int
	Keyframes []PoseKeyframe
}

// PoseKeyframe lists the poses active at a time.
type PoseKeyframe struct {
	Time float64
	Refs []PoseRef
}

// PoseRef is an index into mesh.Mesh.Poses with its influence.
type PoseRef struct {
	Pose      int
	Influence float64
}

// Morph samples the deformed positions of every vertex buffer of m. Tracks
// whose vertices never move from rest are dropped.
func (s *Sampler) Morph(object string, m *mesh.Mesh, clip Clip) (*MorphAnimation, error) {
	fps := s.host.FPS()
	a := &MorphAnimation{Name: clip.Name, Length: clip.Length(fps)}
	targets := m.Targets()
	tracks := make([]MorphTrack, len(targets))
	for i, t := range targets {
		tracks[i].Target = t.Submesh
	}

	sample := func() error {
		if err := s.host.SetActiveAction(object, clip.Action); err != nil {
			return err
		}
		for _, frame := range clip.Frames() {
			s.host.SetFrame(frame)
			deformed, err := s.host.DeformedPositions(object)
			if err != nil {
				return err
			}
			for i, t := range targets {
				pos := make([]math.Vec3, t.Buffer.Len())
				for local := range pos {
					p := deformed[t.Buffer.Source(local)]
					if s.opts.FixUpAxis {
						p = p.FixUp()
					}
					pos[local] = p
				}
				tracks[i].Keyframes = append(tracks[i].Keyframes, MorphKeyframe{
					Time:      clip.Time(frame, fps),
					Positions: pos,
				})
			}
		}
		return nil
	}

	finalize := func() {
		for i, t := range tracks {
			if !morphMoves(targets[i].Buffer, t.Keyframes) {
				continue
			}
			if s.reduce() {
				t.Keyframes = reduceTrivial(t.Keyframes, sameMorphKey)
			}
			a.Tracks = append(a.Tracks, t)
		}
	}

	if err := s.run([]string{object}, sample, finalize); err != nil {
		return nil, err
	}
	return a, nil
}

func morphMoves(buf *mesh.VertexBuffer, keys []MorphKeyframe) bool {
	for _, k := range keys {
		for local, p := range k.Positions {
			if p.Distance(buf.Vertex(local).Position) > TrackEpsilon {
				return true
			}
		}
	}
	return false
}

func sameMorphKey(a, b MorphKeyframe) bool {
	for i := range a.Positions {
		if !a.Positions[i].Near(b.Positions[i], 1e-6) {
			return false
		}
	}
	return true
}

// Pose samples shape key influences as references to the poses of m. A
// track is kept when some pose of its target becomes active; it then has a
// keyframe at every frame.
func (s *Sampler) Pose(object string, m *mesh.Mesh, clip Clip) (*PoseAnimation, error) {
	fps := s.host.FPS()
	a := &PoseAnimation{Name: clip.Name, Length: clip.Length(fps)}
	targets := m.Targets()
	tracks := make([]PoseTrack, len(targets))
	poses := make([][]int, len(targets))
	for i, t := range targets {
		tracks[i].Target = t.Submesh
		poses[i] = m.PosesFor(t.Submesh)
	}

	sample := func() error {
		if err := s.host.SetActiveAction(object, clip.Action); err != nil {
			return err
		}
		for _, frame := range clip.Frames() {
			s.host.SetFrame(frame)
			for i := range targets {
				key := PoseKeyframe{Time: clip.Time(frame, fps)}
				for _, p := range poses[i] {
					w, err := s.host.ShapeKeyInfluence(object, m.Poses[p].Key)
					if err != nil {
						return err
					}
					if w > InfluenceEpsilon {
						key.Refs = append(key.Refs, PoseRef{Pose: p, Influence: w})
					}
				}
				tracks[i].Keyframes = append(tracks[i].Keyframes, key)
			}
		}
		return nil
	}

	finalize := func() {
		for _, t := range tracks {
			if !t.active() {
				continue
			}
			if s.reduce() {
				t.Keyframes = reduceTrivial(t.Keyframes, samePoseKey)
			}
			a.Tracks = append(a.Tracks, t)
		}
	}

	if err := s.run([]string{object}, sample, finalize); err != nil {
		return nil, err
	}
	return a, nil
}

func (t *PoseTrack) active() bool {
	for _, k := range t.Keyframes {
		if len(k.Refs) > 0 {
			return true
		}
	}
	return false
}

func samePoseKey(a, b PoseKeyframe) bool {
	if len(a.Refs) != len(b.Refs) {
		return false
	}
	for i := range a.Refs {
		d := a.Refs[i].Influence - b.Refs[i].Influence
		if a.Refs[i].Pose != b.Refs[i].Pose || d > 1e-6 || d < -1e-6 {
			return false
		}
	}
	return true
}
