package anim

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/internal/mesh"
	"github.com/Faultbox/meshexport/internal/skeleton"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// Set holds the animations exported with one mesh. Skeletal animations go
// to the skeleton file, pose or morph animations to the mesh file.
type Set struct {
	Skeletal []*SkeletalAnimation
	Morph    []*MorphAnimation
	Pose     []*PoseAnimation
}

// Empty reports whether nothing was sampled.
func (s *Set) Empty() bool {
	return len(s.Skeletal) == 0 && len(s.Morph) == 0 && len(s.Pose) == 0
}

// Export samples the clips requested on a mesh object. skel is nil for
// meshes without an armature. Skeletal clips without an action sample the
// armature's active action.
//
// Skeletal and morph animations exclude each other, as do pose and morph
// animations; in both cases the morph clips are dropped with an error log.
func (s *Sampler) Export(obj *scene.Object, m *mesh.Mesh, skel *skeleton.Skeleton) (*Set, error) {
	log := logger.Log.With(zap.String("mesh", m.Name))

	var skeletal, morph, pose []scene.Clip
	for _, c := range obj.Clips {
		switch c.Kind {
		case scene.ClipSkeletal:
			skeletal = append(skeletal, c)
		case scene.ClipMorph:
			morph = append(morph, c)
		case scene.ClipPose:
			pose = append(pose, c)
		}
	}

	if len(skeletal) > 0 && skel == nil {
		log.Warn("skipping skeletal animations of mesh without skeleton", zap.Int("clips", len(skeletal)))
		skeletal = nil
	}
	if len(pose) > 0 && len(m.Poses) == 0 {
		log.Warn("skipping pose animations of mesh without poses", zap.Int("clips", len(pose)))
		pose = nil
	}
	if len(morph) > 0 {
		switch {
		case len(skeletal) > 0:
			log.Error("skipping morph animations: vertex data is deformed by the skeleton", zap.Int("clips", len(morph)))
			morph = nil
		case len(pose) > 0:
			log.Error("skipping morph animations: vertex data is shared with pose animations", zap.Int("clips", len(morph)))
			morph = nil
		}
	}

	set := &Set{}
	meshNames := newNameSet(log)
	skelNames := newNameSet(log)

	for _, c := range skeletal {
		clip := toClip(c)
		if clip.Action == "" {
			clip.Action = s.host.ActiveAction(skel.Armature)
		}
		if clip.Action == "" {
			log.Warn("skipping animation without action", zap.String("animation", c.Name))
			continue
		}
		a, err := s.Skeletal(skel, clip)
		if errors.Is(err, ErrNoEffect) {
			log.Warn("skipping animation", zap.String("animation", c.Name), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		skelNames.add(c.Name)
		set.Skeletal = append(set.Skeletal, a)
	}

	for _, c := range pose {
		a, err := s.Pose(obj.Name, m, toClip(c))
		if err != nil {
			return nil, err
		}
		if len(a.Tracks) == 0 {
			log.Warn("pose animation does not differ from rest pose", zap.String("animation", c.Name))
			continue
		}
		meshNames.add(c.Name)
		set.Pose = append(set.Pose, a)
	}

	for _, c := range morph {
		a, err := s.Morph(obj.Name, m, toClip(c))
		if err != nil {
			return nil, err
		}
		if len(a.Tracks) == 0 {
			log.Warn("morph animation does not differ from rest pose", zap.String("animation", c.Name))
			continue
		}
		meshNames.add(c.Name)
		set.Morph = append(set.Morph, a)
	}

	return set, nil
}

func toClip(c scene.Clip) Clip {
	return Clip{Name: c.Name, Action: c.Action, Start: c.Start, End: c.End}
}

type nameSet struct {
	log  *zap.Logger
	seen map[string]bool
}

func newNameSet(log *zap.Logger) *nameSet {
	return &nameSet{log: log, seen: make(map[string]bool)}
}

func (n *nameSet) add(name string) {
	if n.seen[name] {
		n.log.Warn("duplicate animation name", zap.String("animation", name))
	}
	n.seen[name] = true
}
