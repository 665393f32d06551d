package mesh

import (
	"fmt"

	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// PoseThreshold is the smallest offset length stored in a pose.
const PoseThreshold = 1e-7

// Pose is the displacement of one shape key on one vertex buffer.
type Pose struct {
	Name    string
	Key     string
	Target  int // submesh index, -1 for shared geometry
	Offsets []PoseOffset
}

// PoseOffset moves one buffer vertex.
type PoseOffset struct {
	Index  int
	Offset math.Vec3
}

// BuildPoses creates one pose per shape key and target that moves at least
// one vertex. Poses are ordered by key, then by target; a pose's index in the
// result is the index animations refer to.
func BuildPoses(m *Mesh, keys []scene.ShapeKey, fixUp bool) []Pose {
	var poses []Pose
	targets := m.Targets()
	for _, key := range keys {
		for _, t := range targets {
			pose := Pose{Name: poseName(key.Name, t.Submesh), Key: key.Name, Target: t.Submesh}
			for local, v := range t.Buffer.Vertices() {
				pos := key.Positions[t.Buffer.Source(local)]
				if fixUp {
					pos = pos.FixUp()
				}
				off := pos.Sub(v.Position)
				if off.Length() > PoseThreshold {
					pose.Offsets = append(pose.Offsets, PoseOffset{Index: local, Offset: off})
				}
			}
			if len(pose.Offsets) > 0 {
				poses = append(poses, pose)
			}
		}
	}
	return poses
}

func poseName(key string, submesh int) string {
	if submesh < 0 {
		return key
	}
	return fmt.Sprintf("%s-%d", key, submesh)
}

// PosesFor returns the indices of the poses built for a target.
func (m *Mesh) PosesFor(submesh int) []int {
	var out []int
	for i := range m.Poses {
		if m.Poses[i].Target == submesh {
			out = append(out, i)
		}
	}
	return out
}
