package serialize

import (
	"io"

	"github.com/Faultbox/meshexport/internal/anim"
	"github.com/Faultbox/meshexport/internal/skeleton"
)

// SkeletonFileName returns the binary skeleton name a mesh links to.
func SkeletonFileName(name string) string { return name + ".skeleton" }

// SkeletonXMLFileName returns the document name of a skeleton.
func SkeletonXMLFileName(name string) string { return name + ".skeleton.xml" }

// WriteSkeleton writes the bones of s, their hierarchy and the skeletal
// animations. Bone ids are indices into s.Bones.
func WriteSkeleton(w io.Writer, s *skeleton.Skeleton, anims []*anim.SkeletalAnimation) error {
	x := newWriter(w)
	x.open("<skeleton>")

	x.open("<bones>")
	for id, b := range s.Bones {
		axis, angle := b.Rotation.AxisAngle()
		x.open("<bone id=\"%d\" name=\"%s\">", id, esc(b.Name))
		x.vec("position", b.Position)
		x.open("<rotation angle=\"%.6f\">", angle)
		x.vec("axis", axis)
		x.close("rotation")
		x.close("bone")
	}
	x.close("bones")

	x.open("<bonehierarchy>")
	for _, b := range s.Bones {
		if b.Parent >= 0 {
			x.line("<boneparent bone=\"%s\" parent=\"%s\" />", esc(b.Name), esc(s.Bones[b.Parent].Name))
		}
	}
	x.close("bonehierarchy")

	if len(anims) > 0 {
		x.open("<animations>")
		for _, a := range anims {
			x.animation(a)
		}
		x.close("animations")
	}

	x.close("skeleton")
	return x.flush()
}

func (x *xmlWriter) animation(a *anim.SkeletalAnimation) {
	x.open("<animation name=\"%s\" length=\"%f\">", esc(a.Name), a.Length)
	x.open("<tracks>")
	for _, t := range a.Tracks {
		x.open("<track bone=\"%s\">", esc(t.Name))
		x.open("<keyframes>")
		for _, k := range t.Keyframes {
			x.open("<keyframe time=\"%f\">", k.Time)
			x.vec("translate", k.Translate)
			x.open("<rotate angle=\"%.6f\">", k.Angle)
			x.vec("axis", k.Axis)
			x.close("rotate")
			x.vec("scale", k.Scale)
			x.close("keyframe")
		}
		x.close("keyframes")
		x.close("track")
	}
	x.close("tracks")
	x.close("animation")
}
