package serialize

import (
	"fmt"
	"io"

	"github.com/Faultbox/meshexport/internal/anim"
	"github.com/Faultbox/meshexport/internal/mesh"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// MeshOptions controls optional mesh document content.
type MeshOptions struct {
	// BGRA swaps red and blue in vertex colours.
	BGRA bool
	// SubmeshNames writes the submeshnames block.
	SubmeshNames bool
}

// MeshFileName returns the document name of a mesh.
func MeshFileName(name string) string { return name + ".mesh.xml" }

// WriteMesh writes m and its vertex animations. anims may be nil; its
// skeletal animations are ignored. When both pose and morph animations are
// present only the pose animations are written.
func WriteMesh(w io.Writer, m *mesh.Mesh, anims *anim.Set, opts MeshOptions) error {
	x := newWriter(w)
	x.open("<mesh>")

	skinned := m.SkeletonName != ""
	if m.Shared != nil && m.Shared.Len() > 0 {
		x.open("<sharedgeometry vertexcount=\"%d\">", m.Shared.Len())
		x.vertexBuffer(m.Shared, opts)
		x.close("sharedgeometry")
	}

	if len(m.Submeshes) > 0 {
		x.open("<submeshes>")
		for i, sub := range m.Submeshes {
			x.submesh(m, i, sub, skinned, opts)
		}
		x.close("submeshes")
	}

	if skinned {
		x.line("<skeletonlink name=\"%s\"/>", esc(SkeletonFileName(m.SkeletonName)))
		if m.Shared != nil && m.Shared.HasInfluences() {
			x.boneAssignments(m.Shared)
		}
	}

	if opts.SubmeshNames && len(m.Submeshes) > 0 {
		x.open("<submeshnames>")
		for i, sub := range m.Submeshes {
			x.line("<submeshname name=\"%s\" index=\"%d\" />", esc(sub.Name), i)
		}
		x.close("submeshnames")
	}

	if len(m.Poses) > 0 {
		x.open("<poses>")
		for _, p := range m.Poses {
			x.open("<pose %s name=\"%s\">", target(p.Target), esc(p.Name))
			for _, off := range p.Offsets {
				o := off.Offset
				x.line("<poseoffset index=\"%d\" x=\"%.6f\" y=\"%.6f\" z=\"%.6f\"/>", off.Index, o.X, o.Y, o.Z)
			}
			x.close("pose")
		}
		x.close("poses")
	}

	if anims != nil {
		x.vertexAnimations(anims)
	}

	x.close("mesh")
	return x.flush()
}

func target(submesh int) string {
	if submesh < 0 {
		return "target=\"mesh\""
	}
	return fmt.Sprintf("target=\"submesh\" index=\"%d\"", submesh)
}

func (x *xmlWriter) submesh(m *mesh.Mesh, i int, sub *mesh.Submesh, skinned bool, opts MeshOptions) {
	buf := m.Buffer(i)
	head := fmt.Sprintf("<submesh material=\"%s\" usesharedvertices=\"%t\"", esc(sub.Material), sub.Shared)
	if buf.Use32BitIndexes() {
		head += " use32bitindexes=\"true\""
	}
	x.open("%s>", head)

	x.open("<faces count=\"%d\">", len(sub.Faces))
	for _, f := range sub.Faces {
		x.line("<face v1=\"%d\" v2=\"%d\" v3=\"%d\"/>", f[0], f[1], f[2])
	}
	x.close("faces")

	if !sub.Shared {
		x.open("<geometry vertexcount=\"%d\">", buf.Len())
		x.vertexBuffer(buf, opts)
		x.close("geometry")
		if skinned && buf.HasInfluences() {
			x.boneAssignments(buf)
		}
	}
	x.close("submesh")
}

func (x *xmlWriter) vertexBuffer(buf *mesh.VertexBuffer, opts MeshOptions) {
	layout := buf.Layout()
	head := "<vertexbuffer positions=\"true\" normals=\"true\""
	if layout.Colors > 0 {
		head += " colours_diffuse=\"true\""
	}
	if layout.Colors > 1 {
		head += " colours_specular=\"true\""
	}
	if layout.UVs > 0 {
		head += fmt.Sprintf(" texture_coords=\"%d\"", layout.UVs)
	}
	x.open("%s>", head)
	for _, v := range buf.Vertices() {
		x.open("<vertex>")
		x.vec("position", v.Position)
		x.vec("normal", v.Normal)
		for i, c := range v.Colors {
			tag := "colour_diffuse"
			if i == 1 {
				tag = "colour_specular"
			}
			x.colour(tag, c, opts.BGRA)
		}
		for _, uv := range v.UVs {
			x.line("<texcoord u=\"%.6f\" v=\"%.6f\"/>", uv.X, uv.Y)
		}
		x.close("vertex")
	}
	x.close("vertexbuffer")
}

func (x *xmlWriter) colour(tag string, c scene.Color, bgra bool) {
	if bgra {
		c[0], c[2] = c[2], c[0]
	}
	x.line("<%s value=\"%.6f %.6f %.6f %.6f\"/>", tag, c[0], c[1], c[2], c[3])
}

func (x *xmlWriter) boneAssignments(buf *mesh.VertexBuffer) {
	x.open("<boneassignments>")
	for i, v := range buf.Vertices() {
		for _, inf := range v.Influences {
			x.line("<vertexboneassignment vertexindex=\"%d\" boneindex=\"%d\" weight=\"%.6f\"/>", i, inf.Bone, inf.Weight)
		}
	}
	x.close("boneassignments")
}

func (x *xmlWriter) vertexAnimations(set *anim.Set) {
	switch {
	case len(set.Pose) > 0:
		x.open("<animations>")
		for _, a := range set.Pose {
			x.open("<animation name=\"%s\" length = \"%.6f\">", esc(a.Name), a.Length)
			x.open("<tracks>")
			for _, t := range a.Tracks {
				x.open("<track %s type=\"pose\">", target(t.Target))
				x.open("<keyframes>")
				for _, k := range t.Keyframes {
					x.open("<keyframe time=\"%.6f\">", k.Time)
					for _, ref := range k.Refs {
						x.line("<poseref poseindex=\"%d\" influence=\"%.6f\"/>", ref.Pose, ref.Influence)
					}
					x.close("keyframe")
				}
				x.close("keyframes")
				x.close("track")
			}
			x.close("tracks")
			x.close("animation")
		}
		x.close("animations")
	case len(set.Morph) > 0:
		x.open("<animations>")
		for _, a := range set.Morph {
			x.open("<animation name=\"%s\" length = \"%.6f\">", esc(a.Name), a.Length)
			x.open("<tracks>")
			for _, t := range a.Tracks {
				x.open("<track %s type=\"morph\">", target(t.Target))
				x.open("<keyframes>")
				for _, k := range t.Keyframes {
					x.open("<keyframe time=\"%.6f\">", k.Time)
					for _, p := range k.Positions {
						x.vec("position", p)
					}
					x.close("keyframe")
				}
				x.close("keyframes")
				x.close("track")
			}
			x.close("tracks")
			x.close("animation")
		}
		x.close("animations")
	}
}
