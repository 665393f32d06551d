// Package gltfsink writes exported meshes as binary glTF files, next to the
// XML documents, for previewing in general purpose viewers.
package gltfsink

import (
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/meshexport/internal/mesh"
	"github.com/Faultbox/meshexport/internal/skeleton"
	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// FileName returns the .glb name of a mesh.
func FileName(name string) string { return name + ".glb" }

// MaterialFunc resolves a submesh material name; nil means undefined.
type MaterialFunc func(name string) *scene.Material

// bufferAccessors are the accessors of one vertex buffer.
type bufferAccessors struct {
	attributes map[string]uint32
	targets    []map[string]uint32
}

// Build converts m into a glTF document. skel may be nil.
func Build(m *mesh.Mesh, skel *skeleton.Skeleton, materials MaterialFunc) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	skinned := skel != nil && len(skel.Bones) > 0

	byBuffer := make(map[*mesh.VertexBuffer]*bufferAccessors)
	for _, t := range m.Targets() {
		byBuffer[t.Buffer] = writeBuffer(doc, t.Buffer, poseTargets(m, t), skinned)
	}

	matIndex := make(map[string]uint32)
	gm := &gltf.Mesh{Name: m.Name}
	for i, sub := range m.Submeshes {
		if len(sub.Faces) == 0 {
			continue
		}
		acc, ok := byBuffer[m.Buffer(i)]
		if !ok {
			return nil, fmt.Errorf("gltf: submesh %d has no vertex buffer", i)
		}
		mi, ok := matIndex[sub.Material]
		if !ok {
			mi = uint32(len(doc.Materials))
			doc.Materials = append(doc.Materials, material(sub.Material, materials))
			matIndex[sub.Material] = mi
		}

		indices := make([]uint32, 0, 3*len(sub.Faces))
		for _, f := range sub.Faces {
			indices = append(indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
		}
		gm.Primitives = append(gm.Primitives, &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
			Attributes: acc.attributes,
			Material:   gltf.Index(mi),
			Targets:    acc.targets,
		})
	}
	if len(m.Poses) > 0 {
		names := make([]string, 0, len(m.Poses))
		for _, p := range m.Poses {
			names = append(names, p.Name)
		}
		gm.Extras = map[string]interface{}{"targetNames": names}
	}

	doc.Meshes = []*gltf.Mesh{gm}
	root := &gltf.Node{Name: m.Name, Mesh: gltf.Index(0)}
	doc.Nodes = append(doc.Nodes, root)
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	if skinned {
		root.Skin = gltf.Index(addSkin(doc, skel))
	}
	return doc, nil
}

// Save writes m as a binary glTF file.
func Save(path string, m *mesh.Mesh, skel *skeleton.Skeleton, materials MaterialFunc) error {
	doc, err := Build(m, skel, materials)
	if err != nil {
		return err
	}
	if err := gltf.SaveBinary(doc, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func vec3(v math.Vec3) [3]float32 { return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)} }

func writeBuffer(doc *gltf.Document, buf *mesh.VertexBuffer, poses []mesh.Pose, skinned bool) *bufferAccessors {
	vs := buf.Vertices()
	layout := buf.Layout()

	positions := make([][3]float32, len(vs))
	normals := make([][3]float32, len(vs))
	for i := range vs {
		positions[i] = vec3(vs[i].Position)
		normals[i] = vec3(vs[i].Normal)
	}
	acc := &bufferAccessors{attributes: map[string]uint32{
		gltf.POSITION: modeler.WritePosition(doc, positions),
		gltf.NORMAL:   modeler.WriteNormal(doc, normals),
	}}

	for layer := 0; layer < layout.UVs; layer++ {
		uvs := make([][2]float32, len(vs))
		for i := range vs {
			uvs[i] = [2]float32{float32(vs[i].UVs[layer].X), float32(vs[i].UVs[layer].Y)}
		}
		acc.attributes[fmt.Sprintf("TEXCOORD_%d", layer)] = modeler.WriteTextureCoord(doc, uvs)
	}
	for layer := 0; layer < layout.Colors; layer++ {
		cols := make([][4]float32, len(vs))
		for i := range vs {
			c := vs[i].Colors[layer]
			cols[i] = [4]float32{float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3])}
		}
		acc.attributes[fmt.Sprintf("COLOR_%d", layer)] = modeler.WriteColor(doc, cols)
	}

	if skinned {
		joints := make([][4]uint16, len(vs))
		weights := make([][4]float32, len(vs))
		for i := range vs {
			var sum float64
			for j, inf := range vs[i].Influences {
				if j == mesh.MaxInfluences {
					break
				}
				joints[i][j] = uint16(inf.Bone)
				weights[i][j] = float32(inf.Weight)
				sum += inf.Weight
			}
			// glTF requires unit weight sums.
			if sum > 0 {
				for j := range weights[i] {
					weights[i][j] /= float32(sum)
				}
			} else {
				weights[i][0] = 1
			}
		}
		acc.attributes[gltf.JOINTS_0] = modeler.WriteJoints(doc, joints)
		acc.attributes[gltf.WEIGHTS_0] = modeler.WriteWeights(doc, weights)
	}

	for _, p := range poses {
		offsets := make([][3]float32, len(vs))
		for _, off := range p.Offsets {
			offsets[off.Index] = vec3(off.Offset)
		}
		acc.targets = append(acc.targets, map[string]uint32{
			gltf.POSITION: modeler.WritePosition(doc, offsets),
		})
	}
	return acc
}

// poseTargets returns the poses of a vertex buffer in mesh order.
func poseTargets(m *mesh.Mesh, t mesh.Target) []mesh.Pose {
	var out []mesh.Pose
	for _, i := range m.PosesFor(t.Submesh) {
		out = append(out, m.Poses[i])
	}
	return out
}

func material(name string, lookup MaterialFunc) *gltf.Material {
	var src *scene.Material
	if lookup != nil {
		src = lookup(name)
	}
	metallic, roughness := float32(0), float32(1)
	gm := &gltf.Material{
		Name: name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{1, 1, 1, 1},
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	}
	if src == nil {
		return gm
	}
	d := src.Diffuse
	gm.PBRMetallicRoughness.BaseColorFactor = &[4]float32{float32(d[0]), float32(d[1]), float32(d[2]), float32(d[3])}
	gm.DoubleSided = src.TwoSided
	if src.Emit > 0 {
		e := float32(src.Emit)
		gm.EmissiveFactor = [3]float32{e * float32(d[0]), e * float32(d[1]), e * float32(d[2])}
	}
	if src.AlphaBlend || d[3] < 1 {
		gm.AlphaMode = gltf.AlphaBlend
	}
	return gm
}

// addSkin appends one node per bone and a skin binding them, returning the
// skin index.
func addSkin(doc *gltf.Document, skel *skeleton.Skeleton) uint32 {
	first := uint32(len(doc.Nodes))
	global := make([]math.Mat4, len(skel.Bones))
	joints := make([]uint32, len(skel.Bones))
	for i, b := range skel.Bones {
		q := b.Rotation
		node := &gltf.Node{
			Name:        b.Name,
			Translation: vec3(b.Position),
			Rotation:    [4]float32{float32(q.X), float32(q.Y), float32(q.Z), float32(q.W)},
		}
		joints[i] = first + uint32(i)
		if b.Parent < 0 {
			global[i] = b.Rest
			doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, joints[i])
		} else {
			global[i] = global[b.Parent].Mul(b.Rest)
			parent := doc.Nodes[first+uint32(b.Parent)]
			parent.Children = append(parent.Children, joints[i])
		}
		doc.Nodes = append(doc.Nodes, node)
	}

	inverse := make([][4]float32, 0, 4*len(global))
	for _, g := range global {
		inv, ok := g.TryInverse()
		if !ok {
			inv = math.Identity()
		}
		for c := 0; c < 4; c++ {
			inverse = append(inverse, [4]float32{
				float32(inv[c*4]), float32(inv[c*4+1]), float32(inv[c*4+2]), float32(inv[c*4+3]),
			})
		}
	}
	acc := modeler.WriteTangent(doc, inverse)
	doc.Accessors[acc].Type = gltf.AccessorMat4
	doc.Accessors[acc].Count /= 4
	doc.BufferViews[*doc.Accessors[acc].BufferView].ByteStride *= 4

	doc.Skins = append(doc.Skins, &gltf.Skin{
		Name:                skel.Name,
		Joints:              joints,
		Skeleton:            gltf.Index(first),
		InverseBindMatrices: gltf.Index(acc),
	})
	return uint32(len(doc.Skins) - 1)
}
