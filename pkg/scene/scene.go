// Package scene holds an authoring-tool style scene: mesh and armature objects,
// shape keys, materials and keyframed actions.
//
// Scenes are usually read from YAML documents (see Parse and Load) and
// evaluated through an Evaluator, which owns the mutable evaluation state
// (current frame, active actions) the exporter samples animations from.
package scene

import (
	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/triangulate"
)

// ObjectType identifies what an object carries.
type ObjectType string

// Object types.
const (
	TypeMesh     ObjectType = "mesh"
	TypeArmature ObjectType = "armature"
)

// ClipKind selects the animation sampler used for a clip.
type ClipKind string

// Clip kinds.
const (
	ClipSkeletal ClipKind = "skeletal"
	ClipMorph    ClipKind = "morph"
	ClipPose     ClipKind = "pose"
)

// Scene is the root of a document.
type Scene struct {
	Name      string
	FPS       float64
	Frame     int
	Objects   []*Object
	Materials []*Material
	Actions   []*Action
}

// Object is a named, world-placed container for a mesh or an armature.
type Object struct {
	Name  string
	Type  ObjectType
	World math.Mat4

	Mesh     *Mesh
	Armature *Armature

	// ArmatureObject names the armature object deforming this mesh.
	ArmatureObject string
	// Action is the action active when the scene was loaded.
	Action string
	// Clips lists the animations requested for export.
	Clips []Clip
}

// Clip is one requested animation: a frame range sampled from an action.
// Start may be greater than End for backward clips.
type Clip struct {
	Name   string
	Kind   ClipKind
	Action string
	Start  int
	End    int
}

// Mesh is polygon data with per-corner attribute layers.
type Mesh struct {
	Name         string
	Vertices     []Vertex
	Faces        []Face
	Materials    []string
	UVLayers     []UVLayer
	ColorLayers  []ColorLayer
	VertexGroups []string
	ShapeKeys    []ShapeKey
}

// Vertex is a source mesh vertex.
type Vertex struct {
	Co     math.Vec3
	Normal math.Vec3
	Groups []GroupWeight
}

// GroupWeight is a vertex group membership.
type GroupWeight struct {
	Group  int
	Weight float64
}

// Face is a polygon referencing mesh vertices in loop order.
// Material indexes Mesh.Materials; a negative index means no material.
type Face struct {
	Verts    []int
	Material int
	Smooth   bool
}

// UVLayer stores texture coordinates per face corner: Faces[face][corner].
type UVLayer struct {
	Name  string
	Faces [][]math.Vec2
}

// Color is an RGBA colour with components in [0, 1].
type Color [4]float64

// ColorLayer stores vertex colours per face corner: Faces[face][corner].
type ColorLayer struct {
	Name  string
	Faces [][]Color
}

// ShapeKey is a full set of vertex positions. The first key of a mesh is the
// basis; the others are relative to it.
type ShapeKey struct {
	Name      string
	Positions []math.Vec3
	Value     float64
}

// Armature is a bone tree.
type Armature struct {
	Name  string
	Bones []Bone
}

// Bone is an armature bone with its rest matrix in armature space.
type Bone struct {
	Name   string
	Parent string
	Rest   math.Mat4
	Deform bool
}

// Action is a set of keyframed channels for bones and shape keys.
type Action struct {
	Name      string
	Bones     map[string][]BoneKey
	ShapeKeys map[string][]FloatKey
}

// BoneKey is a bone pose relative to the bone's rest pose.
type BoneKey struct {
	Frame    float64
	Location math.Vec3
	Rotation math.Quat
	Scale    math.Vec3
}

// FloatKey is a keyframed scalar.
type FloatKey struct {
	Frame float64
	Value float64
}

// Material describes a surface.
type Material struct {
	Name string
	// Mode selects the export technique: "", "rendering", "game" or "vertex_colour".
	Mode       string
	Diffuse    Color
	Specular   Color
	Ambient    float64
	Emit       float64
	Hardness   float64
	Shadeless  bool
	TwoSided   bool
	Textures   []string
	AlphaBlend bool
}

// Object returns the object with the given name or nil.
func (s *Scene) Object(name string) *Object {
	for _, o := range s.Objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Material returns the material with the given name or nil.
func (s *Scene) Material(name string) *Material {
	for _, m := range s.Materials {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Action returns the action with the given name or nil.
func (s *Scene) Action(name string) *Action {
	for _, a := range s.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// MeshObjects returns all mesh objects in document order.
func (s *Scene) MeshObjects() []*Object {
	var out []*Object
	for _, o := range s.Objects {
		if o.Type == TypeMesh {
			out = append(out, o)
		}
	}
	return out
}

// Bone returns the bone with the given name and its index, or nil and -1.
func (a *Armature) Bone(name string) (*Bone, int) {
	for i := range a.Bones {
		if a.Bones[i].Name == name {
			return &a.Bones[i], i
		}
	}
	return nil, -1
}

// Children returns the indices of the direct children of the named bone.
// An empty name returns the root bones.
func (a *Armature) Children(name string) []int {
	var out []int
	for i, b := range a.Bones {
		if b.Parent == name {
			out = append(out, i)
		}
	}
	return out
}

// RestPositions returns the undeformed vertex positions: the basis shape key
// when shape keys exist, the vertex coordinates otherwise.
func (m *Mesh) RestPositions() []math.Vec3 {
	out := make([]math.Vec3, len(m.Vertices))
	if len(m.ShapeKeys) > 0 {
		copy(out, m.ShapeKeys[0].Positions)
		return out
	}
	for i, v := range m.Vertices {
		out[i] = v.Co
	}
	return out
}

// FacePositions returns the rest positions of a face's loop.
func (m *Mesh) FacePositions(face int, rest []math.Vec3) []math.Vec3 {
	verts := m.Faces[face].Verts
	pts := make([]math.Vec3, len(verts))
	for i, v := range verts {
		pts[i] = rest[v]
	}
	return pts
}

// FaceNormal returns the Newell normal of a face at rest.
func (m *Mesh) FaceNormal(face int, rest []math.Vec3) math.Vec3 {
	return triangulate.NewellNormal(m.FacePositions(face, rest))
}

// GroupIndex returns the index of the named vertex group or -1.
func (m *Mesh) GroupIndex(name string) int {
	for i, g := range m.VertexGroups {
		if g == name {
			return i
		}
	}
	return -1
}

// ShapeKey returns the named shape key or nil.
func (m *Mesh) ShapeKey(name string) *ShapeKey {
	for i := range m.ShapeKeys {
		if m.ShapeKeys[i].Name == name {
			return &m.ShapeKeys[i]
		}
	}
	return nil
}

// computeNormals fills the normals of the listed vertices with the
// area-weighted average of the adjacent face normals.
func (m *Mesh) computeNormals(vertices []int) {
	rest := m.RestPositions()
	sums := make([]math.Vec3, len(m.Vertices))
	for fi := range m.Faces {
		pts := m.FacePositions(fi, rest)
		n := triangulate.NewellNormal(pts)
		area := triangulate.PolygonArea(pts)
		for _, v := range m.Faces[fi].Verts {
			sums[v] = sums[v].Add(n.Scale(area))
		}
	}
	for _, i := range vertices {
		m.Vertices[i].Normal = sums[i].Normalize()
	}
}
