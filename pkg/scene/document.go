package scene

import (
	"errors"
	"fmt"
	gomath "math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshexport/pkg/math"
)

// Document errors.
var (
	ErrInvalidScene = errors.New("invalid scene")
	ErrEmptyScene   = errors.New("scene has no objects")
)

// DefaultFPS is used when a document does not set fps.
const DefaultFPS = 25

// Load reads and parses a scene document from disk.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a YAML scene document and validates its references.
func Parse(data []byte) (*Scene, error) {
	var doc sceneDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	return doc.build()
}

type sceneDoc struct {
	Name      string        `yaml:"name"`
	FPS       float64       `yaml:"fps"`
	Frame     int           `yaml:"frame"`
	Materials []materialDoc `yaml:"materials"`
	Actions   []actionDoc   `yaml:"actions"`
	Objects   []objectDoc   `yaml:"objects"`
}

type transformDoc struct {
	Location   []float64   `yaml:"location"`
	Rotation   []float64   `yaml:"rotation"`   // XYZ euler, degrees
	Quaternion []float64   `yaml:"quaternion"` // w x y z
	Scale      []float64   `yaml:"scale"`
	Matrix     [][]float64 `yaml:"matrix"` // rows
}

type materialDoc struct {
	Name       string    `yaml:"name"`
	Mode       string    `yaml:"mode"`
	Diffuse    []float64 `yaml:"diffuse"`
	Specular   []float64 `yaml:"specular"`
	Ambient    *float64  `yaml:"ambient"`
	Emit       float64   `yaml:"emit"`
	Hardness   *float64  `yaml:"hardness"`
	Shadeless  bool      `yaml:"shadeless"`
	TwoSided   bool      `yaml:"two_sided"`
	Textures   []string  `yaml:"textures"`
	AlphaBlend bool      `yaml:"alpha_blend"`
}

type actionDoc struct {
	Name      string                   `yaml:"name"`
	Bones     map[string][]boneKeyDoc  `yaml:"bones"`
	ShapeKeys map[string][]floatKeyDoc `yaml:"shape_keys"`
}

type boneKeyDoc struct {
	Frame float64 `yaml:"frame"`

	transformDoc `yaml:",inline"`
}

type floatKeyDoc struct {
	Frame float64 `yaml:"frame"`
	Value float64 `yaml:"value"`
}

type objectDoc struct {
	Name     string    `yaml:"name"`
	Type     string    `yaml:"type"`
	Armature string    `yaml:"armature"`
	Action   string    `yaml:"action"`
	Clips    []clipDoc `yaml:"clips"`
	Mesh     *meshDoc  `yaml:"mesh"`
	Bones    []boneDoc `yaml:"bones"`

	transformDoc `yaml:",inline"`
}

type clipDoc struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Action string `yaml:"action"`
	Start  int    `yaml:"start"`
	End    int    `yaml:"end"`
}

type meshDoc struct {
	Name         string          `yaml:"name"`
	Vertices     []vertexDoc     `yaml:"vertices"`
	Faces        []faceDoc       `yaml:"faces"`
	Materials    []string        `yaml:"materials"`
	VertexGroups []string        `yaml:"vertex_groups"`
	UVLayers     []uvLayerDoc    `yaml:"uv_layers"`
	ColorLayers  []colorLayerDoc `yaml:"color_layers"`
	ShapeKeys    []shapeKeyDoc   `yaml:"shape_keys"`
}

type vertexDoc struct {
	Co     []float64          `yaml:"co"`
	Normal []float64          `yaml:"normal"`
	Groups map[string]float64 `yaml:"groups"`
}

type faceDoc struct {
	Verts    []int `yaml:"verts"`
	Material *int  `yaml:"material"`
	Smooth   bool  `yaml:"smooth"`
}

type uvLayerDoc struct {
	Name  string        `yaml:"name"`
	Faces [][][]float64 `yaml:"faces"`
}

type colorLayerDoc struct {
	Name  string        `yaml:"name"`
	Faces [][][]float64 `yaml:"faces"`
}

type shapeKeyDoc struct {
	Name      string      `yaml:"name"`
	Value     float64     `yaml:"value"`
	Positions [][]float64 `yaml:"positions"`
}

type boneDoc struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
	Deform *bool  `yaml:"deform"`

	transformDoc `yaml:",inline"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidScene, fmt.Sprintf(format, args...))
}

func (d *sceneDoc) build() (*Scene, error) {
	if len(d.Objects) == 0 {
		return nil, ErrEmptyScene
	}

	s := &Scene{Name: d.Name, FPS: d.FPS, Frame: d.Frame}
	if s.FPS == 0 {
		s.FPS = DefaultFPS
	}
	if s.FPS < 0 {
		return nil, invalid("fps %v must be positive", d.FPS)
	}

	names := make(map[string]bool)
	for _, md := range d.Materials {
		if md.Name == "" || names[md.Name] {
			return nil, invalid("material name %q empty or duplicated", md.Name)
		}
		names[md.Name] = true
		m, err := md.build()
		if err != nil {
			return nil, err
		}
		s.Materials = append(s.Materials, m)
	}

	names = make(map[string]bool)
	for _, ad := range d.Actions {
		if ad.Name == "" || names[ad.Name] {
			return nil, invalid("action name %q empty or duplicated", ad.Name)
		}
		names[ad.Name] = true
		a, err := ad.build()
		if err != nil {
			return nil, err
		}
		s.Actions = append(s.Actions, a)
	}

	names = make(map[string]bool)
	for _, od := range d.Objects {
		if od.Name == "" || names[od.Name] {
			return nil, invalid("object name %q empty or duplicated", od.Name)
		}
		names[od.Name] = true
		o, err := od.build()
		if err != nil {
			return nil, err
		}
		s.Objects = append(s.Objects, o)
	}

	if err := s.validateReferences(); err != nil {
		return nil, err
	}
	return s, nil
}

// validateReferences checks cross-object links once every object is known.
func (s *Scene) validateReferences() error {
	for _, o := range s.Objects {
		if o.ArmatureObject != "" {
			a := s.Object(o.ArmatureObject)
			if a == nil || a.Type != TypeArmature {
				return invalid("object %q: armature %q not found", o.Name, o.ArmatureObject)
			}
		}
		if o.Action != "" && s.Action(o.Action) == nil {
			return invalid("object %q: action %q not found", o.Name, o.Action)
		}
		for _, c := range o.Clips {
			if c.Action != "" && s.Action(c.Action) == nil {
				return invalid("object %q: clip %q: action %q not found", o.Name, c.Name, c.Action)
			}
			if c.Kind == ClipSkeletal && o.Type == TypeMesh && o.ArmatureObject == "" {
				return invalid("object %q: skeletal clip %q without armature", o.Name, c.Name)
			}
		}
	}
	return nil
}

func (t transformDoc) matrix() (math.Mat4, error) {
	if t.Matrix != nil {
		if len(t.Matrix) != 4 {
			return math.Mat4{}, invalid("matrix needs 4 rows, got %d", len(t.Matrix))
		}
		var m math.Mat4
		for r, row := range t.Matrix {
			if len(row) != 4 {
				return math.Mat4{}, invalid("matrix row %d needs 4 values, got %d", r, len(row))
			}
			for c, v := range row {
				m[c*4+r] = v
			}
		}
		return m, nil
	}

	loc, err := vec3Or(t.Location, math.Vec3{})
	if err != nil {
		return math.Mat4{}, err
	}
	scale, err := vec3Or(t.Scale, math.Vec3{X: 1, Y: 1, Z: 1})
	if err != nil {
		return math.Mat4{}, err
	}
	rot, err := t.rotation()
	if err != nil {
		return math.Mat4{}, err
	}
	return math.Compose(loc, rot, scale), nil
}

func (t transformDoc) rotation() (math.Quat, error) {
	switch {
	case t.Quaternion != nil && t.Rotation != nil:
		return math.Quat{}, invalid("both rotation and quaternion given")
	case t.Quaternion != nil:
		if len(t.Quaternion) != 4 {
			return math.Quat{}, invalid("quaternion needs 4 values, got %d", len(t.Quaternion))
		}
		q := t.Quaternion
		return math.Quat{W: q[0], X: q[1], Y: q[2], Z: q[3]}.Normalize(), nil
	case t.Rotation != nil:
		e, err := vec3Or(t.Rotation, math.Vec3{})
		if err != nil {
			return math.Quat{}, err
		}
		return eulerXYZ(e), nil
	}
	return math.QuatIdentity(), nil
}

// eulerXYZ converts XYZ euler angles in degrees: X is applied first.
func eulerXYZ(deg math.Vec3) math.Quat {
	rad := deg.Scale(gomath.Pi / 180)
	qx := math.QuatFromAxisAngle(math.Vec3{X: 1}, rad.X)
	qy := math.QuatFromAxisAngle(math.Vec3{Y: 1}, rad.Y)
	qz := math.QuatFromAxisAngle(math.Vec3{Z: 1}, rad.Z)
	return qz.Mul(qy).Mul(qx).Normalize()
}

func vec3Or(v []float64, def math.Vec3) (math.Vec3, error) {
	if v == nil {
		return def, nil
	}
	if len(v) != 3 {
		return math.Vec3{}, invalid("vector needs 3 values, got %d", len(v))
	}
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func colorOr(v []float64, def Color) (Color, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 3:
		return Color{v[0], v[1], v[2], 1}, nil
	case 4:
		return Color{v[0], v[1], v[2], v[3]}, nil
	}
	return Color{}, invalid("colour needs 3 or 4 values, got %d", len(v))
}

func (d materialDoc) build() (*Material, error) {
	switch d.Mode {
	case "", "rendering", "game", "vertex_colour":
	default:
		return nil, invalid("material %q: unknown mode %q", d.Name, d.Mode)
	}
	diffuse, err := colorOr(d.Diffuse, Color{0.8, 0.8, 0.8, 1})
	if err != nil {
		return nil, fmt.Errorf("material %q: %w", d.Name, err)
	}
	specular, err := colorOr(d.Specular, Color{1, 1, 1, 1})
	if err != nil {
		return nil, fmt.Errorf("material %q: %w", d.Name, err)
	}
	m := &Material{
		Name:       d.Name,
		Mode:       d.Mode,
		Diffuse:    diffuse,
		Specular:   specular,
		Ambient:    0.5,
		Emit:       d.Emit,
		Hardness:   50,
		Shadeless:  d.Shadeless,
		TwoSided:   d.TwoSided,
		Textures:   d.Textures,
		AlphaBlend: d.AlphaBlend,
	}
	if d.Ambient != nil {
		m.Ambient = *d.Ambient
	}
	if d.Hardness != nil {
		m.Hardness = *d.Hardness
	}
	return m, nil
}

func (d actionDoc) build() (*Action, error) {
	a := &Action{
		Name:      d.Name,
		Bones:     make(map[string][]BoneKey, len(d.Bones)),
		ShapeKeys: make(map[string][]FloatKey, len(d.ShapeKeys)),
	}
	for bone, keys := range d.Bones {
		out := make([]BoneKey, 0, len(keys))
		for _, k := range keys {
			if k.Matrix != nil {
				return nil, invalid("action %q: bone %q: keys take location/rotation/scale, not matrix", d.Name, bone)
			}
			loc, err := vec3Or(k.Location, math.Vec3{})
			if err != nil {
				return nil, fmt.Errorf("action %q: bone %q: %w", d.Name, bone, err)
			}
			scale, err := vec3Or(k.Scale, math.Vec3{X: 1, Y: 1, Z: 1})
			if err != nil {
				return nil, fmt.Errorf("action %q: bone %q: %w", d.Name, bone, err)
			}
			rot, err := k.rotation()
			if err != nil {
				return nil, fmt.Errorf("action %q: bone %q: %w", d.Name, bone, err)
			}
			out = append(out, BoneKey{Frame: k.Frame, Location: loc, Rotation: rot, Scale: scale})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
		a.Bones[bone] = out
	}
	for key, keys := range d.ShapeKeys {
		out := make([]FloatKey, len(keys))
		for i, k := range keys {
			out[i] = FloatKey{Frame: k.Frame, Value: k.Value}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
		a.ShapeKeys[key] = out
	}
	return a, nil
}

func (d objectDoc) build() (*Object, error) {
	world, err := d.matrix()
	if err != nil {
		return nil, fmt.Errorf("object %q: %w", d.Name, err)
	}
	o := &Object{
		Name:           d.Name,
		Type:           ObjectType(d.Type),
		World:          world,
		ArmatureObject: d.Armature,
		Action:         d.Action,
	}

	for _, cd := range d.Clips {
		kind := ClipKind(cd.Kind)
		switch kind {
		case ClipSkeletal, ClipMorph, ClipPose:
		case "":
			kind = ClipSkeletal
			if o.Type == TypeMesh && d.Armature == "" {
				kind = ClipMorph
			}
		default:
			return nil, invalid("object %q: clip %q: unknown kind %q", d.Name, cd.Name, cd.Kind)
		}
		if cd.Name == "" {
			return nil, invalid("object %q: clip without name", d.Name)
		}
		o.Clips = append(o.Clips, Clip{Name: cd.Name, Kind: kind, Action: cd.Action, Start: cd.Start, End: cd.End})
	}

	switch o.Type {
	case TypeMesh:
		if d.Mesh == nil {
			return nil, invalid("mesh object %q has no mesh", d.Name)
		}
		m, err := d.Mesh.build()
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", d.Name, err)
		}
		if m.Name == "" {
			m.Name = d.Name
		}
		o.Mesh = m
	case TypeArmature:
		arm, err := buildArmature(d.Name, d.Bones)
		if err != nil {
			return nil, err
		}
		o.Armature = arm
	default:
		return nil, invalid("object %q: unknown type %q", d.Name, d.Type)
	}
	return o, nil
}

func buildArmature(name string, docs []boneDoc) (*Armature, error) {
	arm := &Armature{Name: name}
	seen := make(map[string]bool, len(docs))
	for _, bd := range docs {
		if bd.Name == "" || seen[bd.Name] {
			return nil, invalid("armature %q: bone name %q empty or duplicated", name, bd.Name)
		}
		seen[bd.Name] = true
		rest, err := bd.matrix()
		if err != nil {
			return nil, fmt.Errorf("armature %q: bone %q: %w", name, bd.Name, err)
		}
		deform := true
		if bd.Deform != nil {
			deform = *bd.Deform
		}
		arm.Bones = append(arm.Bones, Bone{Name: bd.Name, Parent: bd.Parent, Rest: rest, Deform: deform})
	}
	for _, b := range arm.Bones {
		if b.Parent != "" && !seen[b.Parent] {
			return nil, invalid("armature %q: bone %q: parent %q not found", name, b.Name, b.Parent)
		}
	}
	// Every bone must reach a root.
	for _, b := range arm.Bones {
		cur, steps := b, 0
		for cur.Parent != "" {
			p, _ := arm.Bone(cur.Parent)
			cur = *p
			if steps++; steps > len(arm.Bones) {
				return nil, invalid("armature %q: bone %q is part of a parent cycle", name, b.Name)
			}
		}
	}
	return arm, nil
}

func (d *meshDoc) build() (*Mesh, error) {
	m := &Mesh{
		Name:         d.Name,
		Materials:    d.Materials,
		VertexGroups: d.VertexGroups,
	}

	var missing []int
	for i, vd := range d.Vertices {
		co, err := vec3Or(vd.Co, math.Vec3{})
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		v := Vertex{Co: co}
		if vd.Normal == nil {
			missing = append(missing, i)
		} else if v.Normal, err = vec3Or(vd.Normal, math.Vec3{}); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		v.Normal = v.Normal.Normalize()

		groups := make([]string, 0, len(vd.Groups))
		for g := range vd.Groups {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			gi := m.GroupIndex(g)
			if gi < 0 {
				return nil, invalid("vertex %d: unknown vertex group %q", i, g)
			}
			v.Groups = append(v.Groups, GroupWeight{Group: gi, Weight: vd.Groups[g]})
		}
		m.Vertices = append(m.Vertices, v)
	}

	for i, fd := range d.Faces {
		for _, v := range fd.Verts {
			if v < 0 || v >= len(m.Vertices) {
				return nil, invalid("face %d references vertex %d of %d", i, v, len(m.Vertices))
			}
		}
		mat := 0
		if len(m.Materials) == 0 {
			mat = -1
		}
		if fd.Material != nil {
			mat = *fd.Material
		}
		if mat >= len(m.Materials) {
			return nil, invalid("face %d references material slot %d of %d", i, mat, len(m.Materials))
		}
		m.Faces = append(m.Faces, Face{Verts: fd.Verts, Material: mat, Smooth: fd.Smooth})
	}

	for _, ld := range d.UVLayers {
		layer := UVLayer{Name: ld.Name, Faces: make([][]math.Vec2, len(ld.Faces))}
		if err := m.checkCorners("uv layer "+ld.Name, len(ld.Faces), func(f int) int { return len(ld.Faces[f]) }); err != nil {
			return nil, err
		}
		for f, corners := range ld.Faces {
			layer.Faces[f] = make([]math.Vec2, len(corners))
			for c, uv := range corners {
				if len(uv) != 2 {
					return nil, invalid("uv layer %q: face %d corner %d needs 2 values", ld.Name, f, c)
				}
				layer.Faces[f][c] = math.Vec2{X: uv[0], Y: uv[1]}
			}
		}
		m.UVLayers = append(m.UVLayers, layer)
	}

	for _, ld := range d.ColorLayers {
		layer := ColorLayer{Name: ld.Name, Faces: make([][]Color, len(ld.Faces))}
		if err := m.checkCorners("colour layer "+ld.Name, len(ld.Faces), func(f int) int { return len(ld.Faces[f]) }); err != nil {
			return nil, err
		}
		for f, corners := range ld.Faces {
			layer.Faces[f] = make([]Color, len(corners))
			for c, col := range corners {
				cc, err := colorOr(col, Color{})
				if err != nil || len(col) == 0 {
					return nil, invalid("colour layer %q: face %d corner %d needs 3 or 4 values", ld.Name, f, c)
				}
				layer.Faces[f][c] = cc
			}
		}
		m.ColorLayers = append(m.ColorLayers, layer)
	}

	for _, kd := range d.ShapeKeys {
		if len(kd.Positions) != len(m.Vertices) {
			return nil, invalid("shape key %q has %d positions for %d vertices", kd.Name, len(kd.Positions), len(m.Vertices))
		}
		key := ShapeKey{Name: kd.Name, Value: kd.Value, Positions: make([]math.Vec3, len(kd.Positions))}
		for i, p := range kd.Positions {
			v, err := vec3Or(p, math.Vec3{})
			if err != nil {
				return nil, fmt.Errorf("shape key %q: position %d: %w", kd.Name, i, err)
			}
			key.Positions[i] = v
		}
		m.ShapeKeys = append(m.ShapeKeys, key)
	}

	if len(missing) > 0 {
		m.computeNormals(missing)
	}
	return m, nil
}

// checkCorners verifies a per-corner layer matches the face loop sizes.
func (m *Mesh) checkCorners(layer string, faces int, corners func(int) int) error {
	if faces != len(m.Faces) {
		return invalid("%s has %d faces, mesh has %d", layer, faces, len(m.Faces))
	}
	for f := range m.Faces {
		if n := corners(f); n != len(m.Faces[f].Verts) {
			return invalid("%s: face %d has %d corners, want %d", layer, f, n, len(m.Faces[f].Verts))
		}
	}
	return nil
}
