// Package material collects the materials used by exported submeshes and
// writes them as a material script.
package material

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// Kind selects the technique written for a material.
type Kind int

// Material kinds.
const (
	KindDefault Kind = iota
	KindRendering
	KindGame
	KindVertexColour
)

// String returns the scene mode name of a kind.
func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindRendering:
		return "rendering"
	case KindGame:
		return "game"
	case KindVertexColour:
		return "vertex_colour"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// KindOf maps a scene material to its kind. A nil material is KindDefault.
func KindOf(m *scene.Material) (Kind, error) {
	if m == nil {
		return KindDefault, nil
	}
	switch m.Mode {
	case "", "rendering":
		return KindRendering, nil
	case "game":
		return KindGame, nil
	case "vertex_colour":
		return KindVertexColour, nil
	default:
		return 0, fmt.Errorf("material %q: unknown mode %q", m.Name, m.Mode)
	}
}

type entry struct {
	name string
	kind Kind
	src  *scene.Material
}

// Library is the set of materials referenced by exported meshes, in first
// use order.
type Library struct {
	// ColouredAmbient tints the ambient reflection of rendering materials
	// with their diffuse colour instead of white.
	ColouredAmbient bool

	entries  []entry
	byName   map[string]int
	textures map[string]string // basename -> path
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		byName:   make(map[string]int),
		textures: make(map[string]string),
	}
}

// Add registers a material under name. m may be nil for materials the scene
// does not define; those get the default technique. Adding a name twice
// keeps the first definition.
func (l *Library) Add(name string, m *scene.Material) error {
	if _, ok := l.byName[name]; ok {
		return nil
	}
	kind, err := KindOf(m)
	if err != nil {
		return err
	}
	if m != nil {
		for _, tex := range m.Textures {
			l.RegisterTexture(tex)
		}
	}
	l.byName[name] = len(l.entries)
	l.entries = append(l.entries, entry{name: name, kind: kind, src: m})
	return nil
}

// Len returns the number of materials.
func (l *Library) Len() int { return len(l.entries) }

// Names returns the material names in first use order.
func (l *Library) Names() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.name
	}
	return out
}

// RegisterTexture records a texture file and returns the basename the
// script refers to. Two paths with the same basename log a conflict.
func (l *Library) RegisterTexture(path string) string {
	base := filepath.Base(path)
	if prev, ok := l.textures[base]; ok && prev != path {
		logger.Warn("texture filename conflict",
			zap.String("texture", base),
			zap.String("path", path),
			zap.String("conflict", prev))
	}
	l.textures[base] = path
	return base
}

// Textures returns the registered texture paths sorted by basename.
func (l *Library) Textures() []string {
	keys := make([]string, 0, len(l.textures))
	for k := range l.textures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = l.textures[k]
	}
	return out
}

// Write writes the material script.
func (l *Library) Write(w io.Writer) error {
	p := &printer{w: bufio.NewWriter(w), colouredAmbient: l.ColouredAmbient}
	for _, e := range l.entries {
		p.line(0, "material %s", e.name)
		p.line(0, "{")
		switch e.kind {
		case KindDefault:
			p.emptyTechnique()
		case KindRendering:
			p.rendering(e.src)
		case KindGame:
			p.game(e.src)
		case KindVertexColour:
			p.vertexColour(e.src)
		}
		p.line(0, "}")
	}
	if p.err != nil {
		return p.err
	}
	return p.w.Flush()
}
