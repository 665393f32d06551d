package material

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/meshexport/pkg/scene"
)

// printer writes tab-indented script lines and keeps the first error.
type printer struct {
	w               *bufio.Writer
	err             error
	colouredAmbient bool
}

func (p *printer) line(depth int, format string, args ...any) {
	if p.err != nil {
		return
	}
	if _, err := p.w.WriteString(strings.Repeat("\t", depth)); err != nil {
		p.err = err
		return
	}
	if _, err := fmt.Fprintf(p.w, format+"\n", args...); err != nil {
		p.err = err
	}
}

func (p *printer) open(depth int, block string) {
	p.line(depth, "%s", block)
	p.line(depth, "{")
}

func (p *printer) close(depth int) { p.line(depth, "}") }

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (p *printer) emptyTechnique() {
	p.open(1, "technique")
	p.open(2, "pass")
	p.close(2)
	p.close(1)
}

func alpha(m *scene.Material) float64 { return m.Diffuse[3] }

func translucent(m *scene.Material) bool { return m.AlphaBlend || alpha(m) < 1 }

func (p *printer) ambient(m *scene.Material, col scene.Color) {
	a := m.Ambient
	p.line(3, "ambient %f %f %f %f", clamp(a*col[0]), clamp(a*col[1]), clamp(a*col[2]), alpha(m))
}

func (p *printer) diffuse(m *scene.Material, col scene.Color) {
	p.line(3, "diffuse %f %f %f %f", clamp(col[0]), clamp(col[1]), clamp(col[2]), alpha(m))
}

func (p *printer) specular(m *scene.Material) {
	s := m.Specular
	p.line(3, "specular %f %f %f %f %f", clamp(s[0]), clamp(s[1]), clamp(s[2]), alpha(m), m.Hardness/4)
}

func (p *printer) emissive(m *scene.Material, col scene.Color) {
	e := m.Emit
	p.line(3, "emissive %f %f %f %f", clamp(e*col[0]), clamp(e*col[1]), clamp(e*col[2]), alpha(m))
}

func (p *printer) sceneBlend(m *scene.Material) {
	if translucent(m) {
		p.line(3, "scene_blend alpha_blend")
		p.line(3, "depth_write off")
	}
}

func (p *printer) commonOptions(m *scene.Material) {
	if m.TwoSided {
		p.line(3, "cull_hardware none")
		p.line(3, "cull_software none")
	}
	if m.Shadeless {
		p.line(3, "lighting off")
	}
}

func (p *printer) textureUnit(path string) {
	p.open(3, "texture_unit")
	p.line(4, "texture %s", filepath.Base(path))
	p.close(3)
}

func (p *printer) rendering(m *scene.Material) {
	ambient := scene.Color{1, 1, 1, 1}
	if p.colouredAmbient {
		ambient = m.Diffuse
	}
	p.line(1, "receive_shadows on")
	p.open(1, "technique")
	p.open(2, "pass")
	p.ambient(m, ambient)
	p.diffuse(m, m.Diffuse)
	p.specular(m)
	p.emissive(m, m.Diffuse)
	p.sceneBlend(m)
	p.commonOptions(m)
	if len(m.Textures) > 0 {
		p.textureUnit(m.Textures[0])
	}
	p.close(2)
	p.close(1)
}

// game follows the game engine look: lit by the diffuse colour with one
// texture unit per texture.
func (p *printer) game(m *scene.Material) {
	p.open(1, "technique")
	p.open(2, "pass")
	p.diffuse(m, m.Diffuse)
	p.specular(m)
	if m.AlphaBlend {
		p.line(3, "scene_blend alpha_blend")
	}
	if m.TwoSided {
		p.line(3, "cull_hardware none")
		p.line(3, "cull_software none")
	}
	for _, tex := range m.Textures {
		p.textureUnit(tex)
	}
	p.close(2)
	p.close(1)
}

// vertexColour modulates vertex colours by the diffuse intensity and adds
// ambient and specular light in a second pass.
func (p *printer) vertexColour(m *scene.Material) {
	p.line(1, "receive_shadows on")
	p.open(1, "technique")
	if m.Shadeless {
		p.open(2, "pass")
		p.line(3, "diffuse vertexcolour")
		p.commonOptions(m)
		p.close(2)
		p.close(1)
		return
	}

	p.open(2, "pass")
	p.line(3, "ambient 0.0 0.0 0.0")
	p.line(3, "diffuse vertexcolour")
	p.commonOptions(m)
	p.close(2)

	p.open(2, "pass")
	p.line(3, "ambient 0.0 0.0 0.0")
	p.diffuse(m, m.Diffuse)
	p.line(3, "scene_blend modulate")
	p.commonOptions(m)
	p.close(2)

	p.open(2, "pass")
	p.ambient(m, scene.Color{1, 1, 1, 1})
	p.line(3, "diffuse 0.0 0.0 0.0")
	p.specular(m)
	p.line(3, "scene_blend add")
	p.commonOptions(m)
	p.close(2)
	p.close(1)
}
