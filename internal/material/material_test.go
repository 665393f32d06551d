package material

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Faultbox/meshexport/pkg/scene"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		mode    string
		want    Kind
		wantErr bool
	}{
		{"", KindRendering, false},
		{"rendering", KindRendering, false},
		{"game", KindGame, false},
		{"vertex_colour", KindVertexColour, false},
		{"toon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := KindOf(&scene.Material{Name: "m", Mode: tt.mode})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("KindOf(%q) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
	if k, _ := KindOf(nil); k != KindDefault {
		t.Errorf("KindOf(nil) = %v, want default", k)
	}
}

func TestWriteDefault(t *testing.T) {
	l := NewLibrary()
	l.Add("BaseWhite", nil)

	var buf bytes.Buffer
	if err := l.Write(&buf); err != nil {
		t.Fatal(err)
	}
	want := "material BaseWhite\n{\n\ttechnique\n\t{\n\t\tpass\n\t\t{\n\t\t}\n\t}\n}\n"
	if buf.String() != want {
		t.Errorf("script =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteKinds(t *testing.T) {
	skin := &scene.Material{
		Name:     "Skin",
		Diffuse:  scene.Color{1, 0.5, 0.25, 0.5},
		Specular: scene.Color{1, 1, 1, 1},
		Ambient:  0.5,
		Hardness: 50,
		TwoSided: true,
		Textures: []string{"textures/skin.png"},
	}

	tests := []struct {
		name    string
		mode    string
		want    []string
		notWant []string
	}{
		{"rendering", "", []string{
			"\treceive_shadows on\n",
			"\t\t\tambient 0.500000 0.500000 0.500000 0.500000\n",
			"\t\t\tdiffuse 1.000000 0.500000 0.250000 0.500000\n",
			"\t\t\tspecular 1.000000 1.000000 1.000000 0.500000 12.500000\n",
			"\t\t\tscene_blend alpha_blend\n",
			"\t\t\tcull_hardware none\n",
			"\t\t\t\ttexture skin.png\n",
		}, nil},
		{"game", "game", []string{
			"\t\t\tdiffuse 1.000000 0.500000 0.250000 0.500000\n",
			"\t\t\t\ttexture skin.png\n",
		}, []string{"receive_shadows", "ambient"}},
		{"vertex colour", "vertex_colour", []string{
			"\t\t\tdiffuse vertexcolour\n",
			"\t\t\tscene_blend modulate\n",
			"\t\t\tscene_blend add\n",
		}, []string{"texture_unit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := *skin
			m.Mode = tt.mode
			l := NewLibrary()
			if err := l.Add("Skin", &m); err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			if err := l.Write(&buf); err != nil {
				t.Fatal(err)
			}
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("script missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("script contains %q:\n%s", w, out)
				}
			}
			if strings.Count(out, "{") != strings.Count(out, "}") {
				t.Errorf("unbalanced braces:\n%s", out)
			}
		})
	}
}

func TestWriteColouredAmbient(t *testing.T) {
	m := &scene.Material{Name: "Clay", Diffuse: scene.Color{1, 0.5, 0.25, 1}, Ambient: 0.5}
	tests := []struct {
		coloured bool
		want     string
	}{
		{false, "\t\t\tambient 0.500000 0.500000 0.500000 1.000000\n"},
		{true, "\t\t\tambient 0.500000 0.250000 0.125000 1.000000\n"},
	}
	for _, tt := range tests {
		l := NewLibrary()
		l.ColouredAmbient = tt.coloured
		if err := l.Add("Clay", m); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := l.Write(&buf); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("coloured=%v: script missing %q:\n%s", tt.coloured, tt.want, buf.String())
		}
	}
}

func TestLibraryOrderAndTextures(t *testing.T) {
	l := NewLibrary()
	l.Add("B", &scene.Material{Name: "B", Textures: []string{"a/wood.png"}})
	l.Add("A", nil)
	l.Add("B", nil)
	l.Add("C", &scene.Material{Name: "C", Textures: []string{"b/wood.png", "stone.png"}})

	names := l.Names()
	if len(names) != 3 || names[0] != "B" || names[1] != "A" || names[2] != "C" {
		t.Errorf("names = %v, want [B A C]", names)
	}
	tex := l.Textures()
	if len(tex) != 2 || tex[0] != "stone.png" || tex[1] != "b/wood.png" {
		t.Errorf("textures = %v", tex)
	}
	if got := l.RegisterTexture("x/y/rock.tga"); got != "rock.tga" {
		t.Errorf("RegisterTexture = %q, want basename", got)
	}
}

func TestAddUnknownMode(t *testing.T) {
	l := NewLibrary()
	if err := l.Add("Odd", &scene.Material{Name: "Odd", Mode: "toon"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if l.Len() != 0 {
		t.Errorf("failed material was added")
	}
}
