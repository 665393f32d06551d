package exporter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/Faultbox/meshexport/internal/config"
	"github.com/Faultbox/meshexport/internal/converter"
	"github.com/Faultbox/meshexport/internal/skeleton"
	"github.com/Faultbox/meshexport/pkg/math"
	"github.com/Faultbox/meshexport/pkg/scene"
)

const demo = `
name: Demo
fps: 24
materials:
  - name: Skin
    diffuse: [1, 0.8, 0.6]
    textures: [tex/skin.png]
actions:
  - name: Wave
    bones:
      Arm:
        - {frame: 1}
        - {frame: 5, rotation: [0, 0, 90]}
    shape_keys:
      Smile:
        - {frame: 1, value: 0}
        - {frame: 5, value: 1}
objects:
  - name: Rig
    type: armature
    bones:
      - name: Root
      - name: Arm
        parent: Root
        location: [0, 1, 0]
  - name: Body
    type: mesh
    armature: Rig
    clips:
      - {name: wave, kind: skeletal, action: Wave, start: 1, end: 5}
      - {name: smile, kind: pose, action: Wave, start: 1, end: 5}
    mesh:
      materials: [Skin]
      vertex_groups: [Root, Arm]
      vertices:
        - {co: [0, 0, 0], groups: {Root: 1}}
        - {co: [1, 0, 0], groups: {Root: 0.5, Arm: 0.5}}
        - {co: [1, 1, 0], groups: {Arm: 1}}
        - {co: [0, 1, 0], groups: {Arm: 1}}
      faces:
        - {verts: [0, 1, 2, 3]}
      shape_keys:
        - name: Basis
          positions: [[0, 0, 0], [1, 0, 0], [1, 1, 0], [0, 1, 0]]
        - name: Smile
          positions: [[0, 0, 1], [1, 0, 0], [1, 1, 0], [0, 1, 0]]
  - name: Squashed
    type: mesh
    armature: Rig
    scale: [1, 1, 0]
    mesh:
      vertices:
        - {co: [0, 0, 0]}
        - {co: [1, 0, 0]}
        - {co: [0, 1, 0]}
      faces:
        - {verts: [0, 1, 2]}
  - name: Prop
    type: mesh
    mesh:
      vertices:
        - {co: [0, 0, 0]}
        - {co: [1, 0, 0]}
        - {co: [0, 1, 0]}
      faces:
        - {verts: [0, 1, 2]}
`

func loadDemo(t *testing.T) *scene.Scene {
	t.Helper()
	sc, err := scene.Parse([]byte(demo))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return sc
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Export.OutputDir = t.TempDir()
	return cfg
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRunIsolatesFailures(t *testing.T) {
	cfg := testConfig(t)
	report, err := New(cfg).Run(context.Background(), loadDemo(t))
	if !errors.Is(err, skeleton.ErrSingularMesh) {
		t.Fatalf("Run err = %v, want ErrSingularMesh", err)
	}

	failed := report.Failed()
	if len(report.Results) != 3 || len(failed) != 1 || failed[0].Object != "Squashed" {
		t.Fatalf("results = %+v", report.Results)
	}

	out := cfg.Export.OutputDir
	body := readFile(t, filepath.Join(out, "Body.mesh.xml"))
	for _, want := range []string{
		`<skeletonlink name="Rig.skeleton"/>`,
		`<pose target="submesh" index="0" name="Smile-0">`,
		`<animation name="smile" length = "0.166667">`,
		`<vertexboneassignment vertexindex="1" boneindex="1" weight="0.500000"/>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Body.mesh.xml missing %q", want)
		}
	}

	rig := readFile(t, filepath.Join(out, "Rig.skeleton.xml"))
	for _, want := range []string{
		`<boneparent bone="Arm" parent="Root" />`,
		`<animation name="wave" length="0.166667">`,
		`<track bone="Arm">`,
	} {
		if !strings.Contains(rig, want) {
			t.Errorf("Rig.skeleton.xml missing %q", want)
		}
	}

	prop := readFile(t, filepath.Join(out, "Prop.mesh.xml"))
	if !strings.Contains(prop, `material="BaseWhite"`) || strings.Contains(prop, "skeletonlink") {
		t.Errorf("Prop.mesh.xml =\n%s", prop)
	}

	if report.MaterialFile != filepath.Join(out, "Demo.material") {
		t.Errorf("material file = %q", report.MaterialFile)
	}
	script := readFile(t, report.MaterialFile)
	for _, want := range []string{"material Skin\n", "material BaseWhite\n", "texture skin.png\n"} {
		if !strings.Contains(script, want) {
			t.Errorf("material script missing %q", want)
		}
	}

	if _, err := os.Stat(filepath.Join(out, "Squashed.mesh.xml")); !os.IsNotExist(err) {
		t.Error("failed mesh left a document")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Objects = []string{"Broken", "Prop"}
	cfg.Export.Materials = false

	sc := loadDemo(t)
	sc.Objects = append(sc.Objects, &scene.Object{
		Name:  "Broken",
		Type:  scene.TypeMesh,
		World: math.Identity(),
		Mesh: &scene.Mesh{
			Name:     "Broken",
			Vertices: []scene.Vertex{{}, {}, {}},
			Faces:    []scene.Face{{Verts: []int{0, 1, 7}, Material: -1}},
		},
	})

	report, err := New(cfg).Run(context.Background(), sc)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Run err = %v, want recovered panic", err)
	}
	if len(report.Results) != 2 || report.Results[1].Err != nil {
		t.Fatalf("results = %+v", report.Results)
	}
	if report.MaterialFile != "" {
		t.Errorf("material script written with materials disabled")
	}
}

func TestRunOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Objects = []string{"Body"}
	cfg.Export.GLTF = true
	cfg.Export.NameSubmeshes = true
	cfg.Skeleton.UseMeshName = true
	cfg.Export.MaterialFile = "shared.material"

	report, err := New(cfg).Run(context.Background(), loadDemo(t))
	if err != nil {
		t.Fatal(err)
	}
	out := cfg.Export.OutputDir
	want := []string{
		filepath.Join(out, "Body.mesh.xml"),
		filepath.Join(out, "Body.skeleton.xml"),
		filepath.Join(out, "Body.glb"),
	}
	files := report.Results[0].Files
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
	body := readFile(t, want[0])
	if !strings.Contains(body, `<skeletonlink name="Body.skeleton"/>`) ||
		!strings.Contains(body, `<submeshname name="Skin" index="0" />`) {
		t.Errorf("Body.mesh.xml =\n%s", body)
	}
	if report.MaterialFile != filepath.Join(out, "shared.material") {
		t.Errorf("material file = %q", report.MaterialFile)
	}
}

func TestSelectObjects(t *testing.T) {
	tests := []struct {
		name    string
		objects []string
		wantErr error
	}{
		{"unknown", []string{"Ghost"}, ErrUnknownObject},
		{"armature", []string{"Rig"}, ErrNotMesh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Export.Objects = tt.objects
			if _, err := New(cfg).Run(context.Background(), loadDemo(t)); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := New(testConfig(t)).Run(ctx, loadDemo(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("exported %d meshes after cancel", len(report.Results))
	}
}

func TestRunConverts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake converter is a shell script")
	}
	bin := filepath.Join(t.TempDir(), "fakeconv")
	script := "#!/bin/sh\nfor last; do :; done\ntouch \"${last%.xml}\"\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cfg.Export.Objects = []string{"Body", "Prop"}
	cfg.Converter.Enabled = true
	cfg.Converter.Path = bin
	cfg.Converter.MaxConcurrent = 2

	report, err := New(cfg).Run(context.Background(), loadDemo(t))
	if err != nil {
		t.Fatal(err)
	}
	if report.ConversionErr != nil {
		t.Fatalf("conversion err = %v", report.ConversionErr)
	}
	if len(report.Conversions) != 3 {
		t.Fatalf("got %d conversions, want 3", len(report.Conversions))
	}
	for _, task := range report.Conversions {
		if task.Status() != converter.StatusSucceeded {
			t.Errorf("%s: %v", task.Input, task.Status())
		}
	}
	for _, name := range []string{"Body.mesh", "Rig.skeleton", "Prop.mesh"} {
		if _, err := os.Stat(filepath.Join(cfg.Export.OutputDir, name)); err != nil {
			t.Errorf("converter output %s: %v", name, err)
		}
	}
}
