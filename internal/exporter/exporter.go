// Package exporter drives a batch export: every selected mesh object of a
// scene is converted, written and optionally handed to the converter.
//
// Each mesh is exported in isolation. A failing mesh, including one that
// panics, is reported in its Result and the batch continues with the next.
package exporter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshexport/internal/anim"
	"github.com/Faultbox/meshexport/internal/config"
	"github.com/Faultbox/meshexport/internal/converter"
	"github.com/Faultbox/meshexport/internal/gltfsink"
	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/internal/material"
	"github.com/Faultbox/meshexport/internal/mesh"
	"github.com/Faultbox/meshexport/internal/serialize"
	"github.com/Faultbox/meshexport/internal/skeleton"
	"github.com/Faultbox/meshexport/pkg/scene"
)

// Errors.
var (
	ErrUnknownObject = errors.New("no such object")
	ErrNotMesh       = errors.New("object is not a mesh")
)

// Result is the outcome of exporting one mesh object.
type Result struct {
	Object string
	Mesh   string
	// Files lists the written files, in writing order.
	Files    []string
	Warnings int
	Err      error
}

// Report is the outcome of a batch.
type Report struct {
	Results      []Result
	MaterialFile string
	Conversions  []*converter.Task
	// ConversionErr combines failed and canceled conversions. It does not
	// invalidate the written documents.
	ConversionErr error
}

// Failed returns the results carrying an error.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Exporter exports scenes with one configuration.
type Exporter struct {
	cfg *config.Config
}

// New returns an exporter for cfg.
func New(cfg *config.Config) *Exporter {
	return &Exporter{cfg: cfg}
}

// batch is the state of one Run.
type batch struct {
	cfg       *config.Config
	scene     *scene.Scene
	sampler   *anim.Sampler
	materials *material.Library
	sched     *converter.Scheduler
	outDir    string
}

// Run exports the configured objects of sc. The returned error combines the
// per-mesh failures; the report is returned in any case. Canceling ctx stops
// the batch before the next mesh and kills running conversions.
func (e *Exporter) Run(ctx context.Context, sc *scene.Scene) (*Report, error) {
	cfg := e.cfg
	outDir := cfg.Export.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	b := &batch{
		cfg:   cfg,
		scene: sc,
		sampler: anim.NewSampler(scene.NewEvaluator(sc), anim.Options{
			FixUpAxis: cfg.Export.FixUpAxis,
			Reduction: cfg.Animation.KeyframeReduction,
		}),
		materials: material.NewLibrary(),
		outDir:    outDir,
	}
	b.materials.ColouredAmbient = cfg.Export.ColouredAmbient
	if cfg.Converter.Enabled {
		b.sched = converter.NewScheduler(ctx, converter.FromConfig(cfg.Converter), cfg.Converter.MaxConcurrent)
	}

	objects, err := e.selectObjects(sc)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var errs error
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("export canceled before %q: %w", obj.Name, err))
			break
		}
		res := b.exportObject(obj)
		report.Results = append(report.Results, res)
		errs = multierr.Append(errs, res.Err)
	}

	if cfg.Export.Materials && b.materials.Len() > 0 {
		path, err := b.writeMaterials()
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			report.MaterialFile = path
		}
	}

	if b.sched != nil {
		report.ConversionErr = b.sched.Wait()
		report.Conversions = b.sched.Tasks()
	}

	logger.Info("export finished",
		zap.Int("meshes", len(report.Results)),
		zap.Int("failed", len(report.Failed())))
	return report, errs
}

func (e *Exporter) selectObjects(sc *scene.Scene) ([]*scene.Object, error) {
	names := e.cfg.Export.Objects
	if len(names) == 0 {
		return sc.MeshObjects(), nil
	}
	out := make([]*scene.Object, 0, len(names))
	for _, n := range names {
		obj := sc.Object(n)
		switch {
		case obj == nil:
			return nil, fmt.Errorf("%w: %q", ErrUnknownObject, n)
		case obj.Type != scene.TypeMesh:
			return nil, fmt.Errorf("%w: %q", ErrNotMesh, n)
		}
		out = append(out, obj)
	}
	return out, nil
}

// meshName is the name a mesh object is exported under.
func meshName(obj *scene.Object) string {
	if obj.Mesh != nil && obj.Mesh.Name != "" {
		return obj.Mesh.Name
	}
	return obj.Name
}

func (b *batch) exportObject(obj *scene.Object) (res Result) {
	res = Result{Object: obj.Name, Mesh: meshName(obj)}
	log := logger.Log.With(zap.String("mesh", res.Mesh))
	tally := logger.NewTally(log)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("export %q: panic: %v", obj.Name, r)
			log.Error("mesh export panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		res.Warnings = tally.Total()
		tally.Flush()
		if res.Err != nil {
			log.Error("mesh export failed", zap.Error(res.Err))
		}
	}()

	log.Info("exporting mesh", zap.String("object", obj.Name))
	if err := b.export(obj, &res, tally); err != nil {
		res.Err = fmt.Errorf("export %q: %w", obj.Name, err)
	}
	return res
}

func (b *batch) export(obj *scene.Object, res *Result, tally *logger.Tally) error {
	cfg := b.cfg

	skel, err := b.buildSkeleton(obj)
	if err != nil {
		return err
	}

	var bones mesh.BoneIndexer
	if skel != nil {
		bones = skel
	}
	m, err := mesh.Build(obj, bones, meshOptions(cfg), tally)
	if err != nil {
		return err
	}
	if skel != nil {
		m.SkeletonName = skel.Name
	}

	if cfg.Export.Materials {
		b.addMaterials(m)
	}

	set, err := b.sampler.Export(obj, m, skel)
	if err != nil {
		return err
	}

	meshPath := filepath.Join(b.outDir, serialize.MeshFileName(m.Name))
	opts := serialize.MeshOptions{BGRA: cfg.Export.VertexColourBGRA, SubmeshNames: cfg.Export.NameSubmeshes}
	if err := writeFile(meshPath, func(w io.Writer) error {
		return serialize.WriteMesh(w, m, set, opts)
	}); err != nil {
		return err
	}
	res.Files = append(res.Files, meshPath)
	b.convert(meshPath)

	if skel != nil {
		skelPath := filepath.Join(b.outDir, serialize.SkeletonXMLFileName(skel.Name))
		if err := writeFile(skelPath, func(w io.Writer) error {
			return serialize.WriteSkeleton(w, skel, set.Skeletal)
		}); err != nil {
			return err
		}
		res.Files = append(res.Files, skelPath)
		b.convert(skelPath)
	}

	if cfg.Export.GLTF {
		glbPath := filepath.Join(b.outDir, gltfsink.FileName(m.Name))
		if err := gltfsink.Save(glbPath, m, skel, b.scene.Material); err != nil {
			return err
		}
		res.Files = append(res.Files, glbPath)
	}
	return nil
}

func (b *batch) buildSkeleton(obj *scene.Object) (*skeleton.Skeleton, error) {
	if obj.ArmatureObject == "" {
		return nil, nil
	}
	arm := b.scene.Object(obj.ArmatureObject)
	if arm == nil {
		return nil, fmt.Errorf("%w: armature %q", ErrUnknownObject, obj.ArmatureObject)
	}
	opts := skeleton.Options{
		FixUpAxis: b.cfg.Export.FixUpAxis,
		NonDeform: b.cfg.Skeleton.NonDeform,
		Exclude:   b.cfg.Skeleton.ExcludeBones,
	}
	if b.cfg.Skeleton.UseMeshName {
		opts.Name = meshName(obj)
	}
	return skeleton.Build(arm, obj, opts)
}

func meshOptions(cfg *config.Config) mesh.Options {
	opts := mesh.Options{
		Policy:           mesh.ExclusiveBuffers,
		FixUpAxis:        cfg.Export.FixUpAxis,
		RequireMaterials: cfg.Export.RequireMaterials,
		ForceLayout:      cfg.Export.ForceLayout,
		NormalizeWeights: cfg.Export.NormalizeWeights,
	}
	if cfg.Export.SharedGeometry {
		opts.Policy = mesh.SharedExcept(cfg.Export.ExclusiveMaterials...)
	}
	return opts
}

// addMaterials registers the submesh materials. Materials with an unknown
// mode fall back to the default technique.
func (b *batch) addMaterials(m *mesh.Mesh) {
	for _, sub := range m.Submeshes {
		src := b.scene.Material(sub.Material)
		if err := b.materials.Add(sub.Material, src); err != nil {
			logger.Warn("using default material technique", zap.String("material", sub.Material), zap.Error(err))
			_ = b.materials.Add(sub.Material, nil)
		}
	}
}

func (b *batch) writeMaterials() (string, error) {
	name := b.cfg.Export.MaterialFile
	if name == "" {
		base := b.scene.Name
		if base == "" {
			base = "Scene"
		}
		name = base + ".material"
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.outDir, name)
	}
	if err := writeFile(path, b.materials.Write); err != nil {
		return "", err
	}
	logger.Info("wrote material script", zap.String("path", path), zap.Int("materials", b.materials.Len()))
	return path, nil
}

// convert queues a written document for the converter. Spawn failures are
// logged; the document stays.
func (b *batch) convert(path string) {
	if b.sched == nil {
		return
	}
	if _, err := b.sched.Spawn(path); err != nil {
		logger.Error("converter not started", zap.String("input", path), zap.Error(err))
	}
}

// writeFile creates path and writes it through fn. A partially written file
// is left in place when fn fails.
func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Debug("wrote file", zap.String("path", path))
	return nil
}
