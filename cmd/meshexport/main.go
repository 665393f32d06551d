// meshexport is a command-line tool for exporting scene meshes to Ogre XML.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshexport/internal/config"
	"github.com/Faultbox/meshexport/internal/exporter"
	"github.com/Faultbox/meshexport/internal/logger"
	"github.com/Faultbox/meshexport/pkg/scene"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "export":
		cmdExport(args)
	case "inspect":
		cmdInspect(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshexport - Scene to Ogre XML exporter

Usage:
  meshexport <command> [options]

Commands:
  export    Export mesh objects of a scene
  inspect   List the objects, clips and materials of a scene
  config    Print or save the effective configuration
  help      Show this help message

Examples:
  meshexport export -out build scene.yaml
  meshexport export -convert -jobs 2 -gltf scene.yaml Body Head
  meshexport inspect scene.yaml
  meshexport config -save meshexport.yaml`)
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshexport export [options] <scene.yaml> [object...]")
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if fs.NArg() > 1 {
		cfg.Export.Objects = fs.Args()[1:]
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sc, err := scene.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := exporter.New(cfg).Run(ctx, sc)
	if report == nil {
		logger.Error("export aborted", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, report)
	if err != nil || report.ConversionErr != nil {
		os.Exit(1)
	}
}

func printReport(w io.Writer, report *exporter.Report) {
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", res.Object, res.Err)
			continue
		}
		fmt.Fprintf(w, "ok   %s (%d warnings)\n", res.Object, res.Warnings)
		for _, f := range res.Files {
			fmt.Fprintf(w, "       %s\n", f)
		}
	}
	if report.MaterialFile != "" {
		fmt.Fprintf(w, "materials: %s\n", report.MaterialFile)
	}
	for _, task := range report.Conversions {
		fmt.Fprintf(w, "convert %-9s %s\n", task.Status(), task.Input)
		if err := task.Wait(); err != nil {
			if out := strings.TrimSpace(task.Output()); out != "" {
				fmt.Fprintf(w, "        %s\n", out)
			}
		}
	}
}

func cmdInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshexport inspect <scene.yaml>")
		os.Exit(1)
	}

	sc, err := scene.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	describe(os.Stdout, sc)
}

func describe(w io.Writer, sc *scene.Scene) {
	name := sc.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "Scene: %s\n", name)
	fmt.Fprintf(w, "FPS: %g  Frame: %d\n\n", sc.FPS, sc.Frame)

	fmt.Fprintf(w, "Objects (%d):\n", len(sc.Objects))
	for _, obj := range sc.Objects {
		switch obj.Type {
		case scene.TypeMesh:
			m := obj.Mesh
			fmt.Fprintf(w, "  %-20s mesh      %d verts, %d faces, %d uv, %d colour, %d shape keys\n",
				obj.Name, len(m.Vertices), len(m.Faces), len(m.UVLayers), len(m.ColorLayers), len(m.ShapeKeys))
			if obj.ArmatureObject != "" {
				fmt.Fprintf(w, "  %-20s   armature %s\n", "", obj.ArmatureObject)
			}
			for _, c := range obj.Clips {
				fmt.Fprintf(w, "  %-20s   clip %-12s %-8s %s [%d..%d]\n", "", c.Name, c.Kind, c.Action, c.Start, c.End)
			}
		case scene.TypeArmature:
			fmt.Fprintf(w, "  %-20s armature  %d bones\n", obj.Name, len(obj.Armature.Bones))
		}
	}

	if len(sc.Materials) > 0 {
		fmt.Fprintf(w, "\nMaterials (%d):\n", len(sc.Materials))
		for _, m := range sc.Materials {
			mode := m.Mode
			if mode == "" {
				mode = "default"
			}
			fmt.Fprintf(w, "  %-20s %s, %d textures\n", m.Name, mode, len(m.Textures))
		}
	}

	if len(sc.Actions) > 0 {
		fmt.Fprintf(w, "\nActions (%d):\n", len(sc.Actions))
		for _, a := range sc.Actions {
			bones := make([]string, 0, len(a.Bones))
			for b := range a.Bones {
				bones = append(bones, b)
			}
			sort.Strings(bones)
			fmt.Fprintf(w, "  %-20s bones: %s; shape keys: %d\n", a.Name, strings.Join(bones, ", "), len(a.ShapeKeys))
		}
	}
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	save := fs.String("save", "", "Write the configuration to this path instead of printing it")
	_ = fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if *save != "" {
		if err := cfg.SaveTo(*save); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved config to %s\n", *save)
		return
	}

	data, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(data)
}
