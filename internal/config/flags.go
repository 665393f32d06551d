package config

import "flag"

// Flags holds command-line overrides. Register them on a command's FlagSet
// and pass the result to Load after parsing.
type Flags struct {
	Config    string
	Debug     bool
	OutputDir string
	Convert   bool
	Jobs      int
	GLTF      bool
}

// RegisterFlags registers the shared exporter flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.OutputDir, "out", "", "Output directory")
	fs.BoolVar(&f.Convert, "convert", false, "Run the binary converter on written files")
	fs.IntVar(&f.Jobs, "jobs", 0, "Maximum concurrent converter processes")
	fs.BoolVar(&f.GLTF, "gltf", false, "Also write a .glb file per mesh")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.OutputDir != "" {
		cfg.Export.OutputDir = f.OutputDir
	}
	if f.Convert {
		cfg.Converter.Enabled = true
	}
	if f.Jobs > 0 {
		cfg.Converter.MaxConcurrent = f.Jobs
	}
	if f.GLTF {
		cfg.Export.GLTF = true
	}
}
