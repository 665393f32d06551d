// Package converter runs the external binary mesh converter on written XML
// documents.
package converter

import (
	"fmt"
	"strconv"

	"github.com/google/shlex"

	"github.com/Faultbox/meshexport/internal/config"
)

// Options select the converter binary and its flags.
type Options struct {
	Path string

	EdgeLists          bool
	Reorganise         bool
	OptimiseAnimations bool

	Tangents        bool
	TangentSemantic string
	TangentSize     int
	SplitMirrored   bool
	SplitRotated    bool

	ExtremityPoints int
	LogFile         string
	// ExtraArgs is split with shell quoting rules and appended before the
	// input file.
	ExtraArgs string
}

// FromConfig returns the options of a converter config section.
func FromConfig(c config.ConverterConfig) Options {
	return Options{
		Path:               c.Path,
		EdgeLists:          c.EdgeLists,
		Reorganise:         c.Reorganise,
		OptimiseAnimations: c.OptimiseAnimations,
		Tangents:           c.Tangents,
		TangentSemantic:    c.TangentSemantic,
		TangentSize:        c.TangentSize,
		SplitMirrored:      c.SplitMirrored,
		SplitRotated:       c.SplitRotated,
		ExtremityPoints:    c.ExtremityPoints,
		LogFile:            c.LogFile,
		ExtraArgs:          c.ExtraArgs,
	}
}

// Args returns the command line arguments converting input.
func (o Options) Args(input string) ([]string, error) {
	var args []string
	if !o.EdgeLists {
		args = append(args, "-e")
	}
	if !o.Reorganise {
		args = append(args, "-r")
	}
	if o.Tangents {
		args = append(args, "-t")
		if o.TangentSemantic != "" {
			args = append(args, "-td", o.TangentSemantic)
		}
		if o.TangentSize != 0 {
			args = append(args, "-ts", strconv.Itoa(o.TangentSize))
		}
		if o.SplitMirrored {
			args = append(args, "-tm")
		}
		if o.SplitRotated {
			args = append(args, "-tr")
		}
	}
	if !o.OptimiseAnimations {
		args = append(args, "-o")
	}
	if o.ExtremityPoints > 0 {
		args = append(args, "-x", strconv.Itoa(o.ExtremityPoints))
	}
	if o.LogFile != "" {
		args = append(args, "-log", o.LogFile)
	}
	if o.ExtraArgs != "" {
		extra, err := shlex.Split(o.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("parse extra converter arguments %q: %w", o.ExtraArgs, err)
		}
		args = append(args, extra...)
	}
	return append(args, input), nil
}
