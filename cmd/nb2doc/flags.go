package main

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
)

// Sentinel errors for CLI operations.
var (
	ErrNoInputs = errors.New("usage: nb2doc [flags] <notebook.ipynb|dir>...")
)

// buildFlags holds the flags for one build invocation.
type buildFlags struct {
	config   string
	outDir   string
	builders []string
	workers  int
	verbose  bool
	inputs   []string
}

// parseFlags parses command line arguments into buildFlags.
func parseFlags(args []string) (*buildFlags, error) {
	flags := &buildFlags{}

	fs := flag.NewFlagSet("nb2doc", flag.ContinueOnError)
	fs.StringVarP(&flags.config, "config", "c", "", "path to nb2doc.yaml configuration")
	fs.StringVarP(&flags.outDir, "out", "o", "_build", "build output directory")
	fs.StringSliceVarP(&flags.builders, "builder", "b", []string{"html"}, "output format(s) to build")
	fs.IntVarP(&flags.workers, "workers", "w", 0, "parallel parse workers (0 = auto)")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	if err := fs.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	flags.inputs = fs.Args()
	if len(flags.inputs) == 0 {
		return nil, ErrNoInputs
	}
	return flags, nil
}
