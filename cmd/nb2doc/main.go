package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"go.uber.org/automaxprocs/maxprocs"

	nb2doc "github.com/alnah/go-nb2doc"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	flags, err := parseFlags(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := log.InfoLevel
	if flags.verbose {
		level = log.DebugLevel
	}
	logger := nb2doc.NewLogger(os.Stderr, level)

	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply and the program continues safely.
	if flags.verbose {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...))
		}))
	} else {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	}

	logger.Debug("nb2doc", "version", Version)

	if err := run(context.Background(), flags, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
