package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dashsync/internal/app"
	"dashsync/internal/clock"
	"dashsync/internal/config"
)

// main starts the dashboard sync service.
// Params: CLI flags (--config-file or --config-dir).
// Returns: process exit code by startup/run result.
func main() {
	var (
		configFile = flag.String("config-file", "", "path to one TOML config file")
		configDir  = flag.String("config-dir", "", "path to directory with TOML config fragments")
	)
	flag.Parse()

	source, err := config.FromCLI(*configFile, *configDir)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "dashsync:", err.Error())
		os.Exit(2)
	}

	service, err := app.NewService(source, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "dashsync: start with config %s: %v\n", sourceLabel(source), err)
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "dashsync: %v\n", err)
		os.Exit(1)
	}
}

// sourceLabel renders one config source for startup failure messages.
// Params: CLI-resolved config source.
// Returns: human-readable file or directory label.
func sourceLabel(source config.ConfigSource) string {
	if source.File != "" {
		return "file " + source.File
	}
	return "dir " + source.Dir
}
