// Package cmd provides CLI commands for the evq binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/evq/cli/config"
)

// Shared flags.
var (
	// ConfigFlag locates the configuration file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to evq.yaml (or .toml) configuration",
		EnvVars: []string{"EVQ_CONFIG"},
		Value:   config.DefaultPath,
	}

	// FormatFlag selects output format: table, json, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: table, json, yaml (default from config, else table)",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// Monitoring run flags. When set they override the scan section of the config.
var (
	// DryRunFlag reports orphans without deleting them.
	DryRunFlag = &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "Report orphaned evidence without deleting it",
	}

	// ParallelFlag bounds how many shard hosts are scanned at once.
	ParallelFlag = &cli.IntFlag{
		Name:  "parallel",
		Usage: "Number of shard hosts scanned at once (1 scans sequentially)",
	}
)

// MonitorFlags returns the flags of the default monitoring action.
func MonitorFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		FormatFlag,
		NoColorFlag,
		DryRunFlag,
		ParallelFlag,
	}
}

// ReadOnlyFlags returns the shared flags for commands that only print.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
