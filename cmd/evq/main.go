// Package main provides the evq CLI entrypoint.
//
// Usage:
//
//	evq [--config evq.yaml] [--format table|json|yaml] [--dry-run] [--parallel N]
//	evq store --ident IDENT --instance INSTANCE FILE
//	evq version
//
// Exit codes of the default monitoring run:
//   - 0: success
//   - 1: configuration load or registry connect failure
//   - 2: run completed but at least one shard host failed
//   - 130: interrupted by SIGINT or SIGTERM
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/evq/cli/cmd"
	"github.com/pithecene-io/evq/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "evq",
		Usage:          "Shard-aware evidence storage and reclamation monitor",
		Description:    cmd.ExitCodesHelp,
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.MonitorFlags(),
		Action:         cmd.MonitorAction,
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.StoreCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for every error it saw.
		os.Exit(1)
	}
}

// exitErrHandler prints err and exits with its code. cli.Exit codes are
// preserved; any other error exits 1.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to a process exit code and the message to print.
// cli.Exit("", N) carries no message.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
