package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/evq/report"
	"github.com/pithecene-io/evq/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version             string `json:"version" yaml:"version"`
	NotificationVersion string `json:"notification_version" yaml:"notification_version"`
	Commit              string `json:"commit" yaml:"commit"`
}

func (r VersionResponse) rows() [][2]string {
	return [][2]string{
		{"Version", r.Version},
		{"Notification", r.NotificationVersion},
		{"Commit", r.Commit},
	}
}

// VersionCommand returns the version command.
// It reads no configuration and contacts nothing.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		format, err := report.ParseFormat(c.String("format"))
		if err != nil {
			return cli.Exit(err.Error(), exitConfigOrConnect)
		}
		resp := VersionResponse{
			Version:             types.Version,
			NotificationVersion: types.NotificationVersion,
			Commit:              commit,
		}
		return renderValue(c.App.Writer, format, resp)
	}
}
