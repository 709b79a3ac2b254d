package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/evq/metrics"
)

var (
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(successColor)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(warningColor)
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// WriteSummary writes a one-line operator summary of the run to w.
// Styling is dropped when noColor is set.
func WriteSummary(w io.Writer, rep *Report, snap metrics.Snapshot, noColor bool) error {
	render := func(s lipgloss.Style, text string) string {
		if noColor {
			return text
		}
		return s.Render(text)
	}

	failed := rep.FailedHosts()
	var status string
	switch {
	case len(failed) > 0:
		status = render(errStyle, fmt.Sprintf("FAILED %d/%d hosts", len(failed), len(rep.Hosts)))
	case snap.MalformedFilenames+snap.RegistryErrors > 0:
		status = render(warnStyle, "DONE with issues")
	default:
		status = render(okStyle, "OK")
	}

	reclaimVerb := "reclaimed"
	if snap.DryRun {
		reclaimVerb = "would reclaim"
	}
	parts := []string{
		status,
		fmt.Sprintf("hosts=%d", snap.HostsScanned+snap.HostsFailed),
		fmt.Sprintf("agents=%d", rep.AgentCount()),
		fmt.Sprintf("blobs=%d (%s)", snap.BlobsCounted, FormatBytes(snap.BytesCounted)),
		fmt.Sprintf("%s=%d (%s)", reclaimVerb, snap.OrphanBlobsDeleted, FormatBytes(snap.OrphanBytesReclaimed)),
	}
	if n := snap.MalformedFilenames + snap.RegistryErrors; n > 0 {
		parts = append(parts, fmt.Sprintf("skipped=%d", n))
	}
	line := strings.Join(parts, render(mutedStyle, " | "))
	if len(failed) > 0 {
		line += render(mutedStyle, " failed: ") + strings.Join(failed, ",")
	}

	_, err := fmt.Fprintln(w, line)
	return err
}
