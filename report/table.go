package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pithecene-io/evq/reconcile"
)

// Column widths of the fixed-width table. Operators parse this layout.
const (
	TableWidth = 152

	colInstance = 57
	colPlatform = 12
	colLastSync = 25
	colLogs     = 6
	colSize     = 13
	colShard    = 34
)

func borderLine() string {
	return "+" + strings.Repeat("-", TableWidth) + "+"
}

func headerLine() string {
	return "|" + center("instance", colInstance) +
		"|" + center("platform", colPlatform) +
		"|" + center("last sync time", colLastSync) +
		"|" + center("logs", colLogs) +
		"|" + center("size", colSize) +
		"|" + center("shard", colShard) + "|"
}

// rowLine renders one agent entry. Values wider than their column are not cut.
func rowLine(e reconcile.AgentEntry, host string) string {
	return "|" + center(e.Filename, colInstance) +
		"|" + center(e.Platform, colPlatform) +
		"|" + center(e.LastSyncTime, colLastSync) +
		"|" + rjust(strconv.FormatInt(e.Count, 10), colLogs-1) + " " +
		"| " + rjust(FormatBytes(e.Size), colSize-2) + " " +
		"| " + rjust(host, colShard-2) + " |"
}

// failedLine marks a host whose pass did not complete.
func failedLine(host string, err error) string {
	text := fmt.Sprintf(" SCAN FAILED on %s: %v", host, err)
	text = strings.ReplaceAll(text, "\n", " ")
	return "|" + ljust(truncate(text, TableWidth-1), TableWidth) + "|"
}

// writeTable writes the header, every host's rows in order, and the footer.
func writeTable(w io.Writer, rep *Report) error {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(borderLine() + "\n")
	b.WriteString(headerLine() + "\n")
	b.WriteString(borderLine() + "\n")

	for _, h := range rep.Hosts {
		if h.Error != nil {
			b.WriteString(failedLine(h.Host, h.Error) + "\n")
			continue
		}
		for _, e := range h.Entries {
			b.WriteString(rowLine(e, h.Host) + "\n")
		}
	}

	b.WriteString(borderLine() + "\n")
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
