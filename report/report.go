// Package report renders the per-host results of a monitoring run.
//
// The table format is a fixed-width layout consumed by operator scripts.
// JSON and YAML carry the same data plus reclaimed orphans, skipped
// filenames and run counters.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/reconcile"
)

// HostReport is the outcome of one host pass.
// Exactly one of Error and the result fields is meaningful.
type HostReport struct {
	Host      string                 `json:"host" yaml:"host"`
	Entries   []reconcile.AgentEntry `json:"entries" yaml:"entries"`
	Reclaimed []reconcile.Reclaimed  `json:"reclaimed,omitempty" yaml:"reclaimed,omitempty"`
	Issues    []reconcile.Issue      `json:"issues,omitempty" yaml:"issues,omitempty"`
	Error     error                  `json:"-" yaml:"-"`
	// Failure is Error's message, for serialized output.
	Failure string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewHostReport builds a HostReport from a scan result or error.
func NewHostReport(host string, res *reconcile.Result, err error) HostReport {
	if err != nil {
		return HostReport{Host: host, Entries: []reconcile.AgentEntry{}, Error: err, Failure: err.Error()}
	}
	return HostReport{
		Host:      host,
		Entries:   res.Entries,
		Reclaimed: res.Reclaimed,
		Issues:    res.Issues,
	}
}

// Report is a whole monitoring run, hosts in configured order.
type Report struct {
	Hosts   []HostReport      `json:"hosts" yaml:"hosts"`
	Metrics *metrics.Snapshot `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// AgentCount returns the number of agent rows across all hosts. Orphans
// and skipped filenames are not rows.
func (r *Report) AgentCount() int {
	n := 0
	for _, h := range r.Hosts {
		n += len(h.Entries)
	}
	return n
}

// FailedHosts returns the hosts whose pass failed.
func (r *Report) FailedHosts() []string {
	var failed []string
	for _, h := range r.Hosts {
		if h.Error != nil {
			failed = append(failed, h.Host)
		}
	}
	return failed
}

// Renderer writes reports in one format. Rendering never reorders entries.
type Renderer struct {
	format Format
	out    io.Writer
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(format Format, out io.Writer) *Renderer {
	return &Renderer{format: format, out: out}
}

// Render writes rep in the configured format.
func (r *Renderer) Render(rep *Report) error {
	switch r.format {
	case FormatTable:
		return writeTable(r.out, rep)
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}
