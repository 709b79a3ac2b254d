package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/cli/config"
	"github.com/pithecene-io/evq/iox"
	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/monitor"
	"github.com/pithecene-io/evq/registry"
	"github.com/pithecene-io/evq/report"
)

// monitorChoice holds the parsed flags of a monitoring run. The *Set
// fields record which flags were given explicitly.
type monitorChoice struct {
	configPath  string
	format      string
	noColor     bool
	dryRun      bool
	dryRunSet   bool
	parallel    int
	parallelSet bool
}

// apply overrides the scan section of cfg with explicit flags.
func (m monitorChoice) apply(cfg *config.Config) {
	if m.format != "" {
		cfg.Scan.Format = m.format
	}
	if m.dryRunSet {
		cfg.Scan.DryRun = m.dryRun
	}
	if m.parallelSet {
		cfg.Scan.Parallel = m.parallel
	}
}

// MonitorAction runs one monitoring pass over every configured shard host
// and prints the report to stdout.
//
// Exit codes:
//   - 0: every host scanned
//   - 1: configuration load or registry connect failed
//   - 2: the run completed but at least one host failed
func MonitorAction(c *cli.Context) error {
	choice := monitorChoice{
		configPath:  c.String("config"),
		format:      c.String("format"),
		noColor:     c.Bool("no-color") || !isStderrTTY(),
		dryRun:      c.Bool("dry-run"),
		dryRunSet:   c.IsSet("dry-run"),
		parallel:    c.Int("parallel"),
		parallelSet: c.IsSet("parallel"),
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runMonitor(ctx, choice, c.App.Writer, c.App.ErrWriter)
}

func runMonitor(ctx context.Context, choice monitorChoice, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(choice.configPath)
	if err != nil {
		return err
	}
	choice.apply(cfg)
	format, err := report.ParseFormat(cfg.Scan.Format)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigOrConnect)
	}
	if cfg.Scan.Parallel < 0 {
		return cli.Exit(fmt.Sprintf("--parallel must be >= 0, got %d", cfg.Scan.Parallel), exitConfigOrConnect)
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()

	collector := metrics.NewCollector(storageBackend(cfg), cfg.Scan.DryRun)

	reg, err := registry.Open(ctx, cfg.RegistryConfig())
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		return cli.Exit(fmt.Sprintf("registry connect failed: %v", err), exitConfigOrConnect)
	}
	defer iox.DiscardClose(reg)

	pool, err := blobstore.NewPool(cfg.Targets(), blobstore.DefaultOpener(cfg.Collection, collector))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid shard configuration: %v", err), exitConfigOrConnect)
	}
	defer iox.DiscardClose(pool)

	notifier, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter: %v", err), exitConfigOrConnect)
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	mon := monitor.New(monitor.Deps{
		Registry:  reg,
		Pool:      pool,
		Adapter:   notifier,
		Logger:    logger.Named("monitor"),
		Collector: collector,
	}, monitor.Options{
		DryRun:   cfg.Scan.DryRun,
		Parallel: cfg.Scan.Parallel,
	})

	rep, err := mon.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		return err
	}

	if err := report.NewRenderer(format, stdout).Render(rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if rep.Metrics != nil {
		_ = report.WriteSummary(stderr, rep, *rep.Metrics, choice.noColor)
	}

	if failed := rep.FailedHosts(); len(failed) > 0 {
		return cli.Exit("", exitHostFailed)
	}
	return nil
}

func interrupted(ctx context.Context) error {
	return cli.Exit(fmt.Sprintf("monitoring run interrupted: %v", ctx.Err()), exitInterrupted)
}
