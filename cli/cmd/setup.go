package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/evq/adapter"
	"github.com/pithecene-io/evq/adapter/redis"
	"github.com/pithecene-io/evq/adapter/webhook"
	"github.com/pithecene-io/evq/cli/config"
	"github.com/pithecene-io/evq/log"
)

// Exit codes.
const (
	exitSuccess         = 0
	exitConfigOrConnect = 1
	exitHostFailed      = 2
	exitInterrupted     = 130
)

// ExitCodesHelp describes the exit codes of the monitoring run for --help.
const ExitCodesHelp = `Exit codes:
   0    run completed and every shard host was scanned
   1    configuration load or registry connect failure
   2    run completed but at least one shard host failed (see SCAN FAILED rows)
   130  interrupted by SIGINT or SIGTERM`

// loadConfig loads and validates the config at path. Failures exit 1.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigOrConnect)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid config %s:\n%v", path, err), exitConfigOrConnect)
	}
	return cfg, nil
}

// newLogger builds the root logger from the log section, writing to w.
func newLogger(cfg *config.Config, w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid config: log: %v", err), exitConfigOrConnect)
	}
	return log.NewLoggerWithWriter("evq", level, w), nil
}

// buildAdapter creates the notification adapter. It returns nil when none
// is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Secret:  ac.Secret,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			LastKey: ac.LastKey,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported adapter type: %q", ac.Type)
	}
}

// storageBackend labels the collector with the backend shared by every
// shard, or "mixed".
func storageBackend(cfg *config.Config) string {
	kind := ""
	for _, s := range cfg.Shards {
		switch {
		case kind == "":
			kind = s.Storage.Backend
		case kind != s.Storage.Backend:
			return "mixed"
		}
	}
	return kind
}
