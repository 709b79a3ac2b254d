package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/registry"
	"github.com/pithecene-io/evq/report"
	"github.com/pithecene-io/evq/shard"
	"github.com/pithecene-io/evq/types"
)

// DefaultPath is the config file read when neither --config nor EVQ_CONFIG is set.
const DefaultPath = "evq.yaml"

// Config represents an evq.yaml (or evq.toml) configuration file.
type Config struct {
	Log        LogConfig      `yaml:"log" toml:"log"`
	Registry   RegistryConfig `yaml:"registry" toml:"registry"`
	Collection string         `yaml:"collection" toml:"collection"`
	Shards     []ShardConfig  `yaml:"shards" toml:"shards"`
	Resolver   ResolverConfig `yaml:"resolver" toml:"resolver"`
	Scan       ScanConfig     `yaml:"scan" toml:"scan"`
	Adapter    AdapterConfig  `yaml:"adapter" toml:"adapter"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// RegistryConfig locates the agent registry database.
type RegistryConfig struct {
	Driver         string   `yaml:"driver" toml:"driver"`
	DSN            string   `yaml:"dsn" toml:"dsn"`
	MaxConns       int      `yaml:"max_conns" toml:"max_conns"`
	ConnectTimeout Duration `yaml:"connect_timeout" toml:"connect_timeout"`
}

// ShardConfig is one shard: its id, the host serving it and the storage there.
type ShardConfig struct {
	ID      string        `yaml:"id" toml:"id"`
	Host    string        `yaml:"host" toml:"host"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
}

// StorageConfig is the blob store backend of a shard host.
type StorageConfig struct {
	Backend      string  `yaml:"backend" toml:"backend"`
	Path         string  `yaml:"path" toml:"path"`
	Region       string  `yaml:"region" toml:"region"`
	Endpoint     string  `yaml:"endpoint" toml:"endpoint"`
	S3PathStyle  bool    `yaml:"s3_path_style" toml:"s3_path_style"`
	OpsPerSecond float64 `yaml:"ops_per_second" toml:"ops_per_second"`
}

// ResolverConfig configures shard resolution for the store command.
type ResolverConfig struct {
	Type        string            `yaml:"type" toml:"type"`
	URL         string            `yaml:"url" toml:"url"`
	Key         string            `yaml:"key" toml:"key"`
	Timeout     Duration          `yaml:"timeout" toml:"timeout"`
	CacheTTL    Duration          `yaml:"cache_ttl" toml:"cache_ttl"`
	Assignments map[string]string `yaml:"assignments,omitempty" toml:"assignments"`
}

// ScanConfig holds defaults for the monitoring run. Flags override them.
type ScanConfig struct {
	Parallel int    `yaml:"parallel" toml:"parallel"`
	DryRun   bool   `yaml:"dry_run" toml:"dry_run"`
	Format   string `yaml:"format" toml:"format"`
}

// AdapterConfig configures the scan_completed notification.
type AdapterConfig struct {
	Type    string            `yaml:"type" toml:"type"`
	URL     string            `yaml:"url" toml:"url"`
	Channel string            `yaml:"channel,omitempty" toml:"channel"`
	LastKey string            `yaml:"last_key,omitempty" toml:"last_key"`
	Secret  string            `yaml:"secret,omitempty" toml:"secret"`
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers"`
	Timeout Duration          `yaml:"timeout,omitempty" toml:"timeout"`
	Retries *int              `yaml:"retries,omitempty" toml:"retries"`
}

// Duration wraps time.Duration for string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText parses a duration string. Used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// applyDefaults fills unset optional fields.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Collection == "" {
		c.Collection = blobstore.DefaultCollection
	}
	if c.Registry.ConnectTimeout.Duration == 0 {
		c.Registry.ConnectTimeout.Duration = registry.DefaultConnectTimeout
	}
	if c.Scan.Format == "" {
		c.Scan.Format = string(report.FormatTable)
	}
	for i := range c.Shards {
		if c.Shards[i].Storage.Backend == "" {
			c.Shards[i].Storage.Backend = blobstore.BackendFS
		}
	}
}

// Validate checks the whole configuration. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error

	if err := c.RegistryConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}

	if len(c.Shards) == 0 {
		errs = append(errs, errors.New("shards: at least one shard is required"))
	}
	if _, err := blobstore.NewPool(c.Targets(), blobstore.DefaultOpener(c.Collection, nil)); err != nil {
		errs = append(errs, fmt.Errorf("shards: %w", err))
	}
	for _, s := range c.Shards {
		if err := s.backend().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("shard %q: %w", s.ID, err))
		}
	}

	switch c.Resolver.Type {
	case "", shard.KindStatic, shard.KindRedis:
	default:
		errs = append(errs, fmt.Errorf("resolver: unsupported type %q (must be static or redis)", c.Resolver.Type))
	}
	if c.Resolver.Type == shard.KindRedis && c.Resolver.URL == "" {
		errs = append(errs, errors.New("resolver: redis requires url"))
	}
	for name := range c.Resolver.Assignments {
		if _, err := types.ParseFilename(name); err != nil {
			errs = append(errs, fmt.Errorf("resolver: assignment %w", err))
		}
	}

	if _, err := report.ParseFormat(c.Scan.Format); err != nil {
		errs = append(errs, fmt.Errorf("scan: %w", err))
	}
	if c.Scan.Parallel < 0 {
		errs = append(errs, fmt.Errorf("scan: parallel must be >= 0, got %d", c.Scan.Parallel))
	}

	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter: %s requires url", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter: unsupported type %q (must be webhook or redis)", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter: retries must be >= 0, got %d", *c.Adapter.Retries))
	}

	return errors.Join(errs...)
}

// RegistryConfig converts the registry section.
func (c *Config) RegistryConfig() registry.Config {
	return registry.Config{
		Driver:         c.Registry.Driver,
		DSN:            c.Registry.DSN,
		MaxConns:       c.Registry.MaxConns,
		ConnectTimeout: c.Registry.ConnectTimeout.Duration,
	}
}

func (s ShardConfig) backend() blobstore.Backend {
	return blobstore.Backend{
		Kind:         s.Storage.Backend,
		Path:         s.Storage.Path,
		Region:       s.Storage.Region,
		Endpoint:     s.Storage.Endpoint,
		UsePathStyle: s.Storage.S3PathStyle,
		OpsPerSecond: s.Storage.OpsPerSecond,
	}
}

// Targets converts the shard list, in file order.
func (c *Config) Targets() []blobstore.Target {
	targets := make([]blobstore.Target, 0, len(c.Shards))
	for _, s := range c.Shards {
		targets = append(targets, blobstore.Target{
			ID:      types.ShardID(s.ID),
			Host:    s.Host,
			Backend: s.backend(),
		})
	}
	return targets
}

// ResolverConfig converts the resolver section. An unset type means static.
func (c *Config) ResolverConfig() shard.Config {
	kind := c.Resolver.Type
	if kind == "" {
		kind = shard.KindStatic
	}
	static := make(map[string]types.ShardID, len(c.Resolver.Assignments))
	for name, id := range c.Resolver.Assignments {
		static[name] = types.ShardID(id)
	}
	return shard.Config{
		Kind:   kind,
		Static: static,
		Redis: shard.RedisConfig{
			URL:     c.Resolver.URL,
			Key:     c.Resolver.Key,
			Timeout: c.Resolver.Timeout.Duration,
		},
		CacheTTL: c.Resolver.CacheTTL.Duration,
	}
}
