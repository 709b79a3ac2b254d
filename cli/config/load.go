package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrConfigLoad is matched by every error Load returns.
var ErrConfigLoad = errors.New("config load failed")

// Load reads a config file, expands environment variables, decodes it and
// applies defaults. Files ending in .toml are decoded as TOML, anything
// else as YAML. Unknown keys are rejected. Load does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file not found: %s", ErrConfigLoad, path)
		}
		return nil, fmt.Errorf("%w: cannot read config file %q: %w", ErrConfigLoad, path, err)
	}

	expanded, err := ExpandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigLoad, path, err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = decodeTOML(expanded, &cfg)
	} else {
		err = decodeYAML(expanded, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigLoad, path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func decodeYAML(doc string, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

func decodeTOML(doc string, cfg *Config) error {
	md, err := toml.Decode(doc, cfg)
	if err != nil {
		return fmt.Errorf("invalid TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("invalid TOML: unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}
