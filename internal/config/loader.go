package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "ASKD_"

// Load reads configuration from the default file location, applies
// environment overrides, fills defaults, and validates.
func Load() (*Config, error) {
	return LoadWithFile(DefaultConfigPath())
}

// LoadWithFile reads configuration from path. A missing file is not an
// error; defaults and environment variables still apply.
//
// Precedence, lowest to highest: defaults, YAML file, environment.
// Environment keys map as ASKD_<SECTION>_<FIELD>, e.g.
// ASKD_SERVER_PORT=9090 sets server.port and
// ASKD_ANSWER_CONFIDENCE_THRESHOLD=0.8 sets answer.confidence_threshold.
func LoadWithFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Optional file.
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// Environment overrides. The first underscore after the prefix
	// separates the section from the field, so section names must not
	// contain underscores.
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	expandPaths(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps ASKD_SERVER_SHUTDOWN_TIMEOUT to server.shutdown_timeout.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + field
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "askd", "config.yaml")
	}
	return "config.yaml"
}

// expandPaths resolves the ~/ prefix in store paths.
func expandPaths(cfg *Config) {
	cfg.Chromem.Path = expandHome(cfg.Chromem.Path)
	cfg.Notes.Path = expandHome(cfg.Notes.Path)
	cfg.Blob.Path = expandHome(cfg.Blob.Path)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
