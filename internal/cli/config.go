package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// SocketPath is where the control server listens and clients connect.
	SocketPath string `json:"socket_path"`

	// MaxBytes caps the backing memory of a served cache. 0 = unbounded.
	MaxBytes uint64 `json:"max_bytes,omitempty"`

	// StatsDB is the SQLite file used by `stats --record`.
	StatsDB string `json:"stats_db,omitempty"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // path to global config if loaded, empty otherwise
	Project string // path to project config if loaded, empty otherwise
}

// ConfigFileName is the project config file name.
const ConfigFileName = ".kdbcache.json"

// Config errors.
var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config file")
	errSocketPathEmpty    = errors.New("socket_path cannot be empty")
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SocketPath: "/tmp/kdbcache.sock",
		StatsDB:    ".kdbcache-stats.sqlite",
	}
}

// globalConfigPath returns $XDG_CONFIG_HOME/kdbcache/config.json if set,
// otherwise ~/.config/kdbcache/config.json. Empty if neither resolves.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "kdbcache", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "kdbcache", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest
// wins): defaults, global user config, project config (.kdbcache.json in
// workDir, or an explicit --config path), CLI overrides.
func LoadConfig(workDir, configPath string, overrides Config, env map[string]string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	if globalPath := globalConfigPath(env); globalPath != "" {
		loaded, found, err := loadConfigFile(globalPath)
		if err != nil {
			return Config{}, ConfigSources{}, err
		}

		if found {
			sources.Global = globalPath
			cfg = mergeConfig(cfg, loaded)
		}
	}

	projectPath := configPath
	mustExist := configPath != ""

	if projectPath == "" {
		projectPath = filepath.Join(workDir, ConfigFileName)
	} else if !filepath.IsAbs(projectPath) {
		projectPath = filepath.Join(workDir, projectPath)
	}

	loaded, found, err := loadConfigFile(projectPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	if mustExist && !found {
		return Config{}, ConfigSources{}, fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
	}

	if found {
		sources.Project = projectPath
		cfg = mergeConfig(cfg, loaded)
	}

	cfg = mergeConfig(cfg, overrides)

	if cfg.SocketPath == "" {
		return Config{}, ConfigSources{}, errSocketPathEmpty
	}

	return cfg, sources, nil
}

// loadConfigFile reads one HuJSON config file. Missing files are not an
// error; malformed ones are.
func loadConfigFile(path string) (Config, bool, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from config resolution
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// mergeConfig overlays non-zero fields of override onto base.
func mergeConfig(base, override Config) Config {
	if override.SocketPath != "" {
		base.SocketPath = override.SocketPath
	}

	if override.MaxBytes != 0 {
		base.MaxBytes = override.MaxBytes
	}

	if override.StatsDB != "" {
		base.StatsDB = override.StatsDB
	}

	return base
}
