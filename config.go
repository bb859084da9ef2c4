package kaybee

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// StorageMode selects one of the two physical layouts described in the
// storage backend component.
type StorageMode string

// The two supported storage modes.
const (
	ModeMulti  StorageMode = "multi"
	ModeSingle StorageMode = "single"
)

// ConfigFileName is the JSONC config file name looked up in the global
// config directory and in a project directory, mirroring the teacher's
// two-tier config precedence.
const ConfigFileName = "kaybee.json"

// Config is the engine's ambient configuration, loaded from JSONC files
// with CLI/programmatic overrides applied last.
type Config struct {
	DataDir             string      `json:"data_dir"`
	StorageMode         StorageMode `json:"storage_mode"`
	ChangelogEnabled    bool        `json:"changelog_enabled"`
	FuzzyResolve        bool        `json:"fuzzy_resolve"`
	LogLevel            string      `json:"log_level"`
	ReplicationInterval int         `json:"replication_interval_seconds"`
}

// DefaultConfig returns the baseline configuration applied before any
// file or override is merged in.
func DefaultConfig() Config {
	return Config{
		DataDir:             ".kaybee",
		StorageMode:         ModeMulti,
		ChangelogEnabled:    true,
		FuzzyResolve:        true,
		LogLevel:            "info",
		ReplicationInterval: 30,
	}
}

// getGlobalConfigPath resolves the global config file path, honoring
// XDG_CONFIG_HOME the way the teacher's config loader does.
func getGlobalConfigPath(env func(string) string) (string, error) {
	if xdg := env("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kaybee", ConfigFileName), nil
	}

	home := env("HOME")
	if home == "" {
		return "", errors.New("kaybee: cannot determine home directory for global config")
	}

	return filepath.Join(home, ".config", "kaybee", ConfigFileName), nil
}

// LoadConfig merges defaults, the global config, a project config (if
// present at projectDir/kaybee.json), and explicit overrides, in that
// precedence order - lowest to highest. Only the non-empty string fields
// and a non-zero ReplicationInterval of overrides are applied; its
// ChangelogEnabled and FuzzyResolve fields are ignored.
func LoadConfig(projectDir string, overrides Config, env func(string) string) (Config, error) {
	cfg := DefaultConfig()

	globalPath, err := getGlobalConfigPath(env)
	if err == nil {
		if err := mergeConfigFile(&cfg, globalPath, false); err != nil {
			return Config{}, fmt.Errorf("kaybee: loading global config: %w", err)
		}
	}

	if projectDir != "" {
		projectPath := filepath.Join(projectDir, ConfigFileName)
		if err := mergeConfigFile(&cfg, projectPath, false); err != nil {
			return Config{}, fmt.Errorf("kaybee: loading project config: %w", err)
		}
	}

	applyOverrides(&cfg, overrides)

	return cfg, validateConfig(cfg)
}

func mergeConfigFile(cfg *Config, path string, mustExist bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return nil
		}

		return err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	var fileCfg Config
	if err := json.Unmarshal(standardized, &fileCfg); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	// Track which fields were explicitly present so zero-valued fields in
	// the merged struct don't clobber earlier, lower-precedence values.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(standardized, &raw); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	if _, ok := raw["data_dir"]; ok {
		cfg.DataDir = fileCfg.DataDir
	}

	if _, ok := raw["storage_mode"]; ok {
		cfg.StorageMode = fileCfg.StorageMode
	}

	if _, ok := raw["changelog_enabled"]; ok {
		cfg.ChangelogEnabled = fileCfg.ChangelogEnabled
	}

	if _, ok := raw["fuzzy_resolve"]; ok {
		cfg.FuzzyResolve = fileCfg.FuzzyResolve
	}

	if _, ok := raw["log_level"]; ok {
		cfg.LogLevel = fileCfg.LogLevel
	}

	if _, ok := raw["replication_interval_seconds"]; ok {
		cfg.ReplicationInterval = fileCfg.ReplicationInterval
	}

	return nil
}

func applyOverrides(cfg *Config, overrides Config) {
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}

	if overrides.StorageMode != "" {
		cfg.StorageMode = overrides.StorageMode
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	if overrides.ReplicationInterval != 0 {
		cfg.ReplicationInterval = overrides.ReplicationInterval
	}
}

func validateConfig(cfg Config) error {
	if cfg.StorageMode != ModeMulti && cfg.StorageMode != ModeSingle {
		return wrap(fmt.Errorf("%w: storage_mode must be %q or %q, got %q",
			ErrIllegalArgument, ModeMulti, ModeSingle, cfg.StorageMode), withOp("LoadConfig"))
	}

	if cfg.DataDir == "" {
		return wrap(fmt.Errorf("%w: data_dir must not be empty", ErrIllegalArgument), withOp("LoadConfig"))
	}

	return nil
}
