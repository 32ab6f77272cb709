// Package config loads darkroom's global settings from
// ~/.darkroom/config.yaml with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultMinFreeBytes is the free-space floor below which the snapshot
// cache stops writing.
const DefaultMinFreeBytes uint64 = 2 << 30

// GlobalConfig holds global darkroom settings from ~/.darkroom/config.yaml.
type GlobalConfig struct {
	Cache CacheConfig `yaml:"cache"`
	Debug DebugConfig `yaml:"debug"`
}

// CacheConfig holds undo snapshot cache settings.
type CacheConfig struct {
	// Dir holds the snapshot files. Defaults to the system temp directory.
	Dir string `yaml:"dir"`
	// Prefix is prepended to every snapshot file name.
	Prefix string `yaml:"prefix"`
	// MinFreeBytes is the free-space floor for snapshot writes.
	MinFreeBytes uint64 `yaml:"min_free_bytes"`
}

// DebugConfig holds debug log settings.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// DefaultGlobalConfig returns the default global configuration.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Cache: CacheConfig{
			Dir:          os.TempDir(),
			Prefix:       "darkroom-",
			MinFreeBytes: DefaultMinFreeBytes,
		},
		Debug: DebugConfig{
			RetentionDays: 14,
		},
	}
}

// LoadGlobal reads config.yaml from GlobalConfigDir and applies environment
// overrides. A missing file is not an error. A malformed file yields the
// defaults together with an error describing the problem.
func LoadGlobal() (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	var loadErr error
	path := filepath.Join(GlobalConfigDir(), "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		fileCfg := DefaultGlobalConfig()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			loadErr = fmt.Errorf("parsing %s: %w", path, err)
		} else {
			cfg = fileCfg
		}
	}

	if dir := os.Getenv("DARKROOM_CACHE_DIR"); dir != "" {
		cfg.Cache.Dir = dir
	}
	if s := os.Getenv("DARKROOM_CACHE_MIN_FREE"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			cfg.Cache.MinFreeBytes = n
		}
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = os.TempDir()
	}
	return cfg, loadErr
}

// GlobalConfigDir returns the path to ~/.darkroom, or $DARKROOM_HOME when set.
func GlobalConfigDir() string {
	if dir := os.Getenv("DARKROOM_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".darkroom")
	}
	return filepath.Join(homeDir, ".darkroom")
}
