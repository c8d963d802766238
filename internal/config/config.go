// Package config loads dex configuration from TOML files.
//
// Two locations are merged: a global file under the user's config dir
// (~/.config/dex/config.toml on Linux) and a per-project file at
// .dex/config.toml. Project values override global values. Config is loaded
// once at startup; token and repo detection happen lazily elsewhere.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/timeparsing"
)

// Storage engine and mode values.
const (
	EngineFile      = "file"
	ModeInRepo      = "in-repo"
	ModeCentralized = "centralized"
)

// Defaults applied before any file is read.
const (
	DefaultTokenEnv    = "GITHUB_TOKEN"
	DefaultLabelPrefix = "dex"
)

// Config is the process-wide dex configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

// StorageConfig selects the storage backend. Only the file engine exists.
type StorageConfig struct {
	Engine string            `mapstructure:"engine"`
	File   FileStorageConfig `mapstructure:"file"`
}

// FileStorageConfig controls store location resolution.
type FileStorageConfig struct {
	Mode string `mapstructure:"mode"` // "in-repo" or "centralized"
}

// SyncConfig groups external-tracker sync settings.
type SyncConfig struct {
	GitHub GitHubSyncConfig `mapstructure:"github"`
}

// GitHubSyncConfig controls the GitHub issue mirror.
type GitHubSyncConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Repo        string         `mapstructure:"repo"` // "owner/name"; empty = detect from origin
	TokenEnv    string         `mapstructure:"token_env"`
	LabelPrefix string         `mapstructure:"label_prefix"`
	Auto        AutoSyncConfig `mapstructure:"auto"`
}

// AutoSyncConfig is the dispatch policy for post-mutation sync.
type AutoSyncConfig struct {
	OnChange bool   `mapstructure:"on_change"`
	MaxAge   string `mapstructure:"max_age"` // duration like "30m", "1h", "1d"
}

// MaxAgeDuration parses the staleness threshold. Zero means unset.
func (a AutoSyncConfig) MaxAgeDuration() (time.Duration, error) {
	if a.MaxAge == "" {
		return 0, nil
	}
	d, err := timeparsing.ParseDuration(a.MaxAge)
	if err != nil {
		return 0, dexerr.Wrap(dexerr.ValidationFailed, err, "sync.github.auto.max_age")
	}
	return d, nil
}

// GlobalPath returns the global config file location.
func GlobalPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(base, "dex", "config.toml"), nil
}

// ProjectPath returns the per-project config file location under dir.
func ProjectPath(dir string) string {
	return filepath.Join(dir, ".dex", "config.toml")
}

// Load reads the global file then merges the project file on top. Missing
// files are fine; malformed files and invalid enum values are
// validation_failed.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("storage.engine", EngineFile)
	v.SetDefault("storage.file.mode", ModeInRepo)
	v.SetDefault("sync.github.enabled", false)
	v.SetDefault("sync.github.token_env", DefaultTokenEnv)
	v.SetDefault("sync.github.label_prefix", DefaultLabelPrefix)
	v.SetDefault("sync.github.auto.on_change", true)

	if global, err := GlobalPath(); err == nil {
		if err := mergeFile(v, global); err != nil {
			return nil, err
		}
	}
	if err := mergeFile(v, ProjectPath(projectDir)); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, dexerr.Wrap(dexerr.ValidationFailed, err, "invalid configuration")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	f, err := os.Open(path) // #nosec G304 - paths come from GlobalPath/ProjectPath
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "reading config %s", path)
	}
	defer func() { _ = f.Close() }()
	if err := v.MergeConfig(f); err != nil {
		return dexerr.Wrap(dexerr.ValidationFailed, err, "parsing config %s", path)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Storage.Engine != EngineFile {
		return dexerr.New(dexerr.ValidationFailed, "unsupported storage.engine %q (only %q)", c.Storage.Engine, EngineFile)
	}
	switch c.Storage.File.Mode {
	case ModeInRepo, ModeCentralized:
	default:
		return dexerr.New(dexerr.ValidationFailed, "unsupported storage.file.mode %q (want %q or %q)", c.Storage.File.Mode, ModeInRepo, ModeCentralized)
	}
	if _, err := c.Sync.GitHub.Auto.MaxAgeDuration(); err != nil {
		return err
	}
	return nil
}
