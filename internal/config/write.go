package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors Config with toml tags for writing. Viper handles
// reads; BurntSushi handles the one write path (config init).
type fileConfig struct {
	Storage struct {
		Engine string `toml:"engine"`
		File   struct {
			Mode string `toml:"mode"`
		} `toml:"file"`
	} `toml:"storage"`
	Sync struct {
		GitHub struct {
			Enabled     bool   `toml:"enabled"`
			TokenEnv    string `toml:"token_env"`
			LabelPrefix string `toml:"label_prefix"`
			Auto        struct {
				OnChange bool `toml:"on_change"`
			} `toml:"auto"`
		} `toml:"github"`
	} `toml:"sync"`
}

// WriteDefault writes a default config file at path, creating parent
// directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var fc fileConfig
	fc.Storage.Engine = EngineFile
	fc.Storage.File.Mode = ModeInRepo
	fc.Sync.GitHub.Enabled = false
	fc.Sync.GitHub.TokenEnv = DefaultTokenEnv
	fc.Sync.GitHub.LabelPrefix = DefaultLabelPrefix
	fc.Sync.GitHub.Auto.OnChange = true

	var buf bytes.Buffer
	buf.WriteString("# dex configuration\n")
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
