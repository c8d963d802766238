package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kschrader/dex/internal/dexerr"
)

// isolate points the global config location at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func writeProject(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".dex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dex", "config.toml"), []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, EngineFile, cfg.Storage.Engine)
	assert.Equal(t, ModeInRepo, cfg.Storage.File.Mode)
	assert.False(t, cfg.Sync.GitHub.Enabled)
	assert.Equal(t, DefaultTokenEnv, cfg.Sync.GitHub.TokenEnv)
	assert.Equal(t, DefaultLabelPrefix, cfg.Sync.GitHub.LabelPrefix)
	assert.True(t, cfg.Sync.GitHub.Auto.OnChange)
}

func TestLoadProjectFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeProject(t, dir, `
[storage.file]
mode = "centralized"

[sync.github]
enabled = true
repo = "octo/widgets"
label_prefix = "trk"

[sync.github.auto]
on_change = false
max_age = "30m"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ModeCentralized, cfg.Storage.File.Mode)
	assert.True(t, cfg.Sync.GitHub.Enabled)
	assert.Equal(t, "octo/widgets", cfg.Sync.GitHub.Repo)
	assert.Equal(t, "trk", cfg.Sync.GitHub.LabelPrefix)
	assert.False(t, cfg.Sync.GitHub.Auto.OnChange)

	maxAge, err := cfg.Sync.GitHub.Auto.MaxAgeDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, maxAge)
}

func TestProjectOverridesGlobal(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(configHome, "dex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configHome, "dex", "config.toml"), []byte(`
[sync.github]
label_prefix = "global"
enabled = true
`), 0o644))

	dir := t.TempDir()
	writeProject(t, dir, `
[sync.github]
label_prefix = "project"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "project", cfg.Sync.GitHub.LabelPrefix)
	assert.True(t, cfg.Sync.GitHub.Enabled, "global values survive where the project is silent")
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "[storage.file]\nmode = \"weird\"\n"},
		{"bad engine", "[storage]\nengine = \"sqlite\"\n"},
		{"bad max_age", "[sync.github.auto]\nmax_age = \"soon\"\n"},
		{"malformed toml", "[storage\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			writeProject(t, dir, tt.content)
			_, err := Load(dir)
			require.Error(t, err)
			assert.True(t, dexerr.IsKind(err, dexerr.ValidationFailed))
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".dex", "config.toml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "token_env")

	assert.Error(t, WriteDefault(path), "refuses to overwrite")
}
