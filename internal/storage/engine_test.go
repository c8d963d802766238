package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/types"
)

func newTask(id string, priority int) *types.Task {
	now := types.Now()
	return &types.Task{ID: id, Name: "task " + id, Priority: priority, CreatedAt: now, UpdatedAt: now}
}

func TestReadEmptyStore(t *testing.T) {
	engine, err := NewFileEngine(t.TempDir())
	require.NoError(t, err)

	store, err := engine.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store)
}

func TestWriteReadRoundTrip(t *testing.T) {
	engine, err := NewFileEngine(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	store := types.TaskStore{
		"aaaaaaaa": newTask("aaaaaaaa", 2),
		"bbbbbbbb": newTask("bbbbbbbb", 1),
	}
	store["aaaaaaaa"].BlockedBy = []string{"bbbbbbbb"}
	store["bbbbbbbb"].Blocks = []string{"aaaaaaaa"}

	require.NoError(t, engine.Write(ctx, store))

	back, err := engine.Read(ctx)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, []string{"bbbbbbbb"}, back["aaaaaaaa"].BlockedBy)
	assert.Equal(t, []string{"aaaaaaaa"}, back["bbbbbbbb"].Blocks)
}

func TestWriteDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewFileEngine(dir)
	require.NoError(t, err)
	ctx := context.Background()

	store := types.TaskStore{
		"aaaaaaaa": newTask("aaaaaaaa", 5),
		"bbbbbbbb": newTask("bbbbbbbb", 1),
	}
	require.NoError(t, engine.Write(ctx, store))

	data, err := os.ReadFile(filepath.Join(dir, TasksFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "bbbbbbbb", "lower priority value sorts first")
}

func TestReadCorruptLine(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewFileEngine(dir)
	require.NoError(t, err)

	content := `{"id":"aaaaaaaa","name":"ok","priority":1,"completed":false,"created_at":"2024-01-01T00:00:00.000Z","updated_at":"2024-01-01T00:00:00.000Z"}` + "\n" +
		"not json\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, TasksFile), []byte(content), 0o644))

	_, err = engine.Read(context.Background())
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.DataCorruption))
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadDuplicateID(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewFileEngine(dir)
	require.NoError(t, err)

	line := `{"id":"aaaaaaaa","name":"ok","priority":1,"completed":false,"created_at":"2024-01-01T00:00:00.000Z","updated_at":"2024-01-01T00:00:00.000Z"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, TasksFile), []byte(line+line), 0o644))

	_, err = engine.Read(context.Background())
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.DataCorruption))
}

func TestLegacyMigration(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewFileEngine(dir)
	require.NoError(t, err)

	legacy := `{"tasks":[{"id":"aaaaaaaa","name":"old","priority":3,"completed":false,"created_at":"2023-06-01T00:00:00.000Z","updated_at":"2023-06-01T00:00:00.000Z"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyFile), []byte(legacy), 0o644))

	store, err := engine.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, store, 1)
	assert.Equal(t, "old", store["aaaaaaaa"].Name)
	assert.Equal(t, "2023-06-01T00:00:00.000Z", store["aaaaaaaa"].CreatedAt.String())

	// JSONL written, legacy retired to .bak.
	_, err = os.Stat(filepath.Join(dir, TasksFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, LegacyFile))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, LegacyFile+".bak"))
	assert.NoError(t, err)
}

func TestLegacyMigrationBareArray(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewFileEngine(dir)
	require.NoError(t, err)

	legacy := `[{"id":"bbbbbbbb","name":"bare","priority":1,"completed":false,"created_at":"2023-06-01T00:00:00.000Z","updated_at":"2023-06-01T00:00:00.000Z"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyFile), []byte(legacy), 0o644))

	store, err := engine.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, store, 1)
	assert.Equal(t, "bare", store["bbbbbbbb"].Name)
}

func TestSyncStateRoundTrip(t *testing.T) {
	engine, err := NewFileEngine(t.TempDir())
	require.NoError(t, err)

	state, err := engine.ReadSyncState()
	require.NoError(t, err)
	assert.Nil(t, state.LastSync)

	now := types.Now()
	require.NoError(t, engine.WriteSyncState(&types.SyncState{LastSync: &now}))

	state, err = engine.ReadSyncState()
	require.NoError(t, err)
	require.NotNil(t, state.LastSync)
	assert.True(t, now.Equal(state.LastSync.Time))
}

func TestProjectKeyStability(t *testing.T) {
	key1 := ProjectKey("/home/user/projects/widget")
	key2 := ProjectKey("/home/user/projects/widget")
	key3 := ProjectKey("/home/other/projects/widget")

	assert.Equal(t, key1, key2)
	assert.NotEqual(t, key1, key3, "same basename, different path")
	assert.True(t, strings.HasPrefix(key1, "widget-"))
}
