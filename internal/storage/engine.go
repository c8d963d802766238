// Package storage implements the durable mapping from a store directory to
// the set of active tasks.
//
// The on-disk format is a directory holding tasks.jsonl (one task per
// line), sync-state.json, and archive.jsonl (owned by the archive package).
// Writes rewrite tasks.jsonl in full and are made atomic by writing a
// temporary file in the same directory and renaming over the target.
// Readers never observe a partial file.
//
// There is no file locking: the process model is a single writer, and
// concurrent readers are safe because of the atomic rename.
package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/types"
)

// File names inside a store directory.
const (
	TasksFile     = "tasks.jsonl"
	ArchiveFile   = "archive.jsonl"
	SyncStateFile = "sync-state.json"
	LegacyFile    = "tasks.json"
)

// maxLineBytes bounds a single JSONL line (16 MiB).
const maxLineBytes = 16 * 1024 * 1024

// Engine is the active-store contract the task service depends on.
type Engine interface {
	// Read returns the full active store. Fails with data_corruption on
	// malformed content and storage_io on an unreadable directory.
	Read(ctx context.Context) (types.TaskStore, error)
	// Write atomically replaces the active store.
	Write(ctx context.Context, store types.TaskStore) error
	// Identifier returns the canonical store path.
	Identifier() string
}

// FileEngine is the JSONL file implementation of Engine.
type FileEngine struct {
	dir string
}

// NewFileEngine creates an engine rooted at dir, creating the directory if
// needed.
func NewFileEngine(dir string) (*FileEngine, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, dexerr.Wrap(dexerr.StorageIO, err, "resolving store path %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, dexerr.Wrap(dexerr.StorageIO, err, "creating store directory %s", abs)
	}
	return &FileEngine{dir: abs}, nil
}

// Identifier returns the canonical store directory.
func (e *FileEngine) Identifier() string { return e.dir }

// Dir returns the store directory (for collaborators like the archive log).
func (e *FileEngine) Dir() string { return e.dir }

// Read loads tasks.jsonl. A missing file yields an empty store after the
// legacy migration check. Every line must validate; a bad line halts the
// read with data_corruption naming the offending line.
func (e *FileEngine) Read(ctx context.Context) (types.TaskStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(e.dir, TasksFile)
	f, err := os.Open(path) // #nosec G304 - path is inside the resolved store dir
	if os.IsNotExist(err) {
		migrated, merr := e.migrateLegacy()
		if merr != nil {
			return nil, merr
		}
		if !migrated {
			return types.TaskStore{}, nil
		}
		if f, err = os.Open(path); err != nil { // #nosec G304
			return nil, dexerr.Wrap(dexerr.StorageIO, err, "reading migrated store")
		}
	} else if err != nil {
		return nil, dexerr.Wrap(dexerr.StorageIO, err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	store := types.TaskStore{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var task types.Task
		if err := json.Unmarshal(line, &task); err != nil {
			return nil, dexerr.Wrap(dexerr.DataCorruption, err, "%s line %d: malformed task", TasksFile, lineNo)
		}
		if err := task.Validate(); err != nil {
			return nil, dexerr.Wrap(dexerr.DataCorruption, err, "%s line %d: invalid task", TasksFile, lineNo)
		}
		if _, dup := store[task.ID]; dup {
			return nil, dexerr.New(dexerr.DataCorruption, "%s line %d: duplicate task id %s", TasksFile, lineNo, task.ID)
		}
		store[task.ID] = &task
	}
	if err := scanner.Err(); err != nil {
		return nil, dexerr.Wrap(dexerr.StorageIO, err, "reading %s", path)
	}
	return store, nil
}

// Write rewrites tasks.jsonl from the store, one task per line in
// deterministic priority/created_at order, via temp file + atomic rename.
func (e *FileEngine) Write(ctx context.Context, store types.TaskStore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf []byte
	for _, id := range store.SortedIDs() {
		line, err := json.Marshal(store[id])
		if err != nil {
			return dexerr.Wrap(dexerr.Internal, err, "encoding task %s", id)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return e.writeAtomic(TasksFile, buf)
}

// writeAtomic writes content to a temp file in the store directory, syncs
// it, and renames it over name. The rename is retried with exponential
// backoff to ride out transient locks from scanners and editors.
func (e *FileEngine) writeAtomic(name string, content []byte) error {
	tmp, err := os.CreateTemp(e.dir, "."+name+".tmp-*")
	if err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "creating temp file in %s", e.dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return dexerr.Wrap(dexerr.StorageIO, err, "writing %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return dexerr.Wrap(dexerr.StorageIO, err, "syncing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "closing %s", tmpName)
	}

	target := filepath.Join(e.dir, name)
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
	), 4)
	if err := backoff.Retry(func() error {
		return os.Rename(tmpName, target)
	}, policy); err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "replacing %s", target)
	}
	return nil
}

// readJSONFile is a small helper for the single-object auxiliary files.
func (e *FileEngine) readJSONFile(name string, out interface{}) (bool, error) {
	path := filepath.Join(e.dir, name)
	data, err := os.ReadFile(path) // #nosec G304 - path is inside the resolved store dir
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, dexerr.Wrap(dexerr.StorageIO, err, "reading %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, dexerr.Wrap(dexerr.DataCorruption, err, "parsing %s", path)
	}
	return true, nil
}

func marshalIndent(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}
	return append(data, '\n'), nil
}
