// Package archive implements the append-only log of compacted terminal
// tasks (archive.jsonl in the store directory).
//
// Records are never rewritten. A failed archival transfer can leave the
// same id appended twice; readers resolve that by keeping the most recent
// record per id, so duplicate lines are harmless and self-heal on the next
// read.
package archive

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/storage"
	"github.com/kschrader/dex/internal/types"
)

// maxLineBytes bounds a single archive line (16 MiB).
const maxLineBytes = 16 * 1024 * 1024

// Log reads and appends archive.jsonl inside a store directory.
type Log struct {
	dir string
}

// NewLog returns a log rooted at the given store directory.
func NewLog(dir string) *Log {
	return &Log{dir: dir}
}

func (l *Log) path() string {
	return filepath.Join(l.dir, storage.ArchiveFile)
}

// Append adds records to the end of the log without rewriting existing
// content. Each record occupies one line.
func (l *Log) Append(records []*types.ArchivedTask) error {
	if len(records) == 0 {
		return nil
	}
	var buf []byte
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return dexerr.Wrap(dexerr.Internal, err, "encoding archive record %s", rec.ID)
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return dexerr.Wrap(dexerr.Internal, err, "encoding archive record %s", rec.ID)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	f, err := os.OpenFile(l.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G304
	if err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "opening archive log")
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(buf); err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "appending to archive log")
	}
	if err := f.Sync(); err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "syncing archive log")
	}
	return nil
}

// List scans the full log and returns the visible record per id (last one
// wins), optionally filtered by a case-insensitive substring match on
// name, description, or result.
func (l *Log) List(query string) ([]*types.ArchivedTask, error) {
	byID, order, err := l.scan()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []*types.ArchivedTask
	for _, id := range order {
		rec := byID[id]
		if needle != "" && !matches(rec, needle) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns the visible record for an exact id, or nil when the id was
// never archived.
func (l *Log) Get(id string) (*types.ArchivedTask, error) {
	byID, _, err := l.scan()
	if err != nil {
		return nil, err
	}
	return byID[id], nil
}

// IDs returns the set of ids visible in the log.
func (l *Log) IDs() (map[string]bool, error) {
	byID, _, err := l.scan()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(byID))
	for id := range byID {
		ids[id] = true
	}
	return ids, nil
}

// scan reads the whole log, deduplicating by id with last-record-wins.
// order preserves first appearance for stable listing.
func (l *Log) scan() (map[string]*types.ArchivedTask, []string, error) {
	f, err := os.Open(l.path()) // #nosec G304 - path is inside the store dir
	if os.IsNotExist(err) {
		return map[string]*types.ArchivedTask{}, nil, nil
	}
	if err != nil {
		return nil, nil, dexerr.Wrap(dexerr.StorageIO, err, "opening archive log")
	}
	defer func() { _ = f.Close() }()

	byID := map[string]*types.ArchivedTask{}
	var order []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.ArchivedTask
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, dexerr.Wrap(dexerr.DataCorruption, err, "%s line %d: malformed archive record", storage.ArchiveFile, lineNo)
		}
		if err := rec.Validate(); err != nil {
			return nil, nil, dexerr.Wrap(dexerr.DataCorruption, err, "%s line %d: invalid archive record", storage.ArchiveFile, lineNo)
		}
		if _, seen := byID[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		copied := rec
		byID[rec.ID] = &copied
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, dexerr.Wrap(dexerr.StorageIO, err, "reading archive log")
	}
	return byID, order, nil
}

func matches(rec *types.ArchivedTask, needle string) bool {
	return strings.Contains(strings.ToLower(rec.Name), needle) ||
		strings.Contains(strings.ToLower(rec.Description), needle) ||
		strings.Contains(strings.ToLower(rec.Result), needle)
}
