package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/types"
)

// legacyDocument is the pre-JSONL single-file format: one JSON object with
// a tasks array. Ids and timestamps are preserved verbatim.
type legacyDocument struct {
	Tasks []*types.Task `json:"tasks"`
}

// migrateLegacy converts tasks.json to tasks.jsonl if present. The legacy
// file is kept with a .bak suffix so a bad migration can be recovered by
// hand. Returns true when a migration produced tasks.jsonl.
func (e *FileEngine) migrateLegacy() (bool, error) {
	legacyPath := filepath.Join(e.dir, LegacyFile)
	data, err := os.ReadFile(legacyPath) // #nosec G304 - path is inside the resolved store dir
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, dexerr.Wrap(dexerr.StorageIO, err, "reading legacy store %s", legacyPath)
	}

	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// Some very old stores held a bare task array.
		var tasks []*types.Task
		if err2 := json.Unmarshal(data, &tasks); err2 != nil {
			return false, dexerr.Wrap(dexerr.DataCorruption, err, "parsing legacy store %s", legacyPath)
		}
		doc.Tasks = tasks
	}

	store := types.TaskStore{}
	for _, task := range doc.Tasks {
		if err := task.Validate(); err != nil {
			return false, dexerr.Wrap(dexerr.DataCorruption, err, "legacy store task %s", task.ID)
		}
		store[task.ID] = task
	}

	var buf []byte
	for _, id := range store.SortedIDs() {
		line, err := json.Marshal(store[id])
		if err != nil {
			return false, dexerr.Wrap(dexerr.Internal, err, "encoding task %s", id)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if err := e.writeAtomic(TasksFile, buf); err != nil {
		return false, err
	}
	if err := os.Rename(legacyPath, legacyPath+".bak"); err != nil {
		return false, dexerr.Wrap(dexerr.StorageIO, err, "retiring legacy store %s", legacyPath)
	}
	return true, nil
}
