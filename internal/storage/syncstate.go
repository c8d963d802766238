package storage

import (
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/types"
)

// ReadSyncState loads sync-state.json. A missing file yields the zero
// state (never synced).
func (e *FileEngine) ReadSyncState() (*types.SyncState, error) {
	var state types.SyncState
	if _, err := e.readJSONFile(SyncStateFile, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// WriteSyncState persists sync-state.json atomically. Called only after a
// successful sync.
func (e *FileEngine) WriteSyncState(state *types.SyncState) error {
	data, err := marshalIndent(state)
	if err != nil {
		return dexerr.Wrap(dexerr.Internal, err, "encoding sync state")
	}
	return e.writeAtomic(SyncStateFile, data)
}
