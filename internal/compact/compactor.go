// Package compact implements archival of closed task lineages: eligibility
// rules, collection of archivable roots, compaction into the reduced
// archive form, and the two-step transfer from the active store to the
// archive log.
package compact

import (
	"context"
	"sort"
	"time"

	"github.com/kschrader/dex/internal/archive"
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/graph"
	"github.com/kschrader/dex/internal/storage"
	"github.com/kschrader/dex/internal/types"
)

// Bulk eligibility defaults.
const (
	// DefaultMinAgeDays keeps freshly completed work out of auto archival.
	DefaultMinAgeDays = 90

	// DefaultKeepRecent always retains the most recently completed roots
	// regardless of age.
	DefaultKeepRecent = 50
)

// Options control bulk collection.
type Options struct {
	MinAge        time.Duration // age floor on completed_at; 0 = 90 days
	KeepRecent    int           // recent completed roots to retain; <0 disables, 0 = 50
	OlderThan     time.Duration // explicit --older-than cutoff; 0 = unset
	Before        *time.Time    // explicit cutoff instant; overrides OlderThan
	Except        []string      // root ids to exclude
	CompletedOnly bool          // --completed: archive all closed lineages, ignoring age
}

// Compactor transfers closed lineages between the active store and the
// archive log.
type Compactor struct {
	engine *storage.FileEngine
	log    *archive.Log
	now    func() types.Time
}

// New builds a compactor over a store engine and its archive log.
func New(engine *storage.FileEngine, log *archive.Log) *Compactor {
	return &Compactor{engine: engine, log: log, now: types.Now}
}

// WithClock overrides the clock (tests).
func (c *Compactor) WithClock(now func() types.Time) *Compactor {
	c.now = now
	return c
}

// CanArchive reports whether a task's lineage is a closed sub-forest: the
// task completed, every descendant completed, and no ancestor pending.
// The reason explains the first failing condition.
func CanArchive(store types.TaskStore, id string) (bool, string) {
	task, ok := store[id]
	if !ok {
		return false, "task not found"
	}
	if !task.Completed {
		return false, "task is not completed"
	}
	for _, d := range graph.Descendants(store, id) {
		if !d.Completed {
			return false, "descendant " + d.ID + " is not completed"
		}
	}
	for _, a := range graph.Ancestors(store, id) {
		if !a.Completed {
			return false, "ancestor " + a.ID + " is not completed"
		}
	}
	return true, ""
}

// CollectRoots returns the root tasks eligible for bulk archival under the
// given options, oldest completion first.
//
// Roots without completed_at are skipped unless CompletedOnly is set (they
// cannot be compared against an age cutoff).
func (c *Compactor) CollectRoots(store types.TaskStore, opts Options) []string {
	except := make(map[string]bool, len(opts.Except))
	for _, id := range opts.Except {
		except[id] = true
	}

	var cutoff time.Time
	now := c.now().Time
	switch {
	case opts.CompletedOnly:
		// no age cutoff
	case opts.Before != nil:
		cutoff = *opts.Before
	case opts.OlderThan > 0:
		cutoff = now.Add(-opts.OlderThan)
	default:
		minAge := opts.MinAge
		if minAge == 0 {
			minAge = DefaultMinAgeDays * 24 * time.Hour
		}
		cutoff = now.Add(-minAge)
	}

	keep := map[string]bool{}
	if !opts.CompletedOnly && opts.Before == nil && opts.OlderThan == 0 {
		keep = c.recentCompleted(store, opts.KeepRecent)
	}

	var eligible []*types.Task
	for id, task := range store {
		if task.ParentID != nil || except[id] || keep[id] {
			continue
		}
		if ok, _ := CanArchive(store, id); !ok {
			continue
		}
		if !opts.CompletedOnly {
			if task.CompletedAt == nil {
				continue
			}
			if !task.CompletedAt.Before(cutoff) {
				continue
			}
		}
		eligible = append(eligible, task)
	}

	sort.Slice(eligible, func(i, j int) bool {
		ti, tj := eligible[i].CompletedAt, eligible[j].CompletedAt
		switch {
		case ti == nil:
			return tj != nil
		case tj == nil:
			return false
		default:
			return ti.Before(tj.Time)
		}
	})
	ids := make([]string, len(eligible))
	for i, t := range eligible {
		ids[i] = t.ID
	}
	return ids
}

// recentCompleted returns the ids of the n most recently completed roots
// (by completed_at descending).
func (c *Compactor) recentCompleted(store types.TaskStore, n int) map[string]bool {
	if n < 0 {
		return map[string]bool{}
	}
	if n == 0 {
		n = DefaultKeepRecent
	}
	var completed []*types.Task
	for _, task := range store {
		if task.ParentID == nil && task.Completed && task.CompletedAt != nil {
			completed = append(completed, task)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[j].CompletedAt.Before(completed[i].CompletedAt.Time)
	})
	keep := map[string]bool{}
	for i := 0; i < len(completed) && i < n; i++ {
		keep[completed[i].ID] = true
	}
	return keep
}

// CompactLineage maps a task and its descendants to archive records. Each
// record keeps only the terminal fields plus github/commit metadata; every
// record inlines its direct children's summaries.
func (c *Compactor) CompactLineage(store types.TaskStore, id string) []*types.ArchivedTask {
	task, ok := store[id]
	if !ok {
		return nil
	}
	lineage := append([]*types.Task{task}, graph.Descendants(store, id)...)
	archivedAt := c.now()
	records := make([]*types.ArchivedTask, 0, len(lineage))
	for _, t := range lineage {
		records = append(records, compactTask(store, t, archivedAt))
	}
	return records
}

func compactTask(store types.TaskStore, t *types.Task, archivedAt types.Time) *types.ArchivedTask {
	rec := &types.ArchivedTask{
		ID:          t.ID,
		ParentID:    t.ParentID,
		Name:        t.Name,
		Description: t.Description,
		Result:      t.Result,
		CompletedAt: t.CompletedAt,
		ArchivedAt:  archivedAt,
	}
	if t.Metadata != nil && (t.Metadata.GitHub != nil || t.Metadata.Commit != nil) {
		rec.Metadata = t.Metadata.Clone()
	}
	for _, childID := range t.Children {
		child, ok := store[childID]
		if !ok {
			continue
		}
		rec.ArchivedChildren = append(rec.ArchivedChildren, types.ArchivedChild{
			ID:          child.ID,
			Name:        child.Name,
			Description: child.Description,
			Result:      child.Result,
		})
	}
	return rec
}

// Result summarizes a transfer.
type Result struct {
	Roots    []string // archived lineage roots
	Archived int      // total records appended
}

// Archive performs the two-step transfer for the given lineage roots:
// append compacted records to the archive log, then rewrite the active
// store with the lineages removed and their references cleaned up.
//
// A crash between the steps leaves duplicate archive records; readers
// resolve those by id (latest wins), so the transfer is idempotent.
func (c *Compactor) Archive(ctx context.Context, ids []string) (*Result, error) {
	store, err := c.engine.Read(ctx)
	if err != nil {
		return nil, err
	}

	var records []*types.ArchivedTask
	removed := map[string]bool{}
	result := &Result{}
	for _, id := range ids {
		if removed[id] {
			continue
		}
		if ok, reason := CanArchive(store, id); !ok {
			return nil, dexerr.New(dexerr.PreconditionFailed, "cannot archive %s: %s", id, reason)
		}
		lineage := c.CompactLineage(store, id)
		for _, rec := range lineage {
			if !removed[rec.ID] {
				removed[rec.ID] = true
				records = append(records, rec)
			}
		}
		result.Roots = append(result.Roots, id)
	}
	if len(records) == 0 {
		return result, nil
	}

	// Step 1: archive append. A failure here aborts before the active
	// store is touched.
	if err := c.log.Append(records); err != nil {
		return nil, err
	}

	// Step 2: remove the lineages from the active store.
	for id := range removed {
		delete(store, id)
	}
	for id := range removed {
		graph.CleanupTaskReferences(store, id)
	}
	if err := c.engine.Write(ctx, store); err != nil {
		return nil, err
	}
	result.Archived = len(records)
	return result, nil
}
