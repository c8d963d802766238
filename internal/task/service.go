// Package task implements the transactional façade over the store. Every
// mutation follows the same shape: read the store, validate, mutate in
// memory while keeping the relational invariants intact, write the store
// atomically, then fire post-commit side effects (GitHub sync).
package task

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kschrader/dex/internal/archive"
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/git"
	"github.com/kschrader/dex/internal/github"
	"github.com/kschrader/dex/internal/graph"
	"github.com/kschrader/dex/internal/idgen"
	"github.com/kschrader/dex/internal/storage"
	"github.com/kschrader/dex/internal/types"
)

// maxIDAttempts bounds collision retries when generating a fresh id.
const maxIDAttempts = 10

// GitHubSyncer is the slice of the sync layer the service dispatches to
// after mutations. Nil disables sync entirely.
type GitHubSyncer interface {
	ShouldSync(now time.Time) bool
	SyncRoot(ctx context.Context, store types.TaskStore, rootID string) (bool, error)
	FetchIssue(ctx context.Context, repo string, number int) (*github.Issue, error)
	Repo() (string, error)
}

// Service is the task façade. Callers guarantee serial access; there is no
// cross-process locking.
type Service struct {
	engine  storage.Engine
	archive *archive.Log
	syncer  GitHubSyncer
	gitDir  string // enables commit metadata capture on complete
	log     *slog.Logger
	now     func() types.Time
	newID   func() (string, error)
}

// NewService builds a service over an engine and its archive log.
func NewService(engine storage.Engine, log *archive.Log, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:  engine,
		archive: log,
		log:     logger,
		now:     types.Now,
		newID:   idgen.NewID,
	}
}

// WithSyncer attaches the GitHub sync dispatcher.
func (s *Service) WithSyncer(sync GitHubSyncer) *Service {
	s.syncer = sync
	return s
}

// WithGitDir enables commit metadata capture from the repository at dir.
func (s *Service) WithGitDir(dir string) *Service {
	s.gitDir = dir
	return s
}

// WithClock overrides the clock (tests).
func (s *Service) WithClock(now func() types.Time) *Service {
	s.now = now
	return s
}

// WithIDGen overrides id generation (tests).
func (s *Service) WithIDGen(gen func() (string, error)) *Service {
	s.newID = gen
	return s
}

// CreateInput is the create payload. Zero values mean "not provided".
type CreateInput struct {
	ID          string // optional externally supplied id
	Name        string
	Description string
	Priority    *int // nil = DefaultPriority
	ParentID    string
	BlockedBy   []string
}

// Create inserts a new task, wiring parent and blocking edges.
func (s *Service) Create(ctx context.Context, in CreateInput) (*types.Task, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, dexerr.New(dexerr.ValidationFailed, "task name is required")
	}
	priority := types.DefaultPriority
	if in.Priority != nil {
		priority = *in.Priority
	}
	if priority < types.MinPriority || priority > types.MaxPriority {
		return nil, dexerr.New(dexerr.ValidationFailed, "priority must be between %d and %d (got %d)",
			types.MinPriority, types.MaxPriority, priority)
	}

	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}

	if in.ParentID != "" {
		if _, ok := store[in.ParentID]; !ok {
			return nil, dexerr.New(dexerr.ReferenceMissing, "parent task %s not found", in.ParentID)
		}
		if graph.DepthFromParent(store, in.ParentID)+1 > graph.MaxDepth {
			return nil, dexerr.New(dexerr.DepthExceeded, "cannot nest below %s: maximum depth is %d", in.ParentID, graph.MaxDepth)
		}
	}
	for _, blockerID := range in.BlockedBy {
		if _, ok := store[blockerID]; !ok {
			return nil, dexerr.New(dexerr.ReferenceMissing, "blocking task %s not found", blockerID)
		}
	}

	id, err := s.assignID(store, in.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &types.Task{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.ParentID != "" {
		pid := in.ParentID
		t.ParentID = &pid
	}
	store[id] = t

	if err := graph.SyncParentChild(store, id, nil, t.ParentID); err != nil {
		return nil, err
	}
	for _, blockerID := range in.BlockedBy {
		if graph.WouldCreateBlockingCycle(store, blockerID, id) {
			return nil, dexerr.New(dexerr.CycleWouldForm, "blocking %s on %s would form a cycle", id, blockerID)
		}
		if err := graph.SyncAddBlocker(store, blockerID, id); err != nil {
			return nil, err
		}
	}

	if err := s.engine.Write(ctx, store); err != nil {
		return nil, err
	}
	s.dispatchSync(ctx, store, id)
	return t, nil
}

// assignID picks the task id: an externally supplied one (checked against
// the active store and the archive) or a fresh random one.
func (s *Service) assignID(store types.TaskStore, supplied string) (string, error) {
	archived, err := s.archivedIDs()
	if err != nil {
		return "", err
	}
	if supplied != "" {
		if !types.IDPattern.MatchString(supplied) {
			return "", dexerr.New(dexerr.ValidationFailed, "invalid task id %q: must match %s", supplied, types.IDPattern)
		}
		if _, taken := store[supplied]; taken {
			return "", dexerr.New(dexerr.AlreadyExists, "task %s already exists", supplied)
		}
		if archived[supplied] {
			return "", dexerr.New(dexerr.AlreadyExists, "task %s exists in the archive", supplied)
		}
		return supplied, nil
	}
	for i := 0; i < maxIDAttempts; i++ {
		id, err := s.newID()
		if err != nil {
			return "", dexerr.Wrap(dexerr.Internal, err, "generating task id")
		}
		if _, taken := store[id]; !taken && !archived[id] {
			return id, nil
		}
	}
	return "", dexerr.New(dexerr.Internal, "could not generate a unique task id after %d attempts", maxIDAttempts)
}

func (s *Service) archivedIDs() (map[string]bool, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.IDs()
}

// UpdateInput is the partial-update payload. Nil pointer fields are left
// unchanged; SetParent distinguishes "reparent to nil (make root)" from
// "don't touch the parent".
type UpdateInput struct {
	Name            *string
	Description     *string
	Priority        *int
	Result          *string
	Completed       *bool
	StartedAt       *types.Time
	ClearStart      bool
	SetParent       bool
	ParentID        *string // meaningful only when SetParent; nil makes the task a root
	Metadata        *types.Metadata
	AddBlockedBy    []string
	RemoveBlockedBy []string
}

// Update applies a partial update, revalidating every touched invariant.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := store[id]
	if !ok {
		return nil, notFound(id)
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, dexerr.New(dexerr.ValidationFailed, "task name is required")
		}
		t.Name = *in.Name
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Priority != nil {
		if *in.Priority < types.MinPriority || *in.Priority > types.MaxPriority {
			return nil, dexerr.New(dexerr.ValidationFailed, "priority must be between %d and %d (got %d)",
				types.MinPriority, types.MaxPriority, *in.Priority)
		}
		t.Priority = *in.Priority
	}
	if in.Result != nil {
		t.Result = *in.Result
	}
	if in.Metadata != nil {
		t.Metadata = in.Metadata.Clone()
	}
	if in.StartedAt != nil {
		v := *in.StartedAt
		t.StartedAt = &v
	}
	if in.ClearStart {
		t.StartedAt = nil
	}

	if in.SetParent {
		if err := s.reparent(store, t, in.ParentID); err != nil {
			return nil, err
		}
	}

	for _, blockerID := range in.AddBlockedBy {
		if blockerID == id {
			return nil, dexerr.New(dexerr.CycleWouldForm, "task %s cannot block itself", id)
		}
		if _, ok := store[blockerID]; !ok {
			return nil, dexerr.New(dexerr.ReferenceMissing, "blocking task %s not found", blockerID)
		}
		if graph.WouldCreateBlockingCycle(store, blockerID, id) {
			return nil, dexerr.New(dexerr.CycleWouldForm, "blocking %s on %s would form a cycle", id, blockerID)
		}
		if err := graph.SyncAddBlocker(store, blockerID, id); err != nil {
			return nil, err
		}
	}
	for _, blockerID := range in.RemoveBlockedBy {
		graph.SyncRemoveBlocker(store, blockerID, id)
	}

	if in.Completed != nil && *in.Completed != t.Completed {
		if *in.Completed {
			if pending := pendingDescendants(store, id); len(pending) > 0 {
				return nil, dexerr.New(dexerr.PreconditionFailed,
					"task %s has %d pending descendant(s)", id, len(pending)).
					WithHint("Complete %s first", strings.Join(pending, ", "))
			}
			now := s.now()
			t.Completed = true
			t.CompletedAt = &now
			if t.StartedAt == nil {
				t.StartedAt = &now
			}
		} else {
			t.Completed = false
			t.CompletedAt = nil
		}
	}

	t.UpdatedAt = s.now()
	if err := s.engine.Write(ctx, store); err != nil {
		return nil, err
	}
	s.dispatchSync(ctx, store, id)
	return t, nil
}

// reparent moves t under newParentID (nil makes it a root), rejecting
// self-parenting, descent cycles, and depth overflows.
func (s *Service) reparent(store types.TaskStore, t *types.Task, newParentID *string) error {
	if newParentID != nil {
		if *newParentID == t.ID {
			return dexerr.New(dexerr.CycleWouldForm, "task %s cannot be its own parent", t.ID)
		}
		if _, ok := store[*newParentID]; !ok {
			return dexerr.New(dexerr.ReferenceMissing, "parent task %s not found", *newParentID)
		}
		if graph.IsDescendant(store, *newParentID, t.ID) {
			return dexerr.New(dexerr.CycleWouldForm, "task %s is a descendant of %s", *newParentID, t.ID)
		}
		newDepth := graph.DepthFromParent(store, *newParentID) + 1
		if newDepth+graph.MaxDescendantDepth(store, t.ID) > graph.MaxDepth {
			return dexerr.New(dexerr.DepthExceeded, "moving %s under %s would exceed depth %d",
				t.ID, *newParentID, graph.MaxDepth)
		}
	}
	if err := graph.SyncParentChild(store, t.ID, t.ParentID, newParentID); err != nil {
		return err
	}
	if newParentID != nil {
		pid := *newParentID
		t.ParentID = &pid
	} else {
		t.ParentID = nil
	}
	return nil
}

// Complete marks a task done, recording the result and, when requested,
// the HEAD commit of the enclosing repository.
func (s *Service) Complete(ctx context.Context, id, result string, withCommit bool) (*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := store[id]
	if !ok {
		return nil, notFound(id)
	}
	if t.Completed {
		return nil, dexerr.New(dexerr.PreconditionFailed, "task %s is already completed", id)
	}
	if pending := pendingDescendants(store, id); len(pending) > 0 {
		return nil, dexerr.New(dexerr.PreconditionFailed,
			"task %s has %d pending descendant(s)", id, len(pending)).
			WithHint("Complete %s first", strings.Join(pending, ", "))
	}

	completed := true
	in := UpdateInput{Completed: &completed}
	if result != "" {
		in.Result = &result
	}
	if withCommit {
		if commit := s.captureCommit(); commit != nil {
			meta := t.Metadata.Clone()
			if meta == nil {
				meta = &types.Metadata{}
			}
			meta.Commit = commit
			in.Metadata = meta
		}
	}
	return s.Update(ctx, id, in)
}

// captureCommit snapshots HEAD of the configured repository. Best effort:
// any failure yields nil.
func (s *Service) captureCommit() *types.CommitMetadata {
	if s.gitDir == "" {
		return nil
	}
	sha, message, branch, err := git.Head(s.gitDir)
	if err != nil || sha == "" {
		return nil
	}
	now := s.now()
	commit := &types.CommitMetadata{
		SHA:       sha,
		Message:   message,
		Branch:    branch,
		Timestamp: &now,
	}
	if repo, err := git.DetectRemote(s.gitDir); err == nil {
		commit.URL = "https://github.com/" + repo + "/commit/" + sha
	}
	return commit
}

// Start marks a task in progress. Restarting needs force.
func (s *Service) Start(ctx context.Context, id string, force bool) (*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := store[id]
	if !ok {
		return nil, notFound(id)
	}
	if t.Completed {
		return nil, dexerr.New(dexerr.PreconditionFailed, "task %s is already completed", id)
	}
	if t.StartedAt != nil && !force {
		return nil, dexerr.New(dexerr.AlreadyStarted, "task %s was started at %s", id, t.StartedAt).
			WithHint("Use --force to restart")
	}
	if blockers := graph.IncompleteBlockers(store, t); len(blockers) > 0 {
		s.log.Warn("starting a blocked task", "task", id, "blockers", len(blockers))
	}

	now := s.now()
	t.StartedAt = &now
	t.UpdatedAt = now
	if err := s.engine.Write(ctx, store); err != nil {
		return nil, err
	}
	s.dispatchSync(ctx, store, id)
	return t, nil
}

// Delete removes a task and its whole descendant subtree, scrubbing every
// reference to the removed ids. Returns the deleted root.
func (s *Service) Delete(ctx context.Context, id string) (*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := store[id]
	if !ok {
		return nil, notFound(id)
	}

	// The lineage root survives only when the deleted task is below it;
	// deleting the root itself leaves nothing to sync.
	syncRoot := ""
	if root := rootOf(store, id); root != id {
		syncRoot = root
	}

	removed := []string{id}
	for _, d := range graph.Descendants(store, id) {
		removed = append(removed, d.ID)
	}
	for _, rid := range removed {
		delete(store, rid)
	}
	for _, rid := range removed {
		graph.CleanupTaskReferences(store, rid)
	}

	if err := s.engine.Write(ctx, store); err != nil {
		return nil, err
	}
	if syncRoot != "" {
		s.dispatchSync(ctx, store, syncRoot)
	}
	return t, nil
}

// Get returns the active task with the given id.
func (s *Service) Get(ctx context.Context, id string) (*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := store[id]
	if !ok {
		return nil, notFound(id)
	}
	return t, nil
}

// GetWithArchive looks up the active store first, then the archive.
// Exactly one of the returns is non-nil on success.
func (s *Service) GetWithArchive(ctx context.Context, id string) (*types.Task, *types.ArchivedTask, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, nil, err
	}
	if t, ok := store[id]; ok {
		return t, nil, nil
	}
	if s.archive != nil {
		rec, err := s.archive.Get(id)
		if err != nil {
			return nil, nil, err
		}
		if rec != nil {
			return nil, rec, nil
		}
	}
	return nil, nil, notFound(id)
}

// List returns tasks matching the filter, sorted by priority then age.
func (s *Service) List(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.Task
	for _, t := range store {
		if matchesFilter(store, t, filter) {
			out = append(out, t)
		}
	}
	types.SortTasks(out)
	return out, nil
}

func matchesFilter(store types.TaskStore, t *types.Task, f types.TaskFilter) bool {
	switch {
	case f.Completed != nil:
		if t.Completed != *f.Completed {
			return false
		}
	case !f.All:
		if t.Completed {
			return false
		}
	}
	if f.Query != "" {
		needle := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(t.Name), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	if f.Blocked && !graph.IsBlocked(store, t) {
		return false
	}
	if f.Ready && !graph.IsReady(store, t) {
		return false
	}
	if f.InProgress && (t.StartedAt == nil || t.Completed) {
		return false
	}
	return true
}

// Search unions active matches (completed included) with archive matches.
func (s *Service) Search(ctx context.Context, query string, includeArchive bool) ([]*types.Task, []*types.ArchivedTask, error) {
	active, err := s.List(ctx, types.TaskFilter{All: true, Query: query})
	if err != nil {
		return nil, nil, err
	}
	var archived []*types.ArchivedTask
	if includeArchive && s.archive != nil {
		archived, err = s.archive.List(query)
		if err != nil {
			return nil, nil, err
		}
	}
	return active, archived, nil
}

// Children returns the direct children, sorted.
func (s *Service) Children(ctx context.Context, id string) ([]*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := store[id]
	if !ok {
		return nil, notFound(id)
	}
	var out []*types.Task
	for _, childID := range t.Children {
		if child, ok := store[childID]; ok {
			out = append(out, child)
		}
	}
	types.SortTasks(out)
	return out, nil
}

// Ancestors returns the chain above a task, root first.
func (s *Service) Ancestors(ctx context.Context, id string) ([]*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := store[id]; !ok {
		return nil, notFound(id)
	}
	return graph.Ancestors(store, id), nil
}

// IncompleteBlockers returns the pending tasks blocking the given one.
func (s *Service) IncompleteBlockers(ctx context.Context, id string) ([]*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := store[id]
	if !ok {
		return nil, notFound(id)
	}
	return graph.IncompleteBlockers(store, t), nil
}

// BlockedTasks returns every pending task with at least one incomplete
// blocker, sorted.
func (s *Service) BlockedTasks(ctx context.Context) ([]*types.Task, error) {
	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.Task
	for _, t := range store {
		if !t.Completed && graph.IsBlocked(store, t) {
			out = append(out, t)
		}
	}
	types.SortTasks(out)
	return out, nil
}

// Sync pushes the given roots (or every root when ids is empty) to their
// mirror issues. Unlike the post-mutation dispatch this is explicit: errors
// propagate to the caller.
func (s *Service) Sync(ctx context.Context, ids []string) (int, error) {
	if s.syncer == nil {
		return 0, dexerr.New(dexerr.ValidationFailed, "GitHub sync is not configured").
			WithHint("Set sync.github.enabled = true in .dex/config.toml")
	}
	store, err := s.engine.Read(ctx)
	if err != nil {
		return 0, err
	}

	var roots []string
	if len(ids) == 0 {
		for id, t := range store {
			if t.ParentID == nil {
				roots = append(roots, id)
			}
		}
	} else {
		seen := map[string]bool{}
		for _, id := range ids {
			if _, ok := store[id]; !ok {
				return 0, notFound(id)
			}
			root := rootOf(store, id)
			if !seen[root] {
				seen[root] = true
				roots = append(roots, root)
			}
		}
	}

	changed := false
	for _, root := range roots {
		c, err := s.syncer.SyncRoot(ctx, store, root)
		if err != nil {
			return 0, err
		}
		changed = changed || c
	}
	if changed {
		if err := s.engine.Write(ctx, store); err != nil {
			return 0, err
		}
	}
	return len(roots), nil
}

// dispatchSync is the post-commit hook: mutations already persisted, so
// sync failures only warn. When sync writes issue metadata back onto the
// root, the store is persisted a second time.
func (s *Service) dispatchSync(ctx context.Context, store types.TaskStore, id string) {
	if s.syncer == nil || !s.syncer.ShouldSync(s.now().Time) {
		return
	}
	root := rootOf(store, id)
	if _, ok := store[root]; !ok {
		return
	}
	changed, err := s.syncer.SyncRoot(ctx, store, root)
	if err != nil {
		s.log.Warn("github sync failed", "task", root, "error", err)
		return
	}
	if changed {
		if err := s.engine.Write(ctx, store); err != nil {
			s.log.Warn("persisting sync metadata failed", "task", root, "error", err)
		}
	}
}

// rootOf resolves the lineage root of a task (itself when already a root).
func rootOf(store types.TaskStore, id string) string {
	if chain := graph.Ancestors(store, id); len(chain) > 0 {
		return chain[0].ID
	}
	return id
}

// pendingDescendants lists the ids of incomplete tasks below id.
func pendingDescendants(store types.TaskStore, id string) []string {
	var out []string
	for _, d := range graph.Descendants(store, id) {
		if !d.Completed {
			out = append(out, d.ID)
		}
	}
	return out
}

func notFound(id string) *dexerr.Error {
	return dexerr.New(dexerr.NotFound, "task %s not found", id).
		WithHint("Run 'dex list --all' to see all tasks")
}
