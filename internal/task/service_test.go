package task

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kschrader/dex/internal/archive"
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/github"
	"github.com/kschrader/dex/internal/storage"
	"github.com/kschrader/dex/internal/types"
)

func newService(t *testing.T) (*Service, *storage.FileEngine) {
	t.Helper()
	dir := t.TempDir()
	engine, err := storage.NewFileEngine(dir)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(engine, archive.NewLog(dir), logger), engine
}

func mustCreate(t *testing.T, s *Service, in CreateInput) *types.Task {
	t.Helper()
	task, err := s.Create(context.Background(), in)
	require.NoError(t, err)
	return task
}

// fakeSyncer records sync dispatches without touching the network.
type fakeSyncer struct {
	should   bool
	markMeta bool
	repo     string
	issue    *github.Issue
	fetchErr error
	synced   []string
}

func (f *fakeSyncer) ShouldSync(time.Time) bool { return f.should }

func (f *fakeSyncer) SyncRoot(_ context.Context, store types.TaskStore, rootID string) (bool, error) {
	f.synced = append(f.synced, rootID)
	if !f.markMeta {
		return false, nil
	}
	root := store[rootID]
	if root.Metadata == nil {
		root.Metadata = &types.Metadata{}
	}
	root.Metadata.GitHub = &types.GitHubMetadata{IssueNumber: 5, Repo: f.repo}
	return true, nil
}

func (f *fakeSyncer) FetchIssue(context.Context, string, int) (*github.Issue, error) {
	return f.issue, f.fetchErr
}

func (f *fakeSyncer) Repo() (string, error) { return f.repo, nil }

func TestCreateDefaults(t *testing.T) {
	s, _ := newService(t)
	task := mustCreate(t, s, CreateInput{Name: "ship it", Description: "the whole thing"})

	assert.True(t, types.IDPattern.MatchString(task.ID))
	assert.Equal(t, types.DefaultPriority, task.Priority)
	assert.Nil(t, task.ParentID)
	assert.False(t, task.Completed)
	assert.Nil(t, task.StartedAt)

	got, err := s.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "ship it", got.Name)
}

func TestCreateValidation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	existing := mustCreate(t, s, CreateInput{Name: "taken"})

	bad := types.MaxPriority + 1
	tests := []struct {
		name string
		in   CreateInput
		kind dexerr.Kind
	}{
		{"empty name", CreateInput{Name: "  "}, dexerr.ValidationFailed},
		{"priority out of range", CreateInput{Name: "x", Priority: &bad}, dexerr.ValidationFailed},
		{"missing parent", CreateInput{Name: "x", ParentID: "zzzzzzzz"}, dexerr.ReferenceMissing},
		{"missing blocker", CreateInput{Name: "x", BlockedBy: []string{"zzzzzzzz"}}, dexerr.ReferenceMissing},
		{"malformed id", CreateInput{Name: "x", ID: "UPPER-ID"}, dexerr.ValidationFailed},
		{"id collision", CreateInput{Name: "x", ID: existing.ID}, dexerr.AlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, dexerr.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestCreateSuppliedID(t *testing.T) {
	s, _ := newService(t)
	task := mustCreate(t, s, CreateInput{Name: "pinned", ID: "pinned01"})
	assert.Equal(t, "pinned01", task.ID)
}

func TestCreateDepthCap(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	root := mustCreate(t, s, CreateInput{Name: "root"})
	child := mustCreate(t, s, CreateInput{Name: "child", ParentID: root.ID})
	grand := mustCreate(t, s, CreateInput{Name: "grandchild", ParentID: child.ID})

	_, err := s.Create(ctx, CreateInput{Name: "too deep", ParentID: grand.ID})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.DepthExceeded))
}

func TestCompletionGating(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	root := mustCreate(t, s, CreateInput{Name: "release"})
	c1 := mustCreate(t, s, CreateInput{Name: "build", ParentID: root.ID})
	c2 := mustCreate(t, s, CreateInput{Name: "test", ParentID: root.ID})

	_, err := s.Complete(ctx, root.ID, "", false)
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.PreconditionFailed))

	_, err = s.Complete(ctx, c1.ID, "built", false)
	require.NoError(t, err)

	_, err = s.Complete(ctx, root.ID, "", false)
	require.Error(t, err, "one pending child still gates")

	_, err = s.Complete(ctx, c2.ID, "", false)
	require.NoError(t, err)

	done, err := s.Complete(ctx, root.ID, "shipped", false)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, "shipped", done.Result)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.StartedAt, "completion backfills the start time")

	_, err = s.Complete(ctx, root.ID, "", false)
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.PreconditionFailed), "already completed")
}

func TestCompleteGatesOnDeepDescendants(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	root := mustCreate(t, s, CreateInput{Name: "root"})
	child := mustCreate(t, s, CreateInput{Name: "child", ParentID: root.ID})
	mustCreate(t, s, CreateInput{Name: "grandchild", ParentID: child.ID})

	_, err := s.Complete(ctx, root.ID, "", false)
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.PreconditionFailed), "grandchild gates the root")
}

func TestUpdateReopen(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	task := mustCreate(t, s, CreateInput{Name: "flaky"})
	_, err := s.Complete(ctx, task.ID, "done?", false)
	require.NoError(t, err)

	open := false
	back, err := s.Update(ctx, task.ID, UpdateInput{Completed: &open})
	require.NoError(t, err)
	assert.False(t, back.Completed)
	assert.Nil(t, back.CompletedAt, "reopening clears the completion time")
	assert.Equal(t, "done?", back.Result, "result survives reopening")
}

func TestUpdateFields(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	task := mustCreate(t, s, CreateInput{Name: "old name"})
	name := "new name"
	desc := "new description"
	prio := 7
	updated, err := s.Update(ctx, task.ID, UpdateInput{Name: &name, Description: &desc, Priority: &prio})
	require.NoError(t, err)
	assert.Equal(t, "new name", updated.Name)
	assert.Equal(t, "new description", updated.Description)
	assert.Equal(t, 7, updated.Priority)

	empty := "   "
	_, err = s.Update(ctx, task.ID, UpdateInput{Name: &empty})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.ValidationFailed))
}

func TestBlockingRoundTrip(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	a := mustCreate(t, s, CreateInput{Name: "prereq"})
	b := mustCreate(t, s, CreateInput{Name: "dependent", BlockedBy: []string{a.ID}})

	blockers, err := s.IncompleteBlockers(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.Equal(t, a.ID, blockers[0].ID)

	blocked, err := s.List(ctx, types.TaskFilter{Blocked: true})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, b.ID, blocked[0].ID)

	_, err = s.Complete(ctx, a.ID, "", false)
	require.NoError(t, err)

	blockers, err = s.IncompleteBlockers(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, blockers)

	ready, err := s.List(ctx, types.TaskFilter{Ready: true})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, b.ID, ready[0].ID, "completed blocker no longer blocks")
}

func TestBlockingCycleRejected(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	a := mustCreate(t, s, CreateInput{Name: "a"})
	b := mustCreate(t, s, CreateInput{Name: "b", BlockedBy: []string{a.ID}})
	c := mustCreate(t, s, CreateInput{Name: "c", BlockedBy: []string{b.ID}})

	_, err := s.Update(ctx, a.ID, UpdateInput{AddBlockedBy: []string{c.ID}})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.CycleWouldForm), "closing the a-b-c loop")

	_, err = s.Update(ctx, a.ID, UpdateInput{AddBlockedBy: []string{a.ID}})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.CycleWouldForm), "self-blocking")

	_, err = s.Create(ctx, CreateInput{Name: "d", BlockedBy: []string{c.ID}})
	require.NoError(t, err, "extending the chain is fine")
}

func TestUpdateRemoveBlocker(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	a := mustCreate(t, s, CreateInput{Name: "a"})
	b := mustCreate(t, s, CreateInput{Name: "b", BlockedBy: []string{a.ID}})

	updated, err := s.Update(ctx, b.ID, UpdateInput{RemoveBlockedBy: []string{a.ID}})
	require.NoError(t, err)
	assert.Empty(t, updated.BlockedBy)

	other, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, other.Blocks, "reverse edge cleaned")
}

func TestCascadeDelete(t *testing.T) {
	s, engine := newService(t)
	ctx := context.Background()

	p := mustCreate(t, s, CreateInput{Name: "P"})
	q := mustCreate(t, s, CreateInput{Name: "Q", ParentID: p.ID})
	mustCreate(t, s, CreateInput{Name: "R", ParentID: q.ID})
	x := mustCreate(t, s, CreateInput{Name: "X", BlockedBy: []string{q.ID}})

	_, err := s.Delete(ctx, p.ID)
	require.NoError(t, err)

	store, err := engine.Read(ctx)
	require.NoError(t, err)
	require.Len(t, store, 1, "only X survives")
	assert.Empty(t, store[x.ID].BlockedBy, "dangling blocker reference scrubbed")
}

func TestDeleteSubtree(t *testing.T) {
	s, engine := newService(t)
	ctx := context.Background()

	p := mustCreate(t, s, CreateInput{Name: "P"})
	q := mustCreate(t, s, CreateInput{Name: "Q", ParentID: p.ID})
	mustCreate(t, s, CreateInput{Name: "R", ParentID: q.ID})

	_, err := s.Delete(ctx, q.ID)
	require.NoError(t, err)

	store, err := engine.Read(ctx)
	require.NoError(t, err)
	require.Len(t, store, 1)
	assert.Empty(t, store[p.ID].Children, "parent's child list cleaned")
}

func TestDeleteMissing(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Delete(context.Background(), "zzzzzzzz")
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.NotFound))
}

func TestReparent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	a := mustCreate(t, s, CreateInput{Name: "a"})
	b := mustCreate(t, s, CreateInput{Name: "b"})
	c := mustCreate(t, s, CreateInput{Name: "c", ParentID: a.ID})

	// Move c under b.
	moved, err := s.Update(ctx, c.ID, UpdateInput{SetParent: true, ParentID: &b.ID})
	require.NoError(t, err)
	assert.Equal(t, b.ID, *moved.ParentID)

	oldParent, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, oldParent.Children)

	// Make it a root again.
	moved, err = s.Update(ctx, c.ID, UpdateInput{SetParent: true, ParentID: nil})
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
}

func TestReparentRejections(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	a := mustCreate(t, s, CreateInput{Name: "a"})
	b := mustCreate(t, s, CreateInput{Name: "b", ParentID: a.ID})
	c := mustCreate(t, s, CreateInput{Name: "c", ParentID: b.ID})

	// Self.
	_, err := s.Update(ctx, a.ID, UpdateInput{SetParent: true, ParentID: &a.ID})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.CycleWouldForm))

	// Under its own descendant.
	_, err = s.Update(ctx, a.ID, UpdateInput{SetParent: true, ParentID: &c.ID})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.CycleWouldForm))

	// Depth overflow: a two-level subtree cannot hang below level one.
	other := mustCreate(t, s, CreateInput{Name: "other"})
	otherChild := mustCreate(t, s, CreateInput{Name: "other child", ParentID: other.ID})
	_, err = s.Update(ctx, a.ID, UpdateInput{SetParent: true, ParentID: &otherChild.ID})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.DepthExceeded))

	// Missing parent.
	missing := "zzzzzzzz"
	_, err = s.Update(ctx, a.ID, UpdateInput{SetParent: true, ParentID: &missing})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.ReferenceMissing))
}

func TestStart(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	task := mustCreate(t, s, CreateInput{Name: "work"})
	started, err := s.Start(ctx, task.ID, false)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)
	first := *started.StartedAt

	_, err = s.Start(ctx, task.ID, false)
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.AlreadyStarted))

	restarted, err := s.Start(ctx, task.ID, true)
	require.NoError(t, err)
	require.NotNil(t, restarted.StartedAt)
	assert.False(t, restarted.StartedAt.Time.Before(first.Time))

	_, err = s.Complete(ctx, task.ID, "", false)
	require.NoError(t, err)
	_, err = s.Start(ctx, task.ID, true)
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.PreconditionFailed), "completed tasks cannot start")
}

func TestListFilters(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	pending := mustCreate(t, s, CreateInput{Name: "pending widget"})
	inProgress := mustCreate(t, s, CreateInput{Name: "running gadget"})
	_, err := s.Start(ctx, inProgress.ID, false)
	require.NoError(t, err)
	done := mustCreate(t, s, CreateInput{Name: "finished widget"})
	_, err = s.Complete(ctx, done.ID, "", false)
	require.NoError(t, err)

	out, err := s.List(ctx, types.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, out, 2, "default view hides completed")
	ids := []string{out[0].ID, out[1].ID}
	assert.ElementsMatch(t, []string{pending.ID, inProgress.ID}, ids)

	out, err = s.List(ctx, types.TaskFilter{All: true})
	require.NoError(t, err)
	assert.Len(t, out, 3)

	completed := true
	out, err = s.List(ctx, types.TaskFilter{Completed: &completed})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, done.ID, out[0].ID)

	out, err = s.List(ctx, types.TaskFilter{All: true, Query: "WIDGET"})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = s.List(ctx, types.TaskFilter{InProgress: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, inProgress.ID, out[0].ID)
}

func TestSearchIncludesArchive(t *testing.T) {
	dir := t.TempDir()
	engine, err := storage.NewFileEngine(dir)
	require.NoError(t, err)
	log := archive.NewLog(dir)
	s := NewService(engine, log, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	mustCreate(t, s, CreateInput{Name: "active parser work"})
	require.NoError(t, log.Append([]*types.ArchivedTask{
		{ID: "arch0001", Name: "old parser rewrite", ArchivedAt: types.Now()},
	}))

	active, archived, err := s.Search(ctx, "parser", true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	require.Len(t, archived, 1)
	assert.Equal(t, "arch0001", archived[0].ID)

	_, archived, err = s.Search(ctx, "parser", false)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestGetWithArchive(t *testing.T) {
	dir := t.TempDir()
	engine, err := storage.NewFileEngine(dir)
	require.NoError(t, err)
	log := archive.NewLog(dir)
	s := NewService(engine, log, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	active := mustCreate(t, s, CreateInput{Name: "live"})
	require.NoError(t, log.Append([]*types.ArchivedTask{
		{ID: "arch0001", Name: "buried", ArchivedAt: types.Now()},
	}))

	gotActive, gotArchived, err := s.GetWithArchive(ctx, active.ID)
	require.NoError(t, err)
	assert.NotNil(t, gotActive)
	assert.Nil(t, gotArchived)

	gotActive, gotArchived, err = s.GetWithArchive(ctx, "arch0001")
	require.NoError(t, err)
	assert.Nil(t, gotActive)
	require.NotNil(t, gotArchived)
	assert.Equal(t, "buried", gotArchived.Name)

	_, _, err = s.GetWithArchive(ctx, "zzzzzzzz")
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.NotFound))
}

func TestAncestorsAndChildren(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	root := mustCreate(t, s, CreateInput{Name: "root"})
	child := mustCreate(t, s, CreateInput{Name: "child", ParentID: root.ID})
	grand := mustCreate(t, s, CreateInput{Name: "grand", ParentID: child.ID})

	chain, err := s.Ancestors(ctx, grand.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, root.ID, chain[0].ID)
	assert.Equal(t, child.ID, chain[1].ID)

	kids, err := s.Children(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, child.ID, kids[0].ID)
}

func TestExplicitSync(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.Sync(ctx, nil)
	require.Error(t, err, "no syncer configured")
	assert.True(t, dexerr.IsKind(err, dexerr.ValidationFailed))

	f := &fakeSyncer{repo: "octo/widgets"}
	s.WithSyncer(f)

	r1 := mustCreate(t, s, CreateInput{Name: "r1"})
	c1 := mustCreate(t, s, CreateInput{Name: "c1", ParentID: r1.ID})
	r2 := mustCreate(t, s, CreateInput{Name: "r2"})

	n, err := s.Sync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "every root")
	assert.ElementsMatch(t, []string{r1.ID, r2.ID}, f.synced)

	f.synced = nil
	n, err = s.Sync(ctx, []string{c1.ID, r1.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "subtask resolves to its root, deduplicated")
	assert.Equal(t, []string{r1.ID}, f.synced)

	_, err = s.Sync(ctx, []string{"zzzzzzzz"})
	require.Error(t, err)
	assert.True(t, dexerr.IsKind(err, dexerr.NotFound))
}

func TestDispatchSyncPersistsMetadata(t *testing.T) {
	s, engine := newService(t)
	f := &fakeSyncer{should: true, markMeta: true, repo: "octo/widgets"}
	s.WithSyncer(f)

	root := mustCreate(t, s, CreateInput{Name: "mirrored"})
	require.Equal(t, []string{root.ID}, f.synced)

	store, err := engine.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, store[root.ID].Metadata)
	require.NotNil(t, store[root.ID].Metadata.GitHub)
	assert.Equal(t, 5, store[root.ID].Metadata.GitHub.IssueNumber)
}

func TestDispatchSyncResolvesRoot(t *testing.T) {
	s, _ := newService(t)
	root := mustCreate(t, s, CreateInput{Name: "root"})

	f := &fakeSyncer{should: true, repo: "octo/widgets"}
	s.WithSyncer(f)
	mustCreate(t, s, CreateInput{Name: "child", ParentID: root.ID})

	assert.Equal(t, []string{root.ID}, f.synced, "subtask mutations sync the lineage root")
}

func TestDeleteRootSkipsSync(t *testing.T) {
	s, _ := newService(t)
	root := mustCreate(t, s, CreateInput{Name: "root"})
	child := mustCreate(t, s, CreateInput{Name: "child", ParentID: root.ID})

	f := &fakeSyncer{should: true, repo: "octo/widgets"}
	s.WithSyncer(f)

	_, err := s.Delete(context.Background(), child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{root.ID}, f.synced, "deleting a subtask syncs the surviving root")

	f.synced = nil
	_, err = s.Delete(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Empty(t, f.synced, "deleting a whole lineage has nothing to mirror")
}
