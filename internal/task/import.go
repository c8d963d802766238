package task

import (
	"context"
	"time"

	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/github"
	"github.com/kschrader/dex/internal/graph"
	"github.com/kschrader/dex/internal/types"
)

// Import materializes a GitHub issue as a local task lineage. The embedded
// root id is reused when free; subtask ids are remapped through a local
// map so parent references resolve to the newly created ids, falling back
// to the root. With update set, an already-imported lineage is refreshed
// from the remote instead of duplicated.
func (s *Service) Import(ctx context.Context, ref string, update bool) (*types.Task, error) {
	if s.syncer == nil {
		return nil, dexerr.New(dexerr.ValidationFailed, "GitHub sync is not configured").
			WithHint("Set sync.github.enabled = true in .dex/config.toml")
	}
	defaultRepo, _ := s.syncer.Repo()
	repo, number, err := github.ParseIssueRef(ref, defaultRepo)
	if err != nil {
		return nil, err
	}
	issue, err := s.syncer.FetchIssue(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	if issue.PullRequest != nil {
		return nil, dexerr.New(dexerr.ValidationFailed, "%s#%d is a pull request, not an issue", repo, number)
	}
	parsed := github.ParseIssueBody(issue.Body)

	store, err := s.engine.Read(ctx)
	if err != nil {
		return nil, err
	}

	existing := findImported(store, repo, issue.Number)
	if existing != nil && !update {
		return nil, dexerr.New(dexerr.AlreadyExists, "issue %s#%d is already imported as task %s", repo, issue.Number, existing.ID).
			WithHint("Use --update to refresh it from the remote")
	}
	if existing == nil && update {
		return nil, dexerr.New(dexerr.NotFound, "issue %s#%d has not been imported yet", repo, issue.Number).
			WithHint("Import it first without --update")
	}

	now := s.now()
	var root *types.Task
	if existing != nil {
		root = existing
		applyIssueToRoot(root, issue, parsed, now)
	} else {
		rootID, err := s.assignID(store, reusableID(store, parsed.RootID()))
		if err != nil {
			return nil, err
		}
		root = &types.Task{ID: rootID, CreatedAt: now, UpdatedAt: now, Priority: types.DefaultPriority}
		applyIssueToRoot(root, issue, parsed, now)
		store[rootID] = root
	}
	if root.Metadata == nil {
		root.Metadata = &types.Metadata{}
	}
	root.Metadata.GitHub = &types.GitHubMetadata{
		IssueNumber: issue.Number,
		IssueURL:    issue.HTMLURL,
		Repo:        repo,
	}

	// Remap embedded ids to local ids; parents resolve through the map.
	remap := map[string]string{}
	if parsed.RootID() != "" {
		remap[parsed.RootID()] = root.ID
	}
	for _, sub := range parsed.Subtasks {
		local := findLineageTask(store, root.ID, sub.ID)
		if local == nil {
			id, err := s.assignID(store, reusableID(store, sub.ID))
			if err != nil {
				return nil, err
			}
			local = &types.Task{ID: id, CreatedAt: now, Priority: types.DefaultPriority}
			store[id] = local
		}
		remap[sub.ID] = local.ID

		parentID := root.ID
		if mapped, ok := remap[sub.ParentID]; ok && mapped != local.ID {
			parentID = mapped
		}
		if graph.DepthFromParent(store, parentID)+1 > graph.MaxDepth {
			parentID = root.ID
		}
		if local.ParentID == nil || *local.ParentID != parentID {
			if err := graph.SyncParentChild(store, local.ID, local.ParentID, &parentID); err != nil {
				return nil, err
			}
			pid := parentID
			local.ParentID = &pid
		}
		applyParsedSubtask(local, sub, now)
	}

	if err := s.engine.Write(ctx, store); err != nil {
		return nil, err
	}
	return root, nil
}

// reusableID returns the embedded id when it is well-formed and free in
// the active store, otherwise empty (forcing generation).
func reusableID(store types.TaskStore, id string) string {
	if id == "" || !types.IDPattern.MatchString(id) {
		return ""
	}
	if _, taken := store[id]; taken {
		return ""
	}
	return id
}

// findImported locates the root task already linked to the given issue.
func findImported(store types.TaskStore, repo string, number int) *types.Task {
	for _, t := range store {
		if t.ParentID != nil || t.Metadata == nil || t.Metadata.GitHub == nil {
			continue
		}
		gh := t.Metadata.GitHub
		if gh.IssueNumber == number && (gh.Repo == "" || gh.Repo == repo) {
			return t
		}
	}
	return nil
}

// findLineageTask returns the task with the given id when it sits inside
// the root's lineage (update mode matches embedded ids to local ids).
func findLineageTask(store types.TaskStore, rootID, id string) *types.Task {
	t, ok := store[id]
	if !ok {
		return nil
	}
	if t.ID == rootID || graph.IsDescendant(store, id, rootID) {
		return t
	}
	return nil
}

func applyIssueToRoot(root *types.Task, issue *github.Issue, parsed *github.ParsedIssue, now types.Time) {
	root.Name = issue.Title
	root.Description = parsed.Description
	if p, ok := parsed.Meta["priority"]; ok {
		if n, err := atoiBounded(p); err == nil {
			root.Priority = n
		}
	}
	if v := parseMetaTime(parsed.Meta["created_at"]); v != nil {
		root.CreatedAt = *v
	} else if issue.CreatedAt != nil {
		root.CreatedAt = types.At(*issue.CreatedAt)
	}
	root.StartedAt = parseMetaTime(parsed.Meta["started_at"])
	if r, ok := parsed.Meta["result"]; ok {
		root.Result = r
	}
	if sha := parsed.Meta["commit_sha"]; sha != "" {
		if root.Metadata == nil {
			root.Metadata = &types.Metadata{}
		}
		if root.Metadata.Commit == nil || root.Metadata.Commit.SHA != sha {
			root.Metadata.Commit = &types.CommitMetadata{SHA: sha}
		}
	}

	completed := issue.State == "closed"
	if v, ok := parsed.Meta["completed"]; ok {
		completed = v == "true"
	}
	root.Completed = completed
	root.CompletedAt = nil
	if completed {
		root.CompletedAt = completionTime(parsed.Meta["completed_at"], issue.ClosedAt, now)
		if root.StartedAt == nil {
			root.StartedAt = root.CompletedAt
		}
	}
	root.UpdatedAt = now
}

func applyParsedSubtask(t *types.Task, sub github.ParsedSubtask, now types.Time) {
	t.Name = sub.Name
	t.Description = sub.Description
	t.Result = sub.Result
	t.Priority = sub.Priority
	if sub.CreatedAt != nil {
		t.CreatedAt = *sub.CreatedAt
	}
	t.StartedAt = sub.StartedAt
	t.Completed = sub.Completed
	t.CompletedAt = nil
	if sub.Completed {
		if sub.CompletedAt != nil {
			t.CompletedAt = sub.CompletedAt
		} else {
			v := now
			t.CompletedAt = &v
		}
		if t.StartedAt == nil {
			t.StartedAt = t.CompletedAt
		}
	}
	if sub.CommitSHA != "" {
		if t.Metadata == nil {
			t.Metadata = &types.Metadata{}
		}
		if t.Metadata.Commit == nil || t.Metadata.Commit.SHA != sub.CommitSHA {
			t.Metadata.Commit = &types.CommitMetadata{SHA: sub.CommitSHA}
		}
	}
	t.UpdatedAt = now
}

func completionTime(meta string, closedAt *time.Time, now types.Time) *types.Time {
	if v := parseMetaTime(meta); v != nil {
		return v
	}
	if closedAt != nil {
		v := types.At(*closedAt)
		return &v
	}
	v := now
	return &v
}

func parseMetaTime(s string) *types.Time {
	if s == "" || s == "null" {
		return nil
	}
	var t types.Time
	if err := t.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		return nil
	}
	return &t
}

func atoiBounded(s string) (int, error) {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, dexerr.New(dexerr.ValidationFailed, "invalid priority %q", s)
		}
		n = n*10 + int(r-'0')
		if n > types.MaxPriority {
			return 0, dexerr.New(dexerr.ValidationFailed, "priority %q out of range", s)
		}
	}
	if s == "" {
		return 0, dexerr.New(dexerr.ValidationFailed, "empty priority")
	}
	return n, nil
}
