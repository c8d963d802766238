package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kschrader/dex/internal/config"
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/git"
	"github.com/kschrader/dex/internal/graph"
	"github.com/kschrader/dex/internal/storage"
	"github.com/kschrader/dex/internal/types"
)

// Syncer mirrors local task lineages to GitHub issues: one root task (plus
// its whole descendant lineage) per issue.
//
// Identification is three-tiered: a root whose metadata already names an
// issue is updated; a root whose id appears in the dex-label cache adopts
// that issue; otherwise a new issue is created.
type Syncer struct {
	cfg        config.GitHubSyncConfig
	engine     *storage.FileEngine
	log        *slog.Logger
	projectDir string
	tokens     *TokenSource

	// BaseURL overrides the API endpoint (tests, GitHub Enterprise).
	BaseURL string

	mu     sync.Mutex
	client *Client
	cache  map[string]int // embedded root id -> issue number
	flight singleflight.Group
	now    func() time.Time
}

// NewSyncer builds a syncer for the store at engine, using projectDir for
// origin-remote detection when the repo is not configured.
func NewSyncer(cfg config.GitHubSyncConfig, engine *storage.FileEngine, projectDir string, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		cfg:        cfg,
		engine:     engine,
		log:        log,
		projectDir: projectDir,
		tokens:     &TokenSource{EnvVar: cfg.TokenEnv},
		now:        time.Now,
	}
}

// ShouldSync applies the auto-dispatch policy: on_change syncs every
// mutation; otherwise a configured max_age syncs only when the last
// recorded sync is older than the threshold.
func (s *Syncer) ShouldSync(now time.Time) bool {
	if !s.cfg.Enabled {
		return false
	}
	if s.cfg.Auto.OnChange {
		return true
	}
	maxAge, err := s.cfg.Auto.MaxAgeDuration()
	if err != nil || maxAge == 0 {
		return false
	}
	state, err := s.engine.ReadSyncState()
	if err != nil {
		s.log.Warn("reading sync state", "error", err)
		return false
	}
	if state.LastSync == nil {
		return true
	}
	return now.Sub(state.LastSync.Time) > maxAge
}

// Repo returns the configured "owner/name", falling back to the origin
// remote of the project directory.
func (s *Syncer) Repo() (string, error) {
	if s.cfg.Repo != "" {
		return s.cfg.Repo, nil
	}
	repo, err := git.DetectRemote(s.projectDir)
	if err != nil {
		return "", dexerr.Wrap(dexerr.ValidationFailed, err, "no GitHub repo configured").
			WithHint("Set sync.github.repo in .dex/config.toml")
	}
	return repo, nil
}

// SyncRoot pushes one root lineage to its mirror issue. Returns true when
// it wrote GitHub metadata back onto the root (the caller persists it).
func (s *Syncer) SyncRoot(ctx context.Context, store types.TaskStore, rootID string) (bool, error) {
	root, ok := store[rootID]
	if !ok {
		return false, dexerr.New(dexerr.NotFound, "task %s not found", rootID)
	}
	client, err := s.clientFor(ctx, "")
	if err != nil {
		return false, err
	}

	descendants := graph.Descendants(store, rootID)
	body := RenderIssueBody(root, descendants)
	state := "open"
	if root.Completed {
		state = "closed"
	}

	number := 0
	if root.Metadata != nil && root.Metadata.GitHub != nil {
		number = root.Metadata.GitHub.IssueNumber
	}
	if number == 0 {
		if number, err = s.lookupCache(ctx, client, rootID); err != nil {
			return false, err
		}
	}

	changed := false
	var issue *Issue
	if number == 0 {
		// POST /issues ignores a state field; new issues are always open.
		issue, err = client.CreateIssue(ctx, IssueRequest{
			Title:  strPtr(root.Name),
			Body:   strPtr(body),
			Labels: s.managedLabels(root),
		})
		if err != nil {
			return false, err
		}
		if root.Completed {
			issue, err = client.UpdateIssue(ctx, issue.Number, IssueRequest{State: strPtr(state)})
			if err != nil {
				return false, err
			}
		}
	} else {
		labels, lerr := s.mergedLabels(ctx, client, number, root)
		if lerr != nil {
			return false, lerr
		}
		issue, err = client.UpdateIssue(ctx, number, IssueRequest{
			Title:  strPtr(root.Name),
			Body:   strPtr(body),
			State:  strPtr(state),
			Labels: labels,
		})
		if err != nil {
			return false, err
		}
	}

	gh := &types.GitHubMetadata{
		IssueNumber: issue.Number,
		IssueURL:    issue.HTMLURL,
		Repo:        client.RepoPath(),
	}
	if root.Metadata == nil {
		root.Metadata = &types.Metadata{}
	}
	if prev := root.Metadata.GitHub; prev == nil || *prev != *gh {
		root.Metadata.GitHub = gh
		changed = true
	}

	if err := s.engine.WriteSyncState(&types.SyncState{LastSync: types.AtPtr(s.now())}); err != nil {
		s.log.Warn("recording sync state", "error", err)
	}
	return changed, nil
}

// FetchIssue retrieves one issue, optionally from a different repo than
// the configured one (import accepts cross-repo references).
func (s *Syncer) FetchIssue(ctx context.Context, repo string, number int) (*Issue, error) {
	client, err := s.clientFor(ctx, repo)
	if err != nil {
		return nil, err
	}
	return client.GetIssue(ctx, number)
}

// managedLabels is the label set sync owns: the prefix itself, a priority
// label, and a completion label.
func (s *Syncer) managedLabels(root *types.Task) []string {
	prefix := s.cfg.LabelPrefix
	if prefix == "" {
		prefix = config.DefaultLabelPrefix
	}
	state := prefix + ":pending"
	if root.Completed {
		state = prefix + ":completed"
	}
	return []string{
		prefix,
		fmt.Sprintf("%s:priority-%d", prefix, root.Priority),
		state,
	}
}

// mergedLabels combines the managed set with whatever unmanaged labels are
// already on the remote issue. Labels outside the prefix namespace are
// never removed.
func (s *Syncer) mergedLabels(ctx context.Context, client *Client, number int, root *types.Task) ([]string, error) {
	prefix := s.cfg.LabelPrefix
	if prefix == "" {
		prefix = config.DefaultLabelPrefix
	}
	remote, err := client.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	labels := s.managedLabels(root)
	for _, name := range LabelNames(remote.Labels) {
		if name == prefix || strings.HasPrefix(name, prefix+":") {
			continue
		}
		labels = append(labels, name)
	}
	return labels, nil
}

// lookupCache resolves a root id through the dex-label identification
// cache, fetching it on first use. Concurrent fills are deduplicated.
func (s *Syncer) lookupCache(ctx context.Context, client *Client, rootID string) (int, error) {
	s.mu.Lock()
	cache := s.cache
	s.mu.Unlock()
	if cache == nil {
		result, err, _ := s.flight.Do("issue-cache", func() (interface{}, error) {
			return s.fetchCache(ctx, client)
		})
		if err != nil {
			return 0, err
		}
		cache = result.(map[string]int)
		s.mu.Lock()
		s.cache = cache
		s.mu.Unlock()
	}
	return cache[rootID], nil
}

// fetchCache pulls every dex-labeled issue and maps embedded root ids to
// issue numbers. Issues without an embedded id are ignored.
func (s *Syncer) fetchCache(ctx context.Context, client *Client) (map[string]int, error) {
	prefix := s.cfg.LabelPrefix
	if prefix == "" {
		prefix = config.DefaultLabelPrefix
	}
	issues, err := client.ListLabeledIssues(ctx, prefix)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]int, len(issues))
	for i := range issues {
		if id := ParseIssueBody(issues[i].Body).RootID(); id != "" {
			if _, taken := cache[id]; !taken {
				cache[id] = issues[i].Number
			}
		}
	}
	return cache, nil
}

// clientFor returns the API client, building it on first use. A non-empty
// repo overrides the configured/detected one for this client only.
func (s *Syncer) clientFor(_ context.Context, repo string) (*Client, error) {
	token, err := s.tokens.Token()
	if err != nil {
		return nil, err
	}
	isDefault := repo == ""
	if isDefault {
		s.mu.Lock()
		cached := s.client
		s.mu.Unlock()
		if cached != nil {
			return cached, nil
		}
		if repo, err = s.Repo(); err != nil {
			return nil, err
		}
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return nil, dexerr.New(dexerr.ValidationFailed, "invalid repo %q: want owner/name", repo)
	}
	client := NewClient(token, owner, name)
	if s.BaseURL != "" {
		client = client.WithBaseURL(s.BaseURL)
	}
	if isDefault {
		s.mu.Lock()
		s.client = client
		s.mu.Unlock()
	}
	return client, nil
}
