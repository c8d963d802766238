// Package types defines core data structures for the dex task tracker.
package types

import (
	"fmt"
	"regexp"
)

// IDPattern is the task id format: 8 characters from [0-9a-z].
var IDPattern = regexp.MustCompile(`^[0-9a-z]{8}$`)

// Priority bounds. Lower values sort first.
const (
	MinPriority     = 0
	MaxPriority     = 100
	DefaultPriority = 1
)

// Task represents a unit of work in the active store.
//
// Parent/child and blocking edges are stored on both endpoints (Children
// mirrors ParentID, Blocks mirrors BlockedBy) for O(1) neighbor lookup.
// The graph package maintains both sides; nothing else should touch them.
type Task struct {
	ID          string    `json:"id"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"` // No omitempty: 0 is valid (highest)
	Completed   bool      `json:"completed"`
	StartedAt   *Time     `json:"started_at,omitempty"`
	CompletedAt *Time     `json:"completed_at,omitempty"`
	CreatedAt   Time      `json:"created_at"`
	UpdatedAt   Time      `json:"updated_at"`
	Result      string    `json:"result,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	BlockedBy   []string  `json:"blockedBy,omitempty"`
	Blocks      []string  `json:"blocks,omitempty"`
	Children    []string  `json:"children,omitempty"`
}

// Metadata holds external references attached to a task.
type Metadata struct {
	GitHub *GitHubMetadata `json:"github,omitempty"`
	Commit *CommitMetadata `json:"commit,omitempty"`
}

// GitHubMetadata links a task to its mirror issue.
type GitHubMetadata struct {
	IssueNumber int    `json:"issueNumber"`
	IssueURL    string `json:"issueUrl,omitempty"`
	Repo        string `json:"repo,omitempty"` // "owner/name"
}

// CommitMetadata records the commit that resolved a task.
type CommitMetadata struct {
	SHA       string `json:"sha"`
	Message   string `json:"message,omitempty"`
	Branch    string `json:"branch,omitempty"`
	URL       string `json:"url,omitempty"`
	Timestamp *Time  `json:"timestamp,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := &Metadata{}
	if m.GitHub != nil {
		gh := *m.GitHub
		out.GitHub = &gh
	}
	if m.Commit != nil {
		c := *m.Commit
		out.Commit = &c
	}
	return out
}

// Validate checks field-level constraints. Relational invariants (parent
// existence, cycles, depth) are the graph package's concern.
func (t *Task) Validate() error {
	if !IDPattern.MatchString(t.ID) {
		return fmt.Errorf("invalid task id %q: must match %s", t.ID, IDPattern)
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("priority must be between %d and %d (got %d)", MinPriority, MaxPriority, t.Priority)
	}
	if t.Completed && t.CompletedAt == nil {
		return fmt.Errorf("completed tasks must have completed_at timestamp")
	}
	if !t.Completed && t.CompletedAt != nil {
		return fmt.Errorf("pending tasks cannot have completed_at timestamp")
	}
	if t.ParentID != nil && *t.ParentID == t.ID {
		return fmt.Errorf("task cannot be its own parent")
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	out := *t
	if t.ParentID != nil {
		pid := *t.ParentID
		out.ParentID = &pid
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		out.CompletedAt = &v
	}
	out.Metadata = t.Metadata.Clone()
	out.BlockedBy = append([]string(nil), t.BlockedBy...)
	out.Blocks = append([]string(nil), t.Blocks...)
	out.Children = append([]string(nil), t.Children...)
	return &out
}

// ArchivedTask is the compacted terminal form kept in the archive log.
// Distinguished from Task by the presence of archived_at.
type ArchivedTask struct {
	ID               string          `json:"id"`
	ParentID         *string         `json:"parent_id,omitempty"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Result           string          `json:"result,omitempty"`
	CompletedAt      *Time           `json:"completed_at,omitempty"`
	ArchivedAt       Time            `json:"archived_at"`
	Metadata         *Metadata       `json:"metadata,omitempty"`
	ArchivedChildren []ArchivedChild `json:"archived_children,omitempty"`
}

// ArchivedChild is an inline summary of a direct child, rolled up onto the
// archived parent for quick display without extra lookups.
type ArchivedChild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Result      string `json:"result,omitempty"`
}

// Validate checks archived-record constraints.
func (a *ArchivedTask) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("archived task id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("archived task name is required")
	}
	if a.ArchivedAt.IsZero() {
		return fmt.Errorf("archived task must have archived_at timestamp")
	}
	return nil
}

// TaskStore is the active set: a mapping from id to task.
type TaskStore map[string]*Task

// Clone deep-copies the store.
func (s TaskStore) Clone() TaskStore {
	out := make(TaskStore, len(s))
	for id, t := range s {
		out[id] = t.Clone()
	}
	return out
}

// SyncState is the per-store GitHub sync bookkeeping record.
type SyncState struct {
	LastSync *Time `json:"lastSync"`
}

// TaskFilter selects tasks for list queries.
type TaskFilter struct {
	All        bool   // include completed tasks
	Completed  *bool  // exact completion match; defaults to false when !All
	Query      string // case-insensitive substring on name + description
	Blocked    bool
	Ready      bool
	InProgress bool
}
