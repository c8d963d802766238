// Package graph implements the relational invariants of the task forest:
// ancestry, depth, cycle detection, readiness, and maintenance of the
// bidirectional parent/child and blocker/blocked edges.
//
// All functions are plain scans over the in-memory store. Stores are small
// (well under 10^4 tasks), so no indexing is maintained; cycle checks run as
// full reachability traversals at mutation time.
package graph

import (
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/types"
)

// MaxDepth is the hierarchy cap: epic -> task -> subtask.
const MaxDepth = 3

// Ancestors returns the chain above a task, ordered root first, immediate
// parent last. Returns nil for roots and unknown ids. A parent cycle in
// corrupted data terminates the walk rather than looping.
func Ancestors(store types.TaskStore, id string) []*types.Task {
	var chain []*types.Task
	seen := map[string]bool{id: true}
	t, ok := store[id]
	if !ok {
		return nil
	}
	for t.ParentID != nil {
		parent, ok := store[*t.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append([]*types.Task{parent}, chain...)
		t = parent
	}
	return chain
}

// Descendants returns every task below id in depth-first order, children
// before siblings' subtrees.
func Descendants(store types.TaskStore, id string) []*types.Task {
	t, ok := store[id]
	if !ok {
		return nil
	}
	var out []*types.Task
	seen := map[string]bool{id: true}
	var walk func(task *types.Task)
	walk = func(task *types.Task) {
		for _, childID := range task.Children {
			child, ok := store[childID]
			if !ok || seen[childID] {
				continue
			}
			seen[childID] = true
			out = append(out, child)
			walk(child)
		}
	}
	walk(t)
	return out
}

// DepthFromParent returns the length of the chain above parentID plus one
// for the parent itself, i.e. the parent's own level. A new child sits one
// deeper: the create check is DepthFromParent+1 <= MaxDepth.
func DepthFromParent(store types.TaskStore, parentID string) int {
	return len(Ancestors(store, parentID)) + 1
}

// MaxDescendantDepth returns the length of the longest chain below a task:
// 0 for a leaf, 1 with children, 2 with grandchildren.
func MaxDescendantDepth(store types.TaskStore, id string) int {
	t, ok := store[id]
	if !ok {
		return 0
	}
	max := 0
	seen := map[string]bool{id: true}
	var walk func(task *types.Task, depth int)
	walk = func(task *types.Task, depth int) {
		for _, childID := range task.Children {
			child, ok := store[childID]
			if !ok || seen[childID] {
				continue
			}
			seen[childID] = true
			if depth+1 > max {
				max = depth + 1
			}
			walk(child, depth+1)
		}
	}
	walk(t, 0)
	return max
}

// IsDescendant reports whether a sits below b in the parent forest.
func IsDescendant(store types.TaskStore, a, b string) bool {
	for _, anc := range Ancestors(store, a) {
		if anc.ID == b {
			return true
		}
	}
	return false
}

// WouldCreateBlockingCycle reports whether adding "blocker blocks blocked"
// would connect the two tasks into a cycle. The check walks both blockedBy
// and blocks edges from the blocker, so it also rejects edges between tasks
// already related transitively in either direction.
func WouldCreateBlockingCycle(store types.TaskStore, blockerID, blockedID string) bool {
	if blockerID == blockedID {
		return true
	}
	seen := map[string]bool{blockerID: true}
	queue := []string{blockerID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		t, ok := store[id]
		if !ok {
			continue
		}
		for _, next := range append(append([]string(nil), t.BlockedBy...), t.Blocks...) {
			if next == blockedID {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// IncompleteBlockers returns the members of task.BlockedBy whose referent
// exists and is not completed.
func IncompleteBlockers(store types.TaskStore, task *types.Task) []*types.Task {
	var out []*types.Task
	for _, id := range task.BlockedBy {
		if blocker, ok := store[id]; ok && !blocker.Completed {
			out = append(out, blocker)
		}
	}
	return out
}

// HasIncompleteChildren reports whether any direct child is pending.
func HasIncompleteChildren(store types.TaskStore, task *types.Task) bool {
	for _, id := range task.Children {
		if child, ok := store[id]; ok && !child.Completed {
			return true
		}
	}
	return false
}

// IsBlocked reports whether the task has at least one incomplete blocker.
func IsBlocked(store types.TaskStore, task *types.Task) bool {
	return len(IncompleteBlockers(store, task)) > 0
}

// IsReady reports whether the task is pending, unblocked, and has no
// incomplete children.
func IsReady(store types.TaskStore, task *types.Task) bool {
	return !task.Completed && !IsBlocked(store, task) && !HasIncompleteChildren(store, task)
}

// SyncParentChild moves child between parents, maintaining the children
// list on both sides. Either parent id may be nil (root). Fails with
// reference_missing when the new parent does not exist.
func SyncParentChild(store types.TaskStore, childID string, oldParentID, newParentID *string) error {
	if oldParentID != nil {
		if old, ok := store[*oldParentID]; ok {
			old.Children = remove(old.Children, childID)
		}
	}
	if newParentID != nil {
		parent, ok := store[*newParentID]
		if !ok {
			return dexerr.New(dexerr.ReferenceMissing, "parent task %s not found", *newParentID)
		}
		parent.Children = appendUnique(parent.Children, childID)
	}
	return nil
}

// SyncAddBlocker installs both sides of a blocking edge.
func SyncAddBlocker(store types.TaskStore, blockerID, blockedID string) error {
	blocker, ok := store[blockerID]
	if !ok {
		return dexerr.New(dexerr.ReferenceMissing, "blocking task %s not found", blockerID)
	}
	blocked, ok := store[blockedID]
	if !ok {
		return dexerr.New(dexerr.ReferenceMissing, "blocked task %s not found", blockedID)
	}
	blocked.BlockedBy = appendUnique(blocked.BlockedBy, blockerID)
	blocker.Blocks = appendUnique(blocker.Blocks, blockedID)
	return nil
}

// SyncRemoveBlocker removes both sides of a blocking edge. Missing tasks or
// absent edges are ignored; removal is idempotent.
func SyncRemoveBlocker(store types.TaskStore, blockerID, blockedID string) {
	if blocked, ok := store[blockedID]; ok {
		blocked.BlockedBy = remove(blocked.BlockedBy, blockerID)
	}
	if blocker, ok := store[blockerID]; ok {
		blocker.Blocks = remove(blocker.Blocks, blockedID)
	}
}

// CleanupTaskReferences strips id from every children, blockedBy, and
// blocks list of the remaining tasks. Called after a task leaves the store.
func CleanupTaskReferences(store types.TaskStore, id string) {
	for _, t := range store {
		t.Children = remove(t.Children, id)
		t.BlockedBy = remove(t.BlockedBy, id)
		t.Blocks = remove(t.Blocks, id)
	}
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func remove(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
