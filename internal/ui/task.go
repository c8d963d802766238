package ui

import (
	"fmt"
	"strings"

	"github.com/kschrader/dex/internal/graph"
	"github.com/kschrader/dex/internal/types"
)

// StatusIcon picks the icon and style for a task's current state.
func StatusIcon(store types.TaskStore, t *types.Task) string {
	switch {
	case t.Completed:
		return RenderDone(IconDone)
	case graph.IsBlocked(store, t):
		return RenderBlocked(IconBlocked)
	case t.StartedAt != nil:
		return RenderProgress(IconProgress)
	default:
		return RenderMuted(IconPending)
	}
}

// TaskLine renders one task as a single list row:
//
//	◐ a1b2c3d4 [p1] Implement the widget (2 blockers)
func TaskLine(store types.TaskStore, t *types.Task) string {
	var b strings.Builder
	b.WriteString(StatusIcon(store, t))
	b.WriteString(" ")
	b.WriteString(RenderAccent(t.ID))
	fmt.Fprintf(&b, " [p%d] ", t.Priority)
	name := t.Name
	if t.Completed {
		name = RenderMuted(name)
	}
	b.WriteString(name)
	if n := len(graph.IncompleteBlockers(store, t)); n > 0 {
		noun := "blockers"
		if n == 1 {
			noun = "blocker"
		}
		b.WriteString(RenderMuted(fmt.Sprintf(" (%d %s)", n, noun)))
	}
	return b.String()
}

// TaskTree renders a task and its subtree with box-drawing connectors.
func TaskTree(store types.TaskStore, root *types.Task) string {
	var b strings.Builder
	b.WriteString(TaskLine(store, root))
	b.WriteString("\n")
	renderChildren(&b, store, root, "")
	return b.String()
}

func renderChildren(b *strings.Builder, store types.TaskStore, t *types.Task, prefix string) {
	children := make([]*types.Task, 0, len(t.Children))
	for _, id := range t.Children {
		if child, ok := store[id]; ok {
			children = append(children, child)
		}
	}
	types.SortTasks(children)
	for i, child := range children {
		connector, nextPrefix := TreeBranch, prefix+TreePipe
		if i == len(children)-1 {
			connector, nextPrefix = TreeLast, prefix+TreeIndent
		}
		b.WriteString(prefix)
		b.WriteString(RenderMuted(connector))
		b.WriteString(TaskLine(store, child))
		b.WriteString("\n")
		renderChildren(b, store, child, nextPrefix)
	}
}

// TaskDetail renders the full show view for an active task.
func TaskDetail(store types.TaskStore, t *types.Task) string {
	var b strings.Builder
	b.WriteString(RenderHeader(t.Name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("id:"), t.ID)
	fmt.Fprintf(&b, "%s %d\n", RenderMuted("priority:"), t.Priority)
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("status:"), statusWord(store, t))
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("created:"), t.CreatedAt)
	if t.StartedAt != nil {
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("started:"), t.StartedAt)
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("completed:"), t.CompletedAt)
	}
	if chain := graph.Ancestors(store, t.ID); len(chain) > 0 {
		parts := make([]string, len(chain))
		for i, a := range chain {
			parts[i] = fmt.Sprintf("%s (%s)", a.Name, a.ID)
		}
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("under:"), strings.Join(parts, " > "))
	}
	if t.Description != "" {
		b.WriteString("\n")
		b.WriteString(TruncateLines(t.Description, DefaultMaxLines))
		b.WriteString("\n")
	}
	if t.Result != "" {
		b.WriteString("\n")
		b.WriteString(RenderHeader("Result"))
		b.WriteString("\n")
		b.WriteString(t.Result)
		b.WriteString("\n")
	}
	if blockers := graph.IncompleteBlockers(store, t); len(blockers) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderHeader("Blocked by"))
		b.WriteString("\n")
		for _, blocker := range blockers {
			b.WriteString("  ")
			b.WriteString(TaskLine(store, blocker))
			b.WriteString("\n")
		}
	}
	if t.Metadata != nil && t.Metadata.GitHub != nil {
		gh := t.Metadata.GitHub
		fmt.Fprintf(&b, "\n%s #%d %s\n", RenderMuted("issue:"), gh.IssueNumber, RenderMuted(gh.IssueURL))
	}
	if t.Metadata != nil && t.Metadata.Commit != nil {
		c := t.Metadata.Commit
		fmt.Fprintf(&b, "%s %s %s\n", RenderMuted("commit:"), shortSHA(c.SHA), TruncateSimple(c.Message, 60))
	}
	if len(t.Children) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderHeader("Subtasks"))
		b.WriteString("\n")
		b.WriteString(TaskTree(store, t))
	}
	return b.String()
}

// ArchivedDetail renders the show view for an archived record.
func ArchivedDetail(rec *types.ArchivedTask) string {
	var b strings.Builder
	b.WriteString(RenderHeader(rec.Name))
	b.WriteString(RenderMuted(" (archived)"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("id:"), rec.ID)
	if rec.CompletedAt != nil {
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("completed:"), rec.CompletedAt)
	}
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("archived:"), rec.ArchivedAt)
	if rec.Description != "" {
		b.WriteString("\n")
		b.WriteString(rec.Description)
		b.WriteString("\n")
	}
	if rec.Result != "" {
		b.WriteString("\n")
		b.WriteString(RenderHeader("Result"))
		b.WriteString("\n")
		b.WriteString(rec.Result)
		b.WriteString("\n")
	}
	if len(rec.ArchivedChildren) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderHeader("Subtasks"))
		b.WriteString("\n")
		for _, child := range rec.ArchivedChildren {
			fmt.Fprintf(&b, "  %s %s %s\n", RenderDone(IconDone), RenderAccent(child.ID), child.Name)
		}
	}
	return b.String()
}

func statusWord(store types.TaskStore, t *types.Task) string {
	switch {
	case t.Completed:
		return RenderDone("completed")
	case graph.IsBlocked(store, t):
		return RenderBlocked("blocked")
	case t.StartedAt != nil:
		return RenderProgress("in progress")
	default:
		return "pending"
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
