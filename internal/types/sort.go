package types

import "sort"

// SortTasks orders tasks by priority ascending (lower is more urgent), with
// ties broken by created_at ascending. The sort is stable so equal tasks keep
// their input order.
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt.Time)
	})
}

// SortedIDs returns the store's ids with the same priority/created_at order
// applied. Used for deterministic JSONL output.
func (s TaskStore) SortedIDs() []string {
	tasks := make([]*Task, 0, len(s))
	for _, t := range s {
		tasks = append(tasks, t)
	}
	SortTasks(tasks)
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
