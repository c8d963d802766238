package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRoundTrip(t *testing.T) {
	now := Now()
	data, err := json.Marshal(now)
	require.NoError(t, err)
	assert.Regexp(t, `^"\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z"$`, string(data))

	var back Time
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, now.Equal(back.Time))
}

func TestTimeUnmarshalVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"canonical", `"2024-03-01T12:00:00.500Z"`, "2024-03-01T12:00:00.500Z"},
		{"no fraction", `"2024-03-01T12:00:00Z"`, "2024-03-01T12:00:00.000Z"},
		{"nanoseconds", `"2024-03-01T12:00:00.123456789Z"`, "2024-03-01T12:00:00.123Z"},
		{"offset", `"2024-03-01T13:00:00+01:00"`, "2024-03-01T12:00:00.000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Time
			require.NoError(t, json.Unmarshal([]byte(tt.input), &v))
			assert.Equal(t, tt.want, v.String())
		})
	}

	var v Time
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &v))
}

func TestTaskValidate(t *testing.T) {
	now := Now()
	valid := Task{ID: "a1b2c3d4", Name: "ship it", Priority: 1, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Task)
	}{
		{"bad id", func(task *Task) { task.ID = "UPPER-ID" }},
		{"short id", func(task *Task) { task.ID = "abc" }},
		{"empty name", func(task *Task) { task.Name = "" }},
		{"priority too high", func(task *Task) { task.Priority = 101 }},
		{"priority negative", func(task *Task) { task.Priority = -1 }},
		{"completed without timestamp", func(task *Task) { task.Completed = true }},
		{"timestamp without completed", func(task *Task) { task.CompletedAt = &now }},
		{"own parent", func(task *Task) { id := task.ID; task.ParentID = &id }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := valid
			tt.mutate(&task)
			assert.Error(t, task.Validate())
		})
	}
}

func TestTaskClone(t *testing.T) {
	now := Now()
	pid := "00000000"
	orig := &Task{
		ID:        "a1b2c3d4",
		ParentID:  &pid,
		Name:      "original",
		Priority:  2,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
		Metadata: &Metadata{
			GitHub: &GitHubMetadata{IssueNumber: 7, Repo: "o/r"},
			Commit: &CommitMetadata{SHA: "abc123"},
		},
		BlockedBy: []string{"x"},
		Children:  []string{"y"},
	}
	clone := orig.Clone()

	clone.Name = "changed"
	*clone.ParentID = "11111111"
	clone.Metadata.GitHub.IssueNumber = 99
	clone.BlockedBy[0] = "z"

	assert.Equal(t, "original", orig.Name)
	assert.Equal(t, "00000000", *orig.ParentID)
	assert.Equal(t, 7, orig.Metadata.GitHub.IssueNumber)
	assert.Equal(t, []string{"x"}, orig.BlockedBy)
}

func TestTaskJSONFieldNames(t *testing.T) {
	now := At(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	task := Task{
		ID: "a1b2c3d4", Name: "n", Priority: 0,
		CreatedAt: now, UpdatedAt: now,
		BlockedBy: []string{"b"}, Blocks: []string{"c"}, Children: []string{"d"},
	}
	data, err := json.Marshal(task)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `"blockedBy"`)
	assert.Contains(t, s, `"blocks"`)
	assert.Contains(t, s, `"children"`)
	assert.Contains(t, s, `"created_at"`)
	// Priority 0 is valid and must not be omitted.
	assert.Contains(t, s, `"priority":0`)
}

func TestArchivedTaskValidate(t *testing.T) {
	rec := ArchivedTask{ID: "a1b2c3d4", Name: "done", ArchivedAt: Now()}
	require.NoError(t, rec.Validate())

	assert.Error(t, (&ArchivedTask{Name: "x", ArchivedAt: Now()}).Validate())
	assert.Error(t, (&ArchivedTask{ID: "a1b2c3d4", ArchivedAt: Now()}).Validate())
	assert.Error(t, (&ArchivedTask{ID: "a1b2c3d4", Name: "x"}).Validate())
}

func TestSortTasks(t *testing.T) {
	early := At(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	late := At(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	tasks := []*Task{
		{ID: "cccccccc", Priority: 5, CreatedAt: late},
		{ID: "bbbbbbbb", Priority: 1, CreatedAt: late},
		{ID: "aaaaaaaa", Priority: 1, CreatedAt: early},
	}
	SortTasks(tasks)
	assert.Equal(t, "aaaaaaaa", tasks[0].ID)
	assert.Equal(t, "bbbbbbbb", tasks[1].ID)
	assert.Equal(t, "cccccccc", tasks[2].ID)
}
