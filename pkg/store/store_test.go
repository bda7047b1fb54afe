package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cfxgy/DoItNow/pkg/fsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(PathIn(t.TempDir()), opts...)
	require.NoError(t, err)
	return s
}

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("task-%03d", n)
	})
}

func reopen(t *testing.T, s *Store) *Store {
	t.Helper()
	s2, err := Open(s.Path())
	require.NoError(t, err)
	return s2
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s := setupTestStore(t)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Tasks())
}

func TestOpenCorruptFileIsEmpty(t *testing.T) {
	path := PathIn(t.TempDir())
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestCorruptFileIsKeptAside(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{not json"},
		{"bad minutes", `{"tasks":{"a":{"name":"keep","subtasks":[{"name":"x","minutes":"abc"}]}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := PathIn(dir)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			s, err := Open(path)
			require.NoError(t, err)
			assert.Equal(t, 0, s.Len())
			_, err = s.AddTask("new")
			require.NoError(t, err)

			aside, err := filepath.Glob(path + ".corrupt-*")
			require.NoError(t, err)
			require.Len(t, aside, 1)
			data, err := os.ReadFile(aside[0])
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))

			assert.Equal(t, 1, reopen(t, s).Len())
		})
	}
}

func TestAddTask(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.AddTask("  Write thesis chapter 3  ")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, s.Len())

	task, ok := s.Task(id)
	require.True(t, ok)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, "Write thesis chapter 3", task.Name)
	assert.NotNil(t, task.Subtasks)
	assert.Empty(t, task.Subtasks)
	assert.False(t, task.CreatedAt.IsZero())
	for _, listed := range s.List() {
		assert.NotNil(t, listed.Subtasks)
	}

	// Durable
	task, ok = reopen(t, s).Task(id)
	require.True(t, ok)
	assert.Equal(t, "Write thesis chapter 3", task.Name)
}

func TestAddTaskEmptyName(t *testing.T) {
	s := setupTestStore(t)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := s.AddTask(name)
		assert.True(t, errors.Is(err, ErrInvalidArgument), "name %q", name)
	}
	assert.Equal(t, 0, s.Len())
}

func TestAddTaskIDsAreUnique(t *testing.T) {
	s := setupTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := s.AddTask(fmt.Sprintf("task %d", i))
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 50, s.Len())
}

func TestAddTaskIDCollisionIsAvoided(t *testing.T) {
	s := setupTestStore(t, WithIDGenerator(func() string { return "same" }))

	a, err := s.AddTask("a")
	require.NoError(t, err)
	b, err := s.AddTask("b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.Len())
}

func TestAddSubtask(t *testing.T) {
	s := setupTestStore(t)
	id, err := s.AddTask("Plan trip")
	require.NoError(t, err)

	require.NoError(t, s.AddSubtask(id, "Pick dates", 10))
	require.NoError(t, s.AddSubtask(id, "Book flights", 25))

	task, _ := s.Task(id)
	require.Len(t, task.Subtasks, 2)
	assert.Equal(t, "Pick dates", task.Subtasks[0].Name)
	assert.Equal(t, 10, task.Subtasks[0].Minutes)
	assert.False(t, task.Subtasks[0].Done)
	assert.Equal(t, "Book flights", task.Subtasks[1].Name)
}

func TestAddSubtaskValidation(t *testing.T) {
	s := setupTestStore(t)
	id, err := s.AddTask("Plan trip")
	require.NoError(t, err)

	tests := []struct {
		name    string
		taskID  string
		step    string
		minutes int
		wantErr error
	}{
		{"unknown task", "nope", "Step", 10, ErrNotFound},
		{"unknown task wins over bad input", "nope", "", 0, ErrNotFound},
		{"empty name", id, "  ", 10, ErrInvalidArgument},
		{"zero minutes", id, "Step", 0, ErrInvalidArgument},
		{"negative minutes", id, "Step", -5, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddSubtask(tt.taskID, tt.step, tt.minutes)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	task, _ := s.Task(id)
	assert.Empty(t, task.Subtasks)
}

func TestAddSubtasksAllOrNothing(t *testing.T) {
	s := setupTestStore(t)
	id, err := s.AddTask("Clean garage")
	require.NoError(t, err)

	err = s.AddSubtasks(id, []Step{
		{Name: "Open door", Minutes: 1},
		{Name: "", Minutes: 10},
	})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	task, _ := s.Task(id)
	assert.Empty(t, task.Subtasks)

	err = s.AddSubtasks("missing", []Step{{Name: "Open door", Minutes: 1}})
	assert.True(t, errors.Is(err, ErrNotFound))

	steps := []Step{
		{Name: "Open door", Minutes: 1},
		{Name: "Sort boxes", Minutes: 20},
		{Name: "Sweep", Minutes: 15},
	}
	require.NoError(t, s.AddSubtasks(id, steps))

	task, _ = reopen(t, s).Task(id)
	require.Len(t, task.Subtasks, 3)
	for i, st := range task.Subtasks {
		assert.Equal(t, steps[i].Name, st.Name)
		assert.Equal(t, steps[i].Minutes, st.Minutes)
	}
}

func TestToggleSubtaskIsInvolution(t *testing.T) {
	s := setupTestStore(t)
	id, _ := s.AddTask("Read paper")
	require.NoError(t, s.AddSubtask(id, "Skim abstract", 5))

	done, err := s.ToggleSubtask(id, 0)
	require.NoError(t, err)
	assert.True(t, done)
	task, _ := reopen(t, s).Task(id)
	assert.True(t, task.Subtasks[0].Done)

	done, err = s.ToggleSubtask(id, 0)
	require.NoError(t, err)
	assert.False(t, done)
	task, _ = reopen(t, s).Task(id)
	assert.False(t, task.Subtasks[0].Done)
}

func TestSubtaskIndexOutOfRange(t *testing.T) {
	s := setupTestStore(t)
	id, _ := s.AddTask("Read paper")
	require.NoError(t, s.AddSubtask(id, "Skim abstract", 5))

	for _, idx := range []int{-1, 1, 99} {
		_, err := s.ToggleSubtask(id, idx)
		assert.True(t, errors.Is(err, ErrOutOfRange), "toggle %d", idx)
		err = s.DeleteSubtask(id, idx)
		assert.True(t, errors.Is(err, ErrOutOfRange), "delete %d", idx)
	}

	_, err := s.ToggleSubtask("missing", 0)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteSubtaskShiftsIndices(t *testing.T) {
	s := setupTestStore(t)
	id, _ := s.AddTask("Cook dinner")
	require.NoError(t, s.AddSubtasks(id, []Step{
		{Name: "a", Minutes: 1},
		{Name: "b", Minutes: 2},
		{Name: "c", Minutes: 3},
	}))

	require.NoError(t, s.DeleteSubtask(id, 1))

	task, _ := reopen(t, s).Task(id)
	require.Len(t, task.Subtasks, 2)
	assert.Equal(t, "a", task.Subtasks[0].Name)
	assert.Equal(t, "c", task.Subtasks[1].Name)
}

func TestDeleteTaskIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	id, _ := s.AddTask("Temporary")
	require.NoError(t, s.AddSubtask(id, "step", 5))

	require.NoError(t, s.DeleteTask(id))
	_, ok := s.Task(id)
	assert.False(t, ok)
	_, ok = reopen(t, s).Task(id)
	assert.False(t, ok)

	assert.NoError(t, s.DeleteTask(id))
	assert.NoError(t, s.DeleteTask("never-existed"))
}

func TestRenameTask(t *testing.T) {
	s := setupTestStore(t)
	id, _ := s.AddTask("old")

	require.NoError(t, s.RenameTask(id, "new"))
	task, _ := reopen(t, s).Task(id)
	assert.Equal(t, "new", task.Name)

	assert.True(t, errors.Is(s.RenameTask(id, " "), ErrInvalidArgument))
	assert.True(t, errors.Is(s.RenameTask("missing", "x"), ErrNotFound))
}

func TestReturnedTasksAreCopies(t *testing.T) {
	s := setupTestStore(t)
	id, _ := s.AddTask("Original")
	require.NoError(t, s.AddSubtask(id, "step", 5))

	task, _ := s.Task(id)
	task.Name = "Mutated"
	task.Subtasks[0].Done = true

	all := s.Tasks()
	all[id].Subtasks[0].Name = "changed"

	fresh, _ := s.Task(id)
	assert.Equal(t, "Original", fresh.Name)
	assert.False(t, fresh.Subtasks[0].Done)
	assert.Equal(t, "step", fresh.Subtasks[0].Name)
}

func TestListOrderedByCreation(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s := setupTestStore(t, sequentialIDs(), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(-tick) * time.Minute)
	}))

	// Clock runs backwards, so later tasks sort first.
	_, _ = s.AddTask("first")
	_, _ = s.AddTask("second")
	_, _ = s.AddTask("third")

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
	assert.Equal(t, "first", list[2].Name)
}

func TestProgressScenario(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.AddTask("Write thesis chapter 3")
	require.NoError(t, err)
	require.NoError(t, s.AddSubtask(id, "Outline section", 10))
	require.NoError(t, s.AddSubtask(id, "Draft intro", 20))

	_, err = s.ToggleSubtask(id, 0)
	require.NoError(t, err)

	task, _ := s.Task(id)
	assert.Equal(t, "1/2", task.Progress().String())
	assert.False(t, task.IsComplete())

	require.NoError(t, s.DeleteSubtask(id, 1))
	task, _ = s.Task(id)
	assert.Len(t, task.Subtasks, 1)
	assert.True(t, task.IsComplete())
}

func TestMerge(t *testing.T) {
	s := setupTestStore(t, sequentialIDs())
	existing, _ := s.AddTask("Existing")

	incoming := map[string]*Task{
		existing: {Name: "Should not overwrite"},
		"imported-1": {
			Name:      "Imported",
			CreatedAt: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
			Subtasks:  []Subtask{{Name: "step", Minutes: 5, Done: true}},
		},
		"imported-2": {Name: "No subtasks"},
	}

	n, err := s.Merge(incoming)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	s2 := reopen(t, s)
	assert.Equal(t, 3, s2.Len())
	task, _ := s2.Task(existing)
	assert.Equal(t, "Existing", task.Name)
	task, _ = s2.Task("imported-1")
	assert.Equal(t, "Imported", task.Name)
	assert.True(t, task.IsComplete())
	task, _ = s2.Task("imported-2")
	assert.NotNil(t, task.Subtasks)

	n, err = s.Merge(incoming)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFailedWriteRollsBack(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "data", TasksFile))
	require.NoError(t, err)
	id, err := s.AddTask("Keep me")
	require.NoError(t, err)
	require.NoError(t, s.AddSubtask(id, "step", 5))

	// Replace the data directory with a file so every write fails.
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "data")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), []byte("x"), 0644))

	_, err = s.AddTask("Lost")
	assert.True(t, errors.Is(err, fsio.ErrIO))
	assert.Equal(t, 1, s.Len())

	_, err = s.ToggleSubtask(id, 0)
	assert.True(t, errors.Is(err, fsio.ErrIO))
	task, _ := s.Task(id)
	assert.False(t, task.Subtasks[0].Done)

	err = s.DeleteSubtask(id, 0)
	assert.True(t, errors.Is(err, fsio.ErrIO))
	task, _ = s.Task(id)
	assert.Len(t, task.Subtasks, 1)

	err = s.DeleteTask(id)
	assert.True(t, errors.Is(err, fsio.ErrIO))
	_, ok := s.Task(id)
	assert.True(t, ok)
}

func TestFileFormat(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	s := setupTestStore(t, sequentialIDs(), WithClock(func() time.Time { return created }))

	id, _ := s.AddTask("Ship <release> & party")
	require.NoError(t, s.AddSubtask(id, "Tag", 5))
	_, err := s.ToggleSubtask(id, 0)
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ship <release> & party")

	var raw struct {
		Tasks map[string]struct {
			Name      string `json:"name"`
			CreatedAt string `json:"created_at"`
			Completed bool   `json:"completed"`
			Subtasks  []struct {
				Name      string `json:"name"`
				Minutes   int    `json:"minutes"`
				Done      bool   `json:"done"`
				CreatedAt string `json:"created_at"`
			} `json:"subtasks"`
		} `json:"tasks"`
		Settings map[string]any `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))

	rec, ok := raw.Tasks["task-001"]
	require.True(t, ok)
	assert.Equal(t, "2026-03-04T05:06:07Z", rec.CreatedAt)
	assert.True(t, rec.Completed)
	require.Len(t, rec.Subtasks, 1)
	assert.Equal(t, 5, rec.Subtasks[0].Minutes)
	assert.True(t, rec.Subtasks[0].Done)
	assert.NotNil(t, raw.Settings)
}

func TestLoadLegacyFile(t *testing.T) {
	path := PathIn(t.TempDir())
	legacy := `{
  "tasks": {
    "20240101120000123456": {
      "name": "整理房间",
      "created_at": "2024-01-01T12:00:00.123456",
      "subtasks": [
        {"name": "捡起地上的衣服", "minutes": 5, "done": true, "created_at": "2024-01-01T12:00:01.000001"},
        {"name": "Vacuum", "minutes": 12.6, "done": false, "created_at": "2024-01-01T12:00:02"},
        {"name": "Dust", "minutes": "15", "done": false, "created_at": "garbage"}
      ],
      "completed": true
    }
  },
  "settings": {"theme": "dark"}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	s, err := Open(path)
	require.NoError(t, err)

	task, ok := s.Task("20240101120000123456")
	require.True(t, ok)
	assert.Equal(t, "整理房间", task.Name)
	assert.Equal(t, 2024, task.CreatedAt.Year())
	assert.Equal(t, 123456000, task.CreatedAt.Nanosecond())
	require.Len(t, task.Subtasks, 3)
	assert.Equal(t, 13, task.Subtasks[1].Minutes)
	assert.Equal(t, 15, task.Subtasks[2].Minutes)
	assert.True(t, task.Subtasks[2].CreatedAt.IsZero())
	// The stored completed flag is derived, not trusted.
	assert.False(t, task.IsComplete())

	// The settings member survives a rewrite.
	_, err = s.ToggleSubtask(task.ID, 1)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"theme": "dark"`)
}
