package tui

import (
	"strconv"

	"github.com/cfxgy/DoItNow/pkg/store"
)

// TreeItem is one row of the task pane: a task, or one step of an expanded
// task.
type TreeItem struct {
	ID          string // task id, or "<task id>#<index>" for a step
	ParentID    string // owning task id for steps
	Name        string
	Task        *store.Task
	StepIndex   int // -1 for task rows
	Depth       int
	HasChildren bool
	IsExpanded  bool
}

// IsStep reports whether the row is a step.
func (it TreeItem) IsStep() bool {
	return it.StepIndex >= 0
}

// Step returns the step a step row points at.
func (it TreeItem) Step() store.Subtask {
	return it.Task.Subtasks[it.StepIndex]
}

func stepID(taskID string, idx int) string {
	return taskID + "#" + strconv.Itoa(idx)
}

// FlattenVisibleItems lists tasks in order with the steps of expanded tasks
// beneath them.
func FlattenVisibleItems(tasks []*store.Task, expandedState map[string]bool) []TreeItem {
	var result []TreeItem
	for _, t := range tasks {
		item := TreeItem{
			ID:          t.ID,
			Name:        t.Name,
			Task:        t,
			StepIndex:   -1,
			HasChildren: len(t.Subtasks) > 0,
			IsExpanded:  expandedState[t.ID],
		}
		result = append(result, item)

		if !item.HasChildren || !item.IsExpanded {
			continue
		}
		for i, st := range t.Subtasks {
			result = append(result, TreeItem{
				ID:        stepID(t.ID, i),
				ParentID:  t.ID,
				Name:      st.Name,
				Task:      t,
				StepIndex: i,
				Depth:     1,
			})
		}
	}
	return result
}

// FilterVisibleItems filters already-flattened visible items to only include
// items whose ID is in matchIDs or ancestorIDs.
func FilterVisibleItems(items []TreeItem, matchIDs, ancestorIDs map[string]bool) []TreeItem {
	var result []TreeItem
	for _, item := range items {
		if matchIDs[item.ID] || ancestorIDs[item.ID] {
			result = append(result, item)
		}
	}
	return result
}
