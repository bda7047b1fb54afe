package store

import (
	"fmt"
	"time"
)

// Task is a user goal broken into ordered steps.
type Task struct {
	ID        string
	Name      string
	CreatedAt time.Time
	// Subtasks are kept in execution order.
	Subtasks []Subtask
}

// Subtask is one time-boxed step of a Task.
type Subtask struct {
	Name      string
	Minutes   int
	Done      bool
	CreatedAt time.Time
}

// Step is the input shape for adding subtasks, and what a completion
// provider returns.
type Step struct {
	Name    string `json:"name"`
	Minutes int    `json:"minutes"`
}

// Progress summarizes how far a task has come.
type Progress struct {
	Done        int
	Total       int
	Minutes     int // estimate over all subtasks
	MinutesLeft int // estimate over subtasks not yet done
}

// Fraction returns Done/Total, or 0 for a task without subtasks.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// Complete reports whether there is at least one subtask and all are done.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Done == p.Total
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d", p.Done, p.Total)
}

// Progress computes the task's progress from its subtasks.
func (t *Task) Progress() Progress {
	var p Progress
	p.Total = len(t.Subtasks)
	for _, st := range t.Subtasks {
		p.Minutes += st.Minutes
		if st.Done {
			p.Done++
		} else {
			p.MinutesLeft += st.Minutes
		}
	}
	return p
}

// IsComplete returns true if the task has subtasks and all of them are done.
func (t *Task) IsComplete() bool {
	return t.Progress().Complete()
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.Subtasks = append(make([]Subtask, 0, len(t.Subtasks)), t.Subtasks...)
	return &c
}
