package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cfxgy/DoItNow/pkg/fsio"
	"github.com/google/uuid"
)

// TasksFile is the task file name inside the data directory.
const TasksFile = "tasks.json"

// fileState is the on-disk shape of tasks.json.
type fileState struct {
	Tasks    map[string]*Task `json:"tasks"`
	Settings json.RawMessage  `json:"settings"`
}

// Store manages the task file. Every mutating call writes the file before
// returning. A Store is not safe for concurrent use.
type Store struct {
	path   string
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	tasks map[string]*Task
	// settings is carried through unchanged; older versions kept an empty
	// settings object in the task file.
	settings json.RawMessage
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded loads.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// PathIn returns the task file path inside dataDir.
func PathIn(dataDir string) string {
	return filepath.Join(dataDir, TasksFile)
}

// Open creates a Store backed by path and loads it. A missing or unreadable
// file yields an empty store.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
		newID:  newTaskID,
		tasks:  make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %v", fsio.ErrIO, err)
	}
	s.load()
	return s, nil
}

// Path returns the task file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the task file, discarding in-memory state.
func (s *Store) Reload() {
	s.load()
}

func (s *Store) load() {
	s.tasks = make(map[string]*Task)
	s.settings = nil

	data, err := fsio.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Printf("task file unreadable, starting empty: %v", err)
		return
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		s.setAside(err)
		return
	}
	for id, t := range st.Tasks {
		if t == nil {
			continue
		}
		t.ID = id
		s.tasks[id] = t
	}
	s.settings = st.Settings
}

// setAside moves an undecodable task file out of the way so the next save
// cannot overwrite it.
func (s *Store) setAside(cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().UnixNano())
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Printf("task file %s is corrupt and could not be moved aside: %v (%v)", s.path, cause, err)
		return
	}
	s.logger.Printf("task file %s is corrupt, moved to %s, starting empty: %v", s.path, aside, cause)
}

func (s *Store) save() error {
	settings := s.settings
	if len(settings) == 0 {
		settings = json.RawMessage("{}")
	}
	data, err := marshalJSON(fileState{Tasks: s.tasks, Settings: settings}, true)
	if err != nil {
		return fmt.Errorf("serializing tasks: %w", err)
	}
	return fsio.WriteFile(s.path, data, 0644)
}

// commit persists the current state. If the write fails, undo restores the
// previous in-memory state so memory and disk agree.
func (s *Store) commit(undo func()) error {
	if err := s.save(); err != nil {
		undo()
		return err
	}
	return nil
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) nextID() string {
	id := s.newID()
	for i := 1; ; i++ {
		if _, taken := s.tasks[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", s.newID(), i)
	}
}

func (s *Store) lookup(taskID string) (*Task, error) {
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return t, nil
}

func validateStep(name string, minutes int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: subtask name is empty", ErrInvalidArgument)
	}
	if minutes <= 0 {
		return "", fmt.Errorf("%w: minutes must be positive, got %d", ErrInvalidArgument, minutes)
	}
	return name, nil
}

func checkIndex(t *Task, index int) error {
	if index < 0 || index >= len(t.Subtasks) {
		return fmt.Errorf("%w: %d (task has %d)", ErrOutOfRange, index, len(t.Subtasks))
	}
	return nil
}

// AddTask creates a task with no subtasks and returns its id.
func (s *Store) AddTask(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: task name is empty", ErrInvalidArgument)
	}

	id := s.nextID()
	s.tasks[id] = &Task{
		ID:        id,
		Name:      name,
		CreatedAt: s.now(),
		Subtasks:  []Subtask{},
	}
	if err := s.commit(func() { delete(s.tasks, id) }); err != nil {
		return "", err
	}
	return id, nil
}

// RenameTask changes a task's name.
func (s *Store) RenameTask(taskID, name string) error {
	t, err := s.lookup(taskID)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: task name is empty", ErrInvalidArgument)
	}

	old := t.Name
	t.Name = name
	return s.commit(func() { t.Name = old })
}

// AddSubtask appends one step to a task.
func (s *Store) AddSubtask(taskID, name string, minutes int) error {
	return s.AddSubtasks(taskID, []Step{{Name: name, Minutes: minutes}})
}

// AddSubtasks appends steps in order. Either all steps are added or none.
func (s *Store) AddSubtasks(taskID string, steps []Step) error {
	t, err := s.lookup(taskID)
	if err != nil {
		return err
	}

	now := s.now()
	added := make([]Subtask, 0, len(steps))
	for i, step := range steps {
		name, err := validateStep(step.Name, step.Minutes)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		added = append(added, Subtask{Name: name, Minutes: step.Minutes, CreatedAt: now})
	}
	if len(added) == 0 {
		return nil
	}

	old := t.Subtasks
	t.Subtasks = append(append(make([]Subtask, 0, len(old)+len(added)), old...), added...)
	return s.commit(func() { t.Subtasks = old })
}

// ToggleSubtask flips a subtask's done flag and returns the new value.
func (s *Store) ToggleSubtask(taskID string, index int) (bool, error) {
	t, err := s.lookup(taskID)
	if err != nil {
		return false, err
	}
	if err := checkIndex(t, index); err != nil {
		return false, err
	}

	st := &t.Subtasks[index]
	st.Done = !st.Done
	if err := s.commit(func() { st.Done = !st.Done }); err != nil {
		return false, err
	}
	return st.Done, nil
}

// DeleteSubtask removes a subtask. Later subtasks shift down by one, so
// indices must not be reused across deletions.
func (s *Store) DeleteSubtask(taskID string, index int) error {
	t, err := s.lookup(taskID)
	if err != nil {
		return err
	}
	if err := checkIndex(t, index); err != nil {
		return err
	}

	old := t.Subtasks
	next := make([]Subtask, 0, len(old)-1)
	next = append(next, old[:index]...)
	next = append(next, old[index+1:]...)
	t.Subtasks = next
	return s.commit(func() { t.Subtasks = old })
}

// DeleteTask removes a task and its subtasks. Deleting an unknown id is
// not an error.
func (s *Store) DeleteTask(taskID string) error {
	t, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	delete(s.tasks, taskID)
	return s.commit(func() { s.tasks[taskID] = t })
}

// Task returns a copy of the task with the given id.
func (s *Store) Task(taskID string) (*Task, bool) {
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all tasks keyed by id.
func (s *Store) Tasks() map[string]*Task {
	out := make(map[string]*Task, len(s.tasks))
	for id, t := range s.tasks {
		out[id] = t.Clone()
	}
	return out
}

// List returns copies of all tasks, oldest first.
func (s *Store) List() []*Task {
	list := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	return len(s.tasks)
}

// Merge inserts the given tasks whose ids are not already present and
// returns how many were inserted. Existing tasks are never overwritten.
// The file is written once, and only if something was inserted.
func (s *Store) Merge(tasks map[string]*Task) (int, error) {
	var inserted []string
	for id, t := range tasks {
		if t == nil || id == "" {
			continue
		}
		if _, exists := s.tasks[id]; exists {
			continue
		}
		c := t.Clone()
		c.ID = id
		if c.Subtasks == nil {
			c.Subtasks = []Subtask{}
		}
		s.tasks[id] = c
		inserted = append(inserted, id)
	}
	if len(inserted) == 0 {
		return 0, nil
	}

	err := s.commit(func() {
		for _, id := range inserted {
			delete(s.tasks, id)
		}
	})
	if err != nil {
		return 0, err
	}
	return len(inserted), nil
}
