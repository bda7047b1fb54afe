// Package transfer moves task data between installs: a self-describing JSON
// payload for copy/paste or file exchange, and a markdown checklist for a
// single task.
//
// Imports merge by id and never overwrite: a task whose id already exists
// is skipped, so importing the same payload twice is harmless.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cfxgy/DoItNow/pkg/fsio"
	"github.com/cfxgy/DoItNow/pkg/store"
)

const (
	// AppID identifies payloads produced by this application.
	AppID = "TaskBreaker"
	// SchemaVersion is the payload format version.
	SchemaVersion = "1.0"
)

// ErrInvalidFormat is returned when an import payload cannot be understood.
var ErrInvalidFormat = errors.New("invalid import format")

// Payload is the export envelope.
type Payload struct {
	App        string      `json:"app"`
	Version    string      `json:"version"`
	ExportedAt string      `json:"exported_at"`
	Data       PayloadData `json:"data"`
}

// PayloadData holds the exported tasks keyed by id.
type PayloadData struct {
	Tasks map[string]*store.Task `json:"tasks"`
}

// Codec exports from and imports into a task store.
type Codec struct {
	store  *store.Store
	logger *log.Logger
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used to report skipped tasks.
func WithLogger(l *log.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now for the exported_at field.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New returns a Codec for s.
func New(s *store.Store, opts ...Option) *Codec {
	c := &Codec{
		store:  s,
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) payload() Payload {
	return Payload{
		App:        AppID,
		Version:    SchemaVersion,
		ExportedAt: store.FormatTimestamp(c.now()),
		Data:       PayloadData{Tasks: c.store.Tasks()},
	}
}

func encode(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportString returns the full store as a compact single-line payload,
// suitable for the clipboard.
func (c *Codec) ExportString() (string, error) {
	data, err := encode(c.payload(), false)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// ExportFile writes the full store to path as an indented payload.
func (c *Codec) ExportFile(path string) error {
	data, err := encode(c.payload(), true)
	if err != nil {
		return err
	}
	return fsio.WriteFile(path, data, 0644)
}

// Decode parses a payload without touching any store.
func Decode(text string) (*Payload, error) {
	var raw struct {
		App        string          `json:"app"`
		Version    string          `json:"version"`
		ExportedAt string          `json:"exported_at"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidFormat)
	}

	var data struct {
		Tasks json.RawMessage `json:"tasks"`
	}
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrInvalidFormat, err)
	}
	if len(data.Tasks) == 0 || string(data.Tasks) == "null" {
		return nil, fmt.Errorf("%w: missing data.tasks", ErrInvalidFormat)
	}

	var tasks map[string]*store.Task
	if err := json.Unmarshal(data.Tasks, &tasks); err != nil {
		return nil, fmt.Errorf("%w: data.tasks: %v", ErrInvalidFormat, err)
	}
	for id, t := range tasks {
		if err := checkRecord(id, t); err != nil {
			return nil, err
		}
	}

	return &Payload{
		App:        raw.App,
		Version:    raw.Version,
		ExportedAt: raw.ExportedAt,
		Data:       PayloadData{Tasks: tasks},
	}, nil
}

// checkRecord rejects task records that break the store's invariants:
// a task and each of its steps need a name, and steps a positive estimate.
func checkRecord(id string, t *store.Task) error {
	if t == nil {
		return fmt.Errorf("%w: task %s is null", ErrInvalidFormat, id)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: task %s has no name", ErrInvalidFormat, id)
	}
	for i, st := range t.Subtasks {
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("%w: task %s step %d has no name", ErrInvalidFormat, id, i+1)
		}
		if st.Minutes <= 0 {
			return fmt.Errorf("%w: task %s step %d has %d minutes", ErrInvalidFormat, id, i+1, st.Minutes)
		}
	}
	return nil
}

// ImportString merges a payload into the store and returns the number of
// tasks inserted. On ErrInvalidFormat the store is unchanged.
func (c *Codec) ImportString(text string) (int, error) {
	p, err := Decode(text)
	if err != nil {
		return 0, err
	}
	if p.App != "" && p.App != AppID {
		c.logger.Printf("importing payload from %q", p.App)
	}
	return c.merge(p.Data.Tasks)
}

// ImportFile reads path and merges it like ImportString.
func (c *Codec) ImportFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s: %v", fsio.ErrIO, path, err)
	}
	return c.ImportString(string(data))
}

func (c *Codec) merge(tasks map[string]*store.Task) (int, error) {
	current := c.store.Tasks()
	for id := range tasks {
		if _, exists := current[id]; exists {
			c.logger.Printf("import: skipping existing task %s", id)
		}
	}
	return c.store.Merge(tasks)
}
