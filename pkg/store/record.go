package store

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamps are written as RFC 3339. Older files carry ISO 8601 values
// without an offset; those are read in local time.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// FormatTimestamp renders t for the task file. The zero time renders empty.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// ParseTimestamp reads a timestamp written by this or an older version.
// Unparseable values yield the zero time rather than failing the whole
// record.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

type taskRecord struct {
	Name      string          `json:"name"`
	CreatedAt string          `json:"created_at"`
	Completed bool            `json:"completed"`
	Subtasks  []subtaskRecord `json:"subtasks"`
}

type subtaskRecord struct {
	Name      string  `json:"name"`
	Minutes   flexInt `json:"minutes"`
	Done      bool    `json:"done"`
	CreatedAt string  `json:"created_at"`
}

// MarshalJSON writes the task record. The id is the key of the enclosing
// map and is not part of the record; completed is derived.
func (t Task) MarshalJSON() ([]byte, error) {
	rec := taskRecord{
		Name:      t.Name,
		CreatedAt: FormatTimestamp(t.CreatedAt),
		Completed: t.IsComplete(),
		Subtasks:  make([]subtaskRecord, 0, len(t.Subtasks)),
	}
	for _, st := range t.Subtasks {
		rec.Subtasks = append(rec.Subtasks, subtaskRecord{
			Name:      st.Name,
			Minutes:   flexInt(st.Minutes),
			Done:      st.Done,
			CreatedAt: FormatTimestamp(st.CreatedAt),
		})
	}
	return marshalJSON(rec, false)
}

// UnmarshalJSON reads a task record. The stored completed flag is ignored.
func (t *Task) UnmarshalJSON(data []byte) error {
	var rec taskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	t.Name = rec.Name
	t.CreatedAt = ParseTimestamp(rec.CreatedAt)
	t.Subtasks = make([]Subtask, 0, len(rec.Subtasks))
	for _, st := range rec.Subtasks {
		t.Subtasks = append(t.Subtasks, Subtask{
			Name:      st.Name,
			Minutes:   int(st.Minutes),
			Done:      st.Done,
			CreatedAt: ParseTimestamp(st.CreatedAt),
		})
	}
	return nil
}

// flexInt accepts integers, floats, and numeric strings, since minute
// estimates in older files came straight from model output.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = flexInt(math.Round(f))
	return nil
}

// marshalJSON encodes without HTML escaping so names keep characters such
// as & and < verbatim.
func marshalJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
