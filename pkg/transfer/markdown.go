package transfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cfxgy/DoItNow/pkg/store"
	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// DefaultMinutes is used for checklist lines without an estimate.
const DefaultMinutes = 25

type frontmatter struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	CreatedAt string `yaml:"created_at,omitempty"`
	Progress  string `yaml:"progress,omitempty"`
}

var (
	checklistLine = regexp.MustCompile(`^[-*]\s+\[([ xX])\]\s+(.+)$`)
	minutesSuffix = regexp.MustCompile(`\s*\((\d+)\s*min\)\s*$`)
)

// RenderMarkdown renders a task as a markdown checklist with YAML
// frontmatter. ParseMarkdown reads it back.
func RenderMarkdown(t *store.Task) (string, error) {
	fm := frontmatter{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: store.FormatTimestamp(t.CreatedAt),
		Progress:  t.Progress().String(),
	}
	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("serializing frontmatter YAML: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontmatterDelimiter)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(string(yamlBytes), "\n"))
	b.WriteString("\n")
	b.WriteString(frontmatterDelimiter)
	b.WriteString("\n\n")
	b.WriteString("# " + t.Name + "\n")
	if len(t.Subtasks) > 0 {
		b.WriteString("\n")
	}
	for _, st := range t.Subtasks {
		mark := " "
		if st.Done {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s (%d min)\n", mark, st.Name, st.Minutes)
	}
	return b.String(), nil
}

// ParseMarkdown reads a checklist produced by RenderMarkdown. Lines other
// than the frontmatter and checklist items are ignored. The frontmatter
// must carry an id; the name falls back to the first "# " heading.
func ParseMarkdown(content string) (*store.Task, error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, frontmatterDelimiter) {
		return nil, fmt.Errorf("%w: missing frontmatter", ErrInvalidFormat)
	}

	rest := content[len(frontmatterDelimiter):]
	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx == -1 {
		return nil, fmt.Errorf("%w: unclosed frontmatter delimiter", ErrInvalidFormat)
	}
	yamlContent := rest[:idx]
	body := rest[idx+len("\n"+frontmatterDelimiter):]

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(yamlContent), &fm); err != nil {
		return nil, fmt.Errorf("%w: parsing frontmatter YAML: %v", ErrInvalidFormat, err)
	}
	if strings.TrimSpace(fm.ID) == "" {
		return nil, fmt.Errorf("%w: frontmatter has no id", ErrInvalidFormat)
	}

	t := &store.Task{
		ID:        strings.TrimSpace(fm.ID),
		Name:      strings.TrimSpace(fm.Name),
		CreatedAt: store.ParseTimestamp(fm.CreatedAt),
		Subtasks:  []store.Subtask{},
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if t.Name == "" && strings.HasPrefix(line, "# ") {
			t.Name = strings.TrimSpace(line[2:])
			continue
		}
		m := checklistLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, minutes := m[2], DefaultMinutes
		if mm := minutesSuffix.FindStringSubmatch(name); mm != nil {
			if n, err := strconv.Atoi(mm[1]); err == nil && n > 0 {
				minutes = n
			}
			name = strings.TrimSpace(name[:len(name)-len(mm[0])])
		}
		if name == "" {
			continue
		}
		t.Subtasks = append(t.Subtasks, store.Subtask{
			Name:      name,
			Minutes:   minutes,
			Done:      m[1] != " ",
			CreatedAt: t.CreatedAt,
		})
	}

	if t.Name == "" {
		return nil, fmt.Errorf("%w: task has no name", ErrInvalidFormat)
	}
	return t, nil
}

// ExportMarkdown renders the task with the given id.
func (c *Codec) ExportMarkdown(taskID string) (string, error) {
	t, ok := c.store.Task(taskID)
	if !ok {
		return "", fmt.Errorf("%w: %s", store.ErrNotFound, taskID)
	}
	return RenderMarkdown(t)
}

// ImportMarkdown merges one checklist into the store and returns the
// number of tasks inserted (0 or 1).
func (c *Codec) ImportMarkdown(content string) (int, error) {
	t, err := ParseMarkdown(content)
	if err != nil {
		return 0, err
	}
	return c.merge(map[string]*store.Task{t.ID: t})
}
