package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cfxgy/DoItNow/pkg/settings"
	"github.com/cfxgy/DoItNow/pkg/store"
	"github.com/spf13/cobra"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.tasks.AddTask(strings.Join(args, " "))
			if err != nil {
				return err
			}
			t, _ := a.tasks.Task(id)
			if a.jsonOut {
				return writeJSON(a.stdout, taskToMap(t))
			}
			fmt.Fprintf(a.stdout, "Created: %s (%s)\n", t.Name, t.ID)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks with progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks := a.tasks.List()
			if a.jsonOut {
				return writeJSON(a.stdout, tasksToMap(tasks))
			}
			if len(tasks) == 0 {
				fmt.Fprintln(a.stdout, "No tasks yet. Add one with: doitnow add <name>")
				return nil
			}
			for _, t := range tasks {
				p := t.Progress()
				fmt.Fprintf(a.stdout, "%s %s  %s [%s]\n", statusIcon(t), shortID(t.ID), t.Name, p)
			}
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.resolveTask(args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, taskToMap(t))
			}
			printTask(a, t)
			return nil
		},
	}
}

func newStepCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Manage the steps of a task",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <id> <name> <minutes>",
		Short: "Append a step",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.resolveTask(args[0])
			if err != nil {
				return err
			}
			minutes, err := strconv.Atoi(args[len(args)-1])
			if err != nil {
				return fmt.Errorf("%w: minutes must be a whole number, got %q", store.ErrInvalidArgument, args[len(args)-1])
			}
			name := strings.Join(args[1:len(args)-1], " ")
			if err := a.tasks.AddSubtask(t.ID, name, minutes); err != nil {
				return err
			}
			return a.reportTask(t.ID, fmt.Sprintf("Added step to %s", t.Name))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <id> <index>",
		Short: "Mark a step done or not done (index starts at 1)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, idx, err := a.resolveStep(args[0], args[1])
			if err != nil {
				return err
			}
			done, err := a.tasks.ToggleSubtask(t.ID, idx)
			if err != nil {
				return err
			}
			state := "not done"
			if done {
				state = "done"
			}
			return a.reportTask(t.ID, fmt.Sprintf("%s → %s", t.Subtasks[idx].Name, state))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id> <index>",
		Aliases: []string{"delete"},
		Short:   "Delete a step (index starts at 1)",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, idx, err := a.resolveStep(args[0], args[1])
			if err != nil {
				return err
			}
			if err := a.tasks.DeleteSubtask(t.ID, idx); err != nil {
				return err
			}
			return a.reportTask(t.ID, fmt.Sprintf("Deleted step: %s", t.Subtasks[idx].Name))
		},
	})

	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task and all its steps",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			// Deleting an unknown id is not an error; only expand prefixes
			// that resolve.
			if t, err := a.resolveTask(id); err == nil {
				id = t.ID
			}
			if err := a.tasks.DeleteTask(id); err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, map[string]string{"deleted": id})
			}
			fmt.Fprintf(a.stdout, "Deleted: %s\n", id)
			return nil
		},
	}
}

func newBreakdownCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "breakdown <id>",
		Short: "Ask the AI provider to split a task into steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.resolveTask(args[0])
			if err != nil {
				return err
			}
			p, err := a.newProvider(a.settings.APIConfig(), a.cfg.RequestTimeout)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			steps, err := p.Decompose(ctx, t.Name)
			if err != nil {
				return err
			}
			if err := a.tasks.AddSubtasks(t.ID, steps); err != nil {
				return err
			}
			return a.reportTask(t.ID, fmt.Sprintf("Added %d steps to %s", len(steps), t.Name))
		},
	}
}

// resolveTask finds a task by full id or unique id prefix.
func (a *app) resolveTask(ref string) (*store.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty task id", store.ErrInvalidArgument)
	}
	if t, ok := a.tasks.Task(ref); ok {
		return t, nil
	}
	var match *store.Task
	for _, t := range a.tasks.List() {
		if !strings.HasPrefix(t.ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: id prefix %q is ambiguous", store.ErrInvalidArgument, ref)
		}
		match = t
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, ref)
	}
	return match, nil
}

// resolveStep parses a 1-based step index from the command line.
func (a *app) resolveStep(ref, index string) (*store.Task, int, error) {
	t, err := a.resolveTask(ref)
	if err != nil {
		return nil, 0, err
	}
	n, err := strconv.Atoi(index)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: step index must be a number, got %q", store.ErrInvalidArgument, index)
	}
	idx := n - 1
	if idx < 0 || idx >= len(t.Subtasks) {
		return nil, 0, fmt.Errorf("%w: step %d (task has %d steps)", store.ErrOutOfRange, n, len(t.Subtasks))
	}
	return t, idx, nil
}

func (a *app) reportTask(id, msg string) error {
	t, ok := a.tasks.Task(id)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if a.jsonOut {
		return writeJSON(a.stdout, taskToMap(t))
	}
	fmt.Fprintln(a.stdout, msg)
	fmt.Fprintf(a.stdout, "Progress: %s\n", t.Progress())
	return nil
}

func printTask(a *app, t *store.Task) {
	p := t.Progress()
	fmt.Fprintf(a.stdout, "%s %s\n", statusIcon(t), t.Name)
	fmt.Fprintf(a.stdout, "ID: %s\n", t.ID)
	if !t.CreatedAt.IsZero() {
		fmt.Fprintf(a.stdout, "Created: %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(a.stdout, "Progress: %s (%d min left)\n", p, p.MinutesLeft)
	if len(t.Subtasks) == 0 {
		return
	}
	fmt.Fprintln(a.stdout)
	for i, st := range t.Subtasks {
		mark := " "
		if st.Done {
			mark = "x"
		}
		fmt.Fprintf(a.stdout, "%2d. [%s] %s (%d min)\n", i+1, mark, st.Name, st.Minutes)
	}
}

func statusIcon(t *store.Task) string {
	if t.IsComplete() {
		return "✓"
	}
	return "○"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// JSON helpers

func taskToMap(t *store.Task) map[string]any {
	p := t.Progress()
	steps := make([]map[string]any, 0, len(t.Subtasks))
	for i, st := range t.Subtasks {
		steps = append(steps, map[string]any{
			"index":      i + 1,
			"name":       st.Name,
			"minutes":    st.Minutes,
			"done":       st.Done,
			"created_at": store.FormatTimestamp(st.CreatedAt),
		})
	}
	return map[string]any{
		"id":           t.ID,
		"name":         t.Name,
		"created_at":   store.FormatTimestamp(t.CreatedAt),
		"completed":    t.IsComplete(),
		"done":         p.Done,
		"total":        p.Total,
		"progress":     p.Fraction(),
		"minutes_left": p.MinutesLeft,
		"subtasks":     steps,
	}
}

func tasksToMap(tasks []*store.Task) []map[string]any {
	result := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, taskToMap(t))
	}
	return result
}

func apiConfigToMap(cfg settings.APIConfig, configured bool) map[string]any {
	return map[string]any{
		"provider":   cfg.Provider,
		"base_url":   cfg.BaseURL,
		"model":      cfg.Model,
		"api_key":    maskKey(cfg.APIKey),
		"configured": configured,
	}
}
