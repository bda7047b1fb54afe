package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the TUI.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	Enter     key.Binding
	Space     key.Binding
	Tab       key.Binding
	AddTask   key.Binding
	AddStep   key.Binding
	Rename    key.Binding
	Delete    key.Binding
	Breakdown key.Binding
	Copy      key.Binding
	Paste     key.Binding
	Expand    key.Binding
	Provider  key.Binding
	Reload    key.Binding
	Search    key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "collapse"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "expand"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "toggle expand"),
		),
		Space: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "toggle step"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		AddTask: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add task"),
		),
		AddStep: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "add step"),
		),
		Rename: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rename task"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Breakdown: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "AI breakdown"),
		),
		Copy: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "copy export"),
		),
		Paste: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "paste import"),
		),
		Expand: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "toggle expand/collapse all"),
		),
		Provider: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "provider info"),
		),
		Reload: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reload"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the footer help text.
func (k KeyMap) ShortHelp() string {
	return "↑↓ nav  tab pane  space toggle  a task  s step  b breakdown  d delete  x/i copy/paste  ? help"
}

// FullHelp returns all key bindings for the help modal.
func (k KeyMap) FullHelp() [][]string {
	return [][]string{
		{"↑/k", "Move up"},
		{"↓/j", "Move down"},
		{"←/h", "Collapse / go to task"},
		{"→/l", "Expand steps"},
		{"enter", "Toggle expand/collapse"},
		{"space", "Mark step done / not done"},
		{"tab", "Switch pane (tasks / checklist)"},
		{"/", "Search tasks and steps"},
		{"a", "Add task"},
		{"s", "Add step to task (\"name 10\")"},
		{"r", "Rename task"},
		{"d", "Delete task or step (with confirmation)"},
		{"b", "Break task into steps with AI"},
		{"x", "Copy all tasks to clipboard"},
		{"i", "Import tasks from clipboard"},
		{"C", "Toggle expand/collapse all"},
		{"p", "Show AI provider settings"},
		{"R", "Reload from disk"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}
}
