package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/cfxgy/DoItNow/pkg/breakdown"
	"github.com/cfxgy/DoItNow/pkg/settings"
	"github.com/cfxgy/DoItNow/pkg/store"
	"github.com/cfxgy/DoItNow/pkg/transfer"
)

// FileChangedMsg is sent when the file watcher detects changes.
type FileChangedMsg struct{}

// BreakdownDoneMsg is sent when an AI breakdown request finishes.
type BreakdownDoneMsg struct {
	TaskID string
	Steps  []store.Step
	Err    error
}

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// ProviderFactory builds a completion provider from the current settings.
type ProviderFactory func(cfg settings.APIConfig) (breakdown.Provider, error)

// Options wires the model to its collaborators.
type Options struct {
	Tasks       *store.Store
	Settings    *settings.Store
	NewProvider ProviderFactory
	Clipboard   Clipboard
	// Timeout bounds one breakdown request.
	Timeout time.Duration
}

type inputKind int

const (
	inputNone inputKind = iota
	inputTask
	inputStep
	inputRename
)

const (
	paneTasks  = 0
	paneDetail = 1
)

// Model is the Bubble Tea model for the task TUI.
type Model struct {
	store       *store.Store
	settings    *settings.Store
	newProvider ProviderFactory
	clipboard   Clipboard
	timeout     time.Duration

	keys          KeyMap
	width         int
	height        int
	tasks         []*store.Task
	visibleItems  []TreeItem
	expandedState map[string]bool
	cursor        int
	focusedPane   int
	detailScroll  int

	// Modal state
	showHelpModal     bool
	showProviderModal bool
	showDeleteConfirm bool
	deleteTarget      TreeItem

	// Input mode (add task, add step, rename)
	input       inputKind
	textInput   textinput.Model
	inputTaskID string

	// Search state
	isSearching    bool
	searchQuery    string
	searchMatchIDs map[string]bool // IDs of items matching query
	searchAncIDs   map[string]bool // IDs of owning tasks (for context)

	// AI breakdown in flight
	busyTaskID string
	spinner    spinner.Model

	progress progress.Model

	// Status message
	statusMsg     string
	statusIsErr   bool
	statusTimeout time.Time

	// Cached glamour renderer (expensive to create)
	glamourRenderer *glamour.TermRenderer
	glamourWidth    int

	// Track whether all items are expanded for toggle
	allExpanded bool
}

// NewModel creates a new TUI model.
func NewModel(opts Options) Model {
	ti := textinput.New()
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = BusyStyle

	m := Model{
		store:         opts.Tasks,
		settings:      opts.Settings,
		newProvider:   opts.NewProvider,
		clipboard:     opts.Clipboard,
		timeout:       opts.Timeout,
		keys:          DefaultKeyMap(),
		expandedState: make(map[string]bool),
		focusedPane:   paneTasks,
		textInput:     ti,
		spinner:       sp,
		progress:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	if m.clipboard == nil {
		m.clipboard = systemClipboard{}
	}
	if m.newProvider == nil {
		m.newProvider = func(cfg settings.APIConfig) (breakdown.Provider, error) {
			c, err := breakdown.NewClient(cfg)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if m.timeout <= 0 {
		m.timeout = 60 * time.Second
	}
	m.reload()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		_, rightWidth := panelWidths(msg.Width)
		m.getGlamourRenderer(rightWidth - 2)
		m.progress.Width = rightWidth - 4
		m.rebuildVisible()
		return m, tea.ClearScreen

	case FileChangedMsg:
		m.store.Reload()
		if m.settings != nil {
			m.settings.Load()
		}
		m.reload()
		return m, nil

	case BreakdownDoneMsg:
		m.busyTaskID = ""
		if msg.Err != nil {
			m.setError("Breakdown failed: " + msg.Err.Error())
			return m, nil
		}
		if err := m.store.AddSubtasks(msg.TaskID, msg.Steps); err != nil {
			m.setError("Error: " + err.Error())
			return m, nil
		}
		m.expandedState[msg.TaskID] = true
		m.reload()
		m.moveCursorTo(msg.TaskID)
		m.setStatus(fmt.Sprintf("Added %d steps", len(msg.Steps)))
		return m, nil

	case spinner.TickMsg:
		if m.busyTaskID == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	// Update text input if in input mode
	if m.input != inputNone {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input != inputNone {
		return m.handleInput(msg)
	}

	// Search input mode handling
	if m.isSearching {
		return m.handleSearchInput(msg)
	}

	// Modals
	if m.showHelpModal || m.showProviderModal {
		switch msg.String() {
		case "esc", "enter", "?", "p", "q":
			m.showHelpModal = false
			m.showProviderModal = false
		}
		return m, nil
	}

	// Delete confirmation
	if m.showDeleteConfirm {
		switch msg.String() {
		case "y", "Y":
			m.confirmDelete()
			m.showDeleteConfirm = false
		case "n", "N", "esc":
			m.showDeleteConfirm = false
		}
		return m, nil
	}

	// If search filter is active (not typing), Esc/Enter clears it
	if m.searchQuery != "" && (msg.Type == tea.KeyEsc || msg.Type == tea.KeyEnter) {
		var curID string
		if item, ok := m.selected(); ok {
			curID = item.ID
		}
		m.clearSearch()
		m.moveCursorTo(curID)
		return m, nil
	}

	// Normal mode
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.focusedPane == paneDetail {
			if m.detailScroll > 0 {
				m.detailScroll--
			}
		} else {
			if m.cursor > 0 {
				m.cursor--
			}
			m.detailScroll = 0
		}

	case key.Matches(msg, m.keys.Down):
		if m.focusedPane == paneDetail {
			m.detailScroll++
		} else {
			if m.cursor < len(m.visibleItems)-1 {
				m.cursor++
			}
			m.detailScroll = 0
		}

	case key.Matches(msg, m.keys.Right):
		if item, ok := m.selected(); ok && !item.IsStep() && item.HasChildren {
			m.expandedState[item.ID] = true
			m.rebuildVisible()
		}

	case key.Matches(msg, m.keys.Left):
		if item, ok := m.selected(); ok {
			if item.IsStep() {
				m.expandedState[item.ParentID] = false
				m.rebuildVisible()
				m.moveCursorTo(item.ParentID)
			} else if item.IsExpanded {
				m.expandedState[item.ID] = false
				m.rebuildVisible()
			}
		}

	case key.Matches(msg, m.keys.Enter):
		if item, ok := m.selected(); ok && !item.IsStep() && item.HasChildren {
			m.expandedState[item.ID] = !m.expandedState[item.ID]
			m.rebuildVisible()
		}

	case key.Matches(msg, m.keys.Space):
		m.toggleSelected()

	case key.Matches(msg, m.keys.Tab):
		m.focusedPane = (m.focusedPane + 1) % 2

	case key.Matches(msg, m.keys.AddTask):
		return m, m.startInput(inputTask, "", "", "task name")

	case key.Matches(msg, m.keys.AddStep):
		item, ok := m.selected()
		if !ok {
			m.setError("Add a task first (a)")
			break
		}
		return m, m.startInput(inputStep, item.Task.ID, "", "step name and minutes, e.g. Draft intro 20")

	case key.Matches(msg, m.keys.Rename):
		if item, ok := m.selected(); ok {
			return m, m.startInput(inputRename, item.Task.ID, item.Task.Name, "new task name")
		}

	case key.Matches(msg, m.keys.Delete):
		if item, ok := m.selected(); ok {
			m.deleteTarget = item
			m.showDeleteConfirm = true
		}

	case key.Matches(msg, m.keys.Breakdown):
		if item, ok := m.selected(); ok {
			return m, m.startBreakdown(item.Task)
		}

	case key.Matches(msg, m.keys.Copy):
		m.copyExport()

	case key.Matches(msg, m.keys.Paste):
		m.pasteImport()

	case key.Matches(msg, m.keys.Expand):
		if m.allExpanded {
			m.expandedState = make(map[string]bool)
			m.allExpanded = false
		} else {
			for _, t := range m.tasks {
				if len(t.Subtasks) > 0 {
					m.expandedState[t.ID] = true
				}
			}
			m.allExpanded = true
		}
		m.rebuildVisible()

	case key.Matches(msg, m.keys.Reload):
		m.store.Reload()
		if m.settings != nil {
			m.settings.Load()
		}
		m.reload()
		m.setStatus("Reloaded")

	case key.Matches(msg, m.keys.Search):
		m.isSearching = true
		m.searchQuery = ""
		m.searchMatchIDs = nil
		m.searchAncIDs = nil

	case key.Matches(msg, m.keys.Provider):
		m.showProviderModal = true

	case key.Matches(msg, m.keys.Help):
		m.showHelpModal = !m.showHelpModal
	}

	return m, nil
}

func (m *Model) startInput(kind inputKind, taskID, value, placeholder string) tea.Cmd {
	m.input = kind
	m.inputTaskID = taskID
	m.textInput.Reset()
	m.textInput.SetValue(value)
	m.textInput.Placeholder = placeholder
	m.textInput.Focus()
	return textinput.Blink
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input = inputNone
		m.textInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.submitInput(strings.TrimSpace(m.textInput.Value()))
		m.input = inputNone
		m.textInput.Blur()
		return m, nil
	default:
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
}

func (m *Model) submitInput(value string) {
	if value == "" {
		return
	}
	switch m.input {
	case inputTask:
		id, err := m.store.AddTask(value)
		if err != nil {
			m.setError("Error: " + err.Error())
			return
		}
		m.setStatus("Created: " + value)
		m.reload()
		m.moveCursorTo(id)

	case inputStep:
		name, minutes := parseStepInput(value)
		if err := m.store.AddSubtask(m.inputTaskID, name, minutes); err != nil {
			m.setError("Error: " + err.Error())
			return
		}
		m.expandedState[m.inputTaskID] = true
		m.setStatus(fmt.Sprintf("Added step: %s (%d min)", name, minutes))
		m.reload()

	case inputRename:
		if err := m.store.RenameTask(m.inputTaskID, value); err != nil {
			m.setError("Error: " + err.Error())
			return
		}
		m.setStatus("Renamed to: " + value)
		m.reload()
	}
}

// parseStepInput splits "Draft intro 20" into a name and minutes. A
// trailing "20m" or "20min" also works; without a number the default
// estimate is used.
func parseStepInput(s string) (string, int) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return strings.TrimSpace(s), transfer.DefaultMinutes
	}
	last := strings.ToLower(fields[len(fields)-1])
	last = strings.TrimSuffix(strings.TrimSuffix(last, "min"), "m")
	n, err := strconv.Atoi(last)
	if err != nil {
		return strings.TrimSpace(s), transfer.DefaultMinutes
	}
	return strings.Join(fields[:len(fields)-1], " "), n
}

// handleSearchInput handles key messages while typing in the search bar.
func (m Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		// Exit search and clear filter
		m.isSearching = false
		m.clearSearch()
		return m, nil

	case tea.KeyEnter, tea.KeyDown, tea.KeyTab:
		// Exit search input but keep filter active
		m.isSearching = false
		return m, nil

	case tea.KeyBackspace:
		if len(m.searchQuery) > 0 {
			_, size := utf8.DecodeLastRuneInString(m.searchQuery)
			m.searchQuery = m.searchQuery[:len(m.searchQuery)-size]
		}
		m.applySearchFilter()
		m.rebuildVisible()
		return m, nil

	default:
		if msg.Type == tea.KeyRunes {
			m.searchQuery += string(msg.Runes)
			m.applySearchFilter()
			m.rebuildVisible()
		}
		return m, nil
	}
}

func (m *Model) clearSearch() {
	m.searchQuery = ""
	m.searchMatchIDs = nil
	m.searchAncIDs = nil
	m.rebuildVisible()
}

// applySearchFilter matches task and step names against searchQuery. A
// matching step keeps its task visible and expanded.
func (m *Model) applySearchFilter() {
	if m.searchQuery == "" {
		m.searchMatchIDs = nil
		m.searchAncIDs = nil
		return
	}

	query := strings.ToLower(m.searchQuery)
	m.searchMatchIDs = make(map[string]bool)
	m.searchAncIDs = make(map[string]bool)

	for _, t := range m.tasks {
		if strings.Contains(strings.ToLower(t.Name), query) {
			m.searchMatchIDs[t.ID] = true
		}
		for i, st := range t.Subtasks {
			if strings.Contains(strings.ToLower(st.Name), query) {
				m.searchMatchIDs[stepID(t.ID, i)] = true
				m.searchAncIDs[t.ID] = true
				m.expandedState[t.ID] = true
			}
		}
	}
}

func (m *Model) toggleSelected() {
	item, ok := m.selected()
	if !ok {
		return
	}
	if !item.IsStep() {
		if item.HasChildren {
			m.expandedState[item.ID] = !m.expandedState[item.ID]
			m.rebuildVisible()
		}
		return
	}
	done, err := m.store.ToggleSubtask(item.Task.ID, item.StepIndex)
	if err != nil {
		m.setError("Error: " + err.Error())
		return
	}
	m.reload()
	if t, ok := m.store.Task(item.Task.ID); ok && done && t.IsComplete() {
		m.setStatus("All steps done: " + t.Name)
	}
}

func (m *Model) confirmDelete() {
	target := m.deleteTarget
	if target.IsStep() {
		if err := m.store.DeleteSubtask(target.Task.ID, target.StepIndex); err != nil {
			m.setError("Delete failed: " + err.Error())
			return
		}
		m.setStatus("Deleted step: " + target.Name)
	} else {
		if err := m.store.DeleteTask(target.Task.ID); err != nil {
			m.setError("Delete failed: " + err.Error())
			return
		}
		delete(m.expandedState, target.Task.ID)
		m.setStatus("Deleted: " + target.Name)
	}
	m.reload()
}

func (m *Model) startBreakdown(t *store.Task) tea.Cmd {
	if m.busyTaskID != "" {
		m.setError("A breakdown is already running")
		return nil
	}
	if m.settings == nil || !m.settings.IsConfigured() {
		m.setError("No API key. Run: doitnow config set --api-key <key>")
		return nil
	}
	p, err := m.newProvider(m.settings.APIConfig())
	if err != nil {
		m.setError("Error: " + err.Error())
		return nil
	}

	m.busyTaskID = t.ID
	taskID, name, timeout := t.ID, t.Name, m.timeout
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		steps, err := p.Decompose(ctx, name)
		return BreakdownDoneMsg{TaskID: taskID, Steps: steps, Err: err}
	})
}

func (m *Model) copyExport() {
	text, err := transfer.New(m.store).ExportString()
	if err != nil {
		m.setError("Export failed: " + err.Error())
		return
	}
	if err := m.clipboard.WriteAll(text); err != nil {
		m.setError("Clipboard: " + err.Error())
		return
	}
	m.setStatus(fmt.Sprintf("Copied %d tasks to clipboard", m.store.Len()))
}

func (m *Model) pasteImport() {
	text, err := m.clipboard.ReadAll()
	if err != nil {
		m.setError("Clipboard: " + err.Error())
		return
	}
	n, err := transfer.New(m.store).ImportString(text)
	if errors.Is(err, transfer.ErrInvalidFormat) {
		m.setError("Clipboard does not hold exported tasks")
		return
	}
	if err != nil {
		m.setError("Import failed: " + err.Error())
		return
	}
	m.reload()
	m.setStatus(fmt.Sprintf("Imported %d new tasks", n))
}

func (m Model) selected() (TreeItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visibleItems) {
		return TreeItem{}, false
	}
	return m.visibleItems[m.cursor], true
}

// moveCursorTo positions the cursor on the item with the given id.
func (m *Model) moveCursorTo(id string) {
	for i, item := range m.visibleItems {
		if item.ID == id {
			m.cursor = i
			return
		}
	}
}

func (m *Model) reload() {
	m.tasks = m.store.List()
	if m.searchQuery != "" {
		m.applySearchFilter()
	}
	m.rebuildVisible()
}

func (m *Model) rebuildVisible() {
	m.visibleItems = FlattenVisibleItems(m.tasks, m.expandedState)

	// Apply search filter if active
	if m.searchQuery != "" && (m.searchMatchIDs != nil || m.searchAncIDs != nil) {
		m.visibleItems = FilterVisibleItems(m.visibleItems, m.searchMatchIDs, m.searchAncIDs)
	}

	// Clamp cursor
	if m.cursor >= len(m.visibleItems) {
		m.cursor = len(m.visibleItems) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// getGlamourRenderer returns a cached glamour renderer, creating one if needed
// or if the width changed.
func (m *Model) getGlamourRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	if m.glamourRenderer != nil && m.glamourWidth == width {
		return m.glamourRenderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	m.glamourRenderer = r
	m.glamourWidth = width
	return r
}

func (m *Model) setStatus(msg string) {
	m.statusMsg = msg
	m.statusIsErr = false
	m.statusTimeout = time.Now().Add(3 * time.Second)
}

func (m *Model) setError(msg string) {
	m.statusMsg = msg
	m.statusIsErr = true
	m.statusTimeout = time.Now().Add(5 * time.Second)
}
