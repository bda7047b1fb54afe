package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cfxgy/DoItNow/pkg/store"
)

const minWidth = 40
const minHeight = 10

// panelWidths splits the screen into the task pane and the detail pane,
// leaving one column for the divider.
func panelWidths(w int) (left, right int) {
	left = w / 3
	right = w - left - 1
	if left < 20 {
		left = 20
	}
	if right < 20 {
		right = 20
	}
	return left, right
}

// View implements tea.Model.
func (m Model) View() string {
	w := m.width
	h := m.height
	if w < minWidth {
		w = minWidth
	}
	if h < minHeight {
		h = minHeight
	}

	if m.showHelpModal {
		return placeOverlay(m.renderHelpModal(), w, h)
	}

	if m.showProviderModal {
		return placeOverlay(m.renderProviderModal(), w, h)
	}

	if m.showDeleteConfirm {
		return placeOverlay(m.renderDeleteModal(), w, h)
	}

	var b strings.Builder

	// Header
	b.WriteString(m.renderHeader(w))
	b.WriteString("\n")
	b.WriteString(m.renderProviderLine())
	b.WriteString("\n")

	// Separator
	b.WriteString(strings.Repeat("─", w))
	b.WriteString("\n")

	headerLines := 3
	footerLines := 2

	// Search bar takes a line if active
	searchActive := m.isSearching || m.searchQuery != ""
	if searchActive {
		headerLines++
	}

	contentHeight := h - headerLines - footerLines

	if searchActive {
		b.WriteString(m.renderSearchBar(w))
		b.WriteString("\n")
	}

	leftWidth, rightWidth := panelWidths(w)
	leftPanel := m.renderTaskPanel(leftWidth, contentHeight)
	rightPanel := m.renderDetailPanel(rightWidth, contentHeight)

	// Join panels side by side with thin divider
	sepColor := ColorGrayDim
	if m.focusedPane == paneDetail {
		sepColor = ColorPurple
	}
	sep := lipgloss.NewStyle().Foreground(sepColor).Render("│")
	for i := 0; i < contentHeight; i++ {
		b.WriteString(getLine(leftPanel, i, leftWidth))
		b.WriteString(sep)
		b.WriteString(getLine(rightPanel, i, rightWidth))
		b.WriteString("\n")
	}

	// Separator
	b.WriteString(strings.Repeat("─", w))
	b.WriteString("\n")

	b.WriteString(m.renderFooter(w))

	return b.String()
}

func (m Model) renderHeader(width int) string {
	title := HeaderStyle.Render("DoItNow")

	complete := 0
	for _, t := range m.tasks {
		if t.IsComplete() {
			complete++
		}
	}
	stats := HeaderCountStyle.Render(fmt.Sprintf("%d/%d tasks complete", complete, len(m.tasks)))

	status := ""
	if m.statusMsg != "" && time.Now().Before(m.statusTimeout) {
		style := StatusStyle
		if m.statusIsErr {
			style = ErrorStatusStyle
		}
		status = "  " + style.Render(m.statusMsg) + "  "
	}

	gap := width - lipgloss.Width(title) - lipgloss.Width(stats) - lipgloss.Width(status)
	if gap < 1 {
		gap = 1
	}

	return title + strings.Repeat(" ", gap) + status + stats
}

func (m Model) renderProviderLine() string {
	if m.busyTaskID != "" {
		name := m.busyTaskID
		if t, ok := m.store.Task(m.busyTaskID); ok {
			name = t.Name
		}
		return m.spinner.View() + BusyStyle.Render(" Breaking down: "+name)
	}
	if m.settings == nil || !m.settings.IsConfigured() {
		return FooterStyle.Render("AI: not configured (doitnow config set --api-key <key>)")
	}
	cfg := m.settings.APIConfig()
	return FooterStyle.Render(fmt.Sprintf("AI: %s · %s", cfg.Provider, cfg.Model))
}

func (m Model) renderSearchBar(width int) string {
	prefix := SearchBarStyle.Render(" / ")
	query := SearchBarStyle.Render(m.searchQuery)
	cursor := ""
	if m.isSearching {
		cursor = SearchBarStyle.Render("█")
	}

	countStr := ""
	if m.searchQuery != "" {
		countStr = SearchCountStyle.Render(fmt.Sprintf(" %d matches", len(m.searchMatchIDs)))
	}

	left := prefix + query + cursor
	padWidth := width - lipgloss.Width(left) - lipgloss.Width(countStr)
	if padWidth < 1 {
		padWidth = 1
	}

	return left + strings.Repeat(" ", padWidth) + countStr
}

func (m Model) renderTaskPanel(width, height int) string {
	var lines []string

	// Reserve last line for the data file path
	listHeight := height - 1
	if listHeight < 1 {
		listHeight = 1
	}

	if len(m.visibleItems) == 0 && m.input == inputNone {
		lines = append(lines, FooterStyle.Render("No tasks yet. Press 'a' to add one."))
	}

	// Scrolling window
	startIdx := 0
	endIdx := len(m.visibleItems)
	if len(m.visibleItems) > listHeight {
		half := listHeight / 2
		startIdx = m.cursor - half
		if startIdx < 0 {
			startIdx = 0
		}
		endIdx = startIdx + listHeight
		if endIdx > len(m.visibleItems) {
			endIdx = len(m.visibleItems)
			startIdx = endIdx - listHeight
			if startIdx < 0 {
				startIdx = 0
			}
		}
	}

	for i := startIdx; i < endIdx; i++ {
		item := m.visibleItems[i]

		// Show inline rename input for the target task
		if m.input == inputRename && !item.IsStep() && item.ID == m.inputTaskID {
			lines = append(lines, InputPromptStyle.Render("✎ ")+m.textInput.View())
			continue
		}

		lines = append(lines, m.renderTreeItem(item, i == m.cursor, width))
	}

	switch m.input {
	case inputTask:
		lines = append(lines, InputPromptStyle.Render("+ ")+m.textInput.View())
	case inputStep:
		lines = append(lines, DepthIndent+InputPromptStyle.Render("+ ")+m.textInput.View())
	}

	for len(lines) < listHeight {
		lines = append(lines, "")
	}
	if len(lines) > listHeight {
		lines = lines[len(lines)-listHeight:]
	}

	pathLine := lipgloss.NewStyle().Foreground(ColorGrayDim).Render(fileHyperlink(m.store.Path()))
	lines = append(lines, pathLine)

	return strings.Join(lines, "\n")
}

func (m Model) renderTreeItem(item TreeItem, isSelected bool, width int) string {
	indent := strings.Repeat(DepthIndent, item.Depth)

	var icon, suffix string
	if item.IsStep() {
		st := item.Step()
		if st.Done {
			icon = CompleteStyle.Render(IconStepDone)
		} else {
			icon = IncompleteStyle.Render(IconStepOpen)
		}
		suffix = MinutesStyle.Render(fmt.Sprintf(" %dm", st.Minutes))
	} else {
		expandIcon := "  "
		if item.HasChildren {
			expandIcon = IconCollapsed + " "
			if item.IsExpanded {
				expandIcon = IconExpanded + " "
			}
		}
		icon = expandIcon + taskStatusIcon(item.Task)
		suffix = HeaderCountStyle.Render(" " + item.Task.Progress().String())
		if item.Task.ID == m.busyTaskID {
			suffix += " " + m.spinner.View()
		}
	}

	isSearchMatch := m.searchMatchIDs[item.ID]
	name := item.Name
	if item.IsStep() && item.Step().Done && !isSelected {
		name = DoneStepStyle.Render(name)
	}
	if isSearchMatch && m.searchQuery != "" {
		if isSelected {
			name = highlightMatch(item.Name, m.searchQuery, SearchCharSelectedStyle, SelectedStyle)
		} else {
			name = highlightMatch(item.Name, m.searchQuery, SearchCharStyle, SearchRowStyle)
		}
	}

	line := indent + icon + " " + name + suffix

	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		line += strings.Repeat(" ", width-lineWidth)
	}

	if isSearchMatch && !isSelected {
		line = SearchRowStyle.Render(line)
	} else if isSelected {
		line = SelectedStyle.Render(line)
	}

	return line
}

func taskStatusIcon(t *store.Task) string {
	p := t.Progress()
	switch {
	case p.Complete():
		return CompleteStyle.Render(IconComplete)
	case p.Done > 0:
		return InProgressStyle.Render(IconInProgress)
	default:
		return IncompleteStyle.Render(IconIncomplete)
	}
}

func (m Model) renderDetailPanel(width, height int) string {
	item, ok := m.selected()
	if !ok {
		return FooterStyle.Render(" Select a task to see its steps")
	}
	t := item.Task

	// Reserve last line for the created date
	bodyHeight := height - 1
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	p := t.Progress()
	var lines []string
	lines = append(lines, " "+m.progress.ViewAs(p.Fraction()))
	lines = append(lines, HeaderCountStyle.Render(fmt.Sprintf(" %s steps done · %d of %d min left", p, p.MinutesLeft, p.Minutes)))

	md := taskMarkdown(t)
	rendered := md
	if m.glamourRenderer != nil {
		if out, err := m.glamourRenderer.Render(md); err == nil {
			rendered = out
		}
	}
	rendered = strings.TrimRight(rendered, "\n ")
	body := strings.Split(rendered, "\n")

	// Apply scroll offset
	scroll := m.detailScroll
	if scroll > len(body)-1 {
		scroll = len(body) - 1
	}
	if scroll < 0 {
		scroll = 0
	}
	lines = append(lines, body[scroll:]...)

	if len(lines) > bodyHeight {
		lines = lines[:bodyHeight]
	}
	for len(lines) < bodyHeight {
		lines = append(lines, "")
	}

	created := ""
	if !t.CreatedAt.IsZero() {
		created = "created " + t.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(ColorGrayDim).Render(" "+created))

	return strings.Join(lines, "\n")
}

// taskMarkdown renders a task's checklist for the detail pane.
func taskMarkdown(t *store.Task) string {
	var md strings.Builder
	md.WriteString("# " + t.Name + "\n\n")
	if len(t.Subtasks) == 0 {
		md.WriteString("_No steps yet. Press `s` to add one or `b` to ask the AI._\n")
		return md.String()
	}
	for i, st := range t.Subtasks {
		mark := " "
		if st.Done {
			mark = "x"
		}
		fmt.Fprintf(&md, "%d. [%s] %s *(%d min)*\n", i+1, mark, st.Name, st.Minutes)
	}
	return md.String()
}

func (m Model) renderFooter(width int) string {
	help := m.keys.ShortHelp()
	switch {
	case m.input == inputStep:
		help = "name then minutes, e.g. 'Draft intro 20'  enter confirm  esc cancel"
	case m.input != inputNone:
		help = "enter confirm  esc cancel"
	case m.isSearching:
		help = "type to search  enter/↓ keep filter  esc clear"
	case m.searchQuery != "":
		help = "esc/enter clear filter  ↑↓ nav"
	case m.focusedPane == paneDetail:
		help = "↑↓ scroll checklist  tab tasks  ? help"
	}
	return FooterStyle.Render(help)
}

func (m Model) renderHelpModal() string {
	var b strings.Builder

	b.WriteString(ModalTitleStyle.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	keyStyle := lipgloss.NewStyle().Foreground(ColorBlue).Width(16)
	descStyle := lipgloss.NewStyle().Foreground(ColorWhite)

	for _, binding := range m.keys.FullHelp() {
		b.WriteString(keyStyle.Render(binding[0]))
		b.WriteString(descStyle.Render(binding[1]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("Press Esc or ? to close"))

	return ModalStyle.Render(b.String())
}

func (m Model) renderProviderModal() string {
	var b strings.Builder

	b.WriteString(ModalTitleStyle.Render("AI Provider"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(ModalLabelStyle.Render(label))
		b.WriteString(ModalValueStyle.Render(value))
		b.WriteString("\n")
	}

	if m.settings == nil {
		row("Status", "unavailable")
	} else {
		cfg := m.settings.APIConfig()
		info := m.settings.ProviderInfo(cfg.Provider)
		row("Provider", fmt.Sprintf("%s (%s)", info.Name, cfg.Provider))
		row("Model", cfg.Model)
		row("Base URL", cfg.BaseURL)
		key := "not set"
		if m.settings.IsConfigured() {
			key = "set"
		}
		row("API key", key)
	}

	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("Change with: doitnow config set"))

	return ModalStyle.Render(b.String())
}

func (m Model) renderDeleteModal() string {
	var b strings.Builder

	target := m.deleteTarget
	if target.IsStep() {
		b.WriteString(ModalTitleStyle.Render("Delete Step"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Delete step '%s'?\n\n", target.Name))
	} else {
		b.WriteString(ModalTitleStyle.Render("Delete Task"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Delete '%s' and all its steps?\n\n", target.Name))
	}
	b.WriteString(lipgloss.NewStyle().Foreground(ColorGreen).Render("[y]") + " Yes  ")
	b.WriteString(lipgloss.NewStyle().Foreground(ColorRed).Render("[n]") + " No")

	return ModalStyle.Render(b.String())
}

// highlightMatch splits name into before/match/after and styles the match portion
// with charStyle, and the rest with rowStyle. The match is case-insensitive.
func highlightMatch(name, query string, charStyle, rowStyle lipgloss.Style) string {
	lower := strings.ToLower(name)
	idx := strings.Index(lower, strings.ToLower(query))
	if idx < 0 || idx+len(query) > len(name) {
		return rowStyle.Render(name)
	}
	before := name[:idx]
	match := name[idx : idx+len(query)]
	after := name[idx+len(query):]

	var result string
	if before != "" {
		result += rowStyle.Render(before)
	}
	result += charStyle.Render(match)
	if after != "" {
		result += rowStyle.Render(after)
	}
	return result
}

// fileHyperlink wraps a file path in an OSC 8 terminal hyperlink so it's clickable.
func fileHyperlink(path string) string {
	url := "file://" + path
	return fmt.Sprintf("\x1b]8;;%s\x1b\\%s\x1b]8;;\x1b\\", url, path)
}

// Helper functions

func getLine(block string, idx int, width int) string {
	lines := strings.Split(block, "\n")
	if idx < len(lines) {
		line := lines[idx]
		lineWidth := lipgloss.Width(line)
		if lineWidth < width {
			return line + strings.Repeat(" ", width-lineWidth)
		}
		return line
	}
	return strings.Repeat(" ", width)
}

func placeOverlay(modal string, width, height int) string {
	modalLines := strings.Split(modal, "\n")

	topPadding := (height - len(modalLines)) / 2
	if topPadding < 0 {
		topPadding = 0
	}

	leftPadding := (width - lipgloss.Width(modalLines[0])) / 2
	if leftPadding < 0 {
		leftPadding = 0
	}

	var result strings.Builder
	for i := 0; i < topPadding; i++ {
		result.WriteString("\n")
	}

	for _, line := range modalLines {
		result.WriteString(strings.Repeat(" ", leftPadding))
		result.WriteString(line)
		result.WriteString("\n")
	}

	return result.String()
}
