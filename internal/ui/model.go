package ui

import (
	"fmt"
	"io"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/periscope-debug/periscope/internal/debugger"
	"github.com/periscope-debug/periscope/internal/emu"
)

// execMsg carries a dispatched callback into the UI loop; the bridge
// wraps cross-context posts in it.
type execMsg struct{ fn func() }

// snapshotMsg delivers refreshed debugger data to the panels.
type snapshotMsg debugger.Snapshot

const panelHeight = 9 // including border rows

var _ tea.Model = (*Model)(nil)

// Model is the root bubbletea model: terminal viewport on top, data
// panels below, status bar and help footer at the bottom.
type Model struct {
	theme *Theme
	cache *styleCache
	keys  keyMap
	help  help.Model

	screen   *emu.Screen
	master   io.Writer // pseudo-terminal master; nil detaches input
	snapshot debugger.Snapshot

	width, height int
	scrollOffset  int // 0 = live view

	// Cached render of the visible grid rows, invalidated through the
	// dirty set.
	gridCache     map[int]string
	cachedHistTop int

	onReady  func()
	onDetach func()
}

// NewModel builds the root model around an existing screen buffer.
// The buffer is owned by the UI loop from here on.
func NewModel(screen *emu.Screen, master io.Writer, theme *Theme) *Model {
	if theme == nil {
		theme = DefaultTheme()
	}
	return &Model{
		theme:     theme,
		cache:     newStyleCache(theme),
		keys:      defaultKeyMap(),
		help:      help.New(),
		screen:    screen,
		master:    master,
		gridCache: make(map[int]string),
	}
}

// SetOnReady installs the first-time setup notification. Called before
// the program runs.
func (m *Model) SetOnReady(fn func()) { m.onReady = fn }

// SetOnDetach installs the handler for the leave-UI key.
func (m *Model) SetOnDetach(fn func()) { m.onDetach = fn }

// Exec wraps a callback for Program.Send.
func Exec(fn func()) tea.Msg { return execMsg{fn: fn} }

// Snapshot wraps refreshed debugger data for Program.Send.
func Snapshot(s debugger.Snapshot) tea.Msg { return snapshotMsg(s) }

func (m *Model) Init() tea.Cmd {
	if m.onReady != nil {
		m.onReady()
	}
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case execMsg:
		msg.fn()
		return m, nil

	case snapshotMsg:
		m.snapshot = debugger.Snapshot(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.invalidate()
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Detach):
		if m.onDetach != nil {
			m.onDetach()
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.scroll(m.pageSize())
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.scroll(-m.pageSize())
		return m, nil

	case key.Matches(msg, m.keys.Live):
		m.scrollOffset = 0
		return m, nil
	}

	if m.master != nil {
		if input := keyToBytes(tea.Key(msg)); len(input) > 0 {
			_, _ = m.master.Write(input)
		}
	}
	return m, nil
}

func (m *Model) pageSize() int {
	if h := m.termRows() - 2; h > 1 {
		return h
	}
	return 10
}

func (m *Model) scroll(delta int) {
	m.scrollOffset += delta
	if max := m.screen.HistoryTop(); m.scrollOffset > max {
		m.scrollOffset = max
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

// termRows is the height of the terminal viewport.
func (m *Model) termRows() int {
	rows := m.height - panelHeight - 2 // status bar + help line
	if rows < 3 {
		rows = m.height
	}
	return rows
}

func (m *Model) invalidate() {
	m.gridCache = make(map[int]string)
}

func (m *Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	v.BackgroundColor = m.theme.TermBG
	return v
}

func (m *Model) render() string {
	if m.width == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.viewTerminal())
	if m.height-m.termRows() >= panelHeight+2 {
		b.WriteByte('\n')
		b.WriteString(m.viewPanels())
	}
	b.WriteByte('\n')
	b.WriteString(m.viewStatusBar())
	b.WriteByte('\n')
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// viewTerminal renders the visible window of virtual lines, ending at
// the live grid unless the user has scrolled back. Only rows the
// emulator marked dirty since the last draw are re-rendered.
func (m *Model) viewTerminal() string {
	rows := m.termRows()
	total := m.screen.VirtualLines()

	if m.cachedHistTop != m.screen.HistoryTop() {
		// History growth shifts every grid row's virtual index; drop
		// the cache wholesale.
		m.invalidate()
		m.cachedHistTop = m.screen.HistoryTop()
	}
	for _, v := range m.screen.DirtyVirtual() {
		delete(m.gridCache, v)
	}
	m.screen.ClearDirty()

	end := total - m.scrollOffset
	start := end - rows
	if start < 0 {
		start = 0
		end = rows
		if end > total {
			end = total
		}
	}

	cursor := m.screen.CursorVirtual()
	live := m.scrollOffset == 0 && m.screen.CursorVisible()

	lines := make([]string, 0, rows)
	for v := start; v < end; v++ {
		cursorX := -1
		if live && v == cursor.Y {
			cursorX = cursor.X
		}
		if cursorX < 0 {
			if cached, ok := m.gridCache[v]; ok {
				lines = append(lines, cached)
				continue
			}
		}
		cells, err := m.screen.Line(v)
		if err != nil {
			continue
		}
		rendered := renderRow(cells, m.cache, m.width, cursorX)
		if cursorX < 0 {
			m.gridCache[v] = rendered
		}
		lines = append(lines, rendered)
	}
	for len(lines) < rows {
		lines = append(lines, renderRow(nil, m.cache, m.width, -1))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) viewPanels() string {
	w := m.width/3 - 2
	if w < 10 {
		w = 10
	}
	bt := m.renderPanel("Backtrace", m.backtraceLines(), w)
	th := m.renderPanel("Threads", m.threadLines(), w)
	lo := m.renderPanel("Locals", m.localLines(), w)
	return lipgloss.JoinHorizontal(lipgloss.Top, bt, th, lo)
}

func (m *Model) renderPanel(title string, lines []string, width int) string {
	inner := panelHeight - 3 // border + title
	if len(lines) > inner {
		lines = lines[:inner]
	}
	for len(lines) < inner {
		lines = append(lines, "")
	}
	body := m.theme.PanelTitleStyle().Render(title) + "\n" + strings.Join(lines, "\n")
	return m.theme.PanelStyle().Width(width).Render(body)
}

func (m *Model) backtraceLines() []string {
	var out []string
	for _, f := range m.snapshot.Frames {
		line := fmt.Sprintf("#%d %s", f.Level, f.Name)
		if f.Source != nil {
			line += fmt.Sprintf(" %s:%d", f.Source.Short, f.Source.Line)
		}
		if f.Selected {
			line = m.theme.SelectedStyle().Render(line)
		}
		out = append(out, line)
	}
	return out
}

func (m *Model) threadLines() []string {
	var out []string
	for _, t := range m.snapshot.Threads {
		line := fmt.Sprintf("%d %s %s", t.Num, t.Name, t.Frame.Name)
		if t.Selected {
			line = m.theme.SelectedStyle().Render(line)
		}
		out = append(out, line)
	}
	return out
}

func (m *Model) localLines() []string {
	var out []string
	for _, v := range m.snapshot.Locals {
		out = append(out, fmt.Sprintf("%s = %s", v.Name, v.Value))
	}
	for _, f := range m.snapshot.Frames {
		if !f.Selected {
			continue
		}
		for _, a := range f.Arguments {
			out = append(out, m.theme.MutedStyle().Render(fmt.Sprintf("%s = %s (arg)", a.Name, a.Value)))
		}
	}
	return out
}

func (m *Model) viewStatusBar() string {
	mode := lipgloss.NewStyle().
		Background(m.theme.ModeColor(m.snapshot.Mode)).
		Foreground(m.theme.TermBG).
		Padding(0, 1).
		Render(string(m.snapshot.Mode))

	var parts []string
	if m.snapshot.Target != "" {
		parts = append(parts, m.snapshot.Target)
	}
	if m.snapshot.Time != "" {
		parts = append(parts, "time "+string(m.snapshot.Time))
	}
	if m.snapshot.Extent.End != "" {
		parts = append(parts, fmt.Sprintf("extent %s-%s", m.snapshot.Extent.Start, m.snapshot.Extent.End))
	}
	if m.scrollOffset > 0 {
		parts = append(parts, fmt.Sprintf("scrollback +%d", m.scrollOffset))
	}
	rest := m.theme.StatusBarStyle().Render(strings.Join(parts, "  "))
	return mode + rest
}
