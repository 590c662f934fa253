// Package app holds the root Bubble Tea model of the dashboard TUI.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/machine-hub/server/internal/tui/client"
	"github.com/machine-hub/server/internal/tui/theme"
)

const listWidth = 28

// Stream is the observer connection the model reads from.
type Stream interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
}

// Model is the root Bubble Tea model.
type Model struct {
	stream Stream
	ctx    context.Context
	cancel context.CancelFunc

	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	width    int
	height   int

	categories map[string]json.RawMessage
	order      []string
	selected   string

	connected  bool
	updates    int
	lastUpdate time.Time
}

// New creates the root model.
func New(stream Stream) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		stream:     stream,
		ctx:        ctx,
		cancel:     cancel,
		keys:       DefaultKeyMap(),
		help:       help.New(),
		categories: make(map[string]json.RawMessage),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return m.stream.Listen(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.viewport.Width = max(0, msg.Width-listWidth-4)
		m.viewport.Height = max(0, msg.Height-6)
		m.refreshViewport(false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		return m, m.stream.ReadLoop(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		return m, m.stream.Listen(m.ctx)

	case client.SnapshotMsg:
		m.applySnapshot(msg)
		return m, m.stream.ReadLoop(m.ctx)

	case client.MachinesUpdatedMsg:
		m.updates++
		m.lastUpdate = msg.At
		return m, m.stream.ReadLoop(m.ctx)
	}

	return m, nil
}

// applySnapshot replaces the whole view. Categories missing from the
// snapshot disappear; the selection follows its name when still present.
func (m *Model) applySnapshot(msg client.SnapshotMsg) {
	m.categories = msg.Categories
	m.order = make([]string, 0, len(m.categories))
	for name := range m.categories {
		m.order = append(m.order, name)
	}
	sort.Strings(m.order)

	if _, ok := m.categories[m.selected]; !ok {
		m.selected = ""
		if len(m.order) > 0 {
			m.selected = m.order[0]
		}
	}

	m.updates++
	m.lastUpdate = msg.At
	m.refreshViewport(false)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.move(1)
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.move(-1)
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.PageDown()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.PageUp()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil
	}

	return m, nil
}

func (m *Model) move(delta int) {
	if len(m.order) == 0 {
		return
	}
	idx := m.index()
	idx = (idx + delta + len(m.order)) % len(m.order)
	m.selected = m.order[idx]
	m.refreshViewport(true)
}

func (m Model) index() int {
	for i, name := range m.order {
		if name == m.selected {
			return i
		}
	}
	return 0
}

func (m *Model) refreshViewport(reset bool) {
	raw, ok := m.categories[m.selected]
	if !ok {
		m.viewport.SetContent(theme.StyleDimmed.Render("No data yet"))
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	m.viewport.SetContent(pretty.String())
	if reset {
		m.viewport.GotoTop()
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.StyleBorder.Width(listWidth).Height(m.viewport.Height).Render(m.renderList()),
		theme.StyleBorder.Width(m.viewport.Width).Height(m.viewport.Height).Render(m.viewport.View()),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatus(),
		body,
		m.help.View(m.keys),
	)
}

func (m Model) renderStatus() string {
	var conn string
	if m.connected {
		conn = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		conn = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ DISCONNECTED, Reconnecting...")
	}

	parts := []string{conn, fmt.Sprintf("%d categories", len(m.order)), fmt.Sprintf("%d updates", m.updates)}
	if !m.lastUpdate.IsZero() {
		parts = append(parts, "last "+m.lastUpdate.Format(time.TimeOnly))
	}
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	return theme.StyleHeader.Render(" machine-hub ") + sep + strings.Join(parts, sep)
}

func (m Model) renderList() string {
	if len(m.order) == 0 {
		return theme.StyleDimmed.Render("No categories")
	}

	lines := make([]string, 0, len(m.order))
	for _, name := range m.order {
		isList, size := client.Summary(m.categories[name])
		count := fmt.Sprintf("{%d}", size)
		if isList {
			count = fmt.Sprintf("[%d]", size)
		}
		countStr := lipgloss.NewStyle().Foreground(theme.ShapeColor(isList, size)).Render(count)

		prefix, style := "  ", lipgloss.NewStyle()
		if name == m.selected {
			prefix, style = "> ", theme.StyleSelected
		}
		lines = append(lines, prefix+style.Render(name)+" "+countStr)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
