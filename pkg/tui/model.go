// Package tui is a terminal rendition of the memoreez board: a bubbletea
// program whose model mirrors what the Controller tells the View, and a View
// adapter that forwards those calls into the program as messages.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type cell struct {
	color    string
	revealed bool
}

type keyMap struct {
	Left, Right, Up, Down key.Binding
	Reveal, Retry, Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Reveal: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "reveal")),
		Retry:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Model is the bubbletea model of the board. Clicks are only forwarded for
// hidden cells.
type Model struct {
	keys    keyMap
	columns int
	retry   func()

	drawn   bool
	cells   []cell
	cursor  int
	onClick func(int)
	err     error
}

// NewModel returns an empty board laid out in columns columns. retry is
// called when the player asks to retry after an error.
func NewModel(columns int, retry func()) Model {
	if columns <= 0 {
		columns = 4
	}
	return Model{keys: defaultKeys(), columns: columns, retry: retry}
}

type drawMsg struct {
	count   int
	onClick func(int)
}

type revealMsg struct {
	cellID int
	color  string
}

type hideMsg struct {
	cellID int
}

type errorMsg struct {
	err error
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case drawMsg:
		m.drawn = true
		m.cells = make([]cell, msg.count)
		m.onClick = msg.onClick
		m.cursor = 0
	case revealMsg:
		if m.valid(msg.cellID) {
			m.cells[msg.cellID] = cell{color: msg.color, revealed: true}
		}
	case hideMsg:
		if m.valid(msg.cellID) {
			m.cells[msg.cellID] = cell{}
		}
	case errorMsg:
		m.err = msg.err
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) valid(cellID int) bool {
	return cellID >= 0 && cellID < len(m.cells)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Left):
		if m.cursor%m.columns > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Right):
		if m.cursor%m.columns < m.columns-1 && m.cursor+1 < len(m.cells) {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor-m.columns >= 0 {
			m.cursor -= m.columns
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor+m.columns < len(m.cells) {
			m.cursor += m.columns
		}
	case key.Matches(msg, m.keys.Reveal):
		if !m.valid(m.cursor) || m.cells[m.cursor].revealed || m.onClick == nil {
			return m, nil
		}
		// The click runs off the event loop; the Controller answers by
		// sending messages back into the program.
		onClick, cellID := m.onClick, m.cursor
		return m, func() tea.Msg {
			onClick(cellID)
			return nil
		}
	case key.Matches(msg, m.keys.Retry):
		if m.err == nil || m.retry == nil {
			return m, nil
		}
		retry := m.retry
		return m, func() tea.Msg {
			retry()
			return nil
		}
	}
	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8a8a")).MarginTop(1)
	cellStyle   = lipgloss.NewStyle().Width(6).Height(2).Border(lipgloss.HiddenBorder())
	cursorStyle = cellStyle.Border(lipgloss.RoundedBorder())
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("memoreez"))
	b.WriteString("\n")

	switch {
	case !m.drawn && m.err == nil:
		b.WriteString("loading board...\n")
	case m.drawn && len(m.cells) == 0:
		b.WriteString("the board is empty\n")
	default:
		b.WriteString(m.renderGrid())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("error: %v (press r to retry)", m.err)))
		b.WriteString("\n")
	}

	var help []string
	for _, k := range []key.Binding{m.keys.Left, m.keys.Right, m.keys.Up, m.keys.Down, m.keys.Reveal, m.keys.Retry, m.keys.Quit} {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString(helpStyle.Render(strings.Join(help, " • ")))
	return b.String()
}

func (m Model) renderGrid() string {
	var rows []string
	for start := 0; start < len(m.cells); start += m.columns {
		end := min(start+m.columns, len(m.cells))
		var rendered []string
		for i := start; i < end; i++ {
			rendered = append(rendered, m.renderCell(i))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderCell(i int) string {
	style := cellStyle
	if i == m.cursor {
		style = cursorStyle
	}
	c := m.cells[i]
	if !c.revealed {
		return style.Background(lipgloss.Color(coveredHex)).Render("")
	}
	if hex, ok := colorHex(c.color); ok {
		return style.Background(lipgloss.Color(hex)).Render("")
	}
	return style.Render(c.color)
}
