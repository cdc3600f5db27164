package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/astromechza/memoreez/pkg/memoreez"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

var _ memoreez.View = (*View)(nil)

// View implements memoreez.View by posting messages to a running program.
// Send blocks until the program's event loop accepts the message, so the
// program must be running (or about to run) when the Controller starts.
type View struct {
	sender Sender
}

func NewView(sender Sender) *View {
	return &View{sender: sender}
}

func (v *View) DrawCells(count int, onClick func(int)) {
	v.sender.Send(drawMsg{count: count, onClick: onClick})
}

func (v *View) RevealCell(cellID int, color string) {
	v.sender.Send(revealMsg{cellID: cellID, color: color})
}

func (v *View) HideCell(cellID int) {
	v.sender.Send(hideMsg{cellID: cellID})
}

func (v *View) DisplayError(err error) {
	v.sender.Send(errorMsg{err: err})
}
