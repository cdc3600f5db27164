package memoreez

// Selection is the first pick of a turn, waiting for a second pick to be
// compared against.
type Selection struct {
	CellID int
	Color  string
}

// Model holds the turn state: either nothing is selected or exactly one cell
// is.
type Model struct {
	selected *Selection
}

func NewModel() *Model {
	return &Model{}
}

func (m *Model) CellSelected() bool {
	return m.selected != nil
}

func (m *Model) Select(cellID int, color string) {
	m.selected = &Selection{CellID: cellID, Color: color}
}

func (m *Model) Unselect() {
	m.selected = nil
}

// Selected returns the current selection, if any.
func (m *Model) Selected() (Selection, bool) {
	if m.selected == nil {
		return Selection{}, false
	}
	return *m.selected, true
}
