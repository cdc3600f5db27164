package memoreez

// View is the presentation side of the game. Cells are identified by their
// position. A hidden cell is covered and reports clicks to the handler given
// to DrawCells; a revealed cell shows its color and ignores clicks.
//
// The Controller calls View methods while holding its own lock, so an
// implementation must not call back into the Controller synchronously from
// inside them.
type View interface {
	// DrawCells materializes count hidden cells with ids 0..count-1.
	DrawCells(count int, onClick func(cellID int))

	RevealCell(cellID int, color string)
	HideCell(cellID int)

	// DisplayError shows an error indicator with a retry affordance. A nil
	// error clears the indicator.
	DisplayError(err error)
}
