package desktop

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxGridCols bounds the column count so labels stay single letters.
const MaxGridCols = 26

// NewGrid splits bounds into cells of roughly cellSize pixels.
func NewGrid(bounds Rect, cellSize float64) Grid {
	cols := int((bounds.Right - bounds.Left) / cellSize)
	rows := int((bounds.Bottom - bounds.Top) / cellSize)
	cols = max(1, min(cols, MaxGridCols))
	rows = max(1, rows)
	return Grid{Rows: rows, Cols: cols, Bounds: bounds}
}

// CellCenter returns the midpoint of a cell labelled like "C4".
func (g Grid) CellCenter(label string) (Point, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) < 2 || label[0] < 'A' || label[0] > 'Z' {
		return Point{}, &InvalidArgumentError{Arg: "cell", Reason: fmt.Sprintf("'%s' is not a column letter followed by a row number", label)}
	}
	col := int(label[0] - 'A')
	row, err := strconv.Atoi(label[1:])
	if err != nil {
		return Point{}, &InvalidArgumentError{Arg: "cell", Reason: fmt.Sprintf("'%s' is not a column letter followed by a row number", label)}
	}
	row--
	if col >= g.Cols || row < 0 || row >= g.Rows {
		return Point{}, &NotFoundError{Kind: "grid cell", Name: label}
	}
	w := (g.Bounds.Right - g.Bounds.Left) / float64(g.Cols)
	h := (g.Bounds.Bottom - g.Bounds.Top) / float64(g.Rows)
	return Point{
		X: g.Bounds.Left + w*float64(col) + w/2,
		Y: g.Bounds.Top + h*float64(row) + h/2,
	}, nil
}

// Describe renders the grid for the decision oracle.
func (g Grid) Describe(window string) string {
	last := string(rune('A' + g.Cols - 1))
	desc := fmt.Sprintf("Grid for window '%s': %d columns (A-%s) x %d rows (1-%d) over %.0fx%.0f px.",
		window, g.Cols, last, g.Rows, g.Rows, g.Bounds.Right-g.Bounds.Left, g.Bounds.Bottom-g.Bounds.Top)
	if len(g.Image) > 0 {
		desc += fmt.Sprintf(" Annotated screenshot: %d bytes (%s).", len(g.Image), g.Format)
	}
	return desc
}
