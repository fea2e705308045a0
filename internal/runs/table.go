package runs

import (
	"fmt"
	"image"
)

// Run is a vertical sequence of foreground pixels within one column.
type Run struct {
	// Start is the ordinate of the first pixel of the run.
	Start int `json:"start"`

	// Length is the number of pixels in the run, always > 0.
	Length int `json:"length"`
}

// End returns the ordinate of the first pixel after the run.
func (r Run) End() int {
	return r.Start + r.Length
}

// Source is the read-only run-length representation of one binary page.
//
// Column(x) must return the foreground runs of column x ordered by increasing
// Start, with no overlap. The returned slice must not be modified by callers.
type Source interface {
	Width() int
	Height() int
	Column(x int) []Run
}

// Table is the in-memory implementation of Source.
type Table struct {
	width   int
	height  int
	columns [][]Run
}

// NewTable creates an empty table for a page of the given dimensions.
func NewTable(width, height int) *Table {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Table{
		width:   width,
		height:  height,
		columns: make([][]Run, width),
	}
}

// Width returns the number of columns.
func (t *Table) Width() int { return t.width }

// Height returns the page height in pixels.
func (t *Table) Height() int { return t.height }

// Column returns the runs of column x, or nil when x is outside the table.
func (t *Table) Column(x int) []Run {
	if x < 0 || x >= t.width {
		return nil
	}
	return t.columns[x]
}

// Append adds a run at the bottom of column x.
//
// Runs must be appended top to bottom: the new run has to start at or after
// the end of the last run of the column and must lie within the page.
func (t *Table) Append(x int, r Run) error {
	if x < 0 || x >= t.width {
		return fmt.Errorf("column %d outside table width %d", x, t.width)
	}
	if r.Length <= 0 {
		return fmt.Errorf("invalid run length %d in column %d", r.Length, x)
	}
	if r.Start < 0 || r.End() > t.height {
		return fmt.Errorf("run %d+%d outside table height %d", r.Start, r.Length, t.height)
	}
	col := t.columns[x]
	if n := len(col); n > 0 && r.Start < col[n-1].End() {
		return fmt.Errorf("run at %d overlaps previous run ending at %d in column %d",
			r.Start, col[n-1].End(), x)
	}
	t.columns[x] = append(col, r)
	return nil
}

// Count returns the total number of runs in the table.
func (t *Table) Count() int {
	n := 0
	for _, col := range t.columns {
		n += len(col)
	}
	return n
}

// FromGray builds the vertical run table of a binary image.
//
// A pixel is foreground when its gray level is strictly below level. Images
// produced by imaging.Binarize only hold 0 and 255, so any level in [1,255]
// gives the same result for them.
func FromGray(img *image.Gray, level uint8) *Table {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	t := NewTable(width, height)

	for x := 0; x < width; x++ {
		start := -1
		var col []Run
		for y := 0; y < height; y++ {
			black := img.GrayAt(x+bounds.Min.X, y+bounds.Min.Y).Y < level
			if black {
				if start < 0 {
					start = y
				}
				continue
			}
			if start >= 0 {
				col = append(col, Run{Start: start, Length: y - start})
				start = -1
			}
		}
		if start >= 0 {
			col = append(col, Run{Start: start, Length: height - start})
		}
		t.columns[x] = col
	}

	return t
}
