package scale

import (
	"sort"
	"testing"

	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
)

// staffGroup describes a set of adjacent columns crossing the same staves.
type staffGroup struct {
	columns   int
	thickness int
	interline int
	lines     int // lines per staff, 5 when zero
	staves    int
	gap       int // from last line of a staff to first line of the next, start to start
	top       int
}

// band is an extra foreground run covering columns [from, to).
type band struct {
	top, thickness int
	from, to       int
}

// createStaffPage builds the run table of a synthetic page made of perfectly
// periodic staff lines, plus optional extra bands such as beams.
func createStaffPage(t *testing.T, height int, groups []staffGroup, extras ...band) *runs.Table {
	t.Helper()

	width := 0
	for _, g := range groups {
		width += g.columns
	}
	table := runs.NewTable(width, height)

	x := 0
	for _, g := range groups {
		lines := g.lines
		if lines == 0 {
			lines = 5
		}
		for c := 0; c < g.columns; c++ {
			var col []runs.Run
			y := g.top
			for s := 0; s < g.staves; s++ {
				for l := 0; l < lines; l++ {
					col = append(col, runs.Run{Start: y + l*g.interline, Length: g.thickness})
				}
				y += (lines-1)*g.interline + g.gap
			}
			for _, b := range extras {
				if x >= b.from && x < b.to {
					col = append(col, runs.Run{Start: b.top, Length: b.thickness})
				}
			}
			sort.Slice(col, func(i, j int) bool { return col[i].Start < col[j].Start })
			for _, r := range col {
				if err := table.Append(x, r); err != nil {
					t.Fatalf("building synthetic page: %v", err)
				}
			}
			x++
		}
	}

	return table
}

// standardPage is 200 columns of 4 staves, line thickness 3 and interline 20.
func standardPage(t *testing.T, extras ...band) *runs.Table {
	return createStaffPage(t, 600, []staffGroup{
		{columns: 200, thickness: 3, interline: 20, staves: 4, gap: 60, top: 40},
	}, extras...)
}

// createRunsPage spreads the given run lengths over the columns of a page,
// stacking them with one white pixel in between.
func createRunsPage(t *testing.T, width, height int, lengths []int) *runs.Table {
	t.Helper()

	table := runs.NewTable(width, height)
	next := make([]int, width)
	for i, l := range lengths {
		x := i % width
		if err := table.Append(x, runs.Run{Start: next[x], Length: l}); err != nil {
			t.Fatalf("building runs page: %v", err)
		}
		next[x] += l + 1
	}
	return table
}
