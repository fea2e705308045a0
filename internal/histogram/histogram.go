package histogram

import (
	"fmt"
	"io"
	"sort"
)

// Histogram is a frequency table over the integer domain [XMin, XMax].
type Histogram struct {
	xMin   int
	xMax   int
	counts []int
	area   int
}

// New creates an empty histogram over [xMin, xMax].
// An inverted domain yields an empty histogram that drops every value.
func New(xMin, xMax int) *Histogram {
	n := xMax - xMin + 1
	if n < 0 {
		n = 0
	}
	return &Histogram{
		xMin:   xMin,
		xMax:   xMax,
		counts: make([]int, n),
	}
}

// XMin returns the lower bound of the domain.
func (h *Histogram) XMin() int { return h.xMin }

// XMax returns the upper bound of the domain.
func (h *Histogram) XMax() int { return h.xMax }

// Contains reports whether x lies within the domain.
func (h *Histogram) Contains(x int) bool {
	return x >= h.xMin && x <= h.xMax && len(h.counts) > 0
}

// AddValue adds delta occurrences of x.
//
// Values outside the domain and negative deltas are silently dropped; the
// return value tells whether the histogram was updated.
func (h *Histogram) AddValue(x, delta int) bool {
	if !h.Contains(x) || delta < 0 {
		return false
	}
	h.counts[x-h.xMin] += delta
	h.area += delta
	return true
}

// Value returns the count at x, 0 when x is outside the domain.
func (h *Histogram) Value(x int) int {
	if !h.Contains(x) {
		return 0
	}
	return h.counts[x-h.xMin]
}

// Derivative returns Value(x) - Value(x-1).
func (h *Histogram) Derivative(x int) int {
	return h.Value(x) - h.Value(x-1)
}

// Area returns the total mass of the histogram, i.e. the sum of all counts.
func (h *Histogram) Area() int {
	return h.area
}

// Weight returns the sum of (x - XMin) * Value(x) over the domain.
//
// For a run-length histogram with XMin == 0 this is the number of pixels
// covered by the counted runs.
func (h *Histogram) Weight() int {
	total := 0
	for i, c := range h.counts {
		total += i * c
	}
	return total
}

// Sum returns the mass enclosed in [lo, hi], clipped to the domain.
func (h *Histogram) Sum(lo, hi int) int {
	lo = max(lo, h.xMin)
	hi = min(hi, h.xMax)
	total := 0
	for x := lo; x <= hi; x++ {
		total += h.counts[x-h.xMin]
	}
	return total
}

// ArgMax returns the first abscissa in [lo, hi] with the highest count.
func (h *Histogram) ArgMax(lo, hi int) int {
	best := lo
	bestCount := h.Value(lo)
	for x := lo + 1; x <= hi; x++ {
		if c := h.Value(x); c > bestCount {
			best = x
			bestCount = c
		}
	}
	return best
}

// LocalMaxima returns the abscissae x in [lo, hi] whose count is non-zero and
// greater than or equal to both neighbors' counts, ordered by decreasing count
// then increasing x.
//
// Neighbors are read from the whole domain, not only from [lo, hi]; ties count
// as maxima, so a flat top contributes all of its abscissae.
func (h *Histogram) LocalMaxima(lo, hi int) []int {
	lo = max(lo, h.xMin)
	hi = min(hi, h.xMax)

	maxima := make([]int, 0)
	for x := lo; x <= hi; x++ {
		c := h.Value(x)
		if c == 0 {
			continue
		}
		if c >= h.Value(x-1) && c >= h.Value(x+1) {
			maxima = append(maxima, x)
		}
	}

	sort.SliceStable(maxima, func(i, j int) bool {
		return h.Value(maxima[i]) > h.Value(maxima[j])
	})

	return maxima
}

// Counts returns a copy of the counts, index 0 holding Value(XMin).
func (h *Histogram) Counts() []int {
	out := make([]int, len(h.counts))
	copy(out, h.counts)
	return out
}

// Print writes one "x:count/±derivative" line per non-empty bucket.
func (h *Histogram) Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s [\n", name)
	for x := h.xMin + 1; x <= h.xMax; x++ {
		if h.Value(x) == 0 && h.Value(x-1) == 0 {
			continue
		}
		fmt.Fprintf(w, " %d:%d/%+d\n", x, h.Value(x), h.Derivative(x))
	}
	fmt.Fprintln(w, "]")
}
