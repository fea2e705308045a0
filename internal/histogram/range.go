package histogram

import "fmt"

// Range describes a peak: Main is the best estimate of the value, [Min, Max]
// its plausible spread. Min <= Main <= Max always holds.
type Range struct {
	Min  int `json:"min"`
	Main int `json:"main"`
	Max  int `json:"max"`
}

// NewRange builds a range, reordering the bounds if needed so that
// Min <= Main <= Max.
func NewRange(lo, main, hi int) Range {
	if lo > hi {
		lo, hi = hi, lo
	}
	return Range{Min: min(lo, main), Main: main, Max: max(hi, main)}
}

// Contains reports whether x lies within [Min, Max].
func (r Range) Contains(x int) bool {
	return x >= r.Min && x <= r.Max
}

// Width returns the number of abscissae covered by the range.
func (r Range) Width() int {
	return r.Max - r.Min + 1
}

// String formats the range as "(min,main,max)".
func (r Range) String() string {
	return fmt.Sprintf("(%d,%d,%d)", r.Min, r.Main, r.Max)
}

// Quorum is an absolute count threshold that applies within [Min, Max] only.
type Quorum struct {
	Count int `json:"count"`
	Min   int `json:"min"`
	Max   int `json:"max"`
}

// String formats the quorum for logs.
func (q Quorum) String() string {
	return fmt.Sprintf("quorum(%d in [%d..%d])", q.Count, q.Min, q.Max)
}
