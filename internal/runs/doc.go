// Package runs provides the vertical run-length view of a binary page.
//
// A run is a maximal vertical stretch of foreground ("black") pixels within one
// image column. For every column, the runs are reported top to bottom as
// (start, length) pairs; the background ("white") runs are implied by the gaps
// between consecutive foreground runs.
//
// # Coordinate System
//
// Columns are indexed by x in [0, Width), run starts by y in [0, Height), with
// (0,0) at the top-left corner of the page, as everywhere in this module.
//
// # Thread Safety
//
// A Table is immutable once built and may be read concurrently. Building a
// table (Append) is not synchronized.
package runs
