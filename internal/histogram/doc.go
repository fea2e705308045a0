// Package histogram provides integer-keyed frequency tables and the derivative
// based peak finder used to calibrate a page.
//
// # Histogram
//
// A Histogram counts occurrences of integer values (typically run lengths) over
// a bounded domain [XMin, XMax]. Values outside the domain are dropped rather
// than rejected, so callers can feed every run length without pre-filtering.
// Counts only ever grow during a build pass.
//
// # Peak Finding
//
// PeakFinder locates peaks through derivative "HiLos": a HiLo is a stretch of
// abscissae that starts with strong positive derivatives (Hi) and ends with
// strong negative derivatives (Lo), "strong" meaning an absolute derivative at
// least equal to the minimum derivative threshold.  Each HiLo seeds a peak
// whose bounds are then widened bucket by bucket while the gain ratio
//
//	gain / (total + gain)
//
// stays at or above the minimum gain ratio, where gain is the count of the
// bucket being absorbed and total the mass already inside the peak.  The
// checks run in this order: derivative test, gain-ratio extension, mass
// filter.  Reordering them changes which peaks survive on boundary cases.
//
// Peaks are reported as Range values (min, main, max) sorted by decreasing
// enclosed mass.
//
// # Quorum
//
// A Quorum is an absolute count threshold restricted to a sub-range. It is
// independent of the peak extraction above and is used to accept or reject a
// single candidate abscissa, such as a beam height.
package histogram
