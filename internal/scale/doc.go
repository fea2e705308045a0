// Package scale computes the global geometric calibration of a music page.
//
// The calibration of a page is expressed by a few pixel measurements that every
// later recognition stage relies on:
//
//   - interline: vertical distance between two staff lines, center to center
//   - line: staff line thickness
//   - beam: beam thickness, measured or extrapolated
//   - small interline and small beam, for pages mixing two staff sizes
//   - stem: stem thickness, only when pinned by the caller
//
// # Estimation
//
// An Estimator works on the vertical run-length table of a binary page (see
// package runs). It builds two histograms:
//
//   - black: lengths of foreground runs, up to MaxBlack = H/16
//   - combo: lengths of black+white pairs around runs of line thickness, with
//     white runs up to MaxWhite = H/4
//
// The dominant black peak gives the line thickness and the dominant combo peak
// the interline. Every adjacency feeds two combo entries, so combo counts are
// doubled; the derivative and quorum thresholds are ratios of the same doubled
// area, which keeps them consistent.
//
// Estimation walks through the states of State and stops at the first failure.
// Failures are page-scoped *Error values; only ResolutionOutOfBounds consults
// the RemovalDecider before failing.
//
// # Pinned Values
//
// A Page may carry Pinned values set by the user. Each pinned field replaces
// the computed one independently of the others.
//
// # Usage
//
//	est := scale.NewEstimator(scale.DefaultConfig(), logger, scale.BatchDecider{})
//	cal, err := est.Estimate(scale.Page{ID: "p1", Runs: table})
//	if err != nil {
//	    var serr *scale.Error
//	    if errors.As(err, &serr) {
//	        // page is invalid, continue with the next one
//	    }
//	}
//	fmt.Println(cal.Interline(), cal.ToPixels(scale.Fraction(1.5)))
package scale
