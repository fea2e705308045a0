// Package diagnostics renders the calibration histograms of a page for visual
// inspection and summarizes their peaks.
//
// Render draws two stacked charts from a scale.Snapshot: the black run
// histogram, with the beam quorum, and the combo run histogram. Each chart
// shows counts as bars, the derivative as a step line, the derivative
// threshold and the retained peaks. Nothing here takes part in the estimation
// itself.
package diagnostics
