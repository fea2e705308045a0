package diagnostics

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/sheet-scale-mcp/internal/histogram"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
)

// PeakStat describes the population enclosed by one peak.
type PeakStat struct {
	Peak   histogram.Range `json:"peak"`
	Mass   int             `json:"mass"`
	Mean   float64         `json:"mean"`
	StdDev float64         `json:"std_dev"`
}

// PeakStats computes the count-weighted mean and standard deviation of the
// lengths inside each peak of the view.
func PeakStats(v *scale.HistogramView) []PeakStat {
	if v == nil {
		return nil
	}
	out := make([]PeakStat, 0, len(v.Peaks))
	for _, p := range v.Peaks {
		var xs, ws []float64
		mass := 0
		for x := p.Min; x <= p.Max; x++ {
			c := v.Value(x)
			if c == 0 {
				continue
			}
			xs = append(xs, float64(x))
			ws = append(ws, float64(c))
			mass += c
		}

		ps := PeakStat{Peak: p, Mass: mass}
		if mass > 0 {
			ps.Mean, ps.StdDev = stat.MeanStdDev(xs, ws)
			if math.IsNaN(ps.StdDev) {
				ps.StdDev = 0
			}
		}
		out = append(out, ps)
	}
	return out
}

// WriteSummary prints a plain text report of a snapshot.
func WriteSummary(w io.Writer, snap *scale.Snapshot) {
	fmt.Fprintf(w, "page %s (%dx%d) state %s\n", snap.Page, snap.Width, snap.Height, snap.State)
	if snap.State == scale.StateFailed {
		fmt.Fprintf(w, "  failed after %s: %v\n", snap.Reached, snap.Failure["message"])
	}
	for _, v := range []*scale.HistogramView{snap.Black, snap.Combo} {
		if v == nil {
			continue
		}
		fmt.Fprintf(w, "  %s: area %d, min derivative %d\n", v.Name, v.Area, v.MinDerivative)
		for _, ps := range PeakStats(v) {
			fmt.Fprintf(w, "    peak %s mass %d mean %.2f sd %.2f\n", ps.Peak, ps.Mass, ps.Mean, ps.StdDev)
		}
	}
	if snap.BeamQuorum != nil {
		fmt.Fprintf(w, "  beam %s, guess %d\n", snap.BeamQuorum, snap.BeamGuess)
	}
	if snap.Calibration != nil {
		fmt.Fprintf(w, "  %s\n", snap.Calibration)
	}
}
