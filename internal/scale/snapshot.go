package scale

import "github.com/ironsheep/sheet-scale-mcp/internal/histogram"

// HistogramView is a read-only copy of one histogram and its peak analysis.
type HistogramView struct {
	Name          string            `json:"name"`
	XMin          int               `json:"x_min"`
	XMax          int               `json:"x_max"`
	Counts        []int             `json:"counts"`
	Area          int               `json:"area"`
	MinDerivative int               `json:"min_derivative"`
	HiLos         []histogram.Range `json:"hilos"`
	Peaks         []histogram.Range `json:"peaks"`
	Quorum        *histogram.Quorum `json:"quorum,omitempty"`
}

// Value returns the count at x, 0 outside the view.
func (v *HistogramView) Value(x int) int {
	if x < v.XMin || x > v.XMax || x-v.XMin >= len(v.Counts) {
		return 0
	}
	return v.Counts[x-v.XMin]
}

// Snapshot exposes the intermediate results of one estimation, for charts and
// troubleshooting. It is filled as far as the estimation went.
type Snapshot struct {
	Page     string `json:"page"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MaxBlack int    `json:"max_black"`
	MaxWhite int    `json:"max_white"`

	// State is the final state; Reached is the last state completed.
	State   State `json:"state"`
	Reached State `json:"reached"`

	Black *HistogramView `json:"black,omitempty"`
	Combo *HistogramView `json:"combo,omitempty"`

	BlackPeak  *histogram.Range `json:"black_peak,omitempty"`
	ComboPeak  *histogram.Range `json:"combo_peak,omitempty"`
	ComboPeak2 *histogram.Range `json:"combo_peak2,omitempty"`

	BeamGuess  int               `json:"beam_guess,omitempty"`
	BeamQuorum *histogram.Quorum `json:"beam_quorum,omitempty"`

	Calibration *Calibration   `json:"calibration,omitempty"`
	Failure     map[string]any `json:"failure,omitempty"`
}

// MaxCombo returns the upper abscissa worth charting for the combo histogram:
// half again the largest retained combo peak, within the page width.
func (s *Snapshot) MaxCombo() int {
	comboMax := 30
	if s.BlackPeak != nil {
		comboMax = s.BlackPeak.Max
	}
	if s.ComboPeak != nil {
		comboMax = max(comboMax, s.ComboPeak.Max)
	}
	if s.ComboPeak2 != nil {
		comboMax = max(comboMax, s.ComboPeak2.Max)
	}
	comboMax = comboMax * 3 / 2
	if s.Width > 0 {
		comboMax = min(comboMax, s.Width-1)
	}
	if s.Combo != nil {
		comboMax = min(comboMax, s.Combo.XMax)
	}
	return comboMax
}

func (est *estimation) snapshot() *Snapshot {
	s := &Snapshot{
		Page:        est.page.ID,
		Width:       est.width,
		Height:      est.height,
		MaxBlack:    est.maxBlack,
		MaxWhite:    est.maxWhite,
		State:       est.state,
		Reached:     est.reached,
		Black:       view(est.black, est.blackFinder, est.blackPeaks),
		Combo:       view(est.combo, est.comboFinder, est.comboPeaks),
		BlackPeak:   copyRange(est.blackPeak),
		ComboPeak:   copyRange(est.comboPeak),
		ComboPeak2:  copyRange(est.comboPeak2),
		BeamGuess:   est.beamGuess,
		Calibration: est.calibration,
	}
	if est.beamRange != nil {
		q := *est.beamRange
		s.BeamQuorum = &q
	}
	if est.err != nil {
		s.Failure = est.err.ToMap()
	}
	return s
}

func view(h *histogram.Histogram, f *histogram.PeakFinder, peaks []histogram.Range) *HistogramView {
	if h == nil {
		return nil
	}
	v := &HistogramView{
		Name:   f.Name(),
		XMin:   h.XMin(),
		XMax:   h.XMax(),
		Counts: h.Counts(),
		Area:   h.Area(),
		Peaks:  append([]histogram.Range{}, peaks...),
	}
	v.MinDerivative = f.MinDerivative()
	v.HiLos = f.HiLos()
	if q, ok := f.Quorum(); ok {
		v.Quorum = &q
	}
	return v
}

func copyRange(r *histogram.Range) *histogram.Range {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
