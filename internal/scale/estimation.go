package scale

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ironsheep/sheet-scale-mcp/internal/histogram"
)

// estimation holds the transient data of one page estimation.
type estimation struct {
	cfg     Config
	logger  *slog.Logger
	decider RemovalDecider
	page    Page

	state   State
	reached State
	err     *Error

	width    int
	height   int
	maxBlack int
	maxWhite int

	black       *histogram.Histogram
	blackFinder *histogram.PeakFinder
	combo       *histogram.Histogram
	comboFinder *histogram.PeakFinder

	blackPeaks []histogram.Range
	comboPeaks []histogram.Range

	blackPeak  *histogram.Range
	comboPeak  *histogram.Range
	comboPeak2 *histogram.Range

	beamKey   int // measured beam, 0 if none
	beamKey2  int // second measured beam, 0 if none
	beamGuess int
	beamRange *histogram.Quorum

	calibration *Calibration
}

func (est *estimation) run() error {
	steps := []struct {
		next State
		do   func() *Error
	}{
		{StateBlackHistogramBuilt, est.buildBlacks},
		{StateLinePeakFound, est.retrieveLinePeak},
		{StateComboHistogramBuilt, est.buildCombos},
		{StateInterlinePeaksFound, est.retrieveInterlinePeaks},
		{StateResolutionChecked, est.checkResolution},
		{StateBeamResolved, est.computeBeam},
		{StateCalibrationReady, est.assemble},
	}

	for _, step := range steps {
		if err := step.do(); err != nil {
			est.err = err
			est.reached = est.state
			est.state = StateFailed
			return err
		}
		est.state = step.next
		est.reached = step.next
	}

	est.logger.Info("calibration ready", "scale", est.calibration.String())
	return nil
}

func (est *estimation) buildBlacks() *Error {
	src := est.page.Runs
	if src == nil {
		return newInternalInconsistencyError(est.page.ID, "page has no run table", nil)
	}

	est.width = src.Width()
	est.height = src.Height()
	est.maxBlack = rint(float64(est.height) * est.cfg.MaxBlackHeightRatio)
	est.maxWhite = rint(float64(est.height) * est.cfg.MaxWhiteHeightRatio)
	est.logger.Debug("run length bounds",
		"maxBlack", est.maxBlack, "maxWhite", est.maxWhite, "maxCombo", est.maxBlack+est.maxWhite)

	est.black = histogram.New(0, est.maxBlack)
	est.blackFinder = histogram.NewPeakFinder("black", est.black, est.logger)

	for x := 0; x < est.width; x++ {
		for _, r := range src.Column(x) {
			// Lengths above maxBlack are dropped by the histogram.
			est.black.AddValue(r.Length, 1)
		}
	}

	est.dump(est.black, "black")
	return nil
}

// checkBlack fails when the page holds too few foreground pixels to be music.
func (est *estimation) checkBlack() *Error {
	blackCount := est.black.Weight()
	size := est.width * est.height
	ratio := 0.0
	if size > 0 {
		ratio = float64(blackCount) / float64(size)
	}
	est.logger.Debug("foreground", "blackRatio", ratio)

	if ratio < est.cfg.MinBlackRatio {
		est.logger.Warn("sheet is almost blank",
			"blackPixels", blackCount, "blackRatio", ratio, "minBlackRatio", est.cfg.MinBlackRatio)
		return newInsufficientForegroundError(est.page.ID, ratio, est.cfg.MinBlackRatio)
	}

	return nil
}

// retrieveLinePeak finds the line thickness peak.
//
// Multi-line staves make the line peak dominate beams by far. A page of 1-line
// staves may give two peaks of similar counts, lines and beams: the thinner is
// the line and the thicker measures the beam.
func (est *estimation) retrieveLinePeak() *Error {
	if err := est.checkBlack(); err != nil {
		return err
	}

	area := est.black.Area()
	minDer := rint(float64(area) * est.cfg.MinDerivativeRatio)
	est.blackPeaks = est.blackFinder.FindPeaks(1, minDer, est.cfg.MinGainRatio)

	if v := est.page.Pinned.Line; v > 0 {
		est.blackPeak = &histogram.Range{Min: v, Main: v, Max: v}
		est.logger.Info("user-specified line thickness", "line", v)
		return nil
	}

	if len(est.blackPeaks) == 0 {
		est.logger.Warn("no significant black lines found", "area", area, "minDerivative", minDer)
		return newNoLineThicknessPeakError(est.page.ID, area, minDer)
	}

	// Keep only the peaks with a count close to the best one.
	significant := []histogram.Range{est.blackPeaks[0]}
	if len(est.blackPeaks) > 1 {
		bestCount := est.black.Value(est.blackPeaks[0].Main)
		minCount := rint(float64(bestCount) * est.cfg.MinCountRatio)
		for _, p := range est.blackPeaks[1:] {
			if est.black.Value(p.Main) >= minCount {
				significant = append(significant, p)
			}
		}
	}

	p0 := significant[0]
	if len(significant) > 1 {
		p1 := significant[1]
		if p1.Main < p0.Main {
			p0, p1 = p1, p0
		}
		est.beamKey = p1.Main
	}
	est.blackPeak = &p0

	est.logger.Debug("line peak", "blackPeak", p0.String(), "beamKey", est.beamKey)
	return nil
}

// buildCombos pairs each black run of line thickness with the white run above
// it, when that white run follows another black run of line thickness.
//
// For B1, W, B2 two entries are added: B1+W and W+B2. Their sum is twice the
// center to center distance, so every count is doubled.
func (est *estimation) buildCombos() *Error {
	est.combo = histogram.New(0, est.maxBlack+est.maxWhite)
	est.comboFinder = histogram.NewPeakFinder("combo", est.combo, est.logger)

	peak := *est.blackPeak
	src := est.page.Runs

	for x := 0; x < est.width; x++ {
		yLast := 0     // first ordinate not yet processed
		lastBlack := 0 // length of last valid black run, 0 if none

		for _, r := range src.Column(x) {
			black := r.Length

			if black < peak.Min || black > peak.Max {
				lastBlack = 0
			} else {
				if r.Start > yLast {
					white := r.Start - yLast
					if white <= est.maxWhite && lastBlack != 0 {
						est.combo.AddValue(lastBlack+white, 1)
						est.combo.AddValue(white+black, 1)
					}
				}
				lastBlack = black
			}

			yLast = r.End()
		}
	}

	est.dump(est.combo, "combo")
	return nil
}

// retrieveInterlinePeaks finds the interline peak, and a second one if the page
// mixes two staff sizes.
//
// Other peaks are compared to the primary one in mass order: a peak closer than
// one line thickness is merged into it, a peak too far away is discarded. The
// first peak surviving both rules is the second interline.
func (est *estimation) retrieveInterlinePeaks() *Error {
	area := est.combo.Area()
	minDer := rint(float64(area) * est.cfg.MinDerivativeRatio)
	est.comboPeaks = est.comboFinder.FindPeaks(1, minDer, est.cfg.MinGainRatio)

	if v := est.page.Pinned.Interline; v > 0 {
		est.logger.Info("user-specified interline", "interline", v)
		return nil
	}

	if len(est.comboPeaks) == 0 {
		est.logger.Warn("no regularly spaced lines found", "area", area, "minDerivative", minDer)
		return newNoRegularSpacingError(est.page.ID, area, minDer)
	}

	primary := est.comboPeaks[0]
	est.logger.Debug("combo peak", "comboPeak", primary.String())

	var kept []histogram.Range
	for _, p := range est.comboPeaks[1:] {
		if abs(p.Main-primary.Main) < est.blackPeak.Main {
			merged := histogram.Range{
				Min:  min(p.Min, primary.Min),
				Main: (p.Main + primary.Main) / 2,
				Max:  max(p.Max, primary.Max),
			}
			est.logger.Debug("merging close combo peaks",
				"comboPeak", primary.String(), "other", p.String(), "merged", merged.String())
			primary = merged
			continue
		}

		lo, hi := min(p.Main, primary.Main), max(p.Main, primary.Main)
		if ratio := float64(hi) / float64(lo); ratio > est.cfg.MaxSecondRatio {
			est.logger.Debug("other combo peak too different, discarded",
				"other", p.String(), "ratio", ratio, "maxSecondRatio", est.cfg.MaxSecondRatio)
			continue
		}

		kept = append(kept, p)
	}

	est.comboPeak = &primary
	if len(kept) > 0 {
		second := kept[0]
		est.comboPeak2 = &second
		est.logger.Debug("second combo peak", "comboPeak2", second.String())
	}

	return nil
}

// largerInterline returns the interline of the larger staves.
func (est *estimation) largerInterline() int {
	if v := est.page.Pinned.Interline; v > 0 {
		return v
	}
	if est.comboPeak2 != nil {
		return max(est.comboPeak.Main, est.comboPeak2.Main)
	}
	return est.comboPeak.Main
}

// checkResolution rejects interlines too small for reliable processing, or
// too large for a page of multi-line staves.
func (est *estimation) checkResolution() *Error {
	if est.page.Pinned.Interline > 0 {
		return nil
	}

	interline := est.largerInterline()
	minIl, maxIl := est.cfg.MinInterline, est.cfg.MaxInterline

	var msg string
	switch {
	case interline < minIl:
		msg = fmt.Sprintf("%s: with a too low interline value of %d pixels, either this sheet "+
			"contains no multi-line staves, or the picture resolution is too low (try 300 DPI)",
			est.page.ID, interline)
	case interline > maxIl:
		msg = fmt.Sprintf("%s: with a too high interline value of %d pixels, "+
			"this sheet does not seem to contain multi-line staves", est.page.ID, interline)
	default:
		return nil
	}

	removed := est.decider.DecideOnRemoval(msg, false)
	est.logger.Warn("interline value is not reliable",
		"interline", interline, "minInterline", minIl, "maxInterline", maxIl, "removed", removed)

	return newResolutionOutOfBoundsError(est.page.ID, msg, interline, minIl, maxIl, removed)
}

// computeBeam retrieves the beam thickness, measured in the black histogram if
// possible, otherwise extrapolated from the interline.
func (est *estimation) computeBeam() *Error {
	if v := est.page.Pinned.Beam; v > 0 {
		est.beamKey, est.beamKey2 = v, 0
		est.logger.Info("user-specified beam height", "beam", v)
		return nil
	}

	interline := est.largerInterline()
	minHeight := max(est.blackPeak.Max, rint(est.cfg.BeamMinFraction*float64(interline)))
	maxHeight := max(interline-est.blackPeak.Main, rint(est.cfg.BeamMaxFraction*float64(interline)))

	if interline <= 0 || maxHeight < minHeight {
		return newInternalInconsistencyError(est.page.ID, "empty beam height range", map[string]any{
			"interline":  interline,
			"min_height": minHeight,
			"max_height": maxHeight,
		})
	}

	quorum := histogram.Quorum{
		Count: rint(float64(est.black.Area()) * est.cfg.BeamMinCountRatio),
		Min:   minHeight,
		Max:   maxHeight,
	}
	est.beamRange = &quorum
	est.blackFinder.SetQuorum(quorum)
	est.beamGuess = rint(float64(minHeight) + float64(maxHeight-minHeight)*est.cfg.BeamRangeRatio)

	if est.beamKey != 0 {
		est.logger.Info("significant beam peak detected", "beam", est.beamKey)
		return nil
	}

	var accepted []int
	for _, x := range est.black.LocalMaxima(minHeight, maxHeight) {
		if est.blackFinder.Accepts(x) {
			accepted = append(accepted, x)
		}
	}

	if len(accepted) == 0 {
		est.logger.Warn("no reliable beam height found, using guess",
			"guess", est.beamGuess, "minHeight", minHeight, "maxHeight", maxHeight,
			"quorum", quorum.Count)
		return nil
	}

	est.beamKey = accepted[0]
	if est.comboPeak2 != nil && len(accepted) > 1 {
		est.beamKey2 = accepted[1]
	}
	est.logger.Info("beam measured height",
		"beam", est.beamKey, "beam2", est.beamKey2,
		"count", est.black.Value(est.beamKey), "quorum", quorum.Count,
		"minHeight", minHeight, "maxHeight", maxHeight)

	return nil
}

func (est *estimation) assemble() *Error {
	pinned := est.page.Pinned

	var interline histogram.Range
	var small *histogram.Range

	switch {
	case pinned.Interline > 0:
		v := pinned.Interline
		interline = histogram.Range{Min: v, Main: v, Max: v}
	case est.comboPeak2 == nil:
		interline = *est.comboPeak
	case est.comboPeak2.Main < est.comboPeak.Main:
		interline = *est.comboPeak
		small = est.comboPeak2
	default:
		interline = *est.comboPeak2
		small = est.comboPeak
	}

	var beam BeamScale
	var smallBeam *BeamScale
	switch {
	case est.beamKey2 != 0:
		beam = BeamScale{Main: max(est.beamKey, est.beamKey2)}
		smallBeam = &BeamScale{Main: min(est.beamKey, est.beamKey2)}
	case est.beamKey != 0:
		beam = BeamScale{Main: est.beamKey}
	default:
		beam = BeamScale{Main: est.beamGuess, Extrapolated: true}
	}

	cal := NewCalibration(interline, *est.blackPeak, beam)

	if v := pinned.SmallInterline; v > 0 {
		cal = cal.WithSmallInterline(histogram.Range{Min: v, Main: v, Max: v})
	} else if small != nil {
		cal = cal.WithSmallInterline(*small)
	}
	if smallBeam != nil {
		cal = cal.WithSmallBeam(*smallBeam)
	}
	if v := pinned.Stem; v > 0 {
		cal = cal.WithStem(StemScale{Main: v, Max: v})
	}

	est.calibration = cal
	return nil
}

// dump writes the histogram at debug level.
func (est *estimation) dump(h *histogram.Histogram, name string) {
	if !est.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	var sb strings.Builder
	h.Print(&sb, name)
	est.logger.Debug("histogram", "name", name, "values", sb.String())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
