package histogram

import (
	"log/slog"
	"sort"
)

// PeakFinder retrieves peaks of a Histogram using derivative HiLos.
type PeakFinder struct {
	name   string
	hist   *Histogram
	xMin   int
	xMax   int
	logger *slog.Logger

	minCount      int
	minDerivative int
	minGainRatio  float64

	hilos  []Range
	peaks  []Range
	quorum *Quorum
}

// derPeak is a stretch of strong derivatives, all positive or all negative.
type derPeak struct {
	min      int
	max      int
	finished bool
}

// NewPeakFinder creates a finder working on the whole domain of h.
// A nil logger disables the finder's debug output.
func NewPeakFinder(name string, h *Histogram, logger *slog.Logger) *PeakFinder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PeakFinder{
		name:   name,
		hist:   h,
		xMin:   h.XMin(),
		xMax:   h.XMax(),
		logger: logger,
	}
}

// Name returns the finder title.
func (f *PeakFinder) Name() string { return f.name }

// Histogram returns the underlying histogram.
func (f *PeakFinder) Histogram() *Histogram { return f.hist }

// MinDerivative returns the derivative threshold of the last FindPeaks call.
func (f *PeakFinder) MinDerivative() int { return f.minDerivative }

// HiLos returns the HiLos of the last FindPeaks call, by increasing abscissa.
func (f *PeakFinder) HiLos() []Range { return copyRanges(f.hilos) }

// Peaks returns the peaks of the last FindPeaks call.
func (f *PeakFinder) Peaks() []Range { return copyRanges(f.peaks) }

// copyRanges returns a copy of rs, empty but never nil.
func copyRanges(rs []Range) []Range {
	return append(make([]Range, 0, len(rs)), rs...)
}

// Mass returns the histogram mass enclosed by r.
func (f *PeakFinder) Mass(r Range) int {
	return f.hist.Sum(r.Min, r.Max)
}

// FindPeaks retrieves the peaks of the histogram.
//
//   - minCount: minimum count for a finished Hi to stay alive, and minimum
//     mass for a peak to be reported.
//   - minDerivative: absolute derivative threshold for Hi and Lo stretches;
//     values below 1 are raised to 1.
//   - minGainRatio: gain ratio required to widen a peak by one bucket.
//
// The result is never nil; it is sorted by decreasing mass, then decreasing
// count at main, then increasing main.
func (f *PeakFinder) FindPeaks(minCount, minDerivative int, minGainRatio float64) []Range {
	f.minCount = minCount
	f.minDerivative = max(minDerivative, 1)
	f.minGainRatio = minGainRatio

	f.retrieveHiLos()

	// Peaks are grown from the highest HiLo down, each one bounded by the
	// peak (or HiLo) on its left.
	order := make([]int, len(f.hilos))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return f.hist.Value(f.hilos[order[a]].Main) > f.hist.Value(f.hilos[order[b]].Main)
	})

	grown := make([]*Range, len(f.hilos))
	peaks := make([]Range, 0, len(f.hilos))

	for _, i := range order {
		hilo := f.hilos[i]
		pMin := max(hilo.Min-1, f.xMin+1)

		if i > 0 {
			if prev := grown[i-1]; prev != nil {
				pMin = max(pMin, prev.Max+1)
			} else {
				pMin = max(pMin, f.hilos[i-1].Max+1)
			}
		}

		peak := f.createPeak(pMin, hilo.Main, hilo.Max)
		grown[i] = &peak

		if mass := f.Mass(peak); mass < minCount {
			f.logger.Debug("peak below mass threshold",
				"finder", f.name, "peak", peak.String(), "mass", mass, "minCount", minCount)
			continue
		}
		peaks = append(peaks, peak)
	}

	sort.SliceStable(peaks, func(a, b int) bool {
		ma, mb := f.Mass(peaks[a]), f.Mass(peaks[b])
		if ma != mb {
			return ma > mb
		}
		ca, cb := f.hist.Value(peaks[a].Main), f.hist.Value(peaks[b].Main)
		if ca != cb {
			return ca > cb
		}
		return peaks[a].Main < peaks[b].Main
	})

	f.peaks = peaks
	return copyRanges(peaks)
}

// SetQuorum registers a quorum for later acceptance checks.
func (f *PeakFinder) SetQuorum(q Quorum) {
	f.quorum = &q
}

// Quorum returns the registered quorum, if any.
func (f *PeakFinder) Quorum() (Quorum, bool) {
	if f.quorum == nil {
		return Quorum{}, false
	}
	return *f.quorum, true
}

// Accepts reports whether x lies within the registered quorum range and its
// count reaches the quorum. Without quorum, nothing is accepted.
func (f *PeakFinder) Accepts(x int) bool {
	if f.quorum == nil {
		return false
	}
	q := f.quorum
	return x >= q.Min && x <= q.Max && f.hist.Value(x) >= q.Count
}

// createPeak widens a peak from main, within [pMin, pMax], while the gain ratio
// stays at or above minGainRatio.
func (f *PeakFinder) createPeak(pMin, main, pMax int) Range {
	total := f.hist.Value(main)
	lower := main
	upper := main
	f.logger.Debug("peak start", "finder", f.name, "main", main, "count", total)

	for {
		before := 0
		if lower > pMin {
			before = f.hist.Value(lower - 1)
		}
		after := 0
		if upper < pMax {
			after = f.hist.Value(upper + 1)
		}

		gain := max(before, after)
		if gain == 0 {
			break
		}

		gainRatio := float64(gain) / float64(total+gain)
		if gainRatio < f.minGainRatio {
			f.logger.Debug("peak stopped", "finder", f.name, "main", main, "gainRatio", gainRatio)
			break
		}

		if before > after {
			lower--
		} else {
			upper++
		}
		total += gain
	}

	peak := Range{Min: lower, Main: main, Max: upper}
	f.logger.Debug("peak built", "finder", f.name, "peak", peak.String())
	return peak
}

// retrieveHiLos scans the derivative with hysteresis and records every
// strong-rise-then-strong-fall sequence.
func (f *PeakFinder) retrieveHiLos() {
	f.hilos = make([]Range, 0)

	var hi, lo *derPeak

	closeHiLo := func() {
		hilo := Range{Min: hi.min, Main: f.hist.ArgMax(hi.min, lo.max), Max: lo.max}
		f.logger.Debug("hilo built", "finder", f.name, "hilo", hilo.String())
		f.hilos = append(f.hilos, hilo)
		hi, lo = nil, nil
	}

	for x := f.xMin + 1; x <= f.xMax; x++ {
		y := f.hist.Value(x)
		der := f.hist.Derivative(x)

		switch {
		case der >= f.minDerivative:
			if lo != nil {
				closeHiLo()
			}
			if hi == nil || hi.finished {
				hi = &derPeak{min: x, max: x}
			} else {
				hi.max = x
			}
		case der <= -f.minDerivative:
			if lo == nil {
				if hi != nil {
					lo = &derPeak{min: x, max: x}
				}
			} else {
				lo.max = x
			}
		case lo != nil:
			closeHiLo()
		case hi != nil:
			if y < f.minCount {
				hi = nil
			} else {
				hi.finished = true
			}
		}
	}

	// A Lo running up to the domain end still closes its HiLo.
	if lo != nil {
		closeHiLo()
	}
}
