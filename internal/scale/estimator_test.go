package scale

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/ironsheep/sheet-scale-mcp/internal/histogram"
	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
)

func newTestEstimator() *Estimator {
	return NewEstimator(DefaultConfig(), nil, BatchDecider{})
}

func TestEstimate_PeriodicStaves(t *testing.T) {
	cal, err := newTestEstimator().Estimate(Page{ID: "periodic", Runs: standardPage(t)})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if got := cal.InterlineScale(); got != (histogram.Range{Min: 20, Main: 20, Max: 20}) {
		t.Errorf("interline: got %v, want (20,20,20)", got)
	}
	if got := cal.LineScale(); got != (histogram.Range{Min: 3, Main: 3, Max: 3}) {
		t.Errorf("line: got %v, want (3,3,3)", got)
	}

	// No beam: guess in the middle of [6, 18].
	if got := cal.BeamScale(); got != (BeamScale{Main: 12, Extrapolated: true}) {
		t.Errorf("beam: got %v, want beam(12 extra)", got)
	}
	if _, ok := cal.SmallInterlineScale(); ok {
		t.Error("unexpected small interline")
	}
	if _, ok := cal.StemScale(); ok {
		t.Error("stem should only exist when pinned")
	}
}

func TestEstimate_RecoversLineAndInterline(t *testing.T) {
	tests := []struct {
		name      string
		interline int
	}{
		{"smallest interline", 11},
		{"small interline", 12},
		{"odd interline", 17},
		{"common interline", 20},
		{"medium interline", 33},
		{"large interline", 50},
		{"very large interline", 75},
		{"largest interline", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.interline
			height := max(600, 28*s)
			for line := 1; line <= 6; line++ {
				t.Run(fmt.Sprintf("line %d", line), func(t *testing.T) {
					table := createStaffPage(t, height, []staffGroup{
						{columns: 20, thickness: line, interline: s, staves: 4, gap: 3 * s, top: s},
					})

					cal, err := newTestEstimator().Estimate(Page{ID: "sweep", Runs: table})
					if err != nil {
						t.Fatalf("Estimate failed: %v", err)
					}
					if cal.Fore() != line || cal.Interline() != s {
						t.Errorf("got line %d and interline %d, want %d and %d",
							cal.Fore(), cal.Interline(), line, s)
					}
				})
			}
		})
	}
}

func TestEstimate_MeasuredBeam(t *testing.T) {
	// Beams of height 10 in the gap between the first two staves.
	table := standardPage(t, band{top: 140, thickness: 10, from: 0, to: 150})

	cal, err := newTestEstimator().Estimate(Page{ID: "beams", Runs: table})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if got := cal.BeamScale(); got != (BeamScale{Main: 10}) {
		t.Errorf("beam: got %v, want beam(10)", got)
	}
	if cal.Interline() != 20 || cal.Fore() != 3 {
		t.Errorf("got %v, want interline 20 and line 3", cal)
	}
}

func TestEstimate_OneLineStaves(t *testing.T) {
	// Lines every 50 pixels, with thick beams in most gaps: beams are as
	// frequent as lines, giving two significant black peaks.
	height := 600
	table := runs.NewTable(100, height)
	for x := 0; x < 100; x++ {
		for i := 0; i < 10; i++ {
			y := 40 + i*50
			if err := table.Append(x, runs.Run{Start: y, Length: 3}); err != nil {
				t.Fatal(err)
			}
			if i < 8 {
				if err := table.Append(x, runs.Run{Start: y + 20, Length: 9}); err != nil {
					t.Fatal(err)
				}
			}
		}
	}

	cal, err := newTestEstimator().Estimate(Page{ID: "one-line", Runs: table})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if cal.Fore() != 3 {
		t.Errorf("line: got %d, want the thinner peak 3", cal.Fore())
	}
	if got := cal.BeamScale(); got != (BeamScale{Main: 9}) {
		t.Errorf("beam: got %v, want measured beam(9)", got)
	}
	if cal.Interline() != 50 {
		t.Errorf("interline: got %d, want 50", cal.Interline())
	}
}

func TestEstimate_MergeCloseInterlines(t *testing.T) {
	table := createStaffPage(t, 600, []staffGroup{
		{columns: 100, thickness: 3, interline: 20, staves: 4, gap: 60, top: 40},
		{columns: 100, thickness: 3, interline: 22, staves: 4, gap: 60, top: 40},
	})

	cal, err := newTestEstimator().Estimate(Page{ID: "merge", Runs: table})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if got := cal.InterlineScale(); got != (histogram.Range{Min: 20, Main: 21, Max: 22}) {
		t.Errorf("interline: got %v, want merged (20,21,22)", got)
	}
	if _, ok := cal.SmallInterlineScale(); ok {
		t.Error("merged peaks must not leave a small interline")
	}
}

func TestEstimate_TwoStaffSizes(t *testing.T) {
	table := createStaffPage(t, 600, []staffGroup{
		{columns: 100, thickness: 3, interline: 20, staves: 4, gap: 60, top: 40},
		{columns: 100, thickness: 3, interline: 14, staves: 4, gap: 60, top: 40},
	})

	cal, err := newTestEstimator().Estimate(Page{ID: "ossia", Runs: table})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if cal.Interline() != 20 {
		t.Errorf("interline: got %d, want the larger value 20", cal.Interline())
	}
	small, ok := cal.SmallInterlineScale()
	if !ok || small.Main != 14 {
		t.Errorf("small interline: got %v (%v), want 14", small, ok)
	}
	if got := cal.InterlineScaleFor(Small); got.Main != 14 {
		t.Errorf("InterlineScaleFor(Small): got %v", got)
	}
}

func TestEstimate_SmallBeam(t *testing.T) {
	table := createStaffPage(t, 600, []staffGroup{
		{columns: 100, thickness: 3, interline: 20, staves: 4, gap: 60, top: 40},
		{columns: 100, thickness: 3, interline: 14, staves: 4, gap: 60, top: 40},
	},
		band{top: 140, thickness: 10, from: 0, to: 100},
		band{top: 120, thickness: 7, from: 100, to: 200},
	)

	cal, err := newTestEstimator().Estimate(Page{ID: "small-beam", Runs: table})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if got := cal.BeamScale(); got != (BeamScale{Main: 10}) {
		t.Errorf("beam: got %v, want beam(10)", got)
	}
	smallBeam, ok := cal.SmallBeamScale()
	if !ok || smallBeam != (BeamScale{Main: 7}) {
		t.Errorf("small beam: got %v (%v), want beam(7)", smallBeam, ok)
	}
}

func TestEstimate_DiscardFarInterline(t *testing.T) {
	table := createStaffPage(t, 800, []staffGroup{
		{columns: 120, thickness: 3, interline: 30, staves: 4, gap: 70, top: 40},
		{columns: 80, thickness: 3, interline: 12, staves: 4, gap: 70, top: 40},
	})

	cal, err := newTestEstimator().Estimate(Page{ID: "far", Runs: table})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if cal.Interline() != 30 {
		t.Errorf("interline: got %d, want 30", cal.Interline())
	}
	if _, ok := cal.SmallInterlineScale(); ok {
		t.Error("peak with ratio above 1.9 should be discarded")
	}
}

func lowResolutionPage(t *testing.T) *runs.Table {
	return createStaffPage(t, 600, []staffGroup{
		{columns: 100, thickness: 2, interline: 8, lines: 70, staves: 1, top: 20},
	})
}

func TestEstimate_ResolutionOutOfBounds(t *testing.T) {
	t.Run("batch removes", func(t *testing.T) {
		_, err := newTestEstimator().Estimate(Page{ID: "low", Runs: lowResolutionPage(t)})
		if !errors.Is(err, ErrResolutionOutOfBounds) {
			t.Fatalf("expected ErrResolutionOutOfBounds, got %v", err)
		}
		var serr *Error
		if !errors.As(err, &serr) || !serr.Removed {
			t.Errorf("batch decision should remove the page, got %+v", serr)
		}
		if serr.Details["interline"] != 8 {
			t.Errorf("evidence: got interline %v, want 8", serr.Details["interline"])
		}
	})

	t.Run("user keeps", func(t *testing.T) {
		var asked string
		var warning bool
		decider := DeciderFunc(func(msg string, warningOnly bool) bool {
			asked, warning = msg, warningOnly
			return false
		})

		est := NewEstimator(DefaultConfig(), nil, decider)
		_, err := est.Estimate(Page{ID: "low", Runs: lowResolutionPage(t)})

		var serr *Error
		if !errors.As(err, &serr) || serr.Code != ErrorResolutionOutOfBounds {
			t.Fatalf("expected resolution error, got %v", err)
		}
		if serr.Removed {
			t.Error("Removed should reflect the decision")
		}
		if asked == "" || warning {
			t.Errorf("decider not consulted as expected: %q, %v", asked, warning)
		}
	})
}

func TestEstimate_Failures(t *testing.T) {
	ramp := make([]int, 0)
	for l := 1; l <= 12; l++ {
		for n := 0; n < 10*l; n++ {
			ramp = append(ramp, l)
		}
	}

	single := runs.NewTable(100, 600)
	for x := 0; x < 100; x++ {
		if err := single.Append(x, runs.Run{Start: 300, Length: 3}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		table runs.Source
		want  error
		state State
	}{
		{"blank page", runs.NewTable(100, 600), ErrInsufficientForeground, StateBlackHistogramBuilt},
		{"empty page", runs.NewTable(0, 0), ErrInsufficientForeground, StateBlackHistogramBuilt},
		{"no black peak", createRunsPage(t, 100, 600, ramp), ErrNoLineThicknessPeak, StateBlackHistogramBuilt},
		{"isolated lines", single, ErrNoRegularSpacing, StateComboHistogramBuilt},
		{"no run table", nil, ErrInternalInconsistency, StateInit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := newTestEstimator().Inspect(Page{ID: tt.name, Runs: tt.table})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if snap.State != StateFailed {
				t.Errorf("state: got %v, want FAILED", snap.State)
			}
			if snap.Reached != tt.state {
				t.Errorf("reached: got %v, want %v", snap.Reached, tt.state)
			}
			if snap.Failure == nil || snap.Calibration != nil {
				t.Errorf("snapshot should carry the failure only: %+v", snap)
			}
		})
	}
}

func TestEstimate_Pinned(t *testing.T) {
	t.Run("interline skips resolution check", func(t *testing.T) {
		page := Page{ID: "pinned", Runs: lowResolutionPage(t), Pinned: Pinned{Interline: 25}}
		cal, err := newTestEstimator().Estimate(page)
		if err != nil {
			t.Fatalf("Estimate failed: %v", err)
		}
		if got := cal.InterlineScale(); got != (histogram.Range{Min: 25, Main: 25, Max: 25}) {
			t.Errorf("interline: got %v", got)
		}
		if cal.Fore() != 2 {
			t.Errorf("line: got %d, want 2", cal.Fore())
		}
		// Range [7, 23] from interline 25 and line 2.
		if got := cal.BeamScale(); got != (BeamScale{Main: 15, Extrapolated: true}) {
			t.Errorf("beam: got %v, want beam(15 extra)", got)
		}
	})

	t.Run("per field override", func(t *testing.T) {
		page := Page{
			ID:     "pinned",
			Runs:   standardPage(t),
			Pinned: Pinned{Beam: 9, Stem: 2, SmallInterline: 15, Line: 3},
		}
		cal, err := newTestEstimator().Estimate(page)
		if err != nil {
			t.Fatalf("Estimate failed: %v", err)
		}
		if cal.Interline() != 20 {
			t.Errorf("interline should still be computed, got %d", cal.Interline())
		}
		if got := cal.BeamScale(); got != (BeamScale{Main: 9}) {
			t.Errorf("beam: got %v", got)
		}
		if stem, ok := cal.StemScale(); !ok || stem != (StemScale{Main: 2, Max: 2}) {
			t.Errorf("stem: got %v (%v)", stem, ok)
		}
		if small, ok := cal.SmallInterlineScale(); !ok || small.Main != 15 {
			t.Errorf("small interline: got %v (%v)", small, ok)
		}
	})

	t.Run("inconsistent line and interline", func(t *testing.T) {
		page := Page{ID: "bad", Runs: standardPage(t), Pinned: Pinned{Line: 30, Interline: 20}}
		_, err := newTestEstimator().Estimate(page)
		if !errors.Is(err, ErrInternalInconsistency) {
			t.Errorf("got %v, want ErrInternalInconsistency", err)
		}
	})
}

func TestEstimate_Idempotent(t *testing.T) {
	table := standardPage(t, band{top: 140, thickness: 10, from: 0, to: 150})
	est := newTestEstimator()

	first, err := est.Estimate(Page{ID: "same", Runs: table})
	if err != nil {
		t.Fatal(err)
	}
	second, err := est.Estimate(Page{ID: "same", Runs: table})
	if err != nil {
		t.Fatal(err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("estimations differ:\n%s\n%s", a, b)
	}
}

func TestInspect_Snapshot(t *testing.T) {
	snap, err := newTestEstimator().Inspect(Page{ID: "snap", Runs: standardPage(t)})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if snap.State != StateCalibrationReady || snap.Reached != StateCalibrationReady {
		t.Errorf("state: got %v/%v", snap.State, snap.Reached)
	}
	if snap.MaxBlack != 38 || snap.MaxWhite != 150 {
		t.Errorf("bounds: got %d/%d, want 38/150", snap.MaxBlack, snap.MaxWhite)
	}
	if snap.Black.Value(3) != 4000 {
		t.Errorf("black count at 3: got %d, want 4000", snap.Black.Value(3))
	}
	if snap.Combo.Value(20) != 6400 || snap.Combo.Value(60) != 1200 {
		t.Errorf("combo counts: got %d at 20, %d at 60", snap.Combo.Value(20), snap.Combo.Value(60))
	}
	if len(snap.Combo.Peaks) != 2 {
		t.Errorf("raw combo peaks: got %v, want 2", snap.Combo.Peaks)
	}
	if snap.BeamQuorum == nil || *snap.BeamQuorum != (histogram.Quorum{Count: 80, Min: 6, Max: 18}) {
		t.Errorf("beam quorum: got %v", snap.BeamQuorum)
	}
	if snap.Black.Quorum == nil {
		t.Error("black view should expose the beam quorum")
	}
	if got := snap.MaxCombo(); got != 30 {
		t.Errorf("MaxCombo: got %d, want 30", got)
	}

	if _, err := json.Marshal(snap); err != nil {
		t.Errorf("snapshot should marshal: %v", err)
	}
}

func TestEstimate_LogsEvidence(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	est := NewEstimator(DefaultConfig(), logger, nil)
	if _, err := est.Estimate(Page{ID: "blank", Runs: runs.NewTable(50, 50)}); err == nil {
		t.Fatal("expected failure")
	}

	out := buf.String()
	for _, want := range []string{"page=blank", "blackRatio=0", "minBlackRatio=0.001"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log should contain %q, got:\n%s", want, out)
		}
	}
}
