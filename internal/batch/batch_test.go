package batch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
	"github.com/ironsheep/sheet-scale-mcp/internal/store"
)

// createStaffPNG writes a 200x600 page holding 4 staves of 5 lines,
// line thickness 3 and interline 20. A blank page has no staves.
func createStaffPNG(t *testing.T, dir, name string, blank bool) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 200, 600))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	if !blank {
		for s := 0; s < 4; s++ {
			for l := 0; l < 5; l++ {
				top := 40 + s*140 + l*20
				for y := top; y < top+3; y++ {
					for x := 0; x < 200; x++ {
						img.SetGray(x, y, color.Gray{Y: 10})
					}
				}
			}
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode page: %v", err)
	}
	return path
}

func newTestProcessor(opts Options) *Processor {
	return NewProcessor(scale.NewEstimator(scale.DefaultConfig(), nil, nil), opts, nil)
}

func TestProcessor_Run(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		createStaffPNG(t, dir, "p1.png", false),
		createStaffPNG(t, dir, "blank.png", true),
		filepath.Join(dir, "missing.png"),
		createStaffPNG(t, dir, "p2.png", false),
	}

	report, err := newTestProcessor(Options{Workers: 3}).Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.RunID == "" {
		t.Error("RunID should be set")
	}
	if len(report.Results) != len(paths) {
		t.Fatalf("got %d results, want %d", len(report.Results), len(paths))
	}

	for i, res := range report.Results {
		if res.Path != paths[i] {
			t.Errorf("result %d: path %s, want %s (input order)", i, res.Path, paths[i])
		}
	}

	for _, i := range []int{0, 3} {
		res := report.Results[i]
		if !res.Valid() {
			t.Fatalf("%s: unexpected error %v", res.Path, res.Err)
		}
		if res.Calibration.Interline() != 20 || res.Calibration.Fore() != 3 {
			t.Errorf("%s: got %s", res.Path, res.Calibration)
		}
	}

	if !errors.Is(report.Results[1].Err, scale.ErrInsufficientForeground) {
		t.Errorf("blank page: got %v, want insufficient foreground", report.Results[1].Err)
	}
	if report.Results[2].Err == nil {
		t.Error("missing page should fail")
	}

	valid, invalid, cached := report.Counts()
	if valid != 2 || invalid != 2 || cached != 0 {
		t.Errorf("Counts: got %d/%d/%d, want 2/2/0", valid, invalid, cached)
	}
}

func TestProcessor_Cancelled(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		createStaffPNG(t, dir, "p1.png", false),
		createStaffPNG(t, dir, "p2.png", false),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestProcessor(Options{Workers: 1}).Run(ctx, paths)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error: got %v, want context.Canceled", err)
	}
	for _, res := range report.Results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("%s: got %v, want context.Canceled", res.Path, res.Err)
		}
	}
}

func TestProcessor_Cache(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()

	page := createStaffPNG(t, dir, "p1.png", false)
	p := newTestProcessor(Options{Workers: 2, Store: st})

	decodes := 0
	decode := p.decode
	p.decode = func(path string, level uint8) (runs.Source, error) {
		decodes++
		return decode(path, level)
	}

	first, err := p.Run(context.Background(), []string{page})
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if first.Results[0].Cached {
		t.Error("first run should not hit the cache")
	}
	if n, _ := st.CountRun(context.Background(), first.RunID); n != 1 {
		t.Errorf("CountRun: got %d, want 1", n)
	}

	second, err := p.Run(context.Background(), []string{page})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	res := second.Results[0]
	if !res.Cached || !res.Valid() {
		t.Fatalf("second run should hit the cache: %+v", res)
	}
	if res.Calibration.String() != first.Results[0].Calibration.String() {
		t.Errorf("cached calibration: got %s, want %s", res.Calibration, first.Results[0].Calibration)
	}
	if decodes != 1 {
		t.Errorf("decodes: got %d, want 1", decodes)
	}
	if second.RunID == first.RunID {
		t.Error("each run should get its own id")
	}
}

func TestProcessor_PinnedInterline(t *testing.T) {
	dir := t.TempDir()
	page := createStaffPNG(t, dir, "p1.png", false)

	report, err := newTestProcessor(Options{Pinned: scale.Pinned{Interline: 25}}).Run(context.Background(), []string{page})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res := report.Results[0]
	if !res.Valid() || res.Calibration.Interline() != 25 {
		t.Errorf("got %+v", res)
	}
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := newTestProcessor(Options{})
	if p.opts.Workers < 1 {
		t.Errorf("Workers: got %d", p.opts.Workers)
	}
	if p.opts.Level != 140 {
		t.Errorf("Level: got %d, want 140", p.opts.Level)
	}
}

func TestProcessor_EmptyBatch(t *testing.T) {
	report, err := newTestProcessor(Options{}).Run(context.Background(), nil)
	if err != nil || len(report.Results) != 0 {
		t.Errorf("got %v, %v", report, err)
	}
}
