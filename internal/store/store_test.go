package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ironsheep/sheet-scale-mcp/internal/histogram"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createCalibration(interline int) *scale.Calibration {
	return scale.NewCalibration(
		histogram.Range{Min: interline - 1, Main: interline, Max: interline + 1},
		histogram.Range{Min: 3, Main: 3, Max: 3},
		scale.BeamScale{Main: 12, Extrapolated: true},
	)
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "page", "params"); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	want := createCalibration(20)
	inserted, err := s.Put(ctx, Entry{PageHash: "page", ParamsHash: "params", RunID: "run-1", Page: "p1.png", Calibration: want})
	if err != nil || !inserted {
		t.Fatalf("Put: inserted=%v err=%v", inserted, err)
	}

	got, ok, err := s.Get(ctx, "page", "params")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.String() != want.String() {
		t.Errorf("Get: got %s, want %s", got, want)
	}
	if _, ok, _ := s.Get(ctx, "page", "other"); ok {
		t.Error("different params should miss")
	}
}

func TestStore_FirstWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := createCalibration(20)
	if _, err := s.Put(ctx, Entry{PageHash: "h", ParamsHash: "p", RunID: "run-1", Page: "a", Calibration: first}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	inserted, err := s.Put(ctx, Entry{PageHash: "h", ParamsHash: "p", RunID: "run-2", Page: "a", Calibration: createCalibration(30)})
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if inserted {
		t.Error("second Put should be ignored")
	}

	got, _, _ := s.Get(ctx, "h", "p")
	if got.Interline() != 20 {
		t.Errorf("Interline: got %d, want 20 from first write", got.Interline())
	}
	if n, _ := s.CountRun(ctx, "run-2"); n != 0 {
		t.Errorf("CountRun(run-2): got %d, want 0", n)
	}
	if n, _ := s.CountRun(ctx, "run-1"); n != 1 {
		t.Errorf("CountRun(run-1): got %d, want 1", n)
	}
}

func TestStore_ConcurrentPut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	inserted := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Put(ctx, Entry{PageHash: "h", ParamsHash: "p", RunID: "r", Page: "a", Calibration: createCalibration(20)})
			if err != nil {
				t.Errorf("Put failed: %v", err)
			}
			inserted <- ok
		}()
	}
	wg.Wait()
	close(inserted)

	count := 0
	for ok := range inserted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("inserted %d times, want exactly 1", count)
	}
}

func TestStore_PutWithoutCalibration(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Put(context.Background(), Entry{PageHash: "h"}); err == nil {
		t.Error("expected an error for a missing calibration")
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	if err := os.WriteFile(a, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	ha, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if ha != want {
		t.Errorf("Fingerprint: got %s, want %s", ha, want)
	}
	if hb, _ := Fingerprint(b); hb != ha {
		t.Error("same content should give the same fingerprint")
	}
	if _, err := Fingerprint(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestParamsHash(t *testing.T) {
	cfg := scale.DefaultConfig()
	base := ParamsHash(140, cfg, scale.Pinned{})

	if ParamsHash(140, cfg, scale.Pinned{}) != base {
		t.Error("ParamsHash should be deterministic")
	}
	if ParamsHash(120, cfg, scale.Pinned{}) == base {
		t.Error("level should change the hash")
	}
	if ParamsHash(140, cfg, scale.Pinned{Interline: 20}) == base {
		t.Error("pinned values should change the hash")
	}
	cfg.MinInterline = 8
	if ParamsHash(140, cfg, scale.Pinned{}) == base {
		t.Error("thresholds should change the hash")
	}
}
