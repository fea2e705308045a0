// Package batch estimates the calibration of many pages in parallel.
//
// Each page is one job handled by a fixed pool of workers; a job decodes its
// own page, binarizes it and runs a fresh estimation, so workers share no
// mutable state apart from the optional calibration cache. A failing page is
// reported in its Result and does not stop the batch.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/sheet-scale-mcp/internal/imaging"
	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
	"github.com/ironsheep/sheet-scale-mcp/internal/store"
)

// Options configures a Processor.
type Options struct {
	// Workers is the pool size; zero means runtime.NumCPU().
	Workers int

	// Level is the binarization gray level; zero means imaging.DefaultLevel.
	Level uint8

	// Pinned values apply to every page of the batch.
	Pinned scale.Pinned

	// Store caches calibrations when set.
	Store *store.Store
}

// Result holds the outcome of one page.
type Result struct {
	Path        string             `json:"path"`
	Calibration *scale.Calibration `json:"calibration,omitempty"`
	Err         error              `json:"-"`
	Cached      bool               `json:"cached,omitempty"`
	Duration    time.Duration      `json:"duration_ns"`
}

// Valid reports whether the page got a calibration.
func (r Result) Valid() bool {
	return r.Err == nil && r.Calibration != nil
}

// Report gathers the results of one run, in input order.
type Report struct {
	RunID   string   `json:"run_id"`
	Results []Result `json:"results"`
}

// Counts returns the number of valid, invalid and cached pages.
func (r *Report) Counts() (valid, invalid, cached int) {
	for _, res := range r.Results {
		if res.Valid() {
			valid++
		} else {
			invalid++
		}
		if res.Cached {
			cached++
		}
	}
	return valid, invalid, cached
}

// Processor runs batches of page estimations.
type Processor struct {
	est    *scale.Estimator
	opts   Options
	logger *slog.Logger

	// decode is replaced in tests.
	decode func(path string, level uint8) (runs.Source, error)
}

// NewProcessor creates a processor around est.
func NewProcessor(est *scale.Estimator, opts Options, logger *slog.Logger) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Level == 0 {
		opts.Level = imaging.DefaultLevel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{
		est:    est,
		opts:   opts,
		logger: logger,
		decode: func(path string, level uint8) (runs.Source, error) {
			return imaging.DecodeRuns(path, level)
		},
	}
}

type job struct {
	index int
	path  string
}

type indexedResult struct {
	index  int
	result Result
}

// Run estimates every page in paths.
//
// Cancellation is checked between pages: a page already being estimated runs
// to completion, pages not yet started get ctx.Err() as their error and Run
// returns that error along with the partial report.
func (p *Processor) Run(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Results: make([]Result, len(paths)),
	}
	logger := p.logger.With("run", report.RunID)
	paramsHash := store.ParamsHash(int(p.opts.Level), p.est.Config(), p.opts.Pinned)

	workers := min(p.opts.Workers, max(len(paths), 1))
	logger.Info("Starting batch", "pages", len(paths), "workers", workers)

	var wg sync.WaitGroup
	jobs := make(chan job, len(paths))
	results := make(chan indexedResult, len(paths))

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go p.worker(ctx, w, logger, report.RunID, paramsHash, &wg, jobs, results)
	}

	for i, path := range paths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()
	close(results)

	for r := range results {
		report.Results[r.index] = r.result
	}

	valid, invalid, cached := report.Counts()
	logger.Info("Batch finished", "valid", valid, "invalid", invalid, "cached", cached)

	return report, ctx.Err()
}

func (p *Processor) worker(ctx context.Context, id int, logger *slog.Logger, runID, paramsHash string,
	wg *sync.WaitGroup, jobs <-chan job, results chan<- indexedResult) {
	defer wg.Done()
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			results <- indexedResult{j.index, Result{Path: j.path, Err: err}}
			continue
		}

		start := time.Now()
		res := p.process(ctx, logger.With("worker_id", id), runID, paramsHash, j.path)
		res.Duration = time.Since(start)
		results <- indexedResult{j.index, res}
	}
}

func (p *Processor) process(ctx context.Context, logger *slog.Logger, runID, paramsHash, path string) Result {
	res := Result{Path: path}
	pageID := filepath.Base(path)

	var pageHash string
	if p.opts.Store != nil {
		var err error
		if pageHash, err = store.Fingerprint(path); err != nil {
			res.Err = err
			logger.Error("Failed to fingerprint page", "page", pageID, "error", err)
			return res
		}
		cal, ok, err := p.opts.Store.Get(ctx, pageHash, paramsHash)
		if err != nil {
			logger.Warn("Cache lookup failed, estimating", "page", pageID, "error", err)
		} else if ok {
			logger.Info("Calibration found in cache", "page", pageID)
			res.Calibration = cal
			res.Cached = true
			return res
		}
	}

	table, err := p.decode(path, p.opts.Level)
	if err != nil {
		res.Err = err
		logger.Error("Failed to decode page", "page", pageID, "error", err)
		return res
	}

	cal, err := p.est.Estimate(scale.Page{ID: pageID, Runs: table, Pinned: p.opts.Pinned})
	if err != nil {
		res.Err = err
		var se *scale.Error
		if errors.As(err, &se) {
			logger.Warn("Page invalid", "page", pageID, "code", se.Code)
		}
		return res
	}
	res.Calibration = cal
	logger.Info("Page calibrated", "page", pageID, "scale", cal.String())

	if p.opts.Store != nil {
		if _, err := p.opts.Store.Put(ctx, store.Entry{
			PageHash:    pageHash,
			ParamsHash:  paramsHash,
			RunID:       runID,
			Page:        pageID,
			Calibration: cal,
		}); err != nil {
			logger.Warn("Failed to cache calibration", "page", pageID, "error", err)
		}
	}

	return res
}
