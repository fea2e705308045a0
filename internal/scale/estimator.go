package scale

import (
	"log/slog"

	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
)

// Pinned holds calibration values set by the user for one page.
// A zero field is not pinned and gets computed.
type Pinned struct {
	Interline      int `json:"interline,omitempty" yaml:"interline,omitempty"`
	Line           int `json:"line,omitempty" yaml:"line,omitempty"`
	Beam           int `json:"beam,omitempty" yaml:"beam,omitempty"`
	SmallInterline int `json:"small_interline,omitempty" yaml:"small_interline,omitempty"`
	Stem           int `json:"stem,omitempty" yaml:"stem,omitempty"`
}

// IsZero reports whether no value is pinned.
func (p Pinned) IsZero() bool {
	return p == Pinned{}
}

// Page is the input of one estimation.
type Page struct {
	// ID names the page in logs and errors.
	ID string

	// Runs is the vertical run table of the binary page.
	Runs runs.Source

	Pinned Pinned
}

// Estimator computes page calibrations.
//
// An Estimator holds no per-page state: Estimate may be called concurrently
// for different pages.
type Estimator struct {
	cfg     Config
	logger  *slog.Logger
	decider RemovalDecider
}

// NewEstimator creates an estimator.
// A nil logger discards logs, a nil decider behaves like BatchDecider.
func NewEstimator(cfg Config, logger *slog.Logger, decider RemovalDecider) *Estimator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if decider == nil {
		decider = BatchDecider{}
	}
	return &Estimator{
		cfg:     cfg,
		logger:  logger,
		decider: decider,
	}
}

// Config returns the thresholds in use.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate computes the calibration of a page.
//
// Failures are returned as *Error. The same page always yields the same
// calibration.
func (e *Estimator) Estimate(page Page) (*Calibration, error) {
	est := e.newEstimation(page)
	if err := est.run(); err != nil {
		return nil, err
	}
	return est.calibration, nil
}

// Inspect runs an estimation and returns everything it computed, even when it
// fails. The returned error is the estimation failure, if any.
func (e *Estimator) Inspect(page Page) (*Snapshot, error) {
	est := e.newEstimation(page)
	err := est.run()
	return est.snapshot(), err
}

func (e *Estimator) newEstimation(page Page) *estimation {
	return &estimation{
		cfg:     e.cfg,
		logger:  e.logger.With("page", page.ID),
		decider: e.decider,
		page:    page,
		state:   StateInit,
	}
}
