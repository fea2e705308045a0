package scale

import "fmt"

// Config holds the thresholds driving an estimation.
type Config struct {
	// MinBlackRatio is the minimum ratio of foreground pixels in the page.
	MinBlackRatio float64 `yaml:"min_black_ratio" json:"min_black_ratio"`

	// MinDerivativeRatio is the derivative threshold, as a ratio of the histogram area.
	MinDerivativeRatio float64 `yaml:"min_derivative_ratio" json:"min_derivative_ratio"`

	// MinGainRatio is the gain ratio needed to widen a peak.
	MinGainRatio float64 `yaml:"min_gain_ratio" json:"min_gain_ratio"`

	// MinCountRatio is the count ratio, relative to the best black peak, for a
	// second black peak to be significant.
	MinCountRatio float64 `yaml:"min_count_ratio" json:"min_count_ratio"`

	// MaxSecondRatio is the maximum ratio between two combo peak mains.
	MaxSecondRatio float64 `yaml:"max_second_ratio" json:"max_second_ratio"`

	MinInterline int `yaml:"min_interline" json:"min_interline"`
	MaxInterline int `yaml:"max_interline" json:"max_interline"`

	// Beam height range, as fractions of the interline.
	BeamMinFraction float64 `yaml:"beam_min_fraction" json:"beam_min_fraction"`
	BeamMaxFraction float64 `yaml:"beam_max_fraction" json:"beam_max_fraction"`

	// BeamMinCountRatio is the beam quorum, as a ratio of the black area.
	BeamMinCountRatio float64 `yaml:"beam_min_count_ratio" json:"beam_min_count_ratio"`

	// BeamRangeRatio positions the extrapolated beam within its range.
	BeamRangeRatio float64 `yaml:"beam_range_ratio" json:"beam_range_ratio"`

	// Longest black and white runs, as ratios of the page height.
	MaxBlackHeightRatio float64 `yaml:"max_black_height_ratio" json:"max_black_height_ratio"`
	MaxWhiteHeightRatio float64 `yaml:"max_white_height_ratio" json:"max_white_height_ratio"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinBlackRatio:       0.001,
		MinDerivativeRatio:  0.025,
		MinGainRatio:        0.03,
		MinCountRatio:       0.5,
		MaxSecondRatio:      1.9,
		MinInterline:        11,
		MaxInterline:        100,
		BeamMinFraction:     0.275,
		BeamMaxFraction:     0.9,
		BeamMinCountRatio:   0.02,
		BeamRangeRatio:      0.5,
		MaxBlackHeightRatio: 1.0 / 16,
		MaxWhiteHeightRatio: 0.25,
	}
}

// Validate checks that every threshold is usable.
func (c Config) Validate() error {
	ratios := []struct {
		name  string
		value float64
	}{
		{"min_black_ratio", c.MinBlackRatio},
		{"min_derivative_ratio", c.MinDerivativeRatio},
		{"min_gain_ratio", c.MinGainRatio},
		{"min_count_ratio", c.MinCountRatio},
		{"beam_min_count_ratio", c.BeamMinCountRatio},
		{"beam_range_ratio", c.BeamRangeRatio},
		{"max_black_height_ratio", c.MaxBlackHeightRatio},
		{"max_white_height_ratio", c.MaxWhiteHeightRatio},
	}
	for _, r := range ratios {
		if r.value < 0 || r.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", r.name, r.value)
		}
	}

	if c.MaxSecondRatio <= 1 {
		return fmt.Errorf("max_second_ratio must be greater than 1, got %g", c.MaxSecondRatio)
	}
	if c.MinInterline < 1 {
		return fmt.Errorf("min_interline must be at least 1, got %d", c.MinInterline)
	}
	if c.MaxInterline < c.MinInterline {
		return fmt.Errorf("max_interline (%d) must not be below min_interline (%d)",
			c.MaxInterline, c.MinInterline)
	}
	if c.BeamMinFraction <= 0 || c.BeamMaxFraction < c.BeamMinFraction {
		return fmt.Errorf("beam fractions must satisfy 0 < min (%g) <= max (%g)",
			c.BeamMinFraction, c.BeamMaxFraction)
	}

	return nil
}
