package scale

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/sheet-scale-mcp/internal/histogram"
)

// Size selects the staff population of a page.
type Size int

const (
	Large Size = iota // standard staves
	Small             // smaller staves, such as ossia or cue staves
)

func (s Size) String() string {
	if s == Small {
		return "SMALL"
	}
	return "LARGE"
}

// Fraction is a length expressed in interline units.
type Fraction float64

// LineFraction is a length expressed in line thickness units.
type LineFraction float64

// AreaFraction is a surface expressed in square interline units.
type AreaFraction float64

// BeamScale is the beam thickness of a page.
type BeamScale struct {
	Main int `json:"main"`

	// Extrapolated is set when no beam population was measured and Main is a guess.
	Extrapolated bool `json:"extrapolated,omitempty"`
}

func (b BeamScale) String() string {
	if b.Extrapolated {
		return fmt.Sprintf("beam(%d extra)", b.Main)
	}
	return fmt.Sprintf("beam(%d)", b.Main)
}

// StemScale is the stem thickness of a page.
type StemScale struct {
	Main int `json:"main"`
	Max  int `json:"max"`
}

func (s StemScale) String() string {
	return fmt.Sprintf("stem(%d max:%d)", s.Main, s.Max)
}

// Calibration is the immutable geometric reference of one page.
//
// Interline, line and beam are always present. Small interline, small beam and
// stem may be missing.
type Calibration struct {
	interline      histogram.Range
	line           histogram.Range
	beam           BeamScale
	smallInterline *histogram.Range
	smallBeam      *BeamScale
	stem           *StemScale
}

// NewCalibration assembles a calibration from its mandatory parts.
func NewCalibration(interline, line histogram.Range, beam BeamScale) *Calibration {
	return &Calibration{interline: interline, line: line, beam: beam}
}

// WithSmallInterline returns a copy carrying a small interline scale.
func (c *Calibration) WithSmallInterline(r histogram.Range) *Calibration {
	cp := *c
	cp.smallInterline = &r
	return &cp
}

// WithSmallBeam returns a copy carrying a small beam scale.
func (c *Calibration) WithSmallBeam(b BeamScale) *Calibration {
	cp := *c
	cp.smallBeam = &b
	return &cp
}

// WithStem returns a copy carrying a stem scale.
func (c *Calibration) WithStem(s StemScale) *Calibration {
	cp := *c
	cp.stem = &s
	return &cp
}

// Interline returns the main interline, in pixels.
func (c *Calibration) Interline() int { return c.interline.Main }

// InterlineScale returns the interline range.
func (c *Calibration) InterlineScale() histogram.Range { return c.interline }

// MaxInterline returns the upper bound of the interline range.
func (c *Calibration) MaxInterline() int { return c.interline.Max }

// Fore returns the main staff line thickness, in pixels.
func (c *Calibration) Fore() int { return c.line.Main }

// MinFore returns the lower bound of the line thickness range.
func (c *Calibration) MinFore() int { return c.line.Min }

// MaxFore returns the upper bound of the line thickness range.
func (c *Calibration) MaxFore() int { return c.line.Max }

// LineScale returns the line thickness range.
func (c *Calibration) LineScale() histogram.Range { return c.line }

// BeamScale returns the beam thickness.
func (c *Calibration) BeamScale() BeamScale { return c.beam }

// BeamThickness returns the main beam thickness, in pixels.
func (c *Calibration) BeamThickness() int { return c.beam.Main }

// IsBeamExtrapolated reports whether the beam thickness is a guess.
func (c *Calibration) IsBeamExtrapolated() bool { return c.beam.Extrapolated }

// SmallInterlineScale returns the small interline range, if any.
func (c *Calibration) SmallInterlineScale() (histogram.Range, bool) {
	if c.smallInterline == nil {
		return histogram.Range{}, false
	}
	return *c.smallInterline, true
}

// SmallBeamScale returns the small beam thickness, if any.
func (c *Calibration) SmallBeamScale() (BeamScale, bool) {
	if c.smallBeam == nil {
		return BeamScale{}, false
	}
	return *c.smallBeam, true
}

// StemScale returns the stem thickness, if any.
func (c *Calibration) StemScale() (StemScale, bool) {
	if c.stem == nil {
		return StemScale{}, false
	}
	return *c.stem, true
}

// InterlineScaleFor returns the interline range of the given staff size.
// Without small interline, both sizes share the standard one.
func (c *Calibration) InterlineScaleFor(size Size) histogram.Range {
	if size == Small && c.smallInterline != nil {
		return *c.smallInterline
	}
	return c.interline
}

// InterlineScaleOf returns the interline range whose main value is interline.
func (c *Calibration) InterlineScaleOf(interline int) (histogram.Range, error) {
	if c.interline.Main == interline {
		return c.interline, nil
	}
	if c.smallInterline != nil && c.smallInterline.Main == interline {
		return *c.smallInterline, nil
	}
	return histogram.Range{}, fmt.Errorf("no interline scale for value %d", interline)
}

// PixelsToFrac converts pixels to interline units.
func (c *Calibration) PixelsToFrac(pixels float64) float64 {
	return pixels / float64(c.interline.Main)
}

// PixelsToAreaFrac converts square pixels to square interline units.
func (c *Calibration) PixelsToAreaFrac(pixels float64) float64 {
	il := float64(c.interline.Main)
	return pixels / (il * il)
}

// PixelsToLineFrac converts pixels to line thickness units.
func (c *Calibration) PixelsToLineFrac(pixels float64) float64 {
	return pixels / float64(c.line.Main)
}

// ToPixels converts an interline fraction to a rounded number of pixels.
func (c *Calibration) ToPixels(f Fraction) int {
	return rint(c.ToPixelsDouble(f))
}

// ToPixelsDouble converts an interline fraction to pixels.
func (c *Calibration) ToPixelsDouble(f Fraction) float64 {
	return float64(c.interline.Main) * float64(f)
}

// LineToPixels converts a line fraction to a rounded number of pixels.
func (c *Calibration) LineToPixels(f LineFraction) int {
	return rint(c.LineToPixelsDouble(f))
}

// LineToPixelsDouble converts a line fraction to pixels.
func (c *Calibration) LineToPixelsDouble(f LineFraction) float64 {
	return float64(c.line.Main) * float64(f)
}

// AreaToPixels converts an area fraction to a rounded number of square pixels.
func (c *Calibration) AreaToPixels(f AreaFraction) int {
	il := float64(c.interline.Main)
	return rint(il * il * float64(f))
}

func (c *Calibration) String() string {
	var sb strings.Builder
	sb.WriteString("Scale{")
	if c.smallInterline != nil {
		sb.WriteString(" small_interline" + c.smallInterline.String())
	}
	sb.WriteString(" interline" + c.interline.String())
	sb.WriteString(" line" + c.line.String())
	if c.smallBeam != nil {
		sb.WriteString(" small_" + c.smallBeam.String())
	}
	sb.WriteString(" " + c.beam.String())
	if c.stem != nil {
		sb.WriteString(" " + c.stem.String())
	}
	sb.WriteString("}")
	return sb.String()
}

type calibrationJSON struct {
	Interline      histogram.Range  `json:"interline" yaml:"interline"`
	Line           histogram.Range  `json:"line" yaml:"line"`
	Beam           BeamScale        `json:"beam" yaml:"beam"`
	SmallInterline *histogram.Range `json:"small_interline,omitempty" yaml:"small_interline,omitempty"`
	SmallBeam      *BeamScale       `json:"small_beam,omitempty" yaml:"small_beam,omitempty"`
	Stem           *StemScale       `json:"stem,omitempty" yaml:"stem,omitempty"`
}

func (c *Calibration) toJSON() calibrationJSON {
	return calibrationJSON{
		Interline:      c.interline,
		Line:           c.line,
		Beam:           c.beam,
		SmallInterline: c.smallInterline,
		SmallBeam:      c.smallBeam,
		Stem:           c.stem,
	}
}

// MarshalJSON implements json.Marshaler.
func (c *Calibration) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toJSON())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Calibration) UnmarshalJSON(data []byte) error {
	var v calibrationJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Interline.Main <= 0 || v.Line.Main <= 0 {
		return fmt.Errorf("calibration lacks interline or line value")
	}
	*c = Calibration{
		interline:      v.Interline,
		line:           v.Line,
		beam:           v.Beam,
		smallInterline: v.SmallInterline,
		smallBeam:      v.SmallBeam,
		stem:           v.Stem,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c *Calibration) MarshalYAML() (any, error) {
	return c.toJSON(), nil
}

// rint rounds half to even.
func rint(v float64) int {
	return int(math.RoundToEven(v))
}
