package scale

// State is a step of the estimation of one page.
type State int

const (
	StateInit State = iota
	StateBlackHistogramBuilt
	StateLinePeakFound
	StateComboHistogramBuilt
	StateInterlinePeaksFound
	StateResolutionChecked
	StateBeamResolved
	StateCalibrationReady
	StateFailed
)

var stateNames = [...]string{
	StateInit:                "INIT",
	StateBlackHistogramBuilt: "BLACK_HISTOGRAM_BUILT",
	StateLinePeakFound:       "LINE_PEAK_FOUND",
	StateComboHistogramBuilt: "COMBO_HISTOGRAM_BUILT",
	StateInterlinePeaksFound: "INTERLINE_PEAKS_FOUND",
	StateResolutionChecked:   "RESOLUTION_CHECKED",
	StateBeamResolved:        "BEAM_RESOLVED",
	StateCalibrationReady:    "CALIBRATION_READY",
	StateFailed:              "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// MarshalText lets states appear by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
