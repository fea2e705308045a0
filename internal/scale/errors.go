package scale

import "fmt"

// ErrorCode identifies the kind of page-scoped estimation failure.
type ErrorCode string

const (
	// Foreground checks
	ErrorInsufficientForeground ErrorCode = "INSUFFICIENT_FOREGROUND"
	ErrorNoLineThicknessPeak    ErrorCode = "NO_LINE_THICKNESS_PEAK"

	// Interline checks
	ErrorNoRegularSpacing      ErrorCode = "NO_REGULAR_SPACING"
	ErrorResolutionOutOfBounds ErrorCode = "RESOLUTION_OUT_OF_BOUNDS"

	// Should never happen
	ErrorInternalInconsistency ErrorCode = "INTERNAL_INCONSISTENCY"
)

// Sentinels for errors.Is; they match any *Error with the same code.
var (
	ErrInsufficientForeground = &Error{Code: ErrorInsufficientForeground}
	ErrNoLineThicknessPeak    = &Error{Code: ErrorNoLineThicknessPeak}
	ErrNoRegularSpacing       = &Error{Code: ErrorNoRegularSpacing}
	ErrResolutionOutOfBounds  = &Error{Code: ErrorResolutionOutOfBounds}
	ErrInternalInconsistency  = &Error{Code: ErrorInternalInconsistency}
)

// Error reports why a page could not be calibrated.
// It never aborts a batch: callers mark the page invalid and go on.
type Error struct {
	Code    ErrorCode
	Page    string
	Message string
	Details map[string]any
	Cause   error

	// Removed tells, for ResolutionOutOfBounds, whether the removal decision
	// confirmed the page removal.
	Removed bool
}

func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Page != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.Page)
	}
	if e.Message == "" {
		return prefix
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, so that errors.Is(err, ErrNoRegularSpacing)
// holds for any page.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Factory functions

func newInsufficientForegroundError(page string, ratio, minRatio float64) *Error {
	return &Error{
		Code:    ErrorInsufficientForeground,
		Page:    page,
		Message: fmt.Sprintf("too few black pixels: %.3f%% of whole image, sheet is almost blank", 100*ratio),
		Details: map[string]any{
			"black_ratio":     ratio,
			"min_black_ratio": minRatio,
		},
	}
}

func newNoLineThicknessPeakError(page string, area, minDerivative int) *Error {
	return &Error{
		Code:    ErrorNoLineThicknessPeak,
		Page:    page,
		Message: "no significant black lines found",
		Details: map[string]any{
			"black_area":     area,
			"min_derivative": minDerivative,
		},
	}
}

func newNoRegularSpacingError(page string, area, minDerivative int) *Error {
	return &Error{
		Code:    ErrorNoRegularSpacing,
		Page:    page,
		Message: "no regularly spaced lines found",
		Details: map[string]any{
			"combo_area":     area,
			"min_derivative": minDerivative,
		},
	}
}

func newResolutionOutOfBoundsError(page, message string, interline, minInterline, maxInterline int, removed bool) *Error {
	return &Error{
		Code:    ErrorResolutionOutOfBounds,
		Page:    page,
		Message: message,
		Details: map[string]any{
			"interline":     interline,
			"min_interline": minInterline,
			"max_interline": maxInterline,
		},
		Removed: removed,
	}
}

func newInternalInconsistencyError(page, message string, details map[string]any) *Error {
	return &Error{
		Code:    ErrorInternalInconsistency,
		Page:    page,
		Message: message,
		Details: details,
	}
}

// ToMap converts the error to a flat map, for JSON tool results and logs.
func (e *Error) ToMap() map[string]any {
	result := map[string]any{
		"error_code": string(e.Code),
		"message":    e.Message,
	}
	if e.Page != "" {
		result["page"] = e.Page
	}
	if e.Code == ErrorResolutionOutOfBounds {
		result["removed"] = e.Removed
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
