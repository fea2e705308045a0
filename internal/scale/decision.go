package scale

// RemovalDecider decides whether a page failing a plausibility check must be
// removed. It reports true when the page is removed.
//
// Estimation of the page stops whatever the answer.
type RemovalDecider interface {
	DecideOnRemoval(message string, warningOnly bool) bool
}

// BatchDecider always removes the page, without asking anyone.
type BatchDecider struct{}

// DecideOnRemoval implements RemovalDecider.
func (BatchDecider) DecideOnRemoval(string, bool) bool { return true }

// DeciderFunc adapts a plain function to RemovalDecider.
type DeciderFunc func(message string, warningOnly bool) bool

// DecideOnRemoval implements RemovalDecider.
func (f DeciderFunc) DecideOnRemoval(message string, warningOnly bool) bool {
	return f(message, warningOnly)
}
