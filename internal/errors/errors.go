package errors

import (
	"strings"
	"sync"
)

// ErrorCollector accumulates violations found while checking one request so
// they can be reported together.
type ErrorCollector struct {
	violations []string
	mutex      sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		violations: make([]string, 0),
	}
}

// Add records a violation message.
func (ec *ErrorCollector) Add(violation string) {
	if violation == "" {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.violations = append(ec.violations, violation)
}

// AddError records the message of err.
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.Add(err.Error())
}

// Violations returns a copy of the recorded messages in insertion order.
func (ec *ErrorCollector) Violations() []string {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	out := make([]string, len(ec.violations))
	copy(out, ec.violations)

	return out
}

// HasErrors returns true if any violation was recorded.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	return len(ec.violations) > 0
}

// Clear removes all recorded violations.
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.violations = ec.violations[:0]
}

// Err returns nil when nothing was recorded, otherwise a single validation
// error whose message lists every violation.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	if len(ec.violations) == 0 {
		return nil
	}

	err := NewValidationError(CodeInvalidParameters,
		"parameter validation failed: "+strings.Join(ec.violations, ", "))
	err.WithContext("violations", append([]string(nil), ec.violations...))

	return err
}
