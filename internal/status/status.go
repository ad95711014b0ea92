// Package status tracks the run-time health of a broker, worker, or client
// process for use by a liveness/readiness probe. Tracker is exported and
// per-instance (rather than a package-level global) so that a broker and a
// worker sharing one process can each own independent status.
package status

import "sync"

// Tracker records the current status string and the most recent error for
// one component.
type Tracker struct {
	mu         sync.RWMutex
	status     string
	errorCount int
	lastError  error
}

// NewTracker returns a Tracker with the given initial status.
func NewTracker(initial string) *Tracker {
	return &Tracker{status: initial}
}

// SetStatus sets the current status.
func (t *Tracker) SetStatus(value string) {
	t.mu.Lock()
	t.status = value
	t.mu.Unlock()
}

// Status returns the current status.
func (t *Tracker) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetLastError records err as the most recent error and increments the
// error count.
func (t *Tracker) SetLastError(err error) {
	t.mu.Lock()
	t.lastError = err
	t.errorCount++
	t.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (t *Tracker) ErrorCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errorCount
}

// LastError returns the most recently recorded error, or nil.
func (t *Tracker) LastError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastError
}
