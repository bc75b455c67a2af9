package analyzer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Status tracks an analyzer through one run:
// Pending -> Running -> {Completed, Failed, Skipped}.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// DefaultFailureThreshold is the number of consecutive row errors that
// demotes an analyzer to Failed for the remainder of the run.
const DefaultFailureThreshold = 25

// Run tracks one analyzer's lifecycle and failure budget across all shards
// of a run. A single row error degrades to a row-level finding; a streak of
// consecutive errors demotes the whole analyzer. Counters are atomic because
// shards report into the same Run.
type Run struct {
	Analyzer Analyzer

	status      atomic.Int32
	consecutive atomic.Int64
	errorRows   atomic.Int64
	threshold   int64

	mu     sync.Mutex
	reason string
}

// NewRun creates a pending run for an analyzer.
func NewRun(a Analyzer, failureThreshold int) *Run {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	return &Run{Analyzer: a, threshold: int64(failureThreshold)}
}

// Status returns the current lifecycle status.
func (r *Run) Status() Status { return Status(r.status.Load()) }

// Reason returns the skip or failure reason, if any.
func (r *Run) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// ErrorRows returns the number of rows this analyzer errored on.
func (r *Run) ErrorRows() int64 { return r.errorRows.Load() }

// Active reports whether the analyzer should still receive rows.
func (r *Run) Active() bool {
	s := r.Status()
	return s == StatusRunning || s == StatusPending
}

// Start moves a pending run to Running. No-op for any other state.
func (r *Run) Start() {
	r.status.CompareAndSwap(int32(StatusPending), int32(StatusRunning))
}

// Skip marks the run Skipped before any row is processed. Only valid from
// Pending; a running analyzer cannot retroactively be skipped.
func (r *Run) Skip(reason string) bool {
	if r.status.CompareAndSwap(int32(StatusPending), int32(StatusSkipped)) {
		r.mu.Lock()
		r.reason = reason
		r.mu.Unlock()
		return true
	}
	return false
}

// RecordError counts a row-level error. When the consecutive-error streak
// reaches the threshold the analyzer is demoted to Failed and the method
// reports true.
func (r *Run) RecordError(err error) (demoted bool) {
	r.errorRows.Add(1)
	streak := r.consecutive.Add(1)
	if streak >= r.threshold {
		if r.status.CompareAndSwap(int32(StatusRunning), int32(StatusFailed)) {
			r.mu.Lock()
			r.reason = fmt.Sprintf("%d consecutive row errors, last: %v", streak, err)
			r.mu.Unlock()
		}
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-error streak.
func (r *Run) RecordSuccess() {
	r.consecutive.Store(0)
}

// Complete moves a running analyzer to Completed at stream end.
func (r *Run) Complete() {
	r.status.CompareAndSwap(int32(StatusRunning), int32(StatusCompleted))
	// An analyzer that never saw a row still completes cleanly.
	r.status.CompareAndSwap(int32(StatusPending), int32(StatusCompleted))
}

// Fail demotes the analyzer with an explicit reason (e.g., a wedged model
// backend detected outside the per-row path).
func (r *Run) Fail(reason string) {
	if r.status.CompareAndSwap(int32(StatusRunning), int32(StatusFailed)) ||
		r.status.CompareAndSwap(int32(StatusPending), int32(StatusFailed)) {
		r.mu.Lock()
		r.reason = reason
		r.mu.Unlock()
	}
}
