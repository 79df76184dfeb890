package metrics

import (
	"sync"
	"sync/atomic"
)

// runStats holds counters for automation executions.
// Kept simple/thread-safe for use from the dispatcher and exposition.
type runStats struct {
	total    uint64
	failures uint64
	mu       sync.Mutex
	byAction map[string]uint64
}

var runs runStats

// IncRunResult increments execution counters for the given action kind.
func IncRunResult(action string, success bool) {
	if action == "" {
		action = "unknown"
	}
	atomic.AddUint64(&runs.total, 1)
	if !success {
		atomic.AddUint64(&runs.failures, 1)
	}
	runs.mu.Lock()
	if runs.byAction == nil {
		runs.byAction = make(map[string]uint64)
	}
	runs.byAction[action]++
	runs.mu.Unlock()
}

// RunSnapshot returns a copy of the current counters.
func RunSnapshot() (total, failures uint64, byAction map[string]uint64) {
	total = atomic.LoadUint64(&runs.total)
	failures = atomic.LoadUint64(&runs.failures)
	runs.mu.Lock()
	defer runs.mu.Unlock()
	byAction = make(map[string]uint64, len(runs.byAction))
	for k, v := range runs.byAction {
		byAction[k] = v
	}
	return total, failures, byAction
}
