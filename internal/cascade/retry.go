package cascade

import (
	"sort"
	"sync"
)

// JobState tracks the attempts of one cascade job.
type JobState struct {
	Key       string
	Failures  int
	LastError string
	Exhausted bool
}

// RetryTracker keeps per-job failure bookkeeping for the dispatcher.
// It is safe for concurrent use.
type RetryTracker struct {
	mu     sync.RWMutex
	states map[string]*JobState
}

// NewRetryTracker creates an empty tracker.
func NewRetryTracker() *RetryTracker {
	return &RetryTracker{states: make(map[string]*JobState)}
}

// Begin starts a fresh run of the job, clearing earlier failures.
func (r *RetryTracker) Begin(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = &JobState{Key: key}
}

// RecordFailure notes a failed attempt and returns the failure count of
// the current run.
func (r *RetryTracker) RecordFailure(key string, err error) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[key]
	if !ok {
		state = &JobState{Key: key}
		r.states[key] = state
	}
	state.Failures++
	if err != nil {
		state.LastError = err.Error()
	}
	return state.Failures
}

// RecordSuccess forgets the job.
func (r *RetryTracker) RecordSuccess(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
}

// MarkExhausted flags the job as abandoned. It stays listed by Failed
// until it runs again.
func (r *RetryTracker) MarkExhausted(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[key]; ok {
		state.Exhausted = true
	}
}

// State returns a copy of the job's state.
func (r *RetryTracker) State(key string) (JobState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[key]
	if !ok {
		return JobState{}, false
	}
	return *state, true
}

// Failed returns the keys of exhausted jobs, sorted.
func (r *RetryTracker) Failed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var failed []string
	for key, state := range r.states {
		if state.Exhausted {
			failed = append(failed, key)
		}
	}
	sort.Strings(failed)
	return failed
}
