package scan

import "sync"

// Registry tracks the runners currently live in this process, keyed by
// external scan id. A scan id is present here from the moment its run is
// accepted until its runner reaches a terminal status, which is what makes
// duplicate-start detection and cancellation delivery race-free.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]*Runner
}

func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]*Runner)}
}

// Add registers a runner under its scan id. Returns false without
// registering when the id is already live.
func (r *Registry) Add(scanID string, runner *Runner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[scanID]; exists {
		return false
	}
	r.runners[scanID] = runner
	return true
}

// Get returns the live runner for a scan id, or nil.
func (r *Registry) Get(scanID string) *Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runners[scanID]
}

// Remove drops a runner once it has reached a terminal status.
func (r *Registry) Remove(scanID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runners, scanID)
}

// Len reports how many runners are currently live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runners)
}
