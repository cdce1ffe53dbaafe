package worker

import (
	"context"
	"sync"
)

// Registry tracks the cancel functions of running runs and remembers runs
// canceled before a worker picked them up.
type Registry struct {
	mu       sync.Mutex
	active   map[string]context.CancelFunc
	canceled map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		active:   make(map[string]context.CancelFunc),
		canceled: make(map[string]struct{}),
	}
}

// Acquire derives a cancelable context for runID. It reports false when the
// run was canceled while queued; the caller must then skip it. The returned
// release function must be called once the run ends.
func (r *Registry) Acquire(parent context.Context, runID string) (context.Context, func(), bool) {
	ctx, cancel := context.WithCancel(parent)
	if r == nil {
		return ctx, cancel, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.canceled[runID]; ok {
		delete(r.canceled, runID)
		cancel()
		return ctx, func() {}, false
	}
	r.active[runID] = cancel
	release := func() {
		r.mu.Lock()
		delete(r.active, runID)
		r.mu.Unlock()
		cancel()
	}
	return ctx, release, true
}

// Cancel stops a running run and reports true, or marks a queued run so
// Acquire refuses it and reports false.
func (r *Registry) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.active[runID]; ok {
		cancel()
		return true
	}
	r.canceled[runID] = struct{}{}
	return false
}

// Running reports whether runID is currently executing.
func (r *Registry) Running(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[runID]
	return ok
}
