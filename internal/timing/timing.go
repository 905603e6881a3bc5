// Package timing keeps tabs on several named runtimes across a call or a
// whole workflow, for the per-call duration reporting the diagnostic log
// carries.
package timing

import (
	"sync"
	"time"
)

// Tracker accumulates elapsed time under names. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	times   map[string]time.Duration
	running map[string]time.Time
	now     func() time.Time
}

// New creates a Tracker, optionally starting a timer immediately.
func New(name ...string) *Tracker {
	t := &Tracker{
		times:   make(map[string]time.Duration),
		running: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, n := range name {
		t.Start(n)
	}
	return t
}

// Start begins a named timer. Starting an already-running timer restarts
// its current lap without discarding time accumulated by previous laps.
func (t *Tracker) Start(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[name] = t.now()
}

// Stop ends the named timers and folds their lap into the accumulated
// total. With no names, every running timer is stopped.
func (t *Tracker) Stop(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at := t.now()
	if len(names) == 0 {
		for name := range t.running {
			names = append(names, name)
		}
	}
	for _, name := range names {
		started, ok := t.running[name]
		if !ok {
			continue
		}
		t.times[name] += at.Sub(started)
		delete(t.running, name)
	}
}

// Add folds another tracker's accumulated times into this one.
func (t *Tracker) Add(other *Tracker) {
	other.mu.Lock()
	snapshot := make(map[string]time.Duration, len(other.times))
	for name, d := range other.times {
		snapshot[name] = d
	}
	other.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for name, d := range snapshot {
		t.times[name] += d
	}
}

// Total sums the accumulated time for the given names, or for every name
// when none are given. Running laps are not included.
func (t *Tracker) Total(names ...string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(names) == 0 {
		for name := range t.times {
			names = append(names, name)
		}
	}
	var total time.Duration
	for _, name := range names {
		total += t.times[name]
	}
	return total
}

// Names lists every name with accumulated time.
func (t *Tracker) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.times))
	for name := range t.times {
		names = append(names, name)
	}
	return names
}
