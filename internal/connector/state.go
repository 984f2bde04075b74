package connector

import (
	"sync/atomic"

	"cryptoflow/internal/logger"
	"cryptoflow/internal/model"
)

// StateTracker holds the current State atomically so State() can be polled
// from outside the connector's own goroutine without a lock.
type StateTracker struct {
	state atomic.Value // State
}

// NewStateTracker returns a tracker initialized to StateInit.
func NewStateTracker() *StateTracker {
	t := &StateTracker{}
	t.state.Store(StateInit)
	return t
}

// Get returns the current state.
func (t *StateTracker) Get() State {
	return t.state.Load().(State)
}

// Set transitions to s and logs the change, per spec.md §4.4's state
// machine, so every Connector's transitions are visible the same way the
// teacher logs reader lifecycle events.
func (t *StateTracker) Set(log *logger.Entry, venue model.Venue, s State) {
	prev := t.Get()
	t.state.Store(s)
	if prev != s {
		log.WithFields(logger.Fields{"from": string(prev), "to": string(s), "venue": string(venue)}).Info("connector state transition")
	}
}
