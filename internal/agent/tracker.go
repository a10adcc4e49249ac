package agent

import (
	"slices"
	"sync"

	"github.com/dohr-michael/mask/internal/state"
)

// ActivationTracker keeps the activated skills of every live session. Updates
// go through the state reducer, so a session's list only ever grows.
// All methods are safe for concurrent use.
type ActivationTracker struct {
	mu     sync.RWMutex
	active map[string][]string // sessionID → activated skills
}

// NewActivationTracker creates an empty tracker.
func NewActivationTracker() *ActivationTracker {
	return &ActivationTracker{active: make(map[string][]string)}
}

// Seed replaces the session's list with the persisted activations. It runs
// at the start of a turn so administrative deactivations are honored.
func (t *ActivationTracker) Seed(sessionID string, activated []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[sessionID] = state.MergeActivated(nil, activated)
}

// Apply merges d into the session and returns the names that were not
// active before.
func (t *ActivationTracker) Apply(sessionID string, d state.Delta) []string {
	if d.IsEmpty() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.active[sessionID]
	after := state.MergeActivated(before, d.ActivatedSkills)
	t.active[sessionID] = after
	if len(after) == len(before) {
		return nil
	}
	return slices.Clone(after[len(before):])
}

// Active returns a copy of the session's activated skills.
func (t *ActivationTracker) Active(sessionID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.active[sessionID])
}

// Forget drops all state for the session.
func (t *ActivationTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, sessionID)
}
