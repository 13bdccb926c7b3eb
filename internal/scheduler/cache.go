package scheduler

import (
	"sync"
	"time"

	"github.com/dynwatch/dynwatch/internal/check"
)

// CheckState represents the cached outcome of the most recent run of a check
type CheckState struct {
	// Result is nil when the run failed before producing a verdict
	Result    *check.Result
	Status    check.Status
	Message   string
	UpdatedAt time.Time
	TTL       time.Duration
}

// IsStale returns true if the cached state is older than its TTL
func (s *CheckState) IsStale(now time.Time) bool {
	return now.Sub(s.UpdatedAt) > s.TTL
}

// StateCache is a thread-safe cache of check run states
type StateCache struct {
	mu     sync.RWMutex
	states map[string]*CheckState
}

// NewStateCache creates a new state cache
func NewStateCache() *StateCache {
	return &StateCache{
		states: make(map[string]*CheckState),
	}
}

// Get retrieves cached state for a check
func (c *StateCache) Get(checkID string) (*CheckState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, exists := c.states[checkID]
	return state, exists
}

// Set stores run state for a check
func (c *StateCache) Set(checkID string, state *CheckState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states[checkID] = state
}

// GetAll returns all cached states
func (c *StateCache) GetAll() map[string]*CheckState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Create a copy to avoid external modifications
	snapshot := make(map[string]*CheckState, len(c.states))
	for k, v := range c.states {
		snapshot[k] = v
	}

	return snapshot
}

// Delete removes a cached state
func (c *StateCache) Delete(checkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.states, checkID)
}

// Clear removes all cached states
func (c *StateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states = make(map[string]*CheckState)
}

// Size returns the number of cached states
func (c *StateCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.states)
}
