package govee

import (
	"sync"
	"time"
)

// stateCache remembers what each light was last told to show.
type stateCache struct {
	mu     sync.RWMutex
	states map[Target]DeviceState
}

func newStateCache() *stateCache {
	return &stateCache{states: make(map[Target]DeviceState)}
}

func (c *stateCache) get(t Target) (DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[t]
	return s, ok
}

func (c *stateCache) set(t Target, s DeviceState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[t] = s
}

// update applies fn to the cached state (zero value on a miss) and stamps it.
func (c *stateCache) update(t Target, at time.Time, fn func(*DeviceState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.states[t]
	fn(&s)
	s.UpdatedAt = at
	c.states[t] = s
}
