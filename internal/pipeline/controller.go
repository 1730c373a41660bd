package pipeline

import "sync"

// Controller serializes ingestion: at most one run may be in flight.
type Controller struct {
	mu      sync.Mutex
	running bool
}

func NewController() *Controller {
	return &Controller{}
}

// TryStart claims the run slot. It returns false when a run is already in
// flight; callers must call Finish once their run completes.
func (c *Controller) TryStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

// Finish releases the run slot.
func (c *Controller) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

// Running reports whether a run is in flight.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
