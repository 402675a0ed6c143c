package usecase

import "sync"

// syncGate allows at most one active run per connection within the process.
type syncGate struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSyncGate() *syncGate {
	return &syncGate{running: make(map[string]struct{})}
}

func (g *syncGate) acquire(connectionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[connectionID]; busy {
		return false
	}
	g.running[connectionID] = struct{}{}
	return true
}

func (g *syncGate) release(connectionID string) {
	g.mu.Lock()
	delete(g.running, connectionID)
	g.mu.Unlock()
}
