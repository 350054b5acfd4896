package rabbitmq

import "sync"

// gate tracks a paused/resumed flag. While paused, wait returns a channel that
// is closed on the next resume.
type gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newGate() *gate {
	return &gate{}
}

func (g *gate) set(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case paused && !g.paused:
		g.paused = true
		g.resume = make(chan struct{})
	case !paused && g.paused:
		g.paused = false
		close(g.resume)
		g.resume = nil
	}
}

// wait returns nil when the gate is open
func (g *gate) wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return nil
	}
	return g.resume
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}
