package httphandler

import "sync"

// Pending tracks which operations each session has in flight.
type Pending struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// NewPending creates an empty tracker.
func NewPending() *Pending {
	return &Pending{running: make(map[string]struct{})}
}

// Begin marks op running for sessionID. It returns false when op is already
// running; otherwise the returned func clears the mark and must be deferred.
func (p *Pending) Begin(sessionID, op string) (func(), bool) {
	key := sessionID + "\x00" + op

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.running[key]; busy {
		return func() {}, false
	}
	p.running[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.running, key)
			p.mu.Unlock()
		})
	}, true
}

// Running reports whether op is in flight for sessionID.
func (p *Pending) Running(sessionID, op string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, busy := p.running[sessionID+"\x00"+op]
	return busy
}
