// Package inflight enforces at most one running call per logical action.
//
// Unlike a singleflight group, a second caller does not wait for or share the
// first caller's result: it is refused immediately.
package inflight

import "sync"

// Group tracks running actions by key. The zero value is ready to use.
type Group struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// TryAcquire marks key as running. It returns a release function, or false if
// key is already running.
func (g *Group) TryAcquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, busy := g.running[key]; busy {
		return nil, false
	}
	g.running[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, true
}
