// Package debugctl holds the process-wide controls of the debug toolkit: the
// explicit enable gate that components poll before doing any work, and the
// environment-driven configuration.
package debugctl

import "sync"

// A Gate is the switch that debug components poll before collecting or
// persisting anything. A new Gate starts disabled. Disabling the gate runs
// every registered OnDisable func, so accumulated debug state is discarded
// rather than merely suspended.
type Gate struct {
	lock      sync.Mutex
	enabled   bool
	onDisable []func()
}

// NewGate creates a disabled Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Enabled returns the current state of the gate.
func (g *Gate) Enabled() bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.enabled
}

// Set switches the gate. Setting false triggers the OnDisable funcs, even
// when the gate was already disabled.
func (g *Gate) Set(enabled bool) {
	g.lock.Lock()
	g.enabled = enabled
	callbacks := make([]func(), len(g.onDisable))
	copy(callbacks, g.onDisable)
	g.lock.Unlock()

	if enabled {
		return
	}

	for _, callback := range callbacks {
		callback()
	}
}

// OnDisable registers a func to run whenever the gate is set to false.
// Components register their clear funcs here so that disabling debugging
// discards their history.
func (g *Gate) OnDisable(callback func()) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.onDisable = append(g.onDisable, callback)
}
