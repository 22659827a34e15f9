package timing

// A Scope measures one interval on a registry. It starts the measurement when
// created and stops it exactly once when Done is called, typically via defer:
//
//	defer registry.Scope("chunk_loading").Done()
//
// Deferring Done guarantees the stop runs on every exit path, including
// panics unwinding through the deferred call. A Scope is intended to be used
// by a single goroutine.
type Scope struct {
	registry *Registry
	name     string
	stopped  bool
}

// Scope starts timing the named operation and returns the Scope that ends it.
func (r *Registry) Scope(name string) *Scope {
	r.Start(name)

	return &Scope{
		registry: r,
		name:     name,
	}
}

// Done stops the measurement. Calling Done more than once has no effect
// beyond the first call.
func (s *Scope) Done() {
	if s.stopped {
		return
	}

	s.stopped = true
	s.registry.Stop(s.name)
}
