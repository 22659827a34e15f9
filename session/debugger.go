package session

// A Debugger is the contract between the host application and a debug
// component. The host invokes Tick from its own periodic loop; the component
// never registers itself with any external runtime.
type Debugger interface {
	// ID identifies the component.
	ID() string

	// Tick is called with the host's monotonic tick count.
	Tick(count uint64)
}

// Sessions are tick-driven debuggers.
var _ Debugger = (*Session)(nil)
