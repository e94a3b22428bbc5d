// Package lifecycle tracks whether the process is draining.
package lifecycle

import "sync/atomic"

// State is the process lifecycle flag shared by the server and health check.
// The zero value is running.
type State struct {
	shuttingDown atomic.Bool
}

// BeginShutdown marks the process as draining. Call when SIGTERM/SIGINT is
// received; the health check then reports shutting-down with 503.
func (s *State) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// ShuttingDown reports whether BeginShutdown has been called.
func (s *State) ShuttingDown() bool {
	return s.shuttingDown.Load()
}
