package engine

import "sync/atomic"

// gate is the controller's re-entrancy guard. A state transition entered
// while another one is running is dropped, not queued: the racing trigger
// (a timer expiry against a manual action in the same tick window) is a
// duplicate by definition and must not execute twice.
type gate struct {
	busy atomic.Bool
}

// run executes fn if the gate is free and reports whether it ran. The gate is
// released when fn returns, including on panic.
func (g *gate) run(fn func()) bool {
	if !g.busy.CompareAndSwap(false, true) {
		return false
	}
	defer g.busy.Store(false)
	fn()
	return true
}
