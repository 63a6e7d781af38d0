// Package gcpause pauses automatic garbage collection around timing-critical
// loops.
//
// Every Acquire forces a collection, so each loop starts with a clean heap even
// when another loop in the process already holds a guard. The collector itself
// is process-wide, so guards are reference counted: the first Acquire disables
// it and the last Release restores the previous GC percentage. Every guard must be released, typically
// with defer, so a loop that exits early still re-enables collection.
package gcpause

import (
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	mu        sync.Mutex
	holders   int
	prevGCPct int
)

// Guard is one holder of the paused state.
type Guard struct {
	once sync.Once
}

// Acquire forces a collection pass and disables automatic collection until the
// returned guard is released.
func Acquire() *Guard {
	runtime.GC()

	mu.Lock()
	defer mu.Unlock()

	if holders == 0 {
		prevGCPct = debug.SetGCPercent(-1)
	}
	holders++

	return &Guard{}
}

// Release ends this guard's hold. It is safe to call more than once.
func (g *Guard) Release() {
	g.once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		holders--
		if holders == 0 {
			debug.SetGCPercent(prevGCPct)
		}
	})
}

// Active reports whether any guard currently holds the collector paused.
func Active() bool {
	mu.Lock()
	defer mu.Unlock()
	return holders > 0
}
