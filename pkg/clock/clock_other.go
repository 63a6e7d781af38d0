//go:build !linux && !darwin && !freebsd

package clock

import (
	"time"
)

var processStart = time.Now()

// now falls back to the Go runtime's monotonic reading. It is only comparable
// within a single process, so process-mode readers are not supported here.
func now() float64 {
	return time.Since(processStart).Seconds()
}
