//go:build linux || darwin || freebsd

package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// now reads CLOCK_MONOTONIC. It is shared by every process on the host, which
// is what makes reader and writer timestamps comparable.
func now() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackNow()
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}

var processStart = time.Now()

func fallbackNow() float64 {
	return time.Since(processStart).Seconds()
}
