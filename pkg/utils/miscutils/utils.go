package miscutils

import (
	"fmt"
	"math"
	"time"
)

// FormatDuration renders a duration with a unit that fits its magnitude.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	// Format based on magnitude.
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%.0fns", float64(d.Nanoseconds()))
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fμs", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1000000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// FormatSeconds is FormatDuration for a float count of seconds, as produced by the monotonic clock.
// Negative values keep their sign.
func FormatSeconds(s float64) string {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return "n/a"
	}
	if s < 0 {
		return "-" + FormatDuration(time.Duration(-s*float64(time.Second)))
	}
	return FormatDuration(time.Duration(s * float64(time.Second)))
}
