// Package units converts user-facing time quantities (ms, s, min, hr,
// day) into durations for delay targets and trigger offsets.
package units

import (
	"fmt"
	"time"
)

// Duration converts value expressed in unit into a time.Duration. An
// empty unit defaults to seconds.
func Duration(value float64, unit string) (time.Duration, error) {
	switch unit {
	case "ms":
		return time.Duration(value * float64(time.Millisecond)), nil
	case "s", "":
		return time.Duration(value * float64(time.Second)), nil
	case "min":
		return time.Duration(value * float64(time.Minute)), nil
	case "hr":
		return time.Duration(value * float64(time.Hour)), nil
	case "day":
		return time.Duration(value * 24 * float64(time.Hour)), nil
	default:
		return 0, fmt.Errorf("unknown time unit %q", unit)
	}
}
