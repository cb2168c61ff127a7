package quota

import "time"

// SetTimeNow overrides the package clock for tests and returns a restore func.
func SetTimeNow(fn func() time.Time) func() {
	prev := timeNow
	timeNow = fn
	return func() { timeNow = prev }
}
