package clock

import "time"

// Clock supplies wall-clock time, time since boot, the local zone and
// timers. Production code uses Real; tests use Fake so scheduling logic
// runs without real time passing.
type Clock interface {
	// Now returns the current wall-clock time
	Now() time.Time

	// Location returns the zone used for local clock-hour decisions
	Location() *time.Location

	// SinceBoot returns monotonic time elapsed since the device booted
	SinceBoot() time.Duration

	// AfterFunc calls f in its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker delivers ticks on C every d
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call
type Timer interface {
	// Stop prevents the call from firing. Returns false if it already
	// fired or was stopped.
	Stop() bool
}

// Ticker delivers periodic ticks. C has capacity 1; slow readers drop ticks.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }
