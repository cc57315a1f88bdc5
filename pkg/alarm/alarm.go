package alarm

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/metrics"
)

// recheckInterval bounds how long the alarm sleeps on the monotonic clock
// before comparing the wall clock against its target again
const recheckInterval = time.Minute

// Alarm is a one-shot wall-clock alarm. At most one is outstanding: Set
// replaces any alarm armed before it.
//
// Timers run on the monotonic clock, which stops during suspend and ignores
// wall-clock changes. The alarm therefore wakes at least every
// recheckInterval and fires once Now reaches the target, so it is at most
// that late after a resume and never early after the clock moves back.
type Alarm struct {
	clock  clock.Clock
	fire   func(at time.Time)
	logger zerolog.Logger

	mu    sync.Mutex
	timer clock.Timer
	at    time.Time
	gen   uint64
}

// New creates an alarm that calls fire on its own goroutine when due
func New(c clock.Clock, fire func(at time.Time)) *Alarm {
	return &Alarm{
		clock:  c,
		fire:   fire,
		logger: log.WithComponent("alarm"),
	}
}

// Set arms the alarm for at, replacing any pending one. A time already in
// the past fires immediately.
func (a *Alarm) Set(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	a.at = at
	a.arm(a.gen, at)

	metrics.RebootAlarmTimestamp.Set(float64(at.Unix()))
	a.logger.Info().Time("at", at).Msg("Alarm set")
}

// Cancel disarms the pending alarm, if any
func (a *Alarm) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.at = time.Time{}
	metrics.RebootAlarmTimestamp.Set(0)
}

// Pending returns the time of the armed alarm
func (a *Alarm) Pending() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.at, !a.at.IsZero()
}

// arm sleeps until at or the next recheck. Caller holds a.mu.
func (a *Alarm) arm(gen uint64, at time.Time) {
	wait := at.Sub(a.clock.Now())
	if wait > recheckInterval {
		wait = recheckInterval
	}
	a.timer = a.clock.AfterFunc(wait, func() { a.expire(gen, at) })
}

func (a *Alarm) expire(gen uint64, at time.Time) {
	a.mu.Lock()
	// Replaced or cancelled after the timer was already running
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	if a.clock.Now().Before(at) {
		a.arm(gen, at)
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.at = time.Time{}
	a.mu.Unlock()

	metrics.RebootAlarmTimestamp.Set(0)
	a.logger.Info().Time("at", at).Msg("Alarm fired")
	a.fire(at)
}
