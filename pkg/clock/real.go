package clock

import "time"

type realClock struct {
	loc *time.Location
}

// Real returns a Clock backed by the time package. A nil loc means time.Local.
func Real(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return &realClock{loc: loc}
}

func (c *realClock) Now() time.Time { return time.Now().In(c.loc) }

func (c *realClock) Location() *time.Location { return c.loc }

func (c *realClock) SinceBoot() time.Duration { return sinceBoot() }

func (c *realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (c *realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
