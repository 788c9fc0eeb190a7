package clock

import "time"

// Clock is the injected time source. Reservation expiry comparisons all go
// through it so tests can control the instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a UTC clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	at time.Time
}

// NewFixed returns a clock pinned to one instant.
func NewFixed(t time.Time) Clock {
	return fixedClock{at: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.at
}

// Manual is a settable clock for tests that need to fast-forward past a
// reservation expiry.
type Manual struct {
	now time.Time
}

func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.now = t.UTC()
}

func (m *Manual) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}
