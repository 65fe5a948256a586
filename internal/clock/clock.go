package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant in the canonical timezone. Components
// take a Clock instead of calling time.Now so tests can control time.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by the system clock, pinned to one location.
type Real struct {
	loc *time.Location
}

// NewReal returns a Clock reporting system time in the given location.
func NewReal(loc *time.Location) *Real {
	if loc == nil {
		loc = time.UTC
	}
	return &Real{loc: loc}
}

// Now returns the current system time in the canonical location.
func (r *Real) Now() time.Time {
	return time.Now().In(r.loc)
}

// Fake is a controllable Clock for tests.
type Fake struct {
	mu      sync.Mutex
	current time.Time
}

// NewFake returns a Fake clock initialised to the supplied time.
func NewFake(start time.Time) *Fake {
	return &Fake{current: start}
}

// Now returns the instant currently tracked by the fake clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Set moves the fake clock to the provided time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

// Advance moves the fake clock forward and returns the updated time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	f.current = f.current.Add(d)
	updated := f.current
	f.mu.Unlock()
	return updated
}
