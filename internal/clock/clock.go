package clock

import (
	"sync"
	"time"
)

// Clock provides current time abstraction for deterministic tests.
// Params: none.
// Returns: current wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock for deterministic scheduler tests.
// Params: starting instant.
// Returns: clock whose time only moves via Advance.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates manual clock frozen at the given instant.
// Params: starting instant.
// Returns: manual clock handle.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now returns the currently configured instant.
// Params: none.
// Returns: frozen UTC timestamp.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward.
// Params: step duration.
// Returns: none.
func (m *Manual) Advance(step time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(step)
}
