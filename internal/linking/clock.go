package linking

import "time"

// SystemClock is the Clock callers wire in production; it is the only Clock
// in this package, and the only place in this package that reads the wall
// clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
