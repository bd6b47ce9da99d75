package rules

import "time"

// Clock supplies the current time. Tests substitute testutil.Clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
