package utils

import (
	"time"
)

// TimeProvider abstracts the clock so the settlement deadlines and the leg
// timestamps can be driven from tests.
type TimeProvider interface {
	// Now returns the current time
	Now() time.Time
}

// TimeProviderSystemLocalTime is the default TimeProvider, backed by the
// system clock.
type TimeProviderSystemLocalTime struct{}

// NewTimeProviderSystemLocalTime creates the default TimeProvider.
func NewTimeProviderSystemLocalTime() *TimeProviderSystemLocalTime {
	return &TimeProviderSystemLocalTime{}
}

// Now returns the current time
func (d TimeProviderSystemLocalTime) Now() time.Time {
	return time.Now()
}

// TimeProviderFixedTime always returns the same instant. Tests that must not
// cross a job deadline pin the clock with it.
type TimeProviderFixedTime struct {
	FixedTime time.Time
}

// Now returns the pinned instant
func (d TimeProviderFixedTime) Now() time.Time {
	return d.FixedTime
}
