// Package system provides clock implementations.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. Session tests use it to pin
// started_at and duration values.
type Fixed struct {
	T time.Time
}

// Now returns f.T in UTC.
func (f Fixed) Now() time.Time {
	return f.T.UTC()
}
