// Package replay bounds how long a signed request stays acceptable and
// remembers signatures that were already relayed.
package replay

import (
	"time"
)

const (
	// DefaultMaxAge is how old a signed timestamp may be.
	DefaultMaxAge = 5 * time.Minute
	// DefaultFutureSkew is how far ahead of the relay clock a timestamp may be.
	DefaultFutureSkew = 5 * time.Second
)

// Check reports whether timestamp lies within [now-maxAge, now+DefaultFutureSkew].
func Check(timestamp, now time.Time, maxAge time.Duration) bool {
	return Window{MaxAge: maxAge, FutureSkew: DefaultFutureSkew}.allows(timestamp, now)
}

// Window is the acceptance interval around the relay clock.
type Window struct {
	MaxAge     time.Duration
	FutureSkew time.Duration
}

// DefaultWindow returns the 5 minute / 5 second window.
func DefaultWindow() Window {
	return Window{MaxAge: DefaultMaxAge, FutureSkew: DefaultFutureSkew}
}

// Allows reports whether a millisecond timestamp is inside the window.
// Non-positive timestamps are never allowed.
func (w Window) Allows(tsMillis int64, now time.Time) bool {
	if tsMillis <= 0 {
		return false
	}
	return w.allows(time.UnixMilli(tsMillis), now)
}

func (w Window) allows(ts, now time.Time) bool {
	if now.Sub(ts) > w.MaxAge {
		return false
	}
	return !ts.After(now.Add(w.FutureSkew))
}

// TTL is how long a seen signature must be remembered: once a timestamp is
// outside the window it is rejected anyway.
func (w Window) TTL() time.Duration {
	return w.MaxAge + w.FutureSkew
}
