// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import "time"

// Backoff is an exponential retry policy with a ceiling.
type Backoff struct {
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // upper bound on any delay
	MaxAttempts int           // attempts per episode before giving up
}

// DefaultBackoff is the reconnect policy used when none is configured.
var DefaultBackoff = Backoff{
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
	MaxAttempts: 5,
}

// Delay returns the delay before retry attempt n (1-based), which is
// min(BaseDelay·2^(n-1), MaxDelay).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.BaseDelay <= 0 {
		return max(b.BaseDelay, 0)
	}
	d := b.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

// reconnector holds the reconnect state of a session. It is guarded by the
// session lock.
type reconnector struct {
	policy Backoff

	attempts     int
	reconnecting bool
	exhausted    bool
	timer        *time.Timer
	token        uint64 // identifies the current timer
}

// schedule starts the next attempt of the current episode. If the episode
// has no attempts left, it marks the state exhausted and returns ok == false
// without starting a timer. Otherwise fire is called after the backoff delay
// with the token of the timer that ran it, replacing any pending timer.
func (r *reconnector) schedule(fire func(token uint64)) (delay time.Duration, ok bool) {
	r.stop()
	if r.attempts >= r.policy.MaxAttempts {
		r.reconnecting = false
		r.exhausted = true
		return 0, false
	}
	r.attempts++
	r.reconnecting = true
	r.exhausted = false
	delay = r.policy.Delay(r.attempts)
	r.token++
	tok := r.token
	r.timer = time.AfterFunc(delay, func() { fire(tok) })
	return delay, true
}

// current reports whether tok identifies the most recently scheduled timer,
// and if so consumes it.
func (r *reconnector) current(tok uint64) bool {
	if r.timer == nil || tok != r.token {
		return false
	}
	r.timer = nil
	return true
}

// pending reports whether a retry timer is outstanding.
func (r *reconnector) pending() bool { return r.timer != nil }

// stop cancels the pending timer, if any.
func (r *reconnector) stop() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.token++
}

// reset returns to the stable state, cancelling any pending timer.
func (r *reconnector) reset() {
	r.stop()
	r.attempts = 0
	r.reconnecting = false
	r.exhausted = false
}
