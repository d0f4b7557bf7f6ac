// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"testing"
	"testing/synctest"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBackoffDelay(t *testing.T) {
	var got []time.Duration
	for n := 1; n <= 7; n++ {
		got = append(got, DefaultBackoff.Delay(n))
	}
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		10 * time.Second, 10 * time.Second, 10 * time.Second,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Delays (-want, +got):\n%s", diff)
	}

	b := Backoff{BaseDelay: 250 * time.Millisecond, MaxDelay: time.Second}
	if got := b.Delay(0); got != 250*time.Millisecond {
		t.Errorf("Delay(0): got %v, want base", got)
	}
	if got := b.Delay(100); got != time.Second {
		t.Errorf("Delay(100): got %v, want cap", got)
	}
}

func TestReconnector(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := reconnector{policy: DefaultBackoff}

		var fired []int
		var fire func(uint64)
		fire = func(tok uint64) {
			if !r.current(tok) {
				return
			}
			fired = append(fired, r.attempts)
			r.schedule(fire)
		}

		if d, ok := r.schedule(fire); !ok || d != time.Second {
			t.Fatalf("schedule: got (%v, %v), want (1s, true)", d, ok)
		}
		time.Sleep(time.Minute)
		synctest.Wait()

		if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, fired); diff != "" {
			t.Errorf("Fired attempts (-want, +got):\n%s", diff)
		}
		if !r.exhausted || r.reconnecting || r.pending() {
			t.Errorf("After episode: exhausted=%v reconnecting=%v pending=%v", r.exhausted, r.reconnecting, r.pending())
		}
		if d, ok := r.schedule(fire); ok {
			t.Errorf("schedule when exhausted: got (%v, true), want false", d)
		}

		r.reset()
		if r.attempts != 0 || r.exhausted {
			t.Errorf("After reset: attempts=%d exhausted=%v", r.attempts, r.exhausted)
		}
	})
}

func TestReconnectorReplace(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := reconnector{policy: DefaultBackoff}
		var fired []uint64
		fire := func(tok uint64) {
			if r.current(tok) {
				fired = append(fired, tok)
			}
		}

		r.schedule(fire) // 1s
		r.schedule(fire) // 2s, replaces the first
		time.Sleep(1500 * time.Millisecond)
		synctest.Wait()
		if len(fired) != 0 {
			t.Errorf("Replaced timer fired: %v", fired)
		}
		time.Sleep(time.Second)
		synctest.Wait()
		if len(fired) != 1 {
			t.Errorf("Fired: got %v, want one", fired)
		}
		if r.attempts != 2 || r.pending() {
			t.Errorf("attempts=%d pending=%v, want 2, false", r.attempts, r.pending())
		}

		// A stopped timer never counts as current.
		r.schedule(fire)
		r.stop()
		time.Sleep(time.Minute)
		synctest.Wait()
		if len(fired) != 1 {
			t.Errorf("Stopped timer fired: %v", fired)
		}
	})
}
