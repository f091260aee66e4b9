package ratelimit

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(max, window)
	l.now = clock.now
	return l, clock
}

func TestAdmitWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		d := l.Admit("client")
		if !d.Allowed {
			t.Fatalf("call %d: expected allowed", i+1)
		}
		if d.RetryAfter != 0 {
			t.Errorf("call %d: expected zero retry-after, got %v", i+1, d.RetryAfter)
		}
	}
}

func TestAdmitOverLimit(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		l.Admit("client")
		clock.advance(time.Second)
	}

	d := l.Admit("client")
	if d.Allowed {
		t.Fatal("6th call within the window should be rejected")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", d.RetryAfter)
	}
	// Oldest entry is 5s old, so the wait is the remainder of the window.
	if want := 55 * time.Second; d.RetryAfter != want {
		t.Errorf("retry-after = %v, want %v", d.RetryAfter, want)
	}
}

func TestAdmitAfterRetryAfter(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		l.Admit("client")
	}

	d := l.Admit("client")
	if d.Allowed {
		t.Fatal("expected rejection at the limit")
	}

	clock.advance(d.RetryAfter)
	if d := l.Admit("client"); !d.Allowed {
		t.Fatal("expected admission after waiting out retry-after")
	}
}

func TestRejectionDoesNotConsumeSlot(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Admit("client")
	l.Admit("client")

	// Hammering while rejected must not extend the window.
	for i := 0; i < 10; i++ {
		if d := l.Admit("client"); d.Allowed {
			t.Fatal("expected rejection while window is full")
		}
	}

	clock.advance(time.Minute)
	if d := l.Admit("client"); !d.Allowed {
		t.Fatal("rejected calls must not count toward future windows")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if d := l.Admit("a"); !d.Allowed {
		t.Fatal("first call for key a should pass")
	}
	if d := l.Admit("a"); d.Allowed {
		t.Fatal("second call for key a should be rejected")
	}
	if d := l.Admit("b"); !d.Allowed {
		t.Fatal("key b has its own window")
	}
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	l.Admit("client")
	clock.advance(30 * time.Second)
	l.Admit("client")

	clock.advance(31 * time.Second) // first entry expired, second still live
	if d := l.Admit("client"); !d.Allowed {
		t.Fatal("expected admission once the oldest entry left the window")
	}
	if d := l.Admit("client"); d.Allowed {
		t.Fatal("window should be full again")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{55 * time.Second, 55},
	}
	for _, tt := range tests {
		if got := RetryAfterSeconds(tt.d); got != tt.want {
			t.Errorf("RetryAfterSeconds(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
