package server

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestMultiLimiterAllow(t *testing.T) {
	ml := newMultiLimiter(rate.Limit(2), 2, time.Minute)
	if !ml.allow("alice") {
		t.Fatal("first allow should pass")
	}
	if !ml.allow("alice") {
		t.Fatal("second allow should pass")
	}
	if ml.allow("alice") {
		t.Fatal("third allow should be rate limited")
	}
	if !ml.allow("bob") {
		t.Fatal("other keys keep their own bucket")
	}
}

func TestMultiLimiterSweepsIdleKeysPeriodically(t *testing.T) {
	ml := newMultiLimiter(rate.Limit(10), 10, 50*time.Millisecond)
	ml.allow("alice")
	ml.allow("bob")
	if got := ml.size(); got != 2 {
		t.Fatalf("size = %d, want 2", got)
	}

	// Within the sweep interval idle keys stay put.
	ml.allow("carol")
	if got := ml.size(); got != 3 {
		t.Fatalf("size before interval = %d, want 3", got)
	}

	time.Sleep(80 * time.Millisecond)
	ml.allow("carol")
	if got := ml.size(); got != 1 {
		t.Fatalf("size after sweep = %d, want 1", got)
	}
}
