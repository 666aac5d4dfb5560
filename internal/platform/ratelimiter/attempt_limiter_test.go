package ratelimiter

import (
	"testing"
	"time"
)

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *AttemptLimiter
	if !l.Allow("peer", time.Now()) {
		t.Fatal("nil limiter must allow")
	}
	if New(0, 5, 0) != nil {
		t.Fatal("invalid rps must return nil limiter")
	}
}

func TestBurstThenThrottle(t *testing.T) {
	l := New(0.001, 2, time.Minute)
	now := time.Now()
	if !l.Allow("peer", now) || !l.Allow("peer", now) {
		t.Fatal("burst attempts must be allowed")
	}
	if l.Allow("peer", now) {
		t.Fatal("attempt beyond burst must be throttled")
	}
	if !l.Allow("other-peer", now) {
		t.Fatal("limits are per key")
	}
}

func TestTokensRefillOverTime(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	if !l.Allow("peer", now) {
		t.Fatal("first attempt must pass")
	}
	if l.Allow("peer", now) {
		t.Fatal("second immediate attempt must be throttled")
	}
	if !l.Allow("peer", now.Add(2*time.Second)) {
		t.Fatal("attempt after refill must pass")
	}
}

func TestEmptyKeyBypassesLimiter(t *testing.T) {
	l := New(0.001, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !l.Allow("", now) {
			t.Fatal("empty keys are not throttled")
		}
	}
}
