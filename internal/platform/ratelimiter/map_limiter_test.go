package ratelimiter

import (
	"testing"
	"time"
)

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *MapLimiter
	if !l.Allow("peer", time.Now()) {
		t.Fatal("nil limiter should allow")
	}
	if New(0, 10, time.Minute) != nil {
		t.Fatal("zero rate should disable the limiter")
	}
}

func TestBurstThenThrottle(t *testing.T) {
	l := New(1, 3, time.Minute)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if !l.Allow("peer", now) {
			t.Fatalf("burst request %d denied", i)
		}
	}
	if l.Allow("peer", now) {
		t.Fatal("request past burst should be denied")
	}
	if !l.Allow("other", now) {
		t.Fatal("independent key should have its own bucket")
	}
	if !l.Allow("peer", now.Add(2*time.Second)) {
		t.Fatal("bucket should refill over time")
	}
}
