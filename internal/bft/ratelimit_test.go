package bft

import "testing"

func TestMessageRateLimiterAllowsWithinBurst(t *testing.T) {
	l := NewMessageRateLimiter(1, 3)
	for i := 0; i < 3; i++ {
		if !l.Allow("agent-1") {
			t.Fatalf("expected message %d to be allowed within burst", i)
		}
	}
}

func TestMessageRateLimiterBlocksBeyondBurst(t *testing.T) {
	l := NewMessageRateLimiter(0.001, 2)
	l.Allow("agent-1")
	l.Allow("agent-1")
	if l.Allow("agent-1") {
		t.Fatal("expected third message to be throttled")
	}
}

func TestMessageRateLimiterTracksAgentsIndependently(t *testing.T) {
	l := NewMessageRateLimiter(0.001, 1)
	if !l.Allow("agent-1") {
		t.Fatal("expected agent-1's first message to be allowed")
	}
	if !l.Allow("agent-2") {
		t.Fatal("expected agent-2 to have its own independent bucket")
	}
}
