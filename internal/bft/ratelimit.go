package bft

import (
	"sync"

	"golang.org/x/time/rate"
)

// MessageRateLimiter throttles inbound SwarmMessages per agent, generalizing
// the teacher's authed-dispatch window cap from "LLM provider calls per
// window" to "consensus messages per agent per second": a malicious or
// malfunctioning agent flooding prepare/commit votes gets throttled before
// it ever reaches fault detection, rather than being scored as faulty for
// every rejected message.
type MessageRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewMessageRateLimiter builds a limiter allowing rps messages/sec per
// agent, with a burst allowance of burst messages.
func NewMessageRateLimiter(rps float64, burst int) *MessageRateLimiter {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &MessageRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (m *MessageRateLimiter) limiterFor(agentID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[agentID]
	if !ok {
		l = rate.NewLimiter(m.rps, m.burst)
		m.limiters[agentID] = l
	}
	return l
}

// Allow reports whether agentID may send another message right now,
// consuming a token if so.
func (m *MessageRateLimiter) Allow(agentID string) bool {
	return m.limiterFor(agentID).Allow()
}
