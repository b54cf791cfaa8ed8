package bft

import (
	"container/list"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SwarmMessage is the canonical payload authenticated by Authenticator.
type SwarmMessage struct {
	Payload   json.RawMessage `json:"payload"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id,omitempty"`
}

// AuthenticatedMessage wraps a SwarmMessage with its HMAC.
type AuthenticatedMessage struct {
	Message SwarmMessage `json:"message"`
	MAC     string       `json:"mac"` // hex-encoded HMAC-SHA256
}

// nonceLRU is a small bounded set of recently seen nonces, evicting the
// oldest entry once capacity is exceeded, to bound memory while still
// rejecting replays within the retention window.
type nonceLRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newNonceLRU(capacity int) *nonceLRU {
	return &nonceLRU{capacity: capacity, order: list.New(), index: map[string]*list.Element{}}
}

// seenOrRecord reports whether nonce was already recorded; if not, it
// records it and evicts the oldest entry if over capacity.
func (l *nonceLRU) seenOrRecord(nonce string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[nonce]; exists {
		return true
	}
	elem := l.order.PushBack(nonce)
	l.index[nonce] = elem
	if l.order.Len() > l.capacity {
		oldest := l.order.Front()
		l.order.Remove(oldest)
		delete(l.index, oldest.Value.(string))
	}
	return false
}

// Authenticator signs and verifies SwarmMessages with a shared HMAC-SHA256
// key, rejecting replayed nonces and out-of-window timestamps.
type Authenticator struct {
	key             []byte
	validityWindow  time.Duration
	nonces          *nonceLRU
	now             func() time.Time
	rateLimiter     *MessageRateLimiter
}

// SetRateLimiter attaches a per-agent message-rate limiter; Verify rejects
// messages from an agent that has exceeded it before spending any work on
// MAC or replay checks. A nil limiter (the default) disables throttling.
func (a *Authenticator) SetRateLimiter(l *MessageRateLimiter) {
	a.rateLimiter = l
}

// NewAuthenticator builds an authenticator with a shared key, a validity
// window for message freshness, and a bounded nonce replay cache.
func NewAuthenticator(key []byte, validityWindow time.Duration, nonceCacheSize int) *Authenticator {
	return &Authenticator{
		key: key, validityWindow: validityWindow,
		nonces: newNonceLRU(nonceCacheSize), now: time.Now,
	}
}

// Sign computes the MAC over msg's canonical JSON encoding.
func (a *Authenticator) Sign(msg SwarmMessage) (AuthenticatedMessage, error) {
	mac, err := a.computeMAC(msg)
	if err != nil {
		return AuthenticatedMessage{}, err
	}
	return AuthenticatedMessage{Message: msg, MAC: mac}, nil
}

func (a *Authenticator) computeMAC(msg SwarmMessage) (string, error) {
	canonical, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("bft: canonicalize message: %w", err)
	}
	mac := hmac.New(sha256.New, a.key)
	mac.Write(canonical)
	return fmt.Sprintf("%x", mac.Sum(nil)), nil
}

// ErrReplayedNonce, ErrStaleTimestamp, and ErrInvalidMAC classify why
// Verify rejected a message.
var (
	ErrReplayedNonce  = fmt.Errorf("bft: nonce already used")
	ErrStaleTimestamp = fmt.Errorf("bft: timestamp outside validity window")
	ErrInvalidMAC     = fmt.Errorf("bft: MAC verification failed")
	ErrRateLimited    = fmt.Errorf("bft: agent exceeded message rate limit")
)

// Verify checks the sender's message rate, MAC correctness (constant-time),
// nonce freshness, and the timestamp window [-10s, +validityWindow].
func (a *Authenticator) Verify(am AuthenticatedMessage) error {
	if a.rateLimiter != nil && am.Message.AgentID != "" && !a.rateLimiter.Allow(am.Message.AgentID) {
		return ErrRateLimited
	}

	expected, err := a.computeMAC(am.Message)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(am.MAC)) {
		return ErrInvalidMAC
	}

	now := a.now()
	earliest := now.Add(-10 * time.Second)
	latest := now.Add(a.validityWindow)
	if am.Message.Timestamp.Before(earliest) || am.Message.Timestamp.After(latest) {
		return ErrStaleTimestamp
	}

	if a.nonces.seenOrRecord(am.Message.Nonce) {
		return ErrReplayedNonce
	}
	return nil
}
