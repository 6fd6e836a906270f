package server

import (
	"fmt"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// RateLimiter implements per-connection rate limiting with a sliding window.
// One abusive client must not be able to stall the relay for every group.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time // sessionID → timestamps of recent messages
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow checks whether a session may send another message. Timestamps
// outside the window are discarded as a side effect, keeping memory bounded.
func (r *RateLimiter) Allow(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[sessionID]
	valid := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[sessionID] = valid
		return false
	}

	r.requests[sessionID] = append(valid, now)
	return true
}

// RemoveConnection drops rate limit state for a session. Called on
// disconnect so dead sessions don't accumulate.
func (r *RateLimiter) RemoveConnection(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, sessionID)
}

// ValidateMessageType returns a clear error for typos/unknown event names.
func ValidateMessageType(msgType string) error {
	validTypes := map[string]bool{
		"ping":             true,
		"createGroup":      true,
		"joinGroup":        true,
		"setProficiency":   true,
		"startGameRequest": true,
		"updateScore":      true,
	}

	if !validTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

// ValidateNickname enforces the display-name contract: 1-15 printable
// characters. Clients reject these before sending, but a malformed request
// arriving anyway must not get past the handlers.
func ValidateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("NICKNAME_INVALID: Nickname cannot be empty")
	}
	if utf8.RuneCountInString(nickname) > 15 {
		return fmt.Errorf("NICKNAME_INVALID: Nickname too long (max 15 characters)")
	}
	for _, ch := range nickname {
		if !unicode.IsPrint(ch) {
			return fmt.Errorf("NICKNAME_INVALID: Nickname must contain only printable characters")
		}
	}
	return nil
}
