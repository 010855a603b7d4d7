package core

import "sync"

// RoundLimiter enforces a maximum number of capability rounds per agent turn.
type RoundLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewRoundLimiter creates a new limiter with a max number of rounds.
// If max == 0, unlimited rounds are allowed.
func NewRoundLimiter(max int) *RoundLimiter {
	return &RoundLimiter{max: max}
}

// Increment increases the round counter and reports false once the limit is
// exceeded.
func (rl *RoundLimiter) Increment() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.count++
	return rl.max <= 0 || rl.count <= rl.max
}

// Count returns the number of rounds taken so far.
func (rl *RoundLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.count
}

// Remaining returns how many rounds are left before hitting the limit.
func (rl *RoundLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.max <= 0 {
		return -1 // unlimited
	}

	return rl.max - rl.count
}
