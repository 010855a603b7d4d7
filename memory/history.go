package memory

import (
	"sync"

	"github.com/jcqin2022/AIAssistant/core"
)

// DefaultMaxMessages is the capacity used by agents that do not configure one.
const DefaultMaxMessages = 20

// History is an ordered, bounded message log.
//
// Invariant: after any Append, Len() <= Max() (when Max() > 0) and the
// retained messages are the most recent ones in their original order.
//
// Concurrency: protected by RWMutex.
type History struct {
	mu       sync.RWMutex
	max      int
	messages []core.Message
}

// NewHistory creates a history holding at most max messages. A max <= 0
// disables eviction.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Append adds messages in order, evicting the oldest entries beyond capacity.
func (h *History) Append(msgs ...core.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
	if h.max > 0 && len(h.messages) > h.max {
		drop := len(h.messages) - h.max
		kept := make([]core.Message, h.max)
		copy(kept, h.messages[drop:])
		h.messages = kept
	}
}

// Messages returns a copy of the retained messages, oldest first.
func (h *History) Messages() []core.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]core.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Max returns the configured capacity.
func (h *History) Max() int { return h.max }

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
