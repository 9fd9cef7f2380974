package rl

import "github.com/alejandrodnm/betpool/internal/domain"

// DefaultCapacity bounds a replay buffer when no capacity is configured.
const DefaultCapacity = 10000

// Buffer stores the transitions of one episode, oldest first. When full the
// oldest transition is dropped.
type Buffer struct {
	capacity int
	entries  []domain.Transition
}

// NewBuffer builds an empty buffer holding at most capacity transitions.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append stores a transition.
func (b *Buffer) Append(tr domain.Transition) {
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, tr)
}

// Finalise zeroes every stored reward and appends the terminal transition
// carrying the episode reward, so only the last entry is non-zero.
func (b *Buffer) Finalise(terminal domain.Transition) {
	for i := range b.entries {
		b.entries[i].Reward = 0
	}
	terminal.Done = true
	b.Append(terminal)
}

// Len is the number of stored transitions.
func (b *Buffer) Len() int { return len(b.entries) }

// Entries returns the stored transitions. Callers must not modify them.
func (b *Buffer) Entries() []domain.Transition { return b.entries }

// Reset drops every stored transition.
func (b *Buffer) Reset() { b.entries = b.entries[:0] }
