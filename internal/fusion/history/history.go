// Package history keeps the most recent frames of a sequence in a bounded
// ring buffer so the pipeline can pair each new frame with its predecessor.
package history

import (
	"github.com/banshee-data/collision.report/internal/fusion"
)

// DefaultCapacity holds one frame pair.
const DefaultCapacity = 2

// Buffer is a sliding window over the newest frames. It is not safe for
// concurrent use.
type Buffer struct {
	frames   []*fusion.Frame
	capacity int
	head     int // next write position
	size     int
}

// New creates a buffer holding up to capacity frames.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		frames:   make([]*fusion.Frame, capacity),
		capacity: capacity,
	}
}

// Push stores frame, evicting the oldest when full.
func (b *Buffer) Push(frame *fusion.Frame) {
	b.frames[b.head] = frame
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Previous returns the frame n steps back: Previous(1) is the newest frame,
// Previous(2) the one before. It returns nil when no such frame is held.
func (b *Buffer) Previous(n int) *fusion.Frame {
	if n < 1 || n > b.size {
		return nil
	}
	return b.frames[(b.head-n+b.capacity)%b.capacity]
}

// Latest is Previous(1).
func (b *Buffer) Latest() *fusion.Frame { return b.Previous(1) }

// Pair returns the two newest frames, oldest first, once two are held.
func (b *Buffer) Pair() (prev, curr *fusion.Frame, ok bool) {
	if b.size < 2 {
		return nil, nil, false
	}
	return b.Previous(2), b.Previous(1), true
}

// Len returns the number of frames held.
func (b *Buffer) Len() int { return b.size }

// Cap returns the maximum number of frames held.
func (b *Buffer) Cap() int { return b.capacity }

// Clear drops every frame.
func (b *Buffer) Clear() {
	for i := range b.frames {
		b.frames[i] = nil
	}
	b.head = 0
	b.size = 0
}

// All returns the held frames from oldest to newest.
func (b *Buffer) All() []*fusion.Frame {
	if b.size == 0 {
		return nil
	}
	out := make([]*fusion.Frame, b.size)
	for i := range out {
		out[i] = b.frames[(b.head-b.size+i+b.capacity)%b.capacity]
	}
	return out
}

// IntervalSeconds returns the timestamp difference between the two newest
// frames, or 0 when fewer than two are held.
func (b *Buffer) IntervalSeconds() float64 {
	prev, curr, ok := b.Pair()
	if !ok {
		return 0
	}
	return curr.Timestamp.Sub(prev.Timestamp).Seconds()
}
