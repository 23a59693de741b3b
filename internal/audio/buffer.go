package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring for audio that arrives before the
// transcriber is ready. When full it keeps the oldest bytes and refuses new
// ones, so a container header written first is never overwritten.
type RingBuffer struct {
	buffer  []byte
	read    int
	count   int
	dropped int64
	mu      sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding up to capacity bytes
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &RingBuffer{buffer: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the number of bytes
// stored. Bytes that do not fit are counted as dropped.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), len(rb.buffer)-rb.count)
	for i := 0; i < n; i++ {
		rb.buffer[(rb.read+rb.count+i)%len(rb.buffer)] = data[i]
	}
	rb.count += n
	rb.dropped += int64(len(data) - n)
	return n
}

// Read copies buffered bytes into data in write order and returns the count
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.readLocked(data)
}

func (rb *RingBuffer) readLocked(data []byte) int {
	n := min(len(data), rb.count)
	for i := 0; i < n; i++ {
		data[i] = rb.buffer[(rb.read+i)%len(rb.buffer)]
	}
	if n > 0 {
		rb.read = (rb.read + n) % len(rb.buffer)
	}
	rb.count -= n
	return n
}

// Drain returns every buffered byte in order and empties the buffer.
// It returns nil when nothing is buffered.
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		return nil
	}
	out := make([]byte, rb.count)
	rb.readLocked(out)
	rb.read = 0
	return out
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Space returns the number of bytes that can still be written
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.buffer) - rb.count
}

// Dropped returns the total number of bytes refused because the buffer was full
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.dropped
}

// Clear empties the buffer and resets the drop counter
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.count = 0
	rb.dropped = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count == 0
}

// IsFull returns true if no more bytes can be written
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count == len(rb.buffer)
}
