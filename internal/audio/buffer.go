package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring that decouples a producer (the
// dictation websocket read loop) from a consumer (the streaming STT
// writer). Writes that exceed the free space are truncated.
type RingBuffer struct {
	mu     sync.Mutex
	buffer []byte
	size   int
	read   int
	write  int
	ready  chan struct{}
}

// NewRingBuffer creates a ring buffer holding up to size-1 bytes.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
		ready:  make(chan struct{}, 1),
	}
}

// Write copies data into the buffer and returns the number of bytes
// stored, which is less than len(data) when the buffer fills.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()

	free := rb.size - rb.available() - 1
	if len(data) > free {
		data = data[:free]
	}

	written := 0
	for written < len(data) {
		n := copy(rb.buffer[rb.write:], data[written:])
		rb.write = (rb.write + n) % rb.size
		written += n
	}
	rb.mu.Unlock()

	if written > 0 {
		select {
		case rb.ready <- struct{}{}:
		default:
		}
	}
	return written
}

// Read copies up to len(data) buffered bytes into data and returns the
// count. It does not block; use Ready to wait for content.
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(data) && rb.read != rb.write {
		end := rb.write
		if end < rb.read {
			end = rb.size
		}
		n := copy(data[read:], rb.buffer[rb.read:end])
		rb.read = (rb.read + n) % rb.size
		read += n
	}
	return read
}

// Ready returns a channel that receives a signal after data is written.
func (rb *RingBuffer) Ready() <-chan struct{} {
	return rb.ready
}

// Available returns the number of buffered bytes.
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Clear discards all buffered bytes.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
}
