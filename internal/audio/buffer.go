package audio

import (
	"sync"
)

// SampleBuffer is a thread-safe ring buffer of float32 audio samples.
// The capture manager writes microphone samples as they arrive and reads
// them back out in fixed-size chunks for the outbound stream.
type SampleBuffer struct {
	buffer []float32
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewSampleBuffer creates a new sample buffer holding up to size samples.
func NewSampleBuffer(size int) *SampleBuffer {
	return &SampleBuffer{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write appends samples to the buffer.
// Returns the number of samples written (less than len(samples) if full).
func (sb *SampleBuffer) Write(samples []float32) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples); i++ {
		if (sb.write+1)%sb.size == sb.read {
			break // Buffer full
		}

		sb.buffer[sb.write] = samples[i]
		sb.write = (sb.write + 1) % sb.size
		written++
	}

	return written
}

// Read fills out with buffered samples and returns the number read.
func (sb *SampleBuffer) Read(out []float32) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	read := 0
	for i := 0; i < len(out); i++ {
		if sb.read == sb.write {
			break // Buffer empty
		}

		out[i] = sb.buffer[sb.read]
		sb.read = (sb.read + 1) % sb.size
		read++
	}

	return read
}

// ReadChunk returns a full chunk of exactly n samples, or nil if fewer than
// n samples are buffered. Partial chunks are never returned; the remainder
// stays buffered until the next write completes it.
func (sb *SampleBuffer) ReadChunk(n int) []float32 {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.available() < n {
		return nil
	}

	chunk := make([]float32, n)
	for i := 0; i < n; i++ {
		chunk[i] = sb.buffer[sb.read]
		sb.read = (sb.read + 1) % sb.size
	}
	return chunk
}

// Available returns the number of samples available to read.
func (sb *SampleBuffer) Available() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.available()
}

func (sb *SampleBuffer) available() int {
	if sb.write >= sb.read {
		return sb.write - sb.read
	}
	return sb.size - sb.read + sb.write
}

// Clear discards all buffered samples.
func (sb *SampleBuffer) Clear() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.read = 0
	sb.write = 0
}

// IsEmpty returns true if no samples are buffered.
func (sb *SampleBuffer) IsEmpty() bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.read == sb.write
}
