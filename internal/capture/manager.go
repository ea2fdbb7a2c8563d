package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/careerpal/interview-gateway/internal/audio"
	"github.com/rs/zerolog"
)

// Manager acquires and releases capture contexts and runs the two periodic
// producer loops (sample streaming and frame sampling) over them.
type Manager struct {
	provider Provider
	logger   zerolog.Logger

	// ChunkSamples is the fixed outbound audio chunk size in samples.
	ChunkSamples int

	mu       sync.Mutex
	contexts map[*Context]struct{}
}

// NewManager creates a capture manager over the given provider.
func NewManager(provider Provider, chunkSamples int, logger zerolog.Logger) *Manager {
	return &Manager{
		provider:     provider,
		logger:       logger,
		ChunkSamples: chunkSamples,
		contexts:     make(map[*Context]struct{}),
	}
}

// Acquire requests microphone and camera together. If the combined request
// is denied or the camera fails, it retries microphone-only and degrades to
// audio-only capture. Fails with ErrPermissionBlocked when the microphone is
// denied too, or ErrDeviceUnavailable on any other device failure.
func (m *Manager) Acquire(ctx context.Context) (*Context, error) {
	stream, err := m.provider.GetUserMedia(ctx, true, true)
	if err == nil {
		return m.track(stream, stream.Camera == nil), nil
	}

	m.logger.Warn().Err(err).Msg("Combined audio+video capture failed, retrying audio-only")

	stream, audioErr := m.provider.GetUserMedia(ctx, true, false)
	if audioErr == nil {
		return m.track(stream, true), nil
	}

	if errors.Is(audioErr, ErrPermissionBlocked) {
		return nil, fmt.Errorf("microphone access denied: %w", ErrPermissionBlocked)
	}
	return nil, fmt.Errorf("microphone acquisition failed: %w", audioErr)
}

func (m *Manager) track(stream *MediaStream, audioOnly bool) *Context {
	c := &Context{
		stream:    stream,
		AudioOnly: audioOnly,
		released:  make(chan struct{}),
	}
	m.mu.Lock()
	m.contexts[c] = struct{}{}
	m.mu.Unlock()
	return c
}

// Release stops every media track of the context. Idempotent; safe to call
// even if acquisition partially failed.
func (m *Manager) Release(c *Context) {
	if c == nil {
		return
	}

	m.mu.Lock()
	_, tracked := m.contexts[c]
	delete(m.contexts, c)
	m.mu.Unlock()

	if !tracked {
		return // already released
	}

	close(c.released)
	if c.stream != nil && c.stream.StopTracks != nil {
		c.stream.StopTracks()
	}
}

// StreamSamples continuously delivers fixed-size blocks of raw microphone
// samples to onChunk until the context is released or ctx is cancelled.
// Blocks the calling goroutine; run it on its own goroutine.
func (m *Manager) StreamSamples(ctx context.Context, c *Context, onChunk func([]float32)) error {
	chunkSize := m.ChunkSamples
	buf := audio.NewSampleBuffer(chunkSize * 4)
	scratch := make([]float32, chunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Released():
			return nil
		default:
		}

		n, err := c.Mic().ReadSamples(scratch)
		if n > 0 {
			buf.Write(scratch[:n])
			for {
				chunk := buf.ReadChunk(chunkSize)
				if chunk == nil {
					break
				}
				onChunk(chunk)
			}
		}
		if err != nil {
			// The track ended; whatever is buffered is below one chunk
			// and is dropped with it.
			return nil
		}
	}
}

// SampleFrames invokes onFrame with a JPEG-encoded still every interval
// until the context is released or ctx is cancelled. No-op for audio-only
// contexts. Blocks the calling goroutine; run it on its own goroutine.
func (m *Manager) SampleFrames(ctx context.Context, c *Context, interval time.Duration, onFrame func(jpegBase64 string)) {
	if c.AudioOnly || c.Camera() == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Released():
			return
		case <-ticker.C:
			frame, err := c.Camera().CaptureFrame()
			if err != nil {
				m.logger.Debug().Err(err).Msg("Frame capture failed, skipping frame")
				continue
			}
			onFrame(frame)
		}
	}
}
