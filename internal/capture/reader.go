package capture

import (
	"context"
	"io"
)

// ReaderProvider adapts a raw 16-bit little-endian PCM stream (a file, a
// pipe, a network feed) into a microphone-only capture device. Video is
// never granted, so sessions over it always run audio-only. Useful for
// local runs and tests without real hardware.
type ReaderProvider struct {
	R io.Reader
}

// GetUserMedia implements Provider. Video requests degrade: the combined
// request fails with ErrDeviceUnavailable so the manager falls back to
// audio-only, mirroring a machine with a microphone but no camera.
func (p *ReaderProvider) GetUserMedia(ctx context.Context, audio, video bool) (*MediaStream, error) {
	if video {
		return nil, ErrDeviceUnavailable
	}
	if p.R == nil {
		return nil, ErrDeviceUnavailable
	}
	return &MediaStream{
		Mic:        &readerSource{r: p.R},
		StopTracks: func() {},
	}, nil
}

type readerSource struct {
	r    io.Reader
	rest []byte
}

// ReadSamples decodes s16le bytes from the reader into float samples.
func (s *readerSource) ReadSamples(p []float32) (int, error) {
	raw := make([]byte, len(p)*2-len(s.rest))
	n, err := s.r.Read(raw)
	data := append(s.rest, raw[:n]...)

	frames := len(data) / 2
	for i := 0; i < frames; i++ {
		sample := int16(data[i*2]) | int16(data[i*2+1])<<8
		p[i] = float32(sample) / 32768.0
	}
	s.rest = append(s.rest[:0], data[frames*2:]...)

	if frames == 0 && err != nil {
		return 0, err
	}
	return frames, nil
}
