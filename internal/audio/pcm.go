package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedAudio indicates an inbound audio payload whose byte length is
// inconsistent with the declared channel count. Such payloads are dropped
// rather than played as corrupted audio.
var ErrMalformedAudio = errors.New("malformed audio data")

// Buffer holds decoded PCM samples, de-interleaved per channel.
type Buffer struct {
	// Channels holds one sample slice per channel; all slices have equal length.
	Channels   [][]float32
	SampleRate int
}

// FrameCount returns the number of sample frames per channel.
func (b *Buffer) FrameCount() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.FrameCount()) / float64(b.SampleRate) * float64(time.Second))
}

// Encode converts floating-point samples in [-1, 1] to base64-encoded
// 16-bit signed little-endian PCM. The conversion is lossy (16-bit
// quantization) and deterministic for a given input.
func Encode(samples []float32) string {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		// Truncate to the int16 range; inputs at exactly +1.0 would
		// otherwise wrap around to -32768.
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode: base64 to 16-bit little-endian PCM, de-interleaved
// by channel count and rescaled to float samples by dividing by 32768.
// Fails with ErrMalformedAudio if the decoded byte length is not a multiple
// of 2*channels.
func Decode(encoded string, channels, sampleRate int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedAudio, channels)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}

	return DecodeBytes(data, channels, sampleRate)
}

// DecodeBytes de-interleaves raw 16-bit little-endian PCM bytes into a Buffer.
func DecodeBytes(data []byte, channels, sampleRate int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedAudio, channels)
	}
	if len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedAudio, len(data), 2*channels)
	}

	frames := len(data) / (2 * channels)
	buf := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for ch := 0; ch < channels; ch++ {
		buf.Channels[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sample := int16(data[off]) | int16(data[off+1])<<8
			buf.Channels[ch][i] = float32(sample) / 32768.0
		}
	}

	return buf, nil
}
