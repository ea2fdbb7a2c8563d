package capture

import (
	"context"
	"errors"
)

// ErrPermissionBlocked indicates the user denied capture access outright.
// Surfaced with remediation steps; never retried automatically.
var ErrPermissionBlocked = errors.New("capture permission blocked")

// ErrDeviceUnavailable indicates a hardware or driver-level capture failure
// distinct from permission denial.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// IsPermissionBlocked checks if an error means access was denied outright.
func IsPermissionBlocked(err error) bool {
	return errors.Is(err, ErrPermissionBlocked)
}

// IsDeviceUnavailable checks if an error means a device-level failure.
func IsDeviceUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}

// SampleSource is a continuous microphone sample source.
type SampleSource interface {
	// ReadSamples fills p with raw float samples in [-1, 1] and returns the
	// number read. Blocks until samples are available or the source ends;
	// returns io.EOF (or the underlying error) once the track stops.
	ReadSamples(p []float32) (int, error)
}

// FrameSource is a live video frame source.
type FrameSource interface {
	// CaptureFrame grabs the current video frame re-encoded as
	// base64 compressed JPEG data.
	CaptureFrame() (string, error)
}

// MediaStream is a set of live device tracks returned by a Provider.
type MediaStream struct {
	Mic    SampleSource
	Camera FrameSource // nil when video was not requested or not granted

	// StopTracks releases every underlying device track. Called exactly
	// once by the manager; implementations need not be idempotent.
	StopTracks func()
}

// Provider abstracts the device permission/acquisition API so the session
// engine is testable without real hardware.
type Provider interface {
	// GetUserMedia requests the given track kinds together. Errors must be
	// classified as ErrPermissionBlocked or ErrDeviceUnavailable (wrapped
	// is fine) so the manager can drive the audio-only fallback.
	GetUserMedia(ctx context.Context, audio, video bool) (*MediaStream, error)
}

// Context is an acquired capture context. All tracks are stopped exactly
// once on Release; camera absence degrades AudioOnly to true rather than
// failing the session.
type Context struct {
	stream    *MediaStream
	AudioOnly bool

	released chan struct{}
}

// Mic returns the microphone sample source.
func (c *Context) Mic() SampleSource {
	return c.stream.Mic
}

// Camera returns the camera frame source, or nil when audio-only.
func (c *Context) Camera() FrameSource {
	return c.stream.Camera
}

// Released reports whether the context has been released.
func (c *Context) Released() <-chan struct{} {
	return c.released
}
