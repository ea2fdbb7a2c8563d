package gateway

import "github.com/careerpal/interview-gateway/internal/session"

// Client -> server events.
const (
	eventStart = "start"
	eventMedia = "media"
	eventFrame = "frame"
	eventStop  = "stop"
	eventError = "error"
)

// Server -> client events.
const (
	eventAudio      = "audio"
	eventTranscript = "transcript"
	eventStatus     = "status"
	eventReport     = "report"
)

// Error codes surfaced to the client.
const (
	codePermissionBlocked = "permission_blocked"
	codeDeviceUnavailable = "device_unavailable"
	codeConnectFailed     = "connect_failed"
	codeSessionActive     = "session_active"
)

// ClientMessage is the envelope for browser-originated events.
type ClientMessage struct {
	Event string        `json:"event"`
	Start *StartPayload `json:"start,omitempty"`
	Media *MediaPayload `json:"media,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
}

// StartPayload announces a new interview and the browser's capabilities.
type StartPayload struct {
	Video bool `json:"video"`
}

// MediaPayload carries one base64 media chunk: s16le PCM for audio events,
// JPEG for frame events.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// ErrorPayload reports a failure in either direction.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TranscriptPayload is one transcript entry pushed to the browser.
type TranscriptPayload struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// StatusPayload reflects the session lifecycle to the browser.
type StatusPayload struct {
	State     string `json:"state"`
	Message   string `json:"message"`
	AudioOnly bool   `json:"audioOnly"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// ServerMessage is the envelope for gateway-originated events. Audio events
// carry the playback start offset so the browser can schedule gaplessly.
type ServerMessage struct {
	Event      string                    `json:"event"`
	Media      *MediaPayload             `json:"media,omitempty"`
	StartAtMs  int64                     `json:"startAt,omitempty"`
	Transcript *TranscriptPayload        `json:"transcript,omitempty"`
	Status     *StatusPayload            `json:"status,omitempty"`
	Report     *session.AssessmentReport `json:"report,omitempty"`
	Error      *ErrorPayload             `json:"error,omitempty"`
}
