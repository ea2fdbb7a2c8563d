package session

import (
	"context"
	"errors"

	"github.com/careerpal/interview-gateway/internal/gemini"
)

// State is the lifecycle state of an interview session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ErrSessionActive is returned by Start when a session is already running.
var ErrSessionActive = errors.New("session already in progress")

// ErrSessionStopped is returned by Start when Stop ended the session while
// the connection was still being established.
var ErrSessionStopped = errors.New("session stopped while connecting")

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// TranscriptEntry is one transcription fragment. The transcript is an
// append-only sequence in event arrival order; consecutive entries from the
// same role are normal because transcription arrives in fragments.
type TranscriptEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// AssessmentReport is the structured outcome of a completed interview.
type AssessmentReport struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Conn is an open live connection to the conversational endpoint.
// Events closes when the connection ends; Err then reports whether the
// closure was abnormal.
type Conn interface {
	SendAudio(data string) error
	SendFrame(data string) error
	Events() <-chan gemini.ServerEvent
	Close() error
	Err() error
}

// Transport opens live connections. Injected so the engine is testable
// without the network.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// Analyzer produces an assessment report from a finished transcript.
// Implementations never fail; they degrade to a fallback report instead.
type Analyzer interface {
	Analyze(ctx context.Context, transcript []TranscriptEntry) *AssessmentReport
}

// Archiver persists the session outcome after teardown.
type Archiver interface {
	SaveTranscript(ctx context.Context, transcript []TranscriptEntry) error
	SaveReport(ctx context.Context, report *AssessmentReport) error
}
