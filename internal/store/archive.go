package store

import (
	"context"
	"errors"

	"github.com/careerpal/interview-gateway/internal/session"
)

// SessionArchive adapts the store to the session engine's persistence
// contract.
type SessionArchive struct {
	store *Store
}

// NewSessionArchive wraps a store for session artifact persistence.
func NewSessionArchive(s *Store) *SessionArchive {
	return &SessionArchive{store: s}
}

func (a *SessionArchive) SaveTranscript(ctx context.Context, transcript []session.TranscriptEntry) error {
	return a.store.Save(ctx, KeyTranscripts, transcript)
}

func (a *SessionArchive) SaveReport(ctx context.Context, report *session.AssessmentReport) error {
	return a.store.Save(ctx, KeyReport, report)
}

// LoadTranscript returns the persisted transcript, or nil when absent.
func (a *SessionArchive) LoadTranscript(ctx context.Context) ([]session.TranscriptEntry, error) {
	var transcript []session.TranscriptEntry
	if err := a.store.Load(ctx, KeyTranscripts, &transcript); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return transcript, nil
}

// LoadReport returns the persisted report, or nil when absent.
func (a *SessionArchive) LoadReport(ctx context.Context) (*session.AssessmentReport, error) {
	var report session.AssessmentReport
	if err := a.store.Load(ctx, KeyReport, &report); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

// Wipe clears the transcript and report together.
func (a *SessionArchive) Wipe(ctx context.Context) error {
	return a.store.Clear(ctx, KeyTranscripts, KeyReport)
}
