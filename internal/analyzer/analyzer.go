// Package analyzer turns a finished interview transcript into a structured
// assessment report.
package analyzer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/careerpal/interview-gateway/internal/gemini"
	"github.com/careerpal/interview-gateway/internal/session"
)

const evaluationPrompt = "Evaluate this interview transcript professionally in plain-text JSON format without any markdown or styling symbols: "

// FallbackSummary is the degraded report summary used when analysis fails.
const FallbackSummary = "Could not generate assessment report."

// Analyzer issues one structured request per finished session. It never
// retries and never fails: any transport or parse problem degrades to the
// fallback report, because a session with a transcript must always end
// with some report.
type Analyzer struct {
	client *gemini.Client
	model  string
	logger zerolog.Logger
}

// New builds an analyzer against the given one-shot model.
func New(client *gemini.Client, model string, logger zerolog.Logger) *Analyzer {
	return &Analyzer{client: client, model: model, logger: logger}
}

// Flatten serializes a transcript into one line per entry.
func Flatten(transcript []session.TranscriptEntry) string {
	lines := make([]string, len(transcript))
	for i, entry := range transcript {
		lines[i] = string(entry.Role) + ": " + entry.Text
	}
	return strings.Join(lines, "\n")
}

// Analyze evaluates the transcript. The returned report is never nil.
func (a *Analyzer) Analyze(ctx context.Context, transcript []session.TranscriptEntry) *session.AssessmentReport {
	req := &gemini.GenerateRequest{
		Contents: []gemini.Content{{
			Role:  "user",
			Parts: []gemini.Part{{Text: evaluationPrompt + Flatten(transcript)}},
		}},
		GenerationConfig: &gemini.GenerationConfig{ResponseMimeType: "application/json"},
	}

	resp, err := a.client.GenerateContent(ctx, a.model, req)
	if err != nil {
		a.logger.Error().Err(err).Msg("assessment request failed")
		return fallbackReport()
	}

	var report session.AssessmentReport
	if err := json.Unmarshal([]byte(resp.Text()), &report); err != nil {
		a.logger.Error().Err(err).Msg("assessment response was not valid JSON")
		return fallbackReport()
	}
	if report.Strengths == nil {
		report.Strengths = []string{}
	}
	if report.Improvements == nil {
		report.Improvements = []string{}
	}
	return &report
}

func fallbackReport() *session.AssessmentReport {
	return &session.AssessmentReport{
		Summary:      FallbackSummary,
		Strengths:    []string{},
		Improvements: []string{},
	}
}
