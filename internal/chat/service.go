// Package chat implements the career chat collaborator: request/response
// against the one-shot model with search grounding and durable history.
package chat

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careerpal/interview-gateway/internal/gemini"
	"github.com/careerpal/interview-gateway/internal/observability"
	"github.com/careerpal/interview-gateway/internal/resilience"
	"github.com/careerpal/interview-gateway/internal/store"
)

const baseInstruction = `CORE IDENTITY: You are a warm, professional AI career assistant.

STRICT FORMATTING REQUIREMENTS:
- NEVER use markdown symbols. This means no asterisks (*), no underscores (_), no hash symbols (#), and no backticks.
- DO NOT bold or italicize any words.
- DO NOT use emojis or graphical icons.
- DO NOT use theatrical stage directions like [smiles] or italics for actions.
- Use simple plain text only.
- Use double line breaks between paragraphs to ensure a clean, airy spacing.
- For lists, use simple numbers (1. Item) or plain dashes (- Item) without any bolding or markdown.
- Your output must resemble a clean, high-end professional transcript.
- Focus on being concise, helpful, and direct.`

const tacticalInstruction = baseInstruction + `
GOAL: Help the user polish their resume and career assets through clear, plain-text dialogue.`

const strategicInstruction = baseInstruction + `
GOAL: Provide deep career strategy and industry insights using a clean, professional communication style. Use Google Search to find relevant trends but report them in plain text.`

const (
	defaultPrompt = "Hey! I'd like some help with my career goals today."

	genericErrorText   = "I am having trouble connecting right now. Please try your message again shortly."
	quotaErrorText     = "The system has reached its current usage limit. Please try again later."
	emptyResponseText  = "I encountered an error processing your request. Please try again."
	historyWindowDepth = 10
)

// SourceLink is one grounded web reference attached to a reply.
type SourceLink struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one chat turn. Error replies are flagged so they can be
// excluded from the model-visible history window.
type Message struct {
	ID            string       `json:"id"`
	Role          string       `json:"role"` // "user" or "assistant"
	Text          string       `json:"text"`
	GroundingURLs []SourceLink `json:"groundingUrls,omitempty"`
	IsError       bool         `json:"isError,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Attachment is an inline file (typically a resume) sent with a message.
type Attachment struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

// Config tunes the chat service.
type Config struct {
	Model      string
	HistoryCap int
	Retry      *resilience.RetryConfig
}

// Service is the career chat collaborator.
type Service struct {
	client *gemini.Client
	store  *store.Store
	cfg    Config
	logger zerolog.Logger
}

// New builds a chat service.
func New(client *gemini.Client, st *store.Store, cfg Config, logger zerolog.Logger) *Service {
	return &Service{client: client, store: st, cfg: cfg, logger: logger}
}

// History returns the persisted chat history, oldest first.
func (s *Service) History(ctx context.Context) ([]Message, error) {
	var messages []Message
	if err := s.store.Load(ctx, store.KeyChatHistory, &messages); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return messages, nil
}

// Reset clears the persisted chat history.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Clear(ctx, store.KeyChatHistory)
}

// Send submits one user turn and returns the assistant reply. Model
// failures never propagate; they become a user-visible error reply that is
// persisted but excluded from future history windows. Quota errors are the
// only retried class.
func (s *Service) Send(ctx context.Context, text string, attachment *Attachment, strategic bool) (Message, error) {
	history, err := s.History(ctx)
	if err != nil {
		return Message{}, err
	}

	userText := text
	if userText == "" && attachment != nil {
		userText = "Uploaded Asset: " + attachment.Name
	}
	userMessage := Message{
		ID:        uuid.New().String(),
		Role:      "user",
		Text:      userText,
		Timestamp: time.Now(),
	}

	reply := s.generate(ctx, history, text, attachment, strategic)

	updated := append(history, userMessage, reply)
	if len(updated) > s.cfg.HistoryCap {
		updated = updated[len(updated)-s.cfg.HistoryCap:]
	}
	if err := s.store.Save(ctx, store.KeyChatHistory, updated); err != nil {
		return Message{}, err
	}
	return reply, nil
}

func (s *Service) generate(ctx context.Context, history []Message, text string, attachment *Attachment, strategic bool) Message {
	instruction := tacticalInstruction
	if strategic {
		instruction = strategicInstruction
	}

	prompt := text
	if prompt == "" {
		prompt = defaultPrompt
	}
	parts := []gemini.Part{{Text: prompt}}
	if attachment != nil {
		parts = append(parts, gemini.Part{
			InlineData: &gemini.Blob{MimeType: attachment.MimeType, Data: attachment.Data},
		})
	}

	req := &gemini.GenerateRequest{
		Contents:          append(historyContents(history), gemini.Content{Role: "user", Parts: parts}),
		SystemInstruction: &gemini.Content{Parts: []gemini.Part{{Text: instruction}}},
		Tools:             []gemini.Tool{{GoogleSearch: &struct{}{}}},
	}

	var resp *gemini.GenerateResponse
	err := resilience.Retry(ctx, func() error {
		var reqErr error
		resp, reqErr = s.client.GenerateContent(ctx, s.cfg.Model, req)
		return reqErr
	}, s.cfg.Retry, gemini.IsRateLimited)
	if err != nil {
		s.logger.Error().Err(err).Msg("chat request failed")
		observability.RecordChatRequest(false)
		text := genericErrorText
		if gemini.IsRateLimited(err) {
			text = quotaErrorText
		}
		return Message{
			ID:        uuid.New().String(),
			Role:      "assistant",
			Text:      text,
			IsError:   true,
			Timestamp: time.Now(),
		}
	}
	observability.RecordChatRequest(true)

	replyText := resp.Text()
	if replyText == "" {
		replyText = emptyResponseText
	}
	return Message{
		ID:            uuid.New().String(),
		Role:          "assistant",
		Text:          replyText,
		GroundingURLs: sourceLinks(resp),
		Timestamp:     time.Now(),
	}
}

// historyContents converts the last few non-error turns into model history.
func historyContents(history []Message) []gemini.Content {
	window := history
	if len(window) > historyWindowDepth {
		window = window[len(window)-historyWindowDepth:]
	}
	var contents []gemini.Content
	for _, m := range window {
		if m.IsError {
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, gemini.Content{Role: role, Parts: []gemini.Part{{Text: m.Text}}})
	}
	return contents
}

func sourceLinks(resp *gemini.GenerateResponse) []SourceLink {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var links []SourceLink
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			if u, err := url.Parse(chunk.Web.URI); err == nil {
				title = u.Hostname()
			}
		}
		links = append(links, SourceLink{URI: chunk.Web.URI, Title: title})
	}
	return links
}
