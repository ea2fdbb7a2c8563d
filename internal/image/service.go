// Package image implements the portfolio image generation collaborator.
package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careerpal/interview-gateway/internal/gemini"
	"github.com/careerpal/interview-gateway/internal/observability"
	"github.com/careerpal/interview-gateway/internal/store"
)

// styleSuffix is appended to every prompt to keep output on brand.
const styleSuffix = ", professional executive portrait, studio lighting, minimal cinematic aesthetic, high resolution"

// ErrNoImage is returned when the model reply carries no inline image.
var ErrNoImage = errors.New("model response contained no image")

// Request describes one generation.
type Request struct {
	Prompt      string
	AspectRatio string // "1:1", "3:4", "4:3", "9:16", "16:9"
	Size        string // "1K", "2K", "4K"; pro model only
	Pro         bool
	Reference   *gemini.Blob // optional reference image, sent first
}

// Config tunes the image service.
type Config struct {
	Model    string // default model
	ProModel string // high-definition model
}

// Service generates images and records them in the bounded history.
type Service struct {
	client *gemini.Client
	store  *store.Store
	cfg    Config
	logger zerolog.Logger
}

// New builds an image service.
func New(client *gemini.Client, st *store.Store, cfg Config, logger zerolog.Logger) *Service {
	return &Service{client: client, store: st, cfg: cfg, logger: logger}
}

// Generate produces one image and appends it to the history.
func (s *Service) Generate(ctx context.Context, req Request) (*store.ImageRecord, error) {
	if req.Prompt == "" {
		return nil, errors.New("prompt is required")
	}

	model := s.cfg.Model
	imageCfg := &gemini.ImageConfig{AspectRatio: req.AspectRatio}
	var tools []gemini.Tool
	if req.Pro {
		model = s.cfg.ProModel
		imageCfg.ImageSize = req.Size
		tools = []gemini.Tool{{GoogleSearch: &struct{}{}}}
	}

	parts := []gemini.Part{{Text: req.Prompt + styleSuffix}}
	if req.Reference != nil {
		parts = append([]gemini.Part{{InlineData: req.Reference}}, parts...)
	}

	resp, err := s.client.GenerateContent(ctx, model, &gemini.GenerateRequest{
		Contents:         []gemini.Content{{Parts: parts}},
		Tools:            tools,
		GenerationConfig: &gemini.GenerationConfig{ImageConfig: imageCfg},
	})
	if err != nil {
		observability.RecordImageRequest(false)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	blobs := resp.InlineImages()
	if len(blobs) == 0 {
		observability.RecordImageRequest(false)
		return nil, ErrNoImage
	}
	observability.RecordImageRequest(true)

	rec := store.ImageRecord{
		ID:        uuid.New().String(),
		Prompt:    req.Prompt,
		MimeType:  blobs[0].MimeType,
		Data:      blobs[0].Data,
		CreatedAt: time.Now(),
	}
	if err := s.store.AddImage(ctx, rec); err != nil {
		return nil, fmt.Errorf("record image: %w", err)
	}
	s.logger.Info().Str("image_id", rec.ID).Bool("pro", req.Pro).Msg("image generated")
	return &rec, nil
}

// History returns generated images, newest first.
func (s *Service) History(ctx context.Context) ([]store.ImageRecord, error) {
	return s.store.Images(ctx)
}
