package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the generative language API. One client serves both the
// one-shot generateContent path and live sessions.
type Client struct {
	apiKey  string
	baseURL string
	rest    *resty.Client
}

// NewClient builds a client for the given API key and base URL.
func NewClient(apiKey, baseURL string) *Client {
	rest := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		rest:    rest,
	}
}

// TransportError wraps a failure on the live websocket path.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the REST surface.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err represents quota exhaustion or
// rate limiting, the only class callers should retry.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return true
		}
		msg := strings.ToUpper(apiErr.Message)
		return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "QUOTA")
	}
	return false
}

// Blob is base64 inline data with its media type.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one piece of a content turn.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is one turn of a conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Tool enables a capability on a request.
type Tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

// ImageConfig shapes image generation output.
type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

// GenerationConfig tunes a one-shot request.
type GenerationConfig struct {
	ResponseMimeType   string       `json:"responseMimeType,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig `json:"imageConfig,omitempty"`
}

// GenerateRequest is the generateContent request body.
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// WebSource is one grounded web reference.
type WebSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GroundingChunk holds one grounding attribution.
type GroundingChunk struct {
	Web *WebSource `json:"web,omitempty"`
}

// GroundingMetadata carries search-grounding attributions for a candidate.
type GroundingMetadata struct {
	GroundingChunks []GroundingChunk `json:"groundingChunks,omitempty"`
}

// Candidate is one model response alternative.
type Candidate struct {
	Content           Content            `json:"content"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// GenerateResponse is the generateContent response body.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Text concatenates the text parts of the first candidate.
func (r *GenerateResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// InlineImages returns the inline blobs of the first candidate, in order.
func (r *GenerateResponse) InlineImages() []Blob {
	if len(r.Candidates) == 0 {
		return nil
	}
	var blobs []Blob
	for _, part := range r.Candidates[0].Content.Parts {
		if part.InlineData != nil {
			blobs = append(blobs, *part.InlineData)
		}
	}
	return blobs
}

// SourceURLs returns the deduplicated grounded web URLs of the first
// candidate, in attribution order.
func (r *GenerateResponse) SourceURLs() []string {
	if len(r.Candidates) == 0 || r.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var urls []string
	for _, chunk := range r.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if _, ok := seen[chunk.Web.URI]; ok {
			continue
		}
		seen[chunk.Web.URI] = struct{}{}
		urls = append(urls, chunk.Web.URI)
	}
	return urls
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateContent performs one non-streaming request against a model.
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateRequest) (*GenerateResponse, error) {
	var (
		out    GenerateResponse
		apiErr apiErrorBody
	)

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", c.apiKey).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", model))
	if err != nil {
		return nil, fmt.Errorf("generateContent request failed: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if apiErr.Error.Status != "" {
			msg = apiErr.Error.Status + ": " + msg
		}
		if msg == "" || msg == ": " {
			msg = resp.Status()
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return &out, nil
}
