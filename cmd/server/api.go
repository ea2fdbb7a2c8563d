package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/careerpal/interview-gateway/internal/chat"
	"github.com/careerpal/interview-gateway/internal/gemini"
	"github.com/careerpal/interview-gateway/internal/image"
	"github.com/careerpal/interview-gateway/internal/store"
)

// api exposes the chat, image, and persistence collaborators over JSON.
type api struct {
	chat    *chat.Service
	images  *image.Service
	archive *store.SessionArchive
	store   *store.Store
	logger  zerolog.Logger
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", a.handleChat)
	mux.HandleFunc("/api/chat/history", a.handleChatHistory)
	mux.HandleFunc("/api/chat/reset", a.handleChatReset)
	mux.HandleFunc("/api/images", a.handleImages)
	mux.HandleFunc("/api/session/transcript", a.handleTranscript)
	mux.HandleFunc("/api/session/report", a.handleReport)
	mux.HandleFunc("/api/session/wipe", a.handleWipe)
	mux.HandleFunc("/api/nuke", a.handleNuke)
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error().Err(err).Msg("response encode failed")
	}
}

func (a *api) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

type chatRequest struct {
	Text       string           `json:"text"`
	Attachment *chat.Attachment `json:"attachment,omitempty"`
	Strategic  bool             `json:"strategic"`
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" && req.Attachment == nil {
		a.writeError(w, http.StatusBadRequest, "text or attachment required")
		return
	}
	reply, err := a.chat.Send(r.Context(), req.Text, req.Attachment, req.Strategic)
	if err != nil {
		a.logger.Error().Err(err).Msg("chat send failed")
		a.writeError(w, http.StatusInternalServerError, "chat unavailable")
		return
	}
	a.writeJSON(w, http.StatusOK, reply)
}

func (a *api) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.chat.History(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if history == nil {
		history = []chat.Message{}
	}
	a.writeJSON(w, http.StatusOK, history)
}

func (a *api) handleChatReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := a.chat.Reset(r.Context()); err != nil {
		a.writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type imageRequest struct {
	Prompt      string       `json:"prompt"`
	AspectRatio string       `json:"aspectRatio"`
	Size        string       `json:"size"`
	Pro         bool         `json:"pro"`
	Reference   *gemini.Blob `json:"reference,omitempty"`
}

func (a *api) handleImages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		history, err := a.images.History(r.Context())
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if history == nil {
			history = []store.ImageRecord{}
		}
		a.writeJSON(w, http.StatusOK, history)
	case http.MethodPost:
		var req imageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rec, err := a.images.Generate(r.Context(), image.Request{
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
			Size:        req.Size,
			Pro:         req.Pro,
			Reference:   req.Reference,
		})
		if err != nil {
			if errors.Is(err, image.ErrNoImage) {
				a.writeError(w, http.StatusBadGateway, "model returned no image")
				return
			}
			a.logger.Error().Err(err).Msg("image generation failed")
			a.writeError(w, http.StatusInternalServerError, "generation failed")
			return
		}
		a.writeJSON(w, http.StatusOK, rec)
	default:
		a.writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

func (a *api) handleTranscript(w http.ResponseWriter, r *http.Request) {
	transcript, err := a.archive.LoadTranscript(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "transcript unavailable")
		return
	}
	a.writeJSON(w, http.StatusOK, transcript)
}

func (a *api) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.archive.LoadReport(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "report unavailable")
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}

// handleWipe clears the interview transcript and report together.
func (a *api) handleWipe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := a.archive.Wipe(r.Context()); err != nil {
		a.writeError(w, http.StatusInternalServerError, "wipe failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNuke removes every persisted value and image.
func (a *api) handleNuke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := a.store.Nuke(r.Context()); err != nil {
		a.writeError(w, http.StatusInternalServerError, "nuke failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
