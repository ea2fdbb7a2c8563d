package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultConnectTimeout = 15 * time.Second

	bidiPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// MimeTypes for realtime input events.
	MimeAudioPCM16k = "audio/pcm;rate=16000"
	MimeImageJPEG   = "image/jpeg"
)

// LiveConfig configures a bidirectional live session.
type LiveConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
}

// ServerEvent is a demultiplexed inbound live-session event. At most one of
// the transcription fields is set per event; InlineAudio carries base64 PCM
// at 24 kHz mono when present.
type ServerEvent struct {
	InputTranscription  string
	OutputTranscription string
	InlineAudio         string
	TurnComplete        bool
}

// LiveSession is an open bidirectional streaming session against the
// conversational endpoint. It must be closed exactly once.
type LiveSession struct {
	conn *websocket.Conn

	events  chan ServerEvent
	closing chan struct{}
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// setup is the first client frame of a live session.
type setupMessage struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []string `json:"responseModalities"`
			SpeechConfig       struct {
				VoiceConfig struct {
					PrebuiltVoiceConfig struct {
						VoiceName string `json:"voiceName"`
					} `json:"prebuiltVoiceConfig"`
				} `json:"voiceConfig"`
			} `json:"speechConfig"`
		} `json:"generationConfig"`
		SystemInstruction        *wireContent `json:"systemInstruction,omitempty"`
		InputAudioTranscription  struct{}     `json:"inputAudioTranscription"`
		OutputAudioTranscription struct{}     `json:"outputAudioTranscription"`
	} `json:"setup"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
	Role  string     `json:"role,omitempty"`
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		MediaChunks []wireBlob `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

// serverMessage mirrors the inbound live frame envelope.
type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		ModelTurn *struct {
			Parts []wirePart `json:"parts"`
		} `json:"modelTurn,omitempty"`
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription,omitempty"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription,omitempty"`
		TurnComplete bool `json:"turnComplete,omitempty"`
	} `json:"serverContent,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ConnectLive opens a live session. It returns once the endpoint confirms
// the setup frame, so a returned session is ready for realtime input.
func (c *Client) ConnectLive(ctx context.Context, cfg LiveConfig) (*LiveSession, error) {
	wsURL, err := c.liveEndpoint()
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "dial", Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	msg := setupMessage{}
	msg.Setup.Model = qualifiedModel(cfg.Model)
	msg.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.Voice
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &wireContent{Parts: []wirePart{{Text: cfg.SystemInstruction}}}
	}
	if err := conn.WriteJSON(msg); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "setup", Err: err}
	}

	// The first server frame confirms setup; anything else is a handshake
	// failure.
	_ = conn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	var first serverMessage
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "setup", Err: fmt.Errorf("read setup confirmation: %w", err)}
	}
	_ = conn.SetReadDeadline(time.Time{})
	if first.SetupComplete == nil {
		_ = conn.Close()
		if first.Error != nil {
			return nil, &TransportError{Op: "setup", Err: fmt.Errorf("endpoint rejected setup: %s", first.Error.Message)}
		}
		return nil, &TransportError{Op: "setup", Err: fmt.Errorf("unexpected first live frame")}
	}

	session := &LiveSession{
		conn:    conn,
		events:  make(chan ServerEvent, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

func (c *Client) liveEndpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme
	default:
		return "", fmt.Errorf("base URL must use http(s) or ws(s)")
	}
	u.Path = bidiPath
	u.RawQuery = url.Values{"key": {c.apiKey}}.Encode()
	return u.String(), nil
}

func qualifiedModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// SendAudio sends one realtime PCM chunk (base64 s16le at 16 kHz).
func (s *LiveSession) SendAudio(data string) error {
	return s.sendMedia(wireBlob{MimeType: MimeAudioPCM16k, Data: data})
}

// SendFrame sends one realtime video frame (base64 JPEG).
func (s *LiveSession) SendFrame(data string) error {
	return s.sendMedia(wireBlob{MimeType: MimeImageJPEG, Data: data})
}

func (s *LiveSession) sendMedia(blob wireBlob) error {
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	var msg realtimeInputMessage
	msg.RealtimeInput.MediaChunks = []wireBlob{blob}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Events yields inbound session events in arrival order. The channel closes
// when the session ends; Err reports whether the closure was abnormal.
func (s *LiveSession) Events() <-chan ServerEvent {
	return s.events
}

// Close closes the session. Safe to call more than once; only the first
// call writes the close frame.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closing)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error, if any. Blocks until the read
// loop has finished.
func (s *LiveSession) Err() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *LiveSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *LiveSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		var msg serverMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(&TransportError{Op: "read", Err: err})
			return
		}

		if msg.Error != nil {
			s.setErr(&TransportError{Op: "session", Err: fmt.Errorf("%s (code %d)", msg.Error.Message, msg.Error.Code)})
			return
		}
		if msg.ServerContent == nil {
			continue
		}

		sc := msg.ServerContent
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.emit(ServerEvent{OutputTranscription: sc.OutputTranscription.Text})
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.emit(ServerEvent{InputTranscription: sc.InputTranscription.Text})
		}
		if sc.ModelTurn != nil && len(sc.ModelTurn.Parts) > 0 {
			if inline := sc.ModelTurn.Parts[0].InlineData; inline != nil && inline.Data != "" {
				s.emit(ServerEvent{InlineAudio: inline.Data})
			}
		}
		if sc.TurnComplete {
			s.emit(ServerEvent{TurnComplete: true})
		}
	}
}

// emit blocks until the consumer takes the event or the session closes.
// Dropping events here would reorder or lose transcript entries, so slow
// consumers exert backpressure on the read loop instead.
func (s *LiveSession) emit(ev ServerEvent) {
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}
