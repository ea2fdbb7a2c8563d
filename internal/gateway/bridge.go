// Package gateway bridges a browser WebSocket connection to the interview
// session engine. The browser is both the capture device and the audio
// sink: inbound media events feed the capture manager, and scheduled
// playback buffers are pushed back with their start offsets.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/careerpal/interview-gateway/internal/audio"
	"github.com/careerpal/interview-gateway/internal/capture"
	"github.com/careerpal/interview-gateway/internal/config"
	"github.com/careerpal/interview-gateway/internal/gemini"
	"github.com/careerpal/interview-gateway/internal/observability"
	"github.com/careerpal/interview-gateway/internal/playback"
	"github.com/careerpal/interview-gateway/internal/session"
)

const interviewPrompt = `CORE IDENTITY: You are a strict Executive Talent Acquisition Director.
GOAL: Conduct a realistic corporate interview simulation.

STRICT FORMATTING RULES FOR TRANSCRIPTION:
1. NO MARKDOWN: Never use symbols like asterisks, underscores, or hash signs.
2. NO BOLDING OR ITALICS: Do not use any text formatting.
3. NO EMOJIS: Do not use any graphical symbols.
4. CLEAN DIALOGUE: Use clear, uniform plain text only.

CRITICAL PROTOCOL:
1. START IMMEDIATELY: State your name (Director Sterling) and demand the candidate's name and intended role.
2. FEEDBACK: Evaluate posture if video is active, or verbal clarity if audio only.
3. STYLE: Maintain a distant, professional, and analytical tone.`

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The browser shell is served from the same origin in production.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// liveTransport adapts the conversational client to the engine's
// transport interface.
type liveTransport struct {
	client *gemini.Client
	cfg    gemini.LiveConfig
}

// NewLiveTransport builds the production transport for interview sessions.
func NewLiveTransport(client *gemini.Client, cfg *config.Config) session.Transport {
	return &liveTransport{
		client: client,
		cfg: gemini.LiveConfig{
			Model:             cfg.LiveModel,
			Voice:             cfg.LiveVoice,
			SystemInstruction: interviewPrompt,
		},
	}
}

func (t *liveTransport) Connect(ctx context.Context) (session.Conn, error) {
	live, err := t.client.ConnectLive(ctx, t.cfg)
	if err != nil {
		return nil, err
	}
	return live, nil
}

// Deps carries the collaborators a bridge needs.
type Deps struct {
	Transport session.Transport
	Analyzer  session.Analyzer
	Archive   session.Archiver
	Config    *config.Config
	Logger    zerolog.Logger
}

// NewHandler returns the WebSocket endpoint for interview sessions. Each
// connection gets its own bridge and engine.
func NewHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		bridge := newBridge(conn, deps)
		bridge.run()
	}
}

// micSource feeds browser media chunks to the capture manager.
type micSource struct {
	mu      sync.Mutex
	samples chan []float32
	pending []float32
	closed  bool
}

func newMicSource() *micSource {
	return &micSource{samples: make(chan []float32, 100)}
}

func (m *micSource) push(chunk []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.samples <- chunk:
	default:
		// Backpressure: the engine is behind, drop realtime audio rather
		// than stall the browser read loop.
	}
}

func (m *micSource) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.samples)
	}
}

func (m *micSource) ReadSamples(p []float32) (int, error) {
	if len(m.pending) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		return n, nil
	}
	chunk, ok := <-m.samples
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		m.pending = chunk[n:]
	}
	return n, nil
}

// cameraSource exposes the most recent browser frame to the sampler.
type cameraSource struct {
	mu    sync.Mutex
	frame string
}

func (c *cameraSource) set(frame string) {
	c.mu.Lock()
	c.frame = frame
	c.mu.Unlock()
}

func (c *cameraSource) clear() {
	c.mu.Lock()
	c.frame = ""
	c.mu.Unlock()
}

func (c *cameraSource) CaptureFrame() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == "" {
		return "", capture.ErrDeviceUnavailable
	}
	return c.frame, nil
}

// timerHandle completes a playback buffer when its scheduled window ends.
type timerHandle struct {
	timer *time.Timer
}

func (h timerHandle) Stop() {
	h.timer.Stop()
}

// Bridge owns one browser connection and the session engine behind it.
// It implements capture.Provider (the browser's devices) and
// playback.Output (the browser's speakers).
type Bridge struct {
	conn   *websocket.Conn
	deps   Deps
	logger zerolog.Logger

	engine *session.Engine
	epoch  time.Time

	writeMu sync.Mutex

	camera   *cameraSource
	hasVideo bool

	stateMu   sync.Mutex
	mic       *micSource
	audioOnly bool
}

func newBridge(conn *websocket.Conn, deps Deps) *Bridge {
	sessionID := observability.NewSessionID()
	logger := deps.Logger.With().Str("session_id", sessionID).Logger()

	b := &Bridge{
		conn:   conn,
		deps:   deps,
		logger: logger,
		epoch:  time.Now(),
		mic:    newMicSource(),
		camera: &cameraSource{},
	}

	cfg := deps.Config
	manager := capture.NewManager(b, cfg.ChunkSamples, logger)
	scheduler := playback.NewScheduler(b, b)
	metrics := observability.NewSessionMetrics(sessionID)

	b.engine = session.NewEngine(
		deps.Transport, manager, scheduler, deps.Analyzer, deps.Archive, metrics,
		session.EngineConfig{
			FrameInterval:    time.Duration(cfg.FrameIntervalMs) * time.Millisecond,
			OutputSampleRate: cfg.OutputSampleRate,
		},
		logger,
	)
	b.engine.OnTranscript(b.sendTranscript)
	b.engine.OnStateChange(b.sendStatus)
	b.engine.OnReport(b.sendReport)
	return b
}

// Now implements playback.Clock relative to the connection epoch.
func (b *Bridge) Now() time.Duration {
	return time.Since(b.epoch)
}

// Start implements playback.Output: the buffer is pushed to the browser
// with its start offset, and completion fires when its window elapses.
func (b *Bridge) Start(buf *audio.Buffer, at time.Duration, done func()) (playback.Handle, error) {
	payload := audio.Encode(buf.Channels[0])
	if err := b.send(&ServerMessage{
		Event:     eventAudio,
		Media:     &MediaPayload{Payload: payload},
		StartAtMs: at.Milliseconds(),
	}); err != nil {
		return nil, err
	}

	delay := at + buf.Duration() - b.Now()
	if delay < 0 {
		delay = 0
	}
	return timerHandle{timer: time.AfterFunc(delay, done)}, nil
}

// GetUserMedia implements capture.Provider over the browser's devices.
// Permission handling happened client-side before the start event, so
// acquisition succeeds immediately; a camera is present only when the
// start event announced video. Tracks are allocated per acquisition: a
// restarted session on the same connection must not inherit the closed
// mic or a stale frame from the previous one.
func (b *Bridge) GetUserMedia(ctx context.Context, wantAudio, wantVideo bool) (*capture.MediaStream, error) {
	mic := newMicSource()
	b.stateMu.Lock()
	b.mic = mic
	b.stateMu.Unlock()
	b.camera.clear()

	stream := &capture.MediaStream{
		Mic:        mic,
		StopTracks: mic.close,
	}
	if wantVideo && b.hasVideo {
		stream.Camera = b.camera
	}
	return stream, nil
}

// micTrack returns the mic of the current acquisition.
func (b *Bridge) micTrack() *micSource {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.mic
}

func (b *Bridge) send(msg *ServerMessage) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(msg)
}

func (b *Bridge) sendTranscript(entry session.TranscriptEntry) {
	_ = b.send(&ServerMessage{
		Event:      eventTranscript,
		Transcript: &TranscriptPayload{Role: string(entry.Role), Text: entry.Text},
	})
}

func (b *Bridge) sendReport(report *session.AssessmentReport) {
	_ = b.send(&ServerMessage{Event: eventReport, Report: report})
}

func statusMessage(s session.State) string {
	switch s {
	case session.StateConnecting:
		return "Establishing Link"
	case session.StateActive:
		return "Assessment Active"
	case session.StateClosing:
		return "Assessment Concluding"
	default:
		return "Standby"
	}
}

func (b *Bridge) sendStatus(s session.State) {
	b.stateMu.Lock()
	audioOnly := b.audioOnly
	b.stateMu.Unlock()
	_ = b.send(&ServerMessage{
		Event: eventStatus,
		Status: &StatusPayload{
			State:     s.String(),
			Message:   statusMessage(s),
			AudioOnly: audioOnly,
			ElapsedMs: b.engine.Elapsed().Milliseconds(),
		},
	})
}

// run is the connection read loop. It returns when the browser goes away.
func (b *Bridge) run() {
	defer func() {
		b.engine.Stop(true)
		b.micTrack().close()
		_ = b.conn.Close()
	}()

	b.sendStatus(session.StateIdle)

	for {
		var msg ClientMessage
		if err := b.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn().Err(err).Msg("browser connection lost")
			}
			return
		}

		switch msg.Event {
		case eventStart:
			b.handleStart(msg.Start)
		case eventMedia:
			b.handleMedia(msg.Media)
		case eventFrame:
			b.handleFrame(msg.Media)
		case eventStop:
			b.engine.Stop(false)
		case eventError:
			b.handleClientError(msg.Error)
		default:
			b.logger.Debug().Str("event", msg.Event).Msg("ignoring unknown event")
		}
	}
}

func (b *Bridge) handleStart(start *StartPayload) {
	hasVideo := start != nil && start.Video
	b.hasVideo = hasVideo
	b.stateMu.Lock()
	b.audioOnly = !hasVideo
	b.stateMu.Unlock()

	go func() {
		if err := b.engine.Start(context.Background()); err != nil {
			if errors.Is(err, session.ErrSessionStopped) {
				// The client stopped its own session mid-handshake; nothing
				// to report back.
				b.logger.Info().Msg("session stopped before connect completed")
				return
			}
			b.logger.Error().Err(err).Msg("session start failed")
			_ = b.send(&ServerMessage{
				Event: eventError,
				Error: &ErrorPayload{Code: startErrorCode(err), Message: err.Error()},
			})
		}
	}()
}

func startErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionActive):
		return codeSessionActive
	case capture.IsPermissionBlocked(err):
		return codePermissionBlocked
	case capture.IsDeviceUnavailable(err):
		return codeDeviceUnavailable
	default:
		return codeConnectFailed
	}
}

func (b *Bridge) handleMedia(media *MediaPayload) {
	if media == nil || media.Payload == "" {
		return
	}
	buf, err := audio.Decode(media.Payload, 1, b.deps.Config.InputSampleRate)
	if err != nil {
		b.logger.Warn().Err(err).Msg("dropping malformed media chunk")
		return
	}
	b.micTrack().push(buf.Channels[0])
}

func (b *Bridge) handleFrame(media *MediaPayload) {
	if media == nil || media.Payload == "" {
		return
	}
	b.camera.set(media.Payload)
}

// handleClientError reports a browser-side capture failure. A running
// session ends on the error path; otherwise the failure is just surfaced
// back with remediation context.
func (b *Bridge) handleClientError(payload *ErrorPayload) {
	if payload == nil {
		return
	}
	b.logger.Warn().Str("code", payload.Code).Str("message", payload.Message).Msg("client reported capture failure")
	if b.engine.State() != session.StateIdle {
		b.engine.Stop(true)
		return
	}
	message := "Hardware connection failed."
	if payload.Code == codePermissionBlocked {
		message = "Access was blocked by the browser."
	}
	_ = b.send(&ServerMessage{
		Event: eventError,
		Error: &ErrorPayload{Code: payload.Code, Message: message},
	})
}
