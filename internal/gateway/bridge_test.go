package gateway

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/careerpal/interview-gateway/internal/audio"
	"github.com/careerpal/interview-gateway/internal/config"
	"github.com/careerpal/interview-gateway/internal/gemini"
	"github.com/careerpal/interview-gateway/internal/session"
)

type fakeLiveConn struct {
	mu         sync.Mutex
	audioSends []string
	frameSends []string
	events     chan gemini.ServerEvent
	closeOnce  sync.Once
	err        error
}

func newFakeLiveConn() *fakeLiveConn {
	return &fakeLiveConn{events: make(chan gemini.ServerEvent, 16)}
}

func (c *fakeLiveConn) SendAudio(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioSends = append(c.audioSends, data)
	return nil
}

func (c *fakeLiveConn) SendFrame(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameSends = append(c.frameSends, data)
	return nil
}

func (c *fakeLiveConn) Events() <-chan gemini.ServerEvent { return c.events }

func (c *fakeLiveConn) Close() error {
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

func (c *fakeLiveConn) Err() error { return c.err }

func (c *fakeLiveConn) audioCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audioSends)
}

func (c *fakeLiveConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frameSends)
}

type fakeLiveTransport struct {
	mu    sync.Mutex
	conn  *fakeLiveConn
	queue []*fakeLiveConn
	err   error
}

func (t *fakeLiveTransport) Connect(ctx context.Context) (session.Conn, error) {
	if t.err != nil {
		return nil, t.err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) > 0 {
		conn := t.queue[0]
		t.queue = t.queue[1:]
		return conn, nil
	}
	return t.conn, nil
}

type staticAnalyzer struct{}

func (staticAnalyzer) Analyze(ctx context.Context, transcript []session.TranscriptEntry) *session.AssessmentReport {
	return &session.AssessmentReport{Summary: "done", Strengths: []string{}, Improvements: []string{}}
}

func testConfig() *config.Config {
	return &config.Config{
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		ChunkSamples:     4,
		FrameIntervalMs:  10,
	}
}

func dialBridge(t *testing.T, transport session.Transport) *websocket.Conn {
	t.Helper()
	handler := NewHandler(Deps{
		Transport: transport,
		Analyzer:  staticAnalyzer{},
		Config:    testConfig(),
		Logger:    zerolog.Nop(),
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil pumps server messages until pred accepts one.
func readUntil(t *testing.T, ws *websocket.Conn, what string, pred func(*ServerMessage) bool) *ServerMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = ws.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var msg ServerMessage
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("read while waiting for %s: %v", what, err)
		}
		if pred(&msg) {
			return &msg
		}
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

func isStatus(state session.State) func(*ServerMessage) bool {
	return func(m *ServerMessage) bool {
		return m.Event == eventStatus && m.Status != nil && m.Status.State == state.String()
	}
}

func startSession(t *testing.T, ws *websocket.Conn, video bool) {
	t.Helper()
	if err := ws.WriteJSON(&ClientMessage{Event: eventStart, Start: &StartPayload{Video: video}}); err != nil {
		t.Fatalf("start write failed: %v", err)
	}
	readUntil(t, ws, "active status", isStatus(session.StateActive))
}

func TestBridge_LifecycleAndStatus(t *testing.T) {
	conn := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{conn: conn})

	readUntil(t, ws, "standby status", isStatus(session.StateIdle))
	startSession(t, ws, true)

	if err := ws.WriteJSON(&ClientMessage{Event: eventStop}); err != nil {
		t.Fatalf("stop write failed: %v", err)
	}
	readUntil(t, ws, "idle status after stop", isStatus(session.StateIdle))
}

func TestBridge_MediaForwardedToLiveSession(t *testing.T) {
	conn := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{conn: conn})
	startSession(t, ws, true)

	chunk := []float32{0.5, -0.5, 0.25, -0.25}
	payload := audio.Encode(chunk)
	if err := ws.WriteJSON(&ClientMessage{Event: eventMedia, Media: &MediaPayload{Payload: payload}}); err != nil {
		t.Fatalf("media write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.audioCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if conn.audioCount() == 0 {
		t.Fatal("media chunk never reached the live session")
	}
	conn.mu.Lock()
	got := conn.audioSends[0]
	conn.mu.Unlock()
	if got != payload {
		t.Errorf("payload altered in transit: got %q, want %q", got, payload)
	}
}

func TestBridge_FramesForwardedToLiveSession(t *testing.T) {
	conn := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{conn: conn})
	startSession(t, ws, true)

	if err := ws.WriteJSON(&ClientMessage{Event: eventFrame, Media: &MediaPayload{Payload: "anBlZw=="}}); err != nil {
		t.Fatalf("frame write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.frameCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if conn.frameCount() == 0 {
		t.Fatal("frame never reached the live session")
	}
}

func TestBridge_AudioOnlySendsNoFrames(t *testing.T) {
	conn := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{conn: conn})
	startSession(t, ws, false)

	if err := ws.WriteJSON(&ClientMessage{Event: eventFrame, Media: &MediaPayload{Payload: "anBlZw=="}}); err != nil {
		t.Fatalf("frame write failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := conn.frameCount(); got != 0 {
		t.Errorf("audio-only session forwarded %d frames", got)
	}
}

func TestBridge_RestartAfterStopStreamsAudio(t *testing.T) {
	first := newFakeLiveConn()
	second := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{queue: []*fakeLiveConn{first, second}})
	startSession(t, ws, true)

	if err := ws.WriteJSON(&ClientMessage{Event: eventStop}); err != nil {
		t.Fatalf("stop write failed: %v", err)
	}
	readUntil(t, ws, "idle status after stop", isStatus(session.StateIdle))

	startSession(t, ws, true)

	payload := audio.Encode([]float32{0.5, -0.5, 0.25, -0.25})
	for i := 0; i < 5; i++ {
		if err := ws.WriteJSON(&ClientMessage{Event: eventMedia, Media: &MediaPayload{Payload: payload}}); err != nil {
			t.Fatalf("media write failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for second.audioCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if second.audioCount() == 0 {
		t.Fatal("restarted session never received audio")
	}
	if got := first.audioCount(); got != 0 {
		t.Errorf("restart leaked %d chunks to the stopped session", got)
	}
}

func TestBridge_TranscriptAndReportPushed(t *testing.T) {
	conn := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{conn: conn})
	startSession(t, ws, true)

	conn.events <- gemini.ServerEvent{OutputTranscription: "State your name."}

	msg := readUntil(t, ws, "transcript", func(m *ServerMessage) bool { return m.Event == eventTranscript })
	if msg.Transcript.Role != string(session.RoleInterviewer) || msg.Transcript.Text != "State your name." {
		t.Errorf("unexpected transcript: %+v", msg.Transcript)
	}

	if err := ws.WriteJSON(&ClientMessage{Event: eventStop}); err != nil {
		t.Fatalf("stop write failed: %v", err)
	}
	report := readUntil(t, ws, "report", func(m *ServerMessage) bool { return m.Event == eventReport })
	if report.Report.Summary != "done" {
		t.Errorf("unexpected report: %+v", report.Report)
	}
}

func TestBridge_InlineAudioScheduledToClient(t *testing.T) {
	conn := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{conn: conn})
	startSession(t, ws, true)

	samples := []float32{0.5, -0.5, 0.25}
	conn.events <- gemini.ServerEvent{InlineAudio: audio.Encode(samples)}

	msg := readUntil(t, ws, "audio push", func(m *ServerMessage) bool { return m.Event == eventAudio })
	if msg.Media == nil || msg.Media.Payload != audio.Encode(samples) {
		t.Errorf("unexpected audio payload: %+v", msg.Media)
	}
	if msg.StartAtMs < 0 {
		t.Errorf("negative start offset: %d", msg.StartAtMs)
	}
}

func TestBridge_ConnectFailureReported(t *testing.T) {
	ws := dialBridge(t, &fakeLiveTransport{err: errors.New("endpoint unreachable")})

	if err := ws.WriteJSON(&ClientMessage{Event: eventStart, Start: &StartPayload{Video: true}}); err != nil {
		t.Fatalf("start write failed: %v", err)
	}
	msg := readUntil(t, ws, "error", func(m *ServerMessage) bool { return m.Event == eventError })
	if msg.Error.Code != codeConnectFailed {
		t.Errorf("unexpected error code: %q", msg.Error.Code)
	}
}

func TestBridge_ClientCaptureErrorBeforeStart(t *testing.T) {
	conn := newFakeLiveConn()
	ws := dialBridge(t, &fakeLiveTransport{conn: conn})

	if err := ws.WriteJSON(&ClientMessage{
		Event: eventError,
		Error: &ErrorPayload{Code: codePermissionBlocked, Message: "NotAllowedError"},
	}); err != nil {
		t.Fatalf("error write failed: %v", err)
	}

	msg := readUntil(t, ws, "error echo", func(m *ServerMessage) bool { return m.Event == eventError })
	if msg.Error.Code != codePermissionBlocked {
		t.Errorf("unexpected code: %q", msg.Error.Code)
	}
	if !strings.Contains(msg.Error.Message, "blocked by the browser") {
		t.Errorf("expected remediation message, got %q", msg.Error.Message)
	}
}
