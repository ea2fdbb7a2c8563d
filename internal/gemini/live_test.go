package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveTestServer upgrades the connection, validates the setup frame, and
// hands the connection to script for the rest of the exchange.
func liveTestServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		if setup.Setup.Model != "models/live-model" {
			t.Errorf("unexpected model in setup: %q", setup.Setup.Model)
		}
		if got := setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Puck" {
			t.Errorf("unexpected voice in setup: %q", got)
		}
		if setup.Setup.SystemInstruction == nil || len(setup.Setup.SystemInstruction.Parts) == 0 {
			t.Error("setup missing system instruction")
		}
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			t.Errorf("write setupComplete: %v", err)
			return
		}
		script(conn)
	}))
}

func connectTestSession(t *testing.T, server *httptest.Server) *LiveSession {
	t.Helper()
	client := NewClient("test-key", server.URL)
	session, err := client.ConnectLive(context.Background(), LiveConfig{
		Model:             "live-model",
		Voice:             "Puck",
		SystemInstruction: "You are a mock interviewer.",
	})
	if err != nil {
		t.Fatalf("ConnectLive failed: %v", err)
	}
	return session
}

func TestConnectLive_HandshakeAndEvents(t *testing.T) {
	server := liveTestServer(t, func(conn *websocket.Conn) {
		frames := []string{
			`{"serverContent": {"inputTranscription": {"text": "Tell me about yourself."}}}`,
			`{"serverContent": {"modelTurn": {"parts": [{"inlineData": {"mimeType": "audio/pcm", "data": "QUJD"}}]}}}`,
			`{"serverContent": {"outputTranscription": {"text": "Sure, I have worked on..."}}}`,
			`{"serverContent": {"turnComplete": true}}`,
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer server.Close()

	session := connectTestSession(t, server)
	defer session.Close()

	var events []ServerEvent
	for ev := range session.Events() {
		events = append(events, ev)
	}
	if err := session.Err(); err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	if events[0].InputTranscription != "Tell me about yourself." {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].InlineAudio != "QUJD" {
		t.Errorf("unexpected audio event: %+v", events[1])
	}
	if events[2].OutputTranscription == "" {
		t.Errorf("unexpected transcript event: %+v", events[2])
	}
	if !events[3].TurnComplete {
		t.Errorf("expected turn completion, got %+v", events[3])
	}
}

func TestConnectLive_SetupRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var setup setupMessage
		_ = conn.ReadJSON(&setup)
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"error": {"code": 400, "message": "unsupported model"}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL)
	_, err := client.ConnectLive(context.Background(), LiveConfig{Model: "live-model", Voice: "Puck"})
	if err == nil {
		t.Fatal("expected setup rejection error")
	}
	if !strings.Contains(err.Error(), "unsupported model") {
		t.Errorf("expected endpoint message in error, got %v", err)
	}
}

func TestLiveSession_SendMedia(t *testing.T) {
	received := make(chan realtimeInputMessage, 2)
	server := liveTestServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			var msg realtimeInputMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer server.Close()

	session := connectTestSession(t, server)
	defer session.Close()

	if err := session.SendAudio("cGNt"); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}
	if err := session.SendFrame("anBlZw=="); err != nil {
		t.Fatalf("SendFrame failed: %v", err)
	}

	audio := <-received
	if got := audio.RealtimeInput.MediaChunks[0]; got.MimeType != MimeAudioPCM16k || got.Data != "cGNt" {
		t.Errorf("unexpected audio chunk: %+v", got)
	}
	frame := <-received
	if got := frame.RealtimeInput.MediaChunks[0]; got.MimeType != MimeImageJPEG || got.Data != "anBlZw==" {
		t.Errorf("unexpected frame chunk: %+v", got)
	}
}

func TestLiveSession_CloseIsIdempotent(t *testing.T) {
	server := liveTestServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	session := connectTestSession(t, server)
	if err := session.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := session.SendAudio("cGNt"); err == nil {
		t.Error("expected send on closed session to fail")
	}
}

func TestLiveSession_AbnormalClosureReportsError(t *testing.T) {
	server := liveTestServer(t, func(conn *websocket.Conn) {
		// Drop the TCP connection without a close frame.
		_ = conn.UnderlyingConn().Close()
	})
	defer server.Close()

	session := connectTestSession(t, server)
	defer session.Close()

	for range session.Events() {
	}
	if err := session.Err(); err == nil {
		t.Fatal("expected error after abnormal closure")
	}
}
