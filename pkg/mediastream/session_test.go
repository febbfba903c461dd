package mediastream

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	mu                sync.Mutex
	connectedCallSID  string
	connectedStreamID string
	audioChunks       [][]byte
	disconnected      bool
	speakingFinished  bool
}

func (h *recordingHandler) OnConnected(callSID, streamSID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectedCallSID = callSID
	h.connectedStreamID = streamSID
}

func (h *recordingHandler) OnAudio(pcm []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audioChunks = append(h.audioChunks, pcm)
}

func (h *recordingHandler) OnDisconnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
}

func (h *recordingHandler) OnSpeakingFinished() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speakingFinished = true
}

func (h *recordingHandler) chunkCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.audioChunks)
}

// testPair starts a websocket echo-capable server hosting a Session and
// returns the client connection used to drive it plus the handler.
func testPair(t *testing.T) (*websocket.Conn, *recordingHandler, *Session) {
	t.Helper()
	handler := &recordingHandler{}
	var sess *Session
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		sess = New(conn, handler, 3, nil)
		go sess.Run()
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	// wait for the server-side session to be constructed
	deadline := time.Now().Add(time.Second)
	for sess == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sess == nil {
		t.Fatalf("session was not constructed")
	}
	return client, handler, sess
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSessionStartEmitsConnected(t *testing.T) {
	client, handler, _ := testPair(t)

	sendJSON(t, client, map[string]any{
		"event": "start",
		"start": map[string]any{"callSid": "CA1", "streamSid": "MZ1"},
	})

	deadline := time.Now().Add(time.Second)
	for handler.connectedCallSID == "" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if handler.connectedCallSID != "CA1" || handler.connectedStreamID != "MZ1" {
		t.Fatalf("expected connected(CA1, MZ1), got (%q, %q)", handler.connectedCallSID, handler.connectedStreamID)
	}
}

func TestSessionFlushesAfterFlushFrames(t *testing.T) {
	client, handler, _ := testPair(t)

	sendJSON(t, client, map[string]any{
		"event": "start",
		"start": map[string]any{"callSid": "CA1", "streamSid": "MZ1"},
	})

	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	for i := 0; i < 3; i++ {
		sendJSON(t, client, map[string]any{
			"event": "media",
			"media": map[string]any{"payload": payload},
		})
	}

	deadline := time.Now().Add(time.Second)
	for handler.chunkCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if handler.chunkCount() != 1 {
		t.Fatalf("expected exactly one flushed chunk after 3 frames (flushFrames=3), got %d", handler.chunkCount())
	}
}

func TestSendAudioFramesResolvesOnMarkEcho(t *testing.T) {
	client, _, sess := testPair(t)

	sendJSON(t, client, map[string]any{
		"event": "start",
		"start": map[string]any{"callSid": "CA1", "streamSid": "MZ1"},
	})
	time.Sleep(10 * time.Millisecond)

	frames := [][]byte{make([]byte, 160), make([]byte, 160)}
	done, err := sess.SendAudioFrames(frames)
	if err != nil {
		t.Fatalf("SendAudioFrames error: %v", err)
	}

	// drain the two media envelopes and the mark envelope, then echo
	// the mark name back as the carrier would.
	var markName string
	for i := 0; i < 3; i++ {
		_, msg, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env map[string]any
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env["event"] == "mark" {
			mark := env["mark"].(map[string]any)
			markName = mark["name"].(string)
		}
	}
	if markName == "" {
		t.Fatalf("expected a mark envelope to be sent")
	}

	sendJSON(t, client, map[string]any{
		"event": "mark",
		"mark":  map[string]any{"name": markName},
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected mark completion channel to close")
	}
}

func TestClearAudioDropsPendingMarks(t *testing.T) {
	client, _, sess := testPair(t)

	sendJSON(t, client, map[string]any{
		"event": "start",
		"start": map[string]any{"callSid": "CA1", "streamSid": "MZ1"},
	})
	time.Sleep(10 * time.Millisecond)

	done, err := sess.SendAudioFrames([][]byte{make([]byte, 160)})
	if err != nil {
		t.Fatalf("SendAudioFrames error: %v", err)
	}

	if err := sess.ClearAudio(); err != nil {
		t.Fatalf("ClearAudio error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected pending mark to be released on ClearAudio")
	}
}

func TestSendAudioBeforeStartIsDropped(t *testing.T) {
	_, _, sess := testPair(t)
	if err := sess.SendAudio(make([]byte, 160)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
