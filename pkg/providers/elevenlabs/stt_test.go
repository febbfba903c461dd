package elevenlabs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
)

func newTranscribeStub(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type capturingHandler struct {
	transcripts  []stt.Transcript
	errs         []error
	disconnected bool
}

func (h *capturingHandler) OnTranscript(t stt.Transcript) { h.transcripts = append(h.transcripts, t) }
func (h *capturingHandler) OnSpeechStarted()              {}
func (h *capturingHandler) OnDisconnected()               { h.disconnected = true }
func (h *capturingHandler) OnError(err error)             { h.errs = append(h.errs, err) }

func TestSTTSendBeforeConnectFails(t *testing.T) {
	s := NewSTT(STTConfig{APIKey: "key"})
	if err := s.Send(make([]byte, 320)); err == nil {
		t.Fatalf("expected error sending before connect")
	}
}

func TestSTTFinalizeWithEmptyBufferIsNoop(t *testing.T) {
	s := NewSTT(STTConfig{APIKey: "key"})
	h := &capturingHandler{}
	if err := s.Connect(context.Background(), h); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(h.transcripts) != 0 {
		t.Fatalf("expected no transcript for empty buffer, got %+v", h.transcripts)
	}
}

func TestSTTSendBelowMinimumIsDroppedOnFinalize(t *testing.T) {
	srv, calls := newTranscribeStub(t)
	s := NewSTT(STTConfig{APIKey: "key", BaseURL: srv.URL})
	h := &capturingHandler{}
	_ = s.Connect(context.Background(), h)
	_ = s.Send(make([]byte, stt.MinBatchBytes-1))
	if err := s.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(h.transcripts) != 0 {
		t.Fatalf("expected sub-minimum chunk to be dropped, got %+v", h.transcripts)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Fatalf("expected no transcription request for sub-minimum chunk")
	}
}

func TestSTTSendAtCapAutoFlushes(t *testing.T) {
	srv, calls := newTranscribeStub(t)
	s := NewSTT(STTConfig{APIKey: "key", BaseURL: srv.URL})
	h := &capturingHandler{}
	_ = s.Connect(context.Background(), h)
	if err := s.Send(make([]byte, stt.MaxBatchBytes)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(h.transcripts) != 1 {
		t.Fatalf("expected auto-flush to produce one transcript, got %+v", h.transcripts)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected one transcription request, got %d", atomic.LoadInt32(calls))
	}
	if s.buf.Len() != 0 {
		t.Fatalf("expected buffer drained after cap flush, got %d bytes", s.buf.Len())
	}
}

func TestSTTDisconnectNotifiesHandler(t *testing.T) {
	s := NewSTT(STTConfig{APIKey: "key"})
	h := &capturingHandler{}
	_ = s.Connect(context.Background(), h)
	if err := s.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if !h.disconnected {
		t.Fatalf("expected OnDisconnected to fire")
	}
}

func TestSTTDefaultsModel(t *testing.T) {
	s := NewSTT(STTConfig{APIKey: "key"})
	if s.cfg.ModelID != "scribe_v1" {
		t.Fatalf("expected default model scribe_v1, got %q", s.cfg.ModelID)
	}
}
