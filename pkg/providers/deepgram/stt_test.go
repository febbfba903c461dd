package deepgram

import "testing"

func TestNewDefaultsSampleRate(t *testing.T) {
	s := New(Config{APIKey: "key"})
	if s.cfg.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", s.cfg.SampleRate)
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	s := New(Config{APIKey: "key"})
	if err := s.Send(make([]byte, 320)); err == nil {
		t.Fatalf("expected error sending before connect")
	}
}

func TestFinalizeBeforeConnectIsNoop(t *testing.T) {
	s := New(Config{APIKey: "key"})
	if err := s.Finalize(); err != nil {
		t.Fatalf("finalize before connect: %v", err)
	}
}

func TestDisconnectBeforeConnectIsNoop(t *testing.T) {
	s := New(Config{APIKey: "key"})
	if err := s.Disconnect(); err != nil {
		t.Fatalf("disconnect before connect: %v", err)
	}
}

func TestSendBuffersWhileReconnecting(t *testing.T) {
	s := New(Config{APIKey: "key"})
	s.reconnecting = true
	if err := s.Send([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send while reconnecting: %v", err)
	}
	if s.reconnectBuf.Len() != 4 {
		t.Fatalf("expected audio buffered during reconnect, got %d bytes", s.reconnectBuf.Len())
	}
}

func TestDisconnectClearsReconnectState(t *testing.T) {
	s := New(Config{APIKey: "key"})
	s.reconnecting = true
	s.reconnectBuf.Write([]byte{1, 2, 3})
	if err := s.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if s.reconnecting {
		t.Fatalf("expected reconnecting cleared after Disconnect")
	}
	if s.reconnectBuf.Len() != 0 {
		t.Fatalf("expected reconnect buffer cleared after Disconnect")
	}
}
