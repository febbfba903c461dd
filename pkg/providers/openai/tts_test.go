package openai

import "testing"

func TestTTSNewDefaults(t *testing.T) {
	tts := NewTTS(TTSConfig{APIKey: "key"})
	if tts.cfg.Model != "tts-1" {
		t.Fatalf("expected default model tts-1, got %q", tts.cfg.Model)
	}
	if tts.cfg.Voice != "alloy" {
		t.Fatalf("expected default voice alloy, got %q", tts.cfg.Voice)
	}
}
