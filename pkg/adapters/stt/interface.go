// Package stt defines the uniform contract every speech-to-text vendor
// package implements, whether backed by a persistent streaming
// connection or a series of batched HTTP requests.
package stt

import (
	"context"
	"strings"
)

// Transcript is emitted for both interim and final results.
type Transcript struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

// EventHandler receives STT events. Handlers must not block for long;
// the call manager's per-call actor is the intended receiver.
type EventHandler interface {
	OnTranscript(t Transcript)
	// OnSpeechStarted is only emitted by streaming providers with
	// native VAD and is used for barge-in detection.
	OnSpeechStarted()
	OnDisconnected()
	OnError(err error)
}

// Provider is the uniform STT contract from the component design:
// idempotent Connect, streaming or buffered Send, a Finalize that
// flushes and closes cleanly, and an unconditional Disconnect.
type Provider interface {
	Name() string

	// Connect is idempotent; establishes any backing session and
	// begins delivering events to handler.
	Connect(ctx context.Context, handler EventHandler) error

	// Send submits a chunk of 16kHz, 16-bit little-endian mono PCM.
	Send(pcm16LE16k []byte) error

	// Finalize flushes any buffered audio and closes the session
	// cleanly, emitting a final transcript if one is produced.
	Finalize() error

	// Disconnect tears down unconditionally; pending buffers are
	// discarded.
	Disconnect() error
}

// Config is vendor-agnostic construction configuration.
type Config struct {
	APIKey   string
	Language string
}

const (
	// MaxBatchBytes caps a batch provider's buffered audio at roughly
	// 5s of 16kHz/16-bit mono PCM; Send auto-flushes on reaching it so
	// a caller who never pauses isn't left unsent until end-of-call.
	MaxBatchBytes = 160000

	// MinBatchBytes is roughly 0.2s of 16kHz/16-bit mono PCM. A batch
	// this short is dropped rather than transcribed: it is usually a
	// stray VAD trigger and would just add noise to the transcript.
	MinBatchBytes = 6400
)

// NormalizeLanguage reduces a language tag to its ISO 639-1 two-letter
// prefix, e.g. "en-US" -> "en", as required before it is sent to
// providers that only accept the short form.
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	return strings.ToLower(lang)
}
