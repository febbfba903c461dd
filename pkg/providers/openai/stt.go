// Package openai implements STT and TTS providers backed by the
// official OpenAI SDK.
package openai

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	adaptstt "github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/audio"
	"github.com/vardirect/callbridge/pkg/resilience"
)

type STTConfig struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// STT buffers PCM until Finalize, then transcribes the whole utterance
// with the Whisper transcription endpoint; Send transcribes early once
// the buffer reaches adaptstt.MaxBatchBytes. The API has no streaming
// partial-result mode, so only a final transcript is ever emitted.
type STT struct {
	cfg     STTConfig
	client  openai.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker

	mu      sync.Mutex
	handler adaptstt.EventHandler
	buf     bytes.Buffer
}

func NewSTT(cfg STTConfig) *STT {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &STT{
		cfg:     cfg,
		client:  openai.NewClient(opts...),
		retry:   resilience.NewRetryPolicy(2, 300*time.Millisecond),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (s *STT) Name() string { return "openai" }

func (s *STT) Connect(ctx context.Context, handler adaptstt.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.buf.Reset()
	return nil
}

func (s *STT) Send(pcm16LE16k []byte) error {
	s.mu.Lock()
	if s.handler == nil {
		s.mu.Unlock()
		return errors.New("openai: not connected")
	}
	s.buf.Write(pcm16LE16k)
	var overflow []byte
	if s.buf.Len() >= adaptstt.MaxBatchBytes {
		overflow = append([]byte(nil), s.buf.Bytes()...)
		s.buf.Reset()
	}
	s.mu.Unlock()

	if overflow != nil {
		return s.transcribe(overflow)
	}
	return nil
}

func (s *STT) Finalize() error {
	s.mu.Lock()
	pcm := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	s.mu.Unlock()
	return s.transcribe(pcm)
}

func (s *STT) transcribe(pcm []byte) error {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	if handler == nil || len(pcm) < adaptstt.MinBatchBytes {
		return nil
	}

	wav := audio.WrapWAV(pcm, 16000)
	params := openai.AudioTranscriptionNewParams{
		File:  bytes.NewReader(wav),
		Model: openai.AudioModel(s.cfg.Model),
	}
	if lang := adaptstt.NormalizeLanguage(s.cfg.Language); lang != "" {
		params.Language = openai.String(lang)
	}

	if !s.breaker.Allow() {
		err := errors.New("openai: circuit open")
		handler.OnError(err)
		return err
	}

	var transcription *openai.Transcription
	err := s.retry.Do(func() error {
		t, err := s.client.Audio.Transcriptions.New(context.Background(), params)
		if err != nil {
			return classifyRateLimit(err)
		}
		transcription = t
		return nil
	})
	if err != nil {
		s.breaker.OnError(err)
		handler.OnError(err)
		return err
	}
	s.breaker.OnSuccess()
	handler.OnTranscript(adaptstt.Transcript{Text: transcription.Text, IsFinal: true})
	return nil
}

// classifyRateLimit tags a 429 response from the openai-go SDK as a
// resilience.RateLimitError so the circuit breaker recognizes it.
func classifyRateLimit(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return resilience.RateLimitError{Provider: "openai", Message: apiErr.Error()}
	}
	return err
}

func (s *STT) Disconnect() error {
	s.mu.Lock()
	handler := s.handler
	s.handler = nil
	s.buf.Reset()
	s.mu.Unlock()
	if handler != nil {
		handler.OnDisconnected()
	}
	return nil
}

var _ adaptstt.Provider = (*STT)(nil)
