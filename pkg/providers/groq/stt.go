// Package groq implements an STT provider backed by Groq's
// OpenAI-compatible Whisper transcription endpoint.
package groq

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/audio"
	"github.com/vardirect/callbridge/pkg/resilience"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

type STTConfig struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// STT buffers PCM until Finalize, then transcribes the whole utterance
// through Groq's Whisper-compatible endpoint; Send transcribes early
// once the buffer reaches stt.MaxBatchBytes. Like openai.STT, there
// is no partial-result mode.
type STT struct {
	cfg     STTConfig
	client  openai.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker

	mu      sync.Mutex
	handler stt.EventHandler
	buf     bytes.Buffer
}

func NewSTT(cfg STTConfig) *STT {
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3-turbo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey), option.WithBaseURL(cfg.BaseURL))
	return &STT{
		cfg:     cfg,
		client:  client,
		retry:   resilience.NewRetryPolicy(2, 300*time.Millisecond),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (s *STT) Name() string { return "groq" }

func (s *STT) Connect(ctx context.Context, handler stt.EventHandler) error {
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
		return errors.New("groq: not connected")
	}
	s.buf.Write(pcm16LE16k)
	var overflow []byte
	if s.buf.Len() >= stt.MaxBatchBytes {
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

	if handler == nil || len(pcm) < stt.MinBatchBytes {
		return nil
	}

	wav := audio.WrapWAV(pcm, 16000)
	params := openai.AudioTranscriptionNewParams{
		File:  bytes.NewReader(wav),
		Model: openai.AudioModel(s.cfg.Model),
	}
	if lang := stt.NormalizeLanguage(s.cfg.Language); lang != "" {
		params.Language = openai.String(lang)
	}

	if !s.breaker.Allow() {
		err := errors.New("groq: circuit open")
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
	handler.OnTranscript(stt.Transcript{Text: transcription.Text, IsFinal: true})
	return nil
}

// classifyRateLimit tags a 429 response from the openai-go SDK as a
// resilience.RateLimitError so the circuit breaker recognizes it.
func classifyRateLimit(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return resilience.RateLimitError{Provider: "groq", Message: apiErr.Error()}
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

var _ stt.Provider = (*STT)(nil)
