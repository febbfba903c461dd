package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/audio"
	"github.com/vardirect/callbridge/pkg/resilience"
)

// STTConfig configures the Scribe batch transcription endpoint.
type STTConfig struct {
	APIKey  string
	ModelID string
	BaseURL string
}

// STT buffers PCM until Finalize, then submits the whole utterance to
// the Scribe REST endpoint in one request; Send submits early once the
// buffer reaches the MaxBatchBytes cap. It has no native streaming
// or VAD, so OnSpeechStarted is never emitted.
type STT struct {
	cfg     STTConfig
	client  *http.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker

	mu         sync.Mutex
	handler    stt.EventHandler
	buf        bytes.Buffer
	sampleRate int
}

func NewSTT(cfg STTConfig) *STT {
	if cfg.ModelID == "" {
		cfg.ModelID = "scribe_v1"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	return &STT{
		cfg:        cfg,
		client:     &http.Client{Timeout: 30 * time.Second},
		retry:      resilience.NewRetryPolicy(2, 300*time.Millisecond),
		breaker:    resilience.NewCircuitBreaker(3, 30*time.Second),
		sampleRate: 16000,
	}
}

func (s *STT) Name() string { return "elevenlabs" }

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
		return errors.New("elevenlabs: not connected")
	}
	s.buf.Write(pcm16LE16k)
	var overflow []byte
	if s.buf.Len() >= stt.MaxBatchBytes {
		overflow = append([]byte(nil), s.buf.Bytes()...)
		s.buf.Reset()
	}
	s.mu.Unlock()

	if overflow != nil {
		return s.finalizeChunk(overflow)
	}
	return nil
}

func (s *STT) Finalize() error {
	s.mu.Lock()
	pcm := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	s.mu.Unlock()
	return s.finalizeChunk(pcm)
}

func (s *STT) finalizeChunk(pcm []byte) error {
	s.mu.Lock()
	handler := s.handler
	sampleRate := s.sampleRate
	s.mu.Unlock()

	if handler == nil || len(pcm) < stt.MinBatchBytes {
		return nil
	}

	transcript, err := s.transcribe(context.Background(), pcm, sampleRate)
	if err != nil {
		handler.OnError(err)
		return err
	}
	handler.OnTranscript(stt.Transcript{Text: transcript, IsFinal: true})
	return nil
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

func (s *STT) transcribe(ctx context.Context, pcm16LE []byte, sampleRate int) (string, error) {
	if !s.breaker.Allow() {
		return "", fmt.Errorf("elevenlabs stt: circuit open")
	}

	wav := audio.WrapWAV(pcm16LE, sampleRate)

	var text string
	err := s.retry.Do(func() error {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "audio.wav")
		if err != nil {
			return err
		}
		if _, err := part.Write(wav); err != nil {
			return err
		}
		if err := mw.WriteField("model_id", s.cfg.ModelID); err != nil {
			return err
		}
		if err := mw.Close(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/speech-to-text", &body)
		if err != nil {
			return err
		}
		req.Header.Set("xi-api-key", s.cfg.APIKey)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("elevenlabs stt: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("elevenlabs stt: status %d", resp.StatusCode)
		}

		var out struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		text = out.Text
		return nil
	})
	if err != nil {
		s.breaker.OnError(err)
		return "", err
	}
	s.breaker.OnSuccess()
	return text, nil
}

var _ stt.Provider = (*STT)(nil)
