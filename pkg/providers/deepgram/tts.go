package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vardirect/callbridge/pkg/adapters/tts"
	"github.com/vardirect/callbridge/pkg/resilience"
)

// TTSConfig configures the Aura REST speech synthesis endpoint.
type TTSConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// TTS synthesizes speech with Deepgram's Aura REST endpoint, which
// returns linear16 PCM in a single response rather than streaming.
type TTS struct {
	cfg     TTSConfig
	client  *http.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

func NewTTS(cfg TTSConfig) *TTS {
	if cfg.Model == "" {
		cfg.Model = "aura-asteria-en"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com"
	}
	return &TTS{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.NewRetryPolicy(2, 300*time.Millisecond),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (t *TTS) Name() string { return "deepgram" }

func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !t.breaker.Allow() {
		return nil, fmt.Errorf("deepgram tts: circuit open")
	}

	url := fmt.Sprintf("%s/v1/speak?model=%s&encoding=linear16&sample_rate=%d", t.cfg.BaseURL, t.cfg.Model, tts.OutputSampleRate)
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	var pcm []byte
	retryErr := t.retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Token "+t.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("deepgram tts: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return resilience.RateLimitError{Provider: "deepgram", Message: resp.Status}
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("deepgram tts: status %d: %s", resp.StatusCode, string(b))
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		pcm = b
		return nil
	})
	if retryErr != nil {
		t.breaker.OnError(retryErr)
		return nil, retryErr
	}
	t.breaker.OnSuccess()
	return pcm, nil
}

var _ tts.Provider = (*TTS)(nil)
