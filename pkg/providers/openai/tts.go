package openai

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vardirect/callbridge/pkg/adapters/tts"
	"github.com/vardirect/callbridge/pkg/resilience"
)

type TTSConfig struct {
	APIKey  string
	Model   string
	Voice   string
	BaseURL string
}

// TTS synthesizes speech with OpenAI's speech endpoint, requesting raw
// PCM so no further decoding is needed before mu-law reframing.
type TTS struct {
	cfg     TTSConfig
	client  openai.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

func NewTTS(cfg TTSConfig) *TTS {
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &TTS{
		cfg:     cfg,
		client:  openai.NewClient(opts...),
		retry:   resilience.NewRetryPolicy(2, 300*time.Millisecond),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (t *TTS) Name() string { return "openai" }

func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !t.breaker.Allow() {
		return nil, fmt.Errorf("openai tts: circuit open")
	}

	var pcm []byte
	err := t.retry.Do(func() error {
		resp, err := t.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
			Model:          openai.SpeechModel(t.cfg.Model),
			Voice:          openai.AudioSpeechNewParamsVoice(t.cfg.Voice),
			Input:          text,
			ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
		})
		if err != nil {
			return classifyRateLimit(err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		pcm = body
		return nil
	})
	if err != nil {
		t.breaker.OnError(err)
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	t.breaker.OnSuccess()
	return pcm, nil
}

var _ tts.Provider = (*TTS)(nil)
