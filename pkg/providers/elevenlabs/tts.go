package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vardirect/callbridge/pkg/adapters/tts"
	"github.com/vardirect/callbridge/pkg/audio"
	"github.com/vardirect/callbridge/pkg/resilience"
)

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
}

// TTS synthesizes speech over ElevenLabs' stream-input websocket. A
// fresh connection is opened per call and closed once the final chunk
// for the utterance has arrived, since Provider.Synthesize returns the
// whole utterance rather than a running stream.
type TTS struct {
	cfg     Config
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

func New(cfg Config) *TTS {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_24000"
	}
	return &TTS{
		cfg:     cfg,
		retry:   resilience.NewRetryPolicy(2, 300*time.Millisecond),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (t *TTS) Name() string { return "elevenlabs" }

// Synthesize dials a fresh stream-input connection and runs it to
// completion as one retryable unit: the exchange is a single
// request/reply-stream round trip, so a dropped or rate-limited
// connection is retried in full rather than resumed mid-stream. A
// pcm_<rate> output format at another rate is resampled to
// tts.OutputSampleRate; other output formats are returned as received.
func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if t.cfg.APIKey == "" || t.cfg.VoiceID == "" {
		return nil, errors.New("elevenlabs: missing api key or voice id")
	}
	if !t.breaker.Allow() {
		return nil, fmt.Errorf("elevenlabs tts: circuit open")
	}

	var pcm []byte
	err := t.retry.Do(func() error {
		b, err := t.synthesizeOnce(ctx, text)
		if err != nil {
			return err
		}
		pcm = b
		return nil
	})
	if err != nil {
		t.breaker.OnError(err)
		return nil, err
	}
	t.breaker.OnSuccess()
	if rateStr, ok := strings.CutPrefix(t.cfg.OutputFormat, "pcm_"); ok {
		if rate, err := strconv.Atoi(rateStr); err == nil && rate != tts.OutputSampleRate {
			pcm = audio.Resample(pcm, rate, tts.OutputSampleRate)
		}
	}
	return pcm, nil
}

func (t *TTS) synthesizeOnce(ctx context.Context, text string) ([]byte, error) {
	u, err := t.buildURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{t.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
	}); err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(map[string]any{"text": text}); err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(map[string]any{"text": ""}); err != nil {
		return nil, err
	}

	var pcm bytes.Buffer
	for {
		var msg struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		if msg.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm.Write(raw)
		}
		if msg.IsFinal {
			break
		}
	}
	return pcm.Bytes(), nil
}

func (t *TTS) buildURL() (string, error) {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + t.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if t.cfg.ModelID != "" {
		q.Set("model_id", t.cfg.ModelID)
	}
	if t.cfg.OutputFormat != "" {
		q.Set("output_format", t.cfg.OutputFormat)
	}
	return base + "?" + q.Encode(), nil
}

var _ tts.Provider = (*TTS)(nil)
