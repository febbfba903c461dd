// Command bridge is the call bridge process: it loads its
// configuration, wires the configured STT/TTS vendors and the carrier
// client, and serves the webhook/media-stream/API surface until
// SIGINT/SIGTERM asks it to drain.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/adapters/tts"
	"github.com/vardirect/callbridge/pkg/callmanager"
	"github.com/vardirect/callbridge/pkg/carrier"
	"github.com/vardirect/callbridge/pkg/config"
	"github.com/vardirect/callbridge/pkg/configutil"
	"github.com/vardirect/callbridge/pkg/logging"
	"github.com/vardirect/callbridge/pkg/metrics"
	"github.com/vardirect/callbridge/pkg/providers/deepgram"
	"github.com/vardirect/callbridge/pkg/providers/elevenlabs"
	"github.com/vardirect/callbridge/pkg/providers/groq"
	"github.com/vardirect/callbridge/pkg/providers/openai"
	"github.com/vardirect/callbridge/pkg/redact"
	"github.com/vardirect/callbridge/pkg/runner"
	"github.com/vardirect/callbridge/pkg/webhook"
)

type deepgramSTTSettings struct {
	Model      string `mapstructure:"model"`
	SampleRate int    `mapstructure:"sample_rate"`
	Encoding   string `mapstructure:"encoding"`
}

type deepgramTTSSettings struct {
	BaseURL string `mapstructure:"base_url"`
}

type elevenlabsSettings struct {
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
}

type openAISettings struct {
	BaseURL string `mapstructure:"base_url"`
}

type groqSettings struct {
	BaseURL string `mapstructure:"base_url"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the bridge's config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := logging.InitLogger(parseLogLevel(cfg.Server.LogLevel))
	slog.SetDefault(logger)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	carrierClient := carrier.New(carrier.Config{
		AccountSID: cfg.Carrier.AccountSID,
		AuthToken:  cfg.Carrier.AuthToken,
		FromNumber: cfg.Carrier.PhoneNumber,
		PublicURL:  cfg.Webhook.BaseURL,
		Logger:     logging.NewComponentLogger(logger, "carrier"),
	})

	sttFactory, err := buildSTTFactory(cfg.STT)
	if err != nil {
		logger.Error("stt_provider_unavailable", "provider", cfg.STT.Provider, "error", err)
		os.Exit(1)
	}
	ttsProvider, err := buildTTSProvider(cfg.TTS)
	if err != nil {
		logger.Error("tts_provider_unavailable", "provider", cfg.TTS.Provider, "error", err)
		os.Exit(1)
	}

	sink := metrics.NewSelectiveSampler(metrics.NewJSONLObserver(os.Stdout), cfg.Metrics.TurnSampleRate, "turn.transition")
	obs := metrics.NewAsyncObserver(sink, 2048)
	defer obs.Close()

	mgr := callmanager.New(callmanager.Config{
		Carrier:           carrierClient,
		STTFactory:        sttFactory,
		TTS:               ttsProvider,
		StreamURL:         webhook.MediaStreamURL(cfg.Webhook.BaseURL),
		StatusCallbackURL: webhook.StatusCallbackURL(cfg.Webhook.BaseURL),
		GatherCallbackURL: webhook.GatherCallbackURL(cfg.Webhook.BaseURL),
		DefaultCountry:    cfg.Carrier.DefaultCountry,
		Voice:             cfg.TTS.Voice,
		Language:          cfg.STT.Language,
		BargeIn:           cfg.BargeIn,
		STTBatch:          cfg.STT.Batch,
		BatchSilence:      time.Duration(cfg.STT.BatchSilenceMS) * time.Millisecond,
		FlushFrames:       cfg.STT.FlushFrames,
		Metrics:           obs,
		Logger:            logging.NewComponentLogger(logger, "callmanager"),
	})

	agent := webhook.NewAgentClient(mgr, webhook.AgentConfig{
		GatewayURL: cfg.Agent.GatewayURL,
		Timeout:    time.Duration(cfg.Agent.TimeoutMS) * time.Millisecond,
		Logger:     logging.NewComponentLogger(logger, "agent"),
	})

	server := webhook.NewServer(mgr, carrierClient, agent, webhook.Config{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		BaseURL: cfg.Webhook.BaseURL,
		Logger:  logging.NewComponentLogger(logger, "webhook"),
	})

	drainer := runner.BridgeDrainer{Manager: mgr, Server: server, Timeout: 15 * time.Second}
	lifecycle := runner.NewLifecycleRunner(drainer, runner.Hooks{
		OnStart: func() {
			go func() {
				if err := server.Start(); err != nil {
					logger.Error("webhook_server_failed", "error", err)
				}
			}()
		},
	}, 15*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("lifecycle_stopped_with_error", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// validateSettings checks a provider's free-form settings block against a
// schema before decoding it, so an unknown or misspelled key fails fast at
// startup instead of silently zero-valuing a field.
func validateSettings(path string, input map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func buildSTTFactory(cfg config.STTConfig) (func() stt.Provider, error) {
	switch cfg.Provider {
	case "deepgram":
		if err := validateSettings("stt.settings", cfg.Settings, configutil.Schema{
			Optional: []string{"model", "sample_rate", "encoding"},
		}); err != nil {
			return nil, err
		}
		var settings deepgramSTTSettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.Model == "" {
			settings.Model = "nova-2"
		}
		if settings.SampleRate == 0 {
			settings.SampleRate = 8000
		}
		if settings.Encoding == "" {
			settings.Encoding = "mulaw"
		}
		return func() stt.Provider {
			return deepgram.New(deepgram.Config{
				APIKey:     cfg.APIKey,
				Model:      settings.Model,
				Language:   cfg.Language,
				SampleRate: settings.SampleRate,
				Encoding:   settings.Encoding,
				Interim:    true,
				VADEvents:  true,
			})
		}, nil
	case "openai":
		if err := validateSettings("stt.settings", cfg.Settings, configutil.Schema{
			Optional: []string{"base_url"},
		}); err != nil {
			return nil, err
		}
		var settings openAISettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		return func() stt.Provider {
			return openai.NewSTT(openai.STTConfig{
				APIKey:   cfg.APIKey,
				Language: cfg.Language,
				BaseURL:  settings.BaseURL,
			})
		}, nil
	case "groq":
		if err := validateSettings("stt.settings", cfg.Settings, configutil.Schema{
			Optional: []string{"base_url"},
		}); err != nil {
			return nil, err
		}
		var settings groqSettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		return func() stt.Provider {
			return groq.NewSTT(groq.STTConfig{
				APIKey:   cfg.APIKey,
				Language: cfg.Language,
				BaseURL:  settings.BaseURL,
			})
		}, nil
	case "elevenlabs":
		if err := validateSettings("stt.settings", cfg.Settings, configutil.Schema{
			Optional: []string{"voice_id", "model_id", "output_format"},
		}); err != nil {
			return nil, err
		}
		var settings elevenlabsSettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		return func() stt.Provider {
			return elevenlabs.NewSTT(elevenlabs.STTConfig{
				APIKey:  cfg.APIKey,
				ModelID: settings.ModelID,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unsupported stt provider: %s", cfg.Provider)
	}
}

func buildTTSProvider(cfg config.TTSConfig) (tts.Provider, error) {
	switch cfg.Provider {
	case "openai":
		if err := validateSettings("tts.settings", cfg.Settings, configutil.Schema{
			Optional: []string{"base_url"},
		}); err != nil {
			return nil, err
		}
		var settings openAISettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		return openai.NewTTS(openai.TTSConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Voice:   cfg.Voice,
			BaseURL: settings.BaseURL,
		}), nil
	case "deepgram":
		if err := validateSettings("tts.settings", cfg.Settings, configutil.Schema{
			Optional: []string{"base_url"},
		}); err != nil {
			return nil, err
		}
		var settings deepgramTTSSettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		return deepgram.NewTTS(deepgram.TTSConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: settings.BaseURL,
		}), nil
	case "elevenlabs":
		if err := validateSettings("tts.settings", cfg.Settings, configutil.Schema{
			Optional: []string{"voice_id", "model_id", "output_format"},
		}); err != nil {
			return nil, err
		}
		var settings elevenlabsSettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:       cfg.APIKey,
			VoiceID:      settings.VoiceID,
			ModelID:      settings.ModelID,
			OutputFormat: settings.OutputFormat,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", cfg.Provider)
	}
}
