// Package config loads the bridge's process-wide configuration with
// Viper, the same way the teacher's pkg/ranya.LoadConfig does: read a
// config file, layer typed defaults with v.SetDefault, unmarshal into a
// shadow struct, then expand ${ENV} references before validating.
package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/spf13/viper"
	"github.com/vardirect/callbridge/pkg/configutil"
)

type CarrierConfig struct {
	AccountSID     string `mapstructure:"account_sid"`
	AuthToken      string `mapstructure:"auth_token"`
	PhoneNumber    string `mapstructure:"phone_number"`
	DefaultCountry string `mapstructure:"default_country"`
}

type WebhookConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type STTConfig struct {
	Provider       string         `mapstructure:"provider"`
	APIKey         string         `mapstructure:"api_key"`
	Language       string         `mapstructure:"language"`
	Batch          bool           `mapstructure:"batch"`
	FlushFrames    int            `mapstructure:"flush_frames"`
	BatchSilenceMS int            `mapstructure:"batch_silence_ms"`
	Settings       map[string]any `mapstructure:"settings"`
}

type TTSConfig struct {
	Provider string         `mapstructure:"provider"`
	APIKey   string         `mapstructure:"api_key"`
	Voice    string         `mapstructure:"voice"`
	Model    string         `mapstructure:"model"`
	Settings map[string]any `mapstructure:"settings"`
}

// DecodeSettings decodes a provider's free-form settings block (the
// vendor-specific knobs that don't earn a first-class field on STTConfig
// or TTSConfig, e.g. an ElevenLabs voice_id or output_format) into a
// typed struct.
func DecodeSettings(settings map[string]any, out any) error {
	return configutil.DecodeSettings(settings, out)
}

type AgentConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	TimeoutMS  int    `mapstructure:"timeout_ms"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// MetricsConfig controls the observer chain cmd/bridge builds. TurnSampleRate
// thins out turn.transition events, which fire multiple times per call and
// would otherwise dominate the sink; a rate of 1 keeps every event.
type MetricsConfig struct {
	TurnSampleRate float64 `mapstructure:"turn_sample_rate"`
}

type Config struct {
	Carrier CarrierConfig `mapstructure:"carrier"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	STT     STTConfig     `mapstructure:"stt"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Server  ServerConfig  `mapstructure:"server"`
	Privacy PrivacyConfig `mapstructure:"privacy"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	BargeIn bool          `mapstructure:"barge_in"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("carrier.default_country", "+1")
	v.SetDefault("stt.provider", "deepgram")
	v.SetDefault("stt.language", "en")
	v.SetDefault("stt.batch", false)
	v.SetDefault("stt.flush_frames", 0)
	v.SetDefault("stt.batch_silence_ms", 1500)
	v.SetDefault("tts.provider", "openai")
	v.SetDefault("tts.voice", "alloy")
	v.SetDefault("tts.model", "tts-1")
	v.SetDefault("agent.timeout_ms", 8000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("metrics.turn_sample_rate", 1.0)
	v.SetDefault("barge_in", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := configutil.RequireString(c.Carrier.AccountSID, "carrier.account_sid"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Carrier.AuthToken, "carrier.auth_token"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Carrier.PhoneNumber, "carrier.phone_number"); err != nil {
		return err
	}
	switch c.STT.Provider {
	case "deepgram", "openai", "groq", "elevenlabs":
	default:
		return fmt.Errorf("stt.provider must be one of deepgram, openai, groq, elevenlabs, got %q", c.STT.Provider)
	}
	switch c.TTS.Provider {
	case "openai", "deepgram", "elevenlabs":
	default:
		return fmt.Errorf("tts.provider must be one of openai, deepgram, elevenlabs, got %q", c.TTS.Provider)
	}
	if err := configutil.RequireString(c.Agent.GatewayURL, "agent.gateway_url"); err != nil {
		return err
	}
	return nil
}

// expandEnvStrings resolves ${VAR} references in every string field, so
// secrets can be injected from the environment without templating the
// config file itself, mirroring the teacher's os.ExpandEnv sweep.
func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
