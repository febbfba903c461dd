package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
carrier:
  account_sid: AC1
  auth_token: token
  phone_number: "+15550000000"
stt:
  provider: deepgram
tts:
  provider: openai
agent:
  gateway_url: https://gateway.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Carrier.DefaultCountry != "+1" {
		t.Fatalf("expected default country +1, got %q", cfg.Carrier.DefaultCountry)
	}
	if cfg.STT.BatchSilenceMS != 1500 {
		t.Fatalf("expected default batch silence 1500ms, got %d", cfg.STT.BatchSilenceMS)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.BargeIn {
		t.Fatalf("expected barge_in to default true")
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("expected privacy.redact_pii to default true")
	}
	if cfg.Metrics.TurnSampleRate != 1.0 {
		t.Fatalf("expected metrics.turn_sample_rate to default 1.0, got %v", cfg.Metrics.TurnSampleRate)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_TWILIO_TOKEN", "secret-token")
	path := writeTestConfig(t, `
carrier:
  account_sid: AC1
  auth_token: ${TEST_TWILIO_TOKEN}
  phone_number: "+15550000000"
stt:
  provider: openai
tts:
  provider: openai
agent:
  gateway_url: https://gateway.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Carrier.AuthToken != "secret-token" {
		t.Fatalf("expected expanded auth token, got %q", cfg.Carrier.AuthToken)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeTestConfig(t, `
stt:
  provider: openai
tts:
  provider: openai
agent:
  gateway_url: https://gateway.example.com
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing carrier credentials")
	}
}

func TestLoadRejectsUnknownSTTProvider(t *testing.T) {
	path := writeTestConfig(t, `
carrier:
  account_sid: AC1
  auth_token: token
  phone_number: "+15550000000"
stt:
  provider: not-a-real-provider
tts:
  provider: openai
agent:
  gateway_url: https://gateway.example.com
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for unknown stt provider")
	}
}

func TestLoadRejectsMissingGatewayURL(t *testing.T) {
	path := writeTestConfig(t, `
carrier:
  account_sid: AC1
  auth_token: token
  phone_number: "+15550000000"
stt:
  provider: openai
tts:
  provider: openai
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing agent gateway url")
	}
}
