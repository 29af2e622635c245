package config

import (
	"testing"
)

func TestLoadAppliesMaxClientsDefault(t *testing.T) {
	payload := `{"platform":"google_meet","connectionId":"conn-1","meetingUrl":"https://meet.google.com/abc-defg-hij","redisUrl":"redis://localhost:6379"}`

	cfg, err := Load(payload)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxClients != defaultMaxClients {
		t.Fatalf("MaxClients = %d, want default %d", cfg.MaxClients, defaultMaxClients)
	}
	if cfg.BotName != "Meeting Bot" {
		t.Fatalf("BotName = %q, want default", cfg.BotName)
	}
}

func TestLoadRejectsUnsupportedPlatform(t *testing.T) {
	payload := `{"platform":"zoom","connectionId":"conn-1","redisUrl":"redis://localhost:6379"}`
	if _, err := Load(payload); err == nil {
		t.Fatalf("expected error for unsupported platform")
	}
}

func TestLoadRejectsMissingTranscriptionTarget(t *testing.T) {
	payload := `{"platform":"teams","connectionId":"conn-1"}`
	if _, err := Load(payload); err == nil {
		t.Fatalf("expected error when neither redisUrl nor WHISPER_LIVE_URL is set")
	}
}

func TestLoadEnvMaxClientsOverride(t *testing.T) {
	t.Setenv("WL_MAX_CLIENTS", "25")
	payload := `{"platform":"teams","connectionId":"conn-2","redisUrl":"redis://localhost:6379"}`

	cfg, err := Load(payload)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxClients != 25 {
		t.Fatalf("MaxClients = %d, want 25 from env override", cfg.MaxClients)
	}
}

func TestLoadFromEnvReadsBotConfigVar(t *testing.T) {
	payload := `{"platform":"google_meet","connectionId":"conn-3"}`
	t.Setenv(EnvBotConfig, payload)
	t.Setenv(EnvWhisperLive, "ws://fixed")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.ConnectionID != "conn-3" {
		t.Fatalf("ConnectionID = %q, want conn-3", cfg.ConnectionID)
	}
	if cfg.WhisperLiveURL != "ws://fixed" {
		t.Fatalf("WhisperLiveURL = %q, want env fallback", cfg.WhisperLiveURL)
	}
}
