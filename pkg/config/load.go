// Package config implements C11: loading a BotConfig from its JSON wire
// representation (as delivered by the bot manager) layered over process
// environment defaults, the way the teacher's cmd/agent/main.go layers
// godotenv + os.Getenv reads with fallback defaults before constructing its
// providers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// Env names read as defaults/overrides, mirroring the teacher's env-driven
// bootstrap.
const (
	EnvBotConfig     = "BOT_CONFIG"      // JSON-encoded BotConfig, same shape as the -config file
	EnvRedisURL      = "REDIS_URL"
	EnvWhisperLive   = "WHISPER_LIVE_URL"
	EnvMaxClients    = "WL_MAX_CLIENTS"
	EnvCallbackURL   = "BOT_MANAGER_CALLBACK_URL"
	defaultMaxClients = 10
)

// Load builds a BotConfig from a JSON payload (the contents of the agent's
// -config file, or of EnvBotConfig via LoadFromEnv), loading .env first and
// falling back to environment variables for anything the payload leaves
// blank.
func Load(jsonPayload string) (orchestrator.BotConfig, error) {
	// Missing .env is the common case in containerized deployment, never
	// fatal here; the load error is discarded.
	_ = godotenv.Load()

	var cfg orchestrator.BotConfig
	if jsonPayload != "" {
		if err := json.Unmarshal([]byte(jsonPayload), &cfg); err != nil {
			return orchestrator.BotConfig{}, fmt.Errorf("decode bot config: %w", err)
		}
	}

	applyEnvDefaults(&cfg)

	if err := validate(cfg); err != nil {
		return orchestrator.BotConfig{}, err
	}
	return cfg, nil
}

func applyEnvDefaults(cfg *orchestrator.BotConfig) {
	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv(EnvRedisURL)
	}
	if cfg.WhisperLiveURL == "" {
		cfg.WhisperLiveURL = os.Getenv(EnvWhisperLive)
	}
	if cfg.BotManagerCallbackURL == "" {
		cfg.BotManagerCallbackURL = os.Getenv(EnvCallbackURL)
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = defaultMaxClients
		if raw := os.Getenv(EnvMaxClients); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				cfg.MaxClients = n
			}
		}
	}
	if cfg.BotName == "" {
		cfg.BotName = "Meeting Bot"
	}
}

func validate(cfg orchestrator.BotConfig) error {
	if cfg.Platform != orchestrator.PlatformGoogleMeet && cfg.Platform != orchestrator.PlatformTeams {
		return fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
	if cfg.ConnectionID == "" {
		return fmt.Errorf("connectionId is required")
	}
	if cfg.RedisURL == "" && cfg.WhisperLiveURL == "" {
		return fmt.Errorf("either %s or %s must be set", EnvRedisURL, EnvWhisperLive)
	}
	return nil
}

// LoadFromEnv builds a BotConfig entirely from EnvBotConfig, for the common
// container entrypoint where the bot manager passes the payload as an
// environment variable rather than a -config file.
func LoadFromEnv() (orchestrator.BotConfig, error) {
	return Load(os.Getenv(EnvBotConfig))
}
