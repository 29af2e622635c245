// Command agent is the bot process entrypoint (C13): load config, build the
// platform strategy, wire up the registry/control/callback collaborators,
// and run the meeting flow controller to exactly one ExitOutcome.
//
// Grounded on the teacher's cmd/agent/main.go bootstrap shape: godotenv load,
// env-driven provider selection via a switch, log.Fatal on unrecoverable
// config errors, signal.Notify for interrupt-driven shutdown — generalized
// from voice-provider selection to meeting-platform selection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meetbot/pkg/browser"
	"github.com/lokutor-ai/meetbot/pkg/callback"
	"github.com/lokutor-ai/meetbot/pkg/config"
	"github.com/lokutor-ai/meetbot/pkg/control"
	"github.com/lokutor-ai/meetbot/pkg/logging"
	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
	"github.com/lokutor-ai/meetbot/pkg/provider"
	"github.com/lokutor-ai/meetbot/pkg/registry"
	"github.com/lokutor-ai/meetbot/pkg/transcription"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a JSON bot config file (overrides BOT_CONFIG env var)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	logger := logging.New(*logLevel)
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load bot config", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("signal received, cancelling run")
		cancel()
	}()

	strategy, err := selectProvider(cfg.Platform)
	if err != nil {
		logger.Error("unsupported platform", "platform", cfg.Platform, "error", err)
		return 1
	}

	page, err := browser.New(ctx, logger)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		return 1
	}
	defer page.Close(context.Background())

	var (
		regClient *registry.Client
		rdb       *redis.Client
		ctrl      orchestrator.ControlChannel
	)
	if cfg.RedisURL != "" {
		rdb, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer rdb.Close()

		regClient = registry.NewFromClient(rdb)
		ctrl = control.New(rdb, logger)
	}

	var registryPort orchestrator.RegistryClient
	if regClient != nil {
		registryPort = regClient
	}

	callbackClient := callback.New(5 * time.Second)

	controller := &orchestrator.Controller{
		Provider:   strategy,
		Page:       page,
		Config:     cfg,
		Registry:   registryPort,
		Callbacks:  callbackClient,
		Control:    ctrl,
		Logger:     logger,
		NewSession: transcription.NewFactory(reconnectModeFor(cfg.Platform)),
	}

	result := controller.Run(ctx)
	logger.Info("bot run finished", "outcome", result.Outcome, "code", result.Outcome.Code())
	return result.Outcome.Code()
}

func loadConfig(path string) (orchestrator.BotConfig, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return orchestrator.BotConfig{}, fmt.Errorf("read config file: %w", err)
	}
	return config.Load(string(data))
}

func selectProvider(platform orchestrator.Platform) (orchestrator.Provider, error) {
	switch platform {
	case orchestrator.PlatformTeams:
		return provider.NewTeams(), nil
	case orchestrator.PlatformGoogleMeet:
		return provider.NewGoogleMeet(), nil
	default:
		return nil, fmt.Errorf("no provider strategy registered for platform %q", platform)
	}
}

// reconnectModeFor selects the transcription-session reconnect policy.
// Teams meetings tend to run long and unattended, so it gets the "never
// give up" policy; Google Meet keeps the simpler one.
func reconnectModeFor(platform orchestrator.Platform) transcription.ReconnectMode {
	if platform == orchestrator.PlatformTeams {
		return transcription.ReconnectStubborn
	}
	return transcription.ReconnectSimple
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
