// Turnout is a resilient voice-assistant gateway daemon. It answers user
// queries by routing them between a cloud model (OpenAI) and a local model
// (Ollama), with privacy-aware routing, circuit breaking, response caching,
// latency-adaptive dispatch and optional spoken answers.
//
// Usage:
//
//	turnout [flags]
//	turnout --config /path/to/turnout.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nadzzz/turnout/internal/backend/ollama"
	"github.com/nadzzz/turnout/internal/backend/openai"
	"github.com/nadzzz/turnout/internal/breaker"
	"github.com/nadzzz/turnout/internal/cache"
	"github.com/nadzzz/turnout/internal/config"
	"github.com/nadzzz/turnout/internal/dispatch"
	"github.com/nadzzz/turnout/internal/gateway"
	"github.com/nadzzz/turnout/internal/health"
	"github.com/nadzzz/turnout/internal/latency"
	"github.com/nadzzz/turnout/internal/transport"
	grpctransport "github.com/nadzzz/turnout/internal/transport/grpc"
	httptransport "github.com/nadzzz/turnout/internal/transport/http"
	mqtttransport "github.com/nadzzz/turnout/internal/transport/mqtt"
	"github.com/nadzzz/turnout/internal/tts"
	"github.com/nadzzz/turnout/internal/tts/piper"
)

// version is set at build time via ldflags.
var version = "dev"

// @title        Turnout API
// @version      1.0
// @description  Resilient voice-assistant query routing between cloud and local language models.
// @BasePath     /
func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/turnout.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("turnout %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("turnout starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Build the two answer backends and probe them. A failed probe is not
	// fatal: the breaker and fallback machinery absorb a dead backend.
	cloud := openai.New(cfg.Backends.Cloud)
	local := ollama.New(cfg.Backends.Local)
	probeBackends(ctx, cloud, local)

	gw := gateway.New(gatewayConfig(cfg), cloud, local)
	defer gw.Close()

	synthesizer := buildSynthesizer(cfg)
	if synthesizer != nil {
		defer synthesizer.Close()
	}

	// Create the dispatcher that bridges transports to the gateway.
	dispatcher := dispatch.New(gw, synthesizer)

	// Initialize enabled transports.
	var transports []transport.Transport

	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, dispatcher, synthesizer))
	}
	if cfg.Transports.MQTT.Enabled {
		transports = append(transports, mqtttransport.New(
			cfg.Transports.MQTT.Broker,
			cfg.Transports.MQTT.AskTopic,
			cfg.Transports.MQTT.AnswerTopic))
	}

	if len(transports) == 0 {
		slog.Error("no transports enabled; enable at least one in config")
		os.Exit(1)
	}

	// Start health check server. The daemon degrades rather than dies when
	// both circuits are open: cached and apology answers still flow.
	healthServer := health.New(cfg.Server.HealthPort)
	healthServer.SetDegradedCheck(func() bool {
		snap := gw.Statistics()
		return snap.CloudBreaker.State == "open" && snap.LocalBreaker.State == "open"
	})
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	slog.Info("turnout ready",
		"transports", len(transports),
		"preference", cfg.Backends.Preference,
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("turnout stopped")
}

// probeBackends checks both backends at startup and logs what it finds.
func probeBackends(ctx context.Context, cloud *openai.Backend, local *ollama.Backend) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cloud.CheckAvailable(probeCtx); err != nil {
		slog.Warn("cloud backend unavailable at startup", "error", err)
	} else {
		slog.Info("cloud backend reachable")
	}
	if err := local.CheckAvailable(probeCtx); err != nil {
		slog.Warn("local backend unavailable at startup", "error", err)
	} else {
		slog.Info("local backend reachable")
	}
}

// buildSynthesizer constructs the configured TTS engine, nil when disabled.
func buildSynthesizer(cfg *config.Config) tts.Synthesizer {
	if !cfg.TTS.Enabled {
		return nil
	}
	switch cfg.TTS.Backend {
	case "piper":
		slog.Info("speech synthesis enabled", "backend", "piper", "endpoint", cfg.TTS.Piper.Endpoint)
		return piper.New(cfg.TTS.Piper)
	default:
		slog.Error("unknown tts backend", "backend", cfg.TTS.Backend)
		os.Exit(1)
		return nil
	}
}

// gatewayConfig translates the daemon configuration into the gateway's.
func gatewayConfig(cfg *config.Config) gateway.Config {
	return gateway.Config{
		Preference:   cfg.Backends.Preference,
		CloudTimeout: cfg.Backends.Cloud.Timeout,
		LocalTimeout: cfg.Backends.Local.Timeout,
		CloudBreaker: breaker.Config{
			Enabled:          cfg.Breaker.Enabled,
			FailureThreshold: cfg.Breaker.CloudFailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
		},
		LocalBreaker: breaker.Config{
			Enabled:          cfg.Breaker.Enabled,
			FailureThreshold: cfg.Breaker.LocalFailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
		},
		Cache: cache.Config{
			Enabled:    cfg.Cache.Enabled,
			MaxSize:    cfg.Cache.MaxSize,
			DefaultTTL: cfg.Cache.DefaultTTL,
		},
		Latency: latency.Config{
			Enabled: cfg.Latency.Enabled,
			Window:  cfg.Latency.Window,
		},
		CloudSlowThreshold:   cfg.Latency.CloudSlowThreshold,
		MinLatencySamples:    cfg.Latency.MinSamples,
		RaceEnabled:          cfg.Race.Enabled,
		RaceTriggerThreshold: cfg.Race.TriggerThreshold,
		RaceLoserTimeout:     cfg.Race.LoserTimeout,
	}
}
