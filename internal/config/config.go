// Package config handles loading and validating the turnout configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the turnout daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Backends   BackendsConfig   `mapstructure:"backends"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Latency    LatencyConfig    `mapstructure:"latency"`
	Race       RaceConfig       `mapstructure:"race"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// MQTTConfig configures the MQTT transport. Queries arrive on AskTopic and
// answers are published to AnswerTopic.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	AskTopic    string `mapstructure:"ask_topic"`
	AnswerTopic string `mapstructure:"answer_topic"`
}

// BackendsConfig configures the two answer backends and the routing
// preference between them.
type BackendsConfig struct {
	// Preference pins routing to one backend: "" (automatic), "local_only",
	// or "cloud_only". Privacy overrides still force local under "cloud_only".
	Preference string      `mapstructure:"preference"`
	Cloud      CloudConfig `mapstructure:"cloud"`
	Local      LocalConfig `mapstructure:"local"`
}

// CloudConfig holds OpenAI API settings.
type CloudConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Streaming   bool          `mapstructure:"streaming"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// LocalConfig holds self-hosted Ollama settings.
type LocalConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"` // Ollama model name (e.g., "llama3.2:3b")
	Temperature float64       `mapstructure:"temperature"`
	NumPredict  int           `mapstructure:"num_predict"`
	TopK        int           `mapstructure:"top_k"`
	TopP        float64       `mapstructure:"top_p"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// BreakerConfig holds circuit breaker settings. The local model trips faster
// than the cloud because a broken local server fails cheaply and the cloud
// fallback is always one step away.
type BreakerConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	CloudFailureThreshold int           `mapstructure:"cloud_failure_threshold"`
	LocalFailureThreshold int           `mapstructure:"local_failure_threshold"`
	RecoveryTimeout       time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold      int           `mapstructure:"success_threshold"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxSize    int           `mapstructure:"max_size"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// LatencyConfig holds latency tracking settings. MinSamples gates adaptive
// routing: below that many recorded calls the tracker's opinion is ignored.
type LatencyConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Window             int           `mapstructure:"window"`
	CloudSlowThreshold time.Duration `mapstructure:"cloud_slow_threshold"`
	MinSamples         int           `mapstructure:"min_samples"`
}

// RaceConfig holds race mode settings. When enabled and the preferred
// backend has been slower than TriggerThreshold on average, both backends
// run concurrently and the first success wins.
type RaceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	TriggerThreshold time.Duration `mapstructure:"trigger_threshold"`
	LoserTimeout     time.Duration `mapstructure:"loser_timeout"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Backend string      `mapstructure:"backend"` // "piper"
	Piper   PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances (recommended for production), set Endpoints
// which maps ISO-639-1 codes to individual Wyoming TCP endpoints.
// If both are set, Endpoints takes precedence and Endpoint is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 language code -> Piper voice model name
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./turnout.yaml, ./configs/turnout.yaml, /etc/turnout/turnout.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.mqtt.enabled", false)
	v.SetDefault("transports.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transports.mqtt.ask_topic", "turnout/ask")
	v.SetDefault("transports.mqtt.answer_topic", "turnout/answer")
	v.SetDefault("backends.preference", "")
	v.SetDefault("backends.cloud.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("backends.cloud.base_url", "https://api.openai.com/v1")
	v.SetDefault("backends.cloud.model", "gpt-4o-mini")
	v.SetDefault("backends.cloud.temperature", 0.7)
	v.SetDefault("backends.cloud.max_tokens", 500)
	v.SetDefault("backends.cloud.timeout", "10s")
	v.SetDefault("backends.cloud.streaming", true)
	v.SetDefault("backends.cloud.max_retries", 2)
	v.SetDefault("backends.cloud.retry_delay", "1s")
	v.SetDefault("backends.local.endpoint", "http://localhost:11434")
	v.SetDefault("backends.local.model", "llama3.2:3b")
	v.SetDefault("backends.local.temperature", 0.7)
	v.SetDefault("backends.local.num_predict", 150)
	v.SetDefault("backends.local.top_k", 40)
	v.SetDefault("backends.local.top_p", 0.9)
	v.SetDefault("backends.local.timeout", "30s")
	v.SetDefault("backends.local.max_retries", 2)
	v.SetDefault("backends.local.retry_delay", "1s")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.cloud_failure_threshold", 3)
	v.SetDefault("breaker.local_failure_threshold", 2)
	v.SetDefault("breaker.recovery_timeout", "60s")
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_size", 100)
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("latency.enabled", true)
	v.SetDefault("latency.window", 50)
	v.SetDefault("latency.cloud_slow_threshold", "3s")
	v.SetDefault("latency.min_samples", 10)
	v.SetDefault("race.enabled", false)
	v.SetDefault("race.trigger_threshold", "5s")
	v.SetDefault("race.loser_timeout", "5s")
	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("turnout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/turnout")
	}

	// Environment variables: TURNOUT_BACKENDS_PREFERENCE, TURNOUT_CACHE_ENABLED, etc.
	v.SetEnvPrefix("TURNOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional — env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}")
	cfg.Backends.Cloud.APIKey = resolveEnvRef(cfg.Backends.Cloud.APIKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate rejects values the rest of the daemon cannot work with.
func (c *Config) validate() error {
	switch c.Backends.Preference {
	case "", "local_only", "cloud_only":
	default:
		return fmt.Errorf("invalid backends.preference %q (want \"\", \"local_only\" or \"cloud_only\")", c.Backends.Preference)
	}
	if c.Cache.MaxSize < 1 {
		return fmt.Errorf("cache.max_size must be at least 1, got %d", c.Cache.MaxSize)
	}
	if c.Latency.Window < 1 {
		return fmt.Errorf("latency.window must be at least 1, got %d", c.Latency.Window)
	}
	if c.Breaker.CloudFailureThreshold < 1 || c.Breaker.LocalFailureThreshold < 1 {
		return fmt.Errorf("breaker failure thresholds must be at least 1")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
		return ""
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
