package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Gateway      GatewayConfig      `toml:"gateway"`
	Enrichment   EnrichmentConfig   `toml:"enrichment"`
	Database     DatabaseConfig     `toml:"database"`
	Observer     ObserverConfig     `toml:"observer"`
}

type OrchestratorConfig struct {
	MaxConcurrentAgents int         `toml:"max_concurrent_agents"`
	DefaultTimeoutMs    int         `toml:"default_timeout_ms"`
	Retry               RetryConfig `toml:"retry"`
	Monitoring          Monitoring  `toml:"monitoring"`
	MessageBus          MessageBus  `toml:"message_bus"`
}

type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	BackoffMs   int `toml:"backoff_ms"`
}

type Monitoring struct {
	Enabled           bool `toml:"enabled"`
	MetricsIntervalMs int  `toml:"metrics_interval_ms"`
}

type MessageBus struct {
	MaxLogSize int `toml:"max_log_size"`
}

type GatewayConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type EnrichmentConfig struct {
	NymeriaAPIKey string `toml:"nymeria_api_key"`
}

type DatabaseConfig struct {
	// Driver selects the metrics store: "memory", "sqlite", or "postgres".
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrentAgents: 10,
			DefaultTimeoutMs:    120_000,
			Retry:               RetryConfig{MaxAttempts: 3, BackoffMs: 1000},
			Monitoring:          Monitoring{Enabled: true, MetricsIntervalMs: 30_000},
			MessageBus:          MessageBus{MaxLogSize: 1000},
		},
		Gateway:  GatewayConfig{Model: "gpt-4o-mini"},
		Database: DatabaseConfig{Driver: "memory", SQLitePath: "cadre.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "cadre.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := envInt("CADRE_MAX_CONCURRENT_AGENTS"); v > 0 {
		cfg.Orchestrator.MaxConcurrentAgents = v
	}
	if v := envInt("CADRE_DEFAULT_TIMEOUT_MS"); v > 0 {
		cfg.Orchestrator.DefaultTimeoutMs = v
	}
	if v := envInt("CADRE_RETRY_MAX_ATTEMPTS"); v > 0 {
		cfg.Orchestrator.Retry.MaxAttempts = v
	}
	if v := envInt("CADRE_RETRY_BACKOFF_MS"); v > 0 {
		cfg.Orchestrator.Retry.BackoffMs = v
	}
	if v := envInt("CADRE_BUS_MAX_LOG_SIZE"); v > 0 {
		cfg.Orchestrator.MessageBus.MaxLogSize = v
	}
	if v := os.Getenv("CADRE_GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("CADRE_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("CADRE_GATEWAY_MODEL"); v != "" {
		cfg.Gateway.Model = v
	}
	if v := os.Getenv("CADRE_NYMERIA_API_KEY"); v != "" {
		cfg.Enrichment.NymeriaAPIKey = v
	}
	if v := os.Getenv("CADRE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CADRE_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("CADRE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
