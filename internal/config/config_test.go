package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Orchestrator.MaxConcurrentAgents != 10 {
		t.Errorf("MaxConcurrentAgents = %d, want 10", cfg.Orchestrator.MaxConcurrentAgents)
	}
	if cfg.Orchestrator.DefaultTimeoutMs != 120_000 {
		t.Errorf("DefaultTimeoutMs = %d, want 120000", cfg.Orchestrator.DefaultTimeoutMs)
	}
	if cfg.Orchestrator.Retry.MaxAttempts != 3 || cfg.Orchestrator.Retry.BackoffMs != 1000 {
		t.Errorf("retry defaults = %+v", cfg.Orchestrator.Retry)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver = %q, want memory", cfg.Database.Driver)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Orchestrator.MaxConcurrentAgents != 10 {
		t.Errorf("MaxConcurrentAgents = %d, want default 10", cfg.Orchestrator.MaxConcurrentAgents)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadre.toml")
	data := `
[orchestrator]
max_concurrent_agents = 4

[orchestrator.retry]
max_attempts = 5

[gateway]
base_url = "https://llm.internal"
model = "gpt-4o"

[database]
driver = "sqlite"
sqlite_path = "/tmp/cadre.db"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Orchestrator.MaxConcurrentAgents != 4 {
		t.Errorf("MaxConcurrentAgents = %d, want 4", cfg.Orchestrator.MaxConcurrentAgents)
	}
	if cfg.Orchestrator.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", cfg.Orchestrator.Retry.MaxAttempts)
	}
	// Fields the file omits keep their defaults.
	if cfg.Orchestrator.Retry.BackoffMs != 1000 {
		t.Errorf("Retry.BackoffMs = %d, want default 1000", cfg.Orchestrator.Retry.BackoffMs)
	}
	if cfg.Gateway.BaseURL != "https://llm.internal" || cfg.Gateway.Model != "gpt-4o" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.SQLitePath != "/tmp/cadre.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadre.toml")
	if err := os.WriteFile(path, []byte("[orchestrator]\nmax_concurrent_agents = 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CADRE_MAX_CONCURRENT_AGENTS", "7")
	t.Setenv("CADRE_GATEWAY_API_KEY", "secret")
	t.Setenv("CADRE_DATABASE_DRIVER", "postgres")
	t.Setenv("CADRE_OBSERVER_ENABLED", "1")

	cfg := Load(path)
	if cfg.Orchestrator.MaxConcurrentAgents != 7 {
		t.Errorf("MaxConcurrentAgents = %d, want env value 7", cfg.Orchestrator.MaxConcurrentAgents)
	}
	if cfg.Gateway.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", cfg.Gateway.APIKey)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if !cfg.Observer.Enabled {
		t.Error("Observer.Enabled = false, want true")
	}
}

func TestLoadIgnoresMalformedEnvInt(t *testing.T) {
	t.Setenv("CADRE_RETRY_MAX_ATTEMPTS", "not-a-number")
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Orchestrator.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want default 3", cfg.Orchestrator.Retry.MaxAttempts)
	}
}
