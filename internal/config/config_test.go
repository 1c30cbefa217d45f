package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("WORKER_MAX_RETRIES", "10")
	t.Setenv("RESOLVE_CACHE_TTL", "30s")
	t.Setenv("ENABLED_NETWORKS", "steam, gog")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Worker.MaxRetries != 10 {
		t.Errorf("Worker.MaxRetries = %v, want %v", cfg.Worker.MaxRetries, 10)
	}

	if cfg.Cache.ResolveTTL != 30*time.Second {
		t.Errorf("Cache.ResolveTTL = %v, want %v", cfg.Cache.ResolveTTL, 30*time.Second)
	}

	if len(cfg.Networks.Enabled) != 2 || cfg.Networks.Enabled[0] != "steam" || cfg.Networks.Enabled[1] != "gog" {
		t.Errorf("Networks.Enabled = %v, want [steam gog]", cfg.Networks.Enabled)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero process count",
			mutate:  func(c *Config) { c.Worker.ProcessCount = 0 },
			wantErr: true,
		},
		{
			name:    "process num out of range",
			mutate:  func(c *Config) { c.Worker.ProcessCount = 4; c.Worker.ProcessNum = 4 },
			wantErr: true,
		},
		{
			name:    "negative process num",
			mutate:  func(c *Config) { c.Worker.ProcessNum = -1 },
			wantErr: true,
		},
		{
			name:    "zero max retries",
			mutate:  func(c *Config) { c.Worker.MaxRetries = 0 },
			wantErr: true,
		},
		{
			name:    "valid partition settings",
			mutate:  func(c *Config) { c.Worker.ProcessCount = 4; c.Worker.ProcessNum = 3 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Worker.ProcessCount = 1
			cfg.Worker.MaxRetries = 25
			tt.mutate(cfg)

			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := getEnvAsDuration("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want %v", got, 90*time.Second)
	}

	t.Setenv("TEST_DURATION", "not-a-duration")
	if got := getEnvAsDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvAsDuration() = %v, want default %v", got, time.Minute)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"steam,xbox,playstation,gog", 4},
		{"steam, xbox", 2},
		{"steam,,gog", 2},
		{"", 0},
	}

	for _, tt := range tests {
		if got := splitList(tt.input); len(got) != tt.want {
			t.Errorf("splitList(%q) = %v, want %d entries", tt.input, got, tt.want)
		}
	}
}
