package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParsesAllSections(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	data := []byte(`
server:
  httpAddr: ":9090"
redis:
  addr: "127.0.0.1:6379"
  db: 1
  prefix: "pixiu"
solana:
  rpcUrl: "https://rpc.example.com"
  apiKey: "k1"
  maxAttempts: 5
  breaker:
    enabled: true
    errorRatio: 0.5
cache:
  ttlSeconds: 120
scoring:
  coalesce: true
rateLimit:
  maxRequests: 5
  windowSeconds: 30
  keyStrategy: "ip_path"
features:
  localFallback: true
log:
  level: "debug"
  format: "json"
`)

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.HTTPAddr != ":9090" {
		t.Fatalf("server.httpAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Redis.Prefix != "pixiu" || cfg.Redis.DB != 1 {
		t.Fatalf("redis section not parsed: %#v", cfg.Redis)
	}
	if cfg.Solana.MaxAttempts != 5 || !cfg.Solana.Breaker.Enabled {
		t.Fatalf("solana section not parsed: %#v", cfg.Solana)
	}
	// unset values receive defaults
	if cfg.Solana.AttemptTimeoutMs != DefaultAttemptTimeoutMs {
		t.Fatalf("attemptTimeoutMs = %d", cfg.Solana.AttemptTimeoutMs)
	}
	if cfg.Cache.TTLSeconds != 120 || !cfg.Scoring.Coalesce {
		t.Fatalf("cache/scoring not parsed")
	}
	if cfg.RateLimit.KeyStrategy != "ip_path" || cfg.RateLimit.MaxRequests != 5 {
		t.Fatalf("rateLimit not parsed: %#v", cfg.RateLimit)
	}
	if cfg.Features.FailPolicy != "fail-open" || !cfg.Features.LocalFallback {
		t.Fatalf("features = %#v", cfg.Features)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SOLANA_API_KEY", "secret")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	data := []byte(`
redis:
  url: "${REDIS_URL}"
solana:
  apiKey: "${SOLANA_API_KEY}"
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Solana.APIKey != "secret" || cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("env not expanded: %q/%q", cfg.Solana.APIKey, cfg.Redis.URL)
	}
	if cfg.Solana.RPCURL != DefaultRPCURL {
		t.Fatalf("default rpc url not applied: %q", cfg.Solana.RPCURL)
	}
}

func TestValidateReportsMissing(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Solana.RPCURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"solana.rpcUrl", "solana.apiKey", "redis.url|redis.addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateRejectsUnknownPolicies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"fail-closed", func(c *Config) { c.Features.FailPolicy = "fail-closed" }},
		{"key strategy", func(c *Config) { c.RateLimit.KeyStrategy = "cookie" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Redis:  RedisCfg{Addr: "127.0.0.1:6379"},
				Solana: SolanaCfg{APIKey: "k"},
			}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
