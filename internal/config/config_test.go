// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

siwx:
  scheme: "ethereum"
  domain: "example.com"
  uri: "https://example.com"
  chain_id: "1"
  salt: "deployment-salt"
  issuer: "rrkah-fqaaa-aaaaa-aaaaq-cai"
  challenge_ttl: "2m"
  session_ttl: "1h"
  targets:
    - "rrkah-fqaaa-aaaaa-aaaaq-cai"

certifier:
  key_file: "/var/lib/siwx/certifier.pem"

rate_limit:
  enabled: true
  requests_per_minute: 10
  burst: 3

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.SIWX.Scheme != "ethereum" {
		t.Errorf("SIWX.Scheme = %q, want ethereum", cfg.SIWX.Scheme)
	}
	if cfg.SIWX.ChallengeTTL != 2*time.Minute {
		t.Errorf("SIWX.ChallengeTTL = %v, want 2m", cfg.SIWX.ChallengeTTL)
	}
	if cfg.SIWX.SessionTTL != time.Hour {
		t.Errorf("SIWX.SessionTTL = %v, want 1h", cfg.SIWX.SessionTTL)
	}
	if len(cfg.SIWX.Targets) != 1 {
		t.Errorf("SIWX.Targets has %d entries, want 1", len(cfg.SIWX.Targets))
	}
	if cfg.Certifier.KeyFile != "/var/lib/siwx/certifier.pem" {
		t.Errorf("Certifier.KeyFile = %q", cfg.Certifier.KeyFile)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerMinute != 10 || cfg.RateLimit.Burst != 3 {
		t.Errorf("RateLimit = %+v, want enabled 10/min burst 3", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
server:
  http_addr: "localhost:8080"
siwx:
  scheme: "solana"
  domain: "example.com"
  uri: "https://example.com"
  salt: "s"
  issuer: "aaaaa-aa"
rate_limit:
  enabled: true
`
	cfg, err := Load(writeConfig(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SIWX.ChallengeTTL != DefaultChallengeTTL {
		t.Errorf("ChallengeTTL = %v, want %v", cfg.SIWX.ChallengeTTL, DefaultChallengeTTL)
	}
	if cfg.SIWX.SessionTTL != DefaultSessionTTL {
		t.Errorf("SessionTTL = %v, want %v", cfg.SIWX.SessionTTL, DefaultSessionTTL)
	}
	if cfg.SIWX.URIScheme != DefaultScheme {
		t.Errorf("URIScheme = %q, want %q", cfg.SIWX.URIScheme, DefaultScheme)
	}
	if cfg.SIWX.Statement != DefaultStatement {
		t.Errorf("Statement = %q, want %q", cfg.SIWX.Statement, DefaultStatement)
	}
	if cfg.SIWX.Nonce != "secure" {
		t.Errorf("Nonce = %q, want secure", cfg.SIWX.Nonce)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 || cfg.RateLimit.Burst != 5 {
		t.Errorf("RateLimit = %+v, want 30/min burst 5", cfg.RateLimit)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty (audit disabled)", cfg.Database.Path)
	}
}

func TestLoad_TOML(t *testing.T) {
	content := `
[server]
http_addr = "localhost:9090"

[siwx]
scheme = "solana"
domain = "example.com"
uri = "https://example.com"
salt = "toml-salt"
issuer = "aaaaa-aa"
session_ttl = "45m"
nonce = "placeholder"

[logging]
level = "warn"
`
	cfg, err := Load(writeConfig(t, "gateway.toml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:9090" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.SIWX.Salt != "toml-salt" {
		t.Errorf("SIWX.Salt = %q", cfg.SIWX.Salt)
	}
	if cfg.SIWX.SessionTTL != 45*time.Minute {
		t.Errorf("SIWX.SessionTTL = %v, want 45m", cfg.SIWX.SessionTTL)
	}
	if cfg.SIWX.Nonce != "placeholder" {
		t.Errorf("SIWX.Nonce = %q, want placeholder", cfg.SIWX.Nonce)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SIWX_SALT", "from-env")
	t.Setenv("TEST_SIWX_DOMAIN", "env.example.com")

	content := strings.NewReplacer(
		`salt: "deployment-salt"`, `salt: "${TEST_SIWX_SALT}"`,
		`domain: "example.com"`, `domain: "${TEST_SIWX_DOMAIN}"`,
	).Replace(validYAML)

	cfg, err := Load(writeConfig(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SIWX.Salt != "from-env" {
		t.Errorf("SIWX.Salt = %q, want from-env", cfg.SIWX.Salt)
	}
	if cfg.SIWX.Domain != "env.example.com" {
		t.Errorf("SIWX.Domain = %q, want env.example.com", cfg.SIWX.Domain)
	}
}

func TestExpandEnvVars_Unset(t *testing.T) {
	got := expandEnvVars("a ${SIWX_TEST_DEFINITELY_UNSET} b")
	if got != "a  b" {
		t.Errorf("expandEnvVars() = %q, want %q", got, "a  b")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := strings.Replace(validYAML, `session_ttl: "1h"`, `session_ttl: "forever"`, 1)

	_, err := Load(writeConfig(t, "config.yaml", content))
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "session_ttl") {
		t.Errorf("error %q should mention session_ttl", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "server: [unclosed"))
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without hostname", func(c *Config) {
			c.Tailscale.Enabled = true
		}, "tailscale.hostname"},
		{"tailscale replaces http addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = "siwx"
		}, ""},
		{"missing scheme", func(c *Config) { c.SIWX.Scheme = "" }, "siwx.scheme"},
		{"unknown scheme", func(c *Config) { c.SIWX.Scheme = "bitcoin" }, "siwx.scheme"},
		{"scheme case-insensitive", func(c *Config) { c.SIWX.Scheme = "Solana" }, ""},
		{"missing domain", func(c *Config) { c.SIWX.Domain = "" }, "siwx.domain"},
		{"missing uri", func(c *Config) { c.SIWX.URI = "" }, "siwx.uri"},
		{"missing salt", func(c *Config) { c.SIWX.Salt = "" }, "siwx.salt"},
		{"salt too long", func(c *Config) { c.SIWX.Salt = strings.Repeat("x", 256) }, "siwx.salt"},
		{"missing issuer", func(c *Config) { c.SIWX.Issuer = "" }, "siwx.issuer"},
		{"negative ttl", func(c *Config) { c.SIWX.SessionTTL = -time.Second }, "session_ttl"},
		{"bad nonce", func(c *Config) { c.SIWX.Nonce = "random" }, "siwx.nonce"},
		{"negative pending", func(c *Config) { c.SIWX.MaxPending = -1 }, "max_pending"},
		{"negative rate", func(c *Config) { c.RateLimit.Burst = -1 }, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
