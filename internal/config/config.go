// ABOUTME: Configuration loading and parsing for siwx-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultSessionTTL   = 30 * time.Minute
	DefaultScheme       = "https"
	DefaultStatement    = "Sign in with your wallet."
	DefaultNonce        = "secure"
	DefaultMetricsPath  = "/metrics"
)

// Config represents the complete siwx-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	SIWX      SIWXConfig      `yaml:"siwx" toml:"siwx"`
	Certifier CertifierConfig `yaml:"certifier" toml:"certifier"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`         // Serve HTTPS on :443 with Tailscale certs
	CertFile  string `yaml:"cert_file" toml:"cert_file"` // TLS cert file (generate via: tailscale cert <hostname>)
	KeyFile   string `yaml:"key_file" toml:"key_file"`   // TLS key file
	Funnel    bool   `yaml:"funnel" toml:"funnel"`       // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds the login audit database configuration.
// An empty path disables the audit trail.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SIWXConfig holds the sign-in settings
type SIWXConfig struct {
	Scheme     string   `yaml:"scheme" toml:"scheme"`         // wallet family: ethereum or solana
	Domain     string   `yaml:"domain" toml:"domain"`         // host rendered in the challenge header
	URI        string   `yaml:"uri" toml:"uri"`               // origin URI rendered in the challenge
	URIScheme  string   `yaml:"uri_scheme" toml:"uri_scheme"` // defaults to https
	Statement  string   `yaml:"statement" toml:"statement"`
	ChainID    string   `yaml:"chain_id" toml:"chain_id"`
	Salt       string   `yaml:"salt" toml:"salt"`
	Issuer     string   `yaml:"issuer" toml:"issuer"` // principal text of the certifying issuer
	Targets    []string `yaml:"targets" toml:"targets"`
	Nonce      string   `yaml:"nonce" toml:"nonce"` // secure or placeholder
	MaxPending int      `yaml:"max_pending" toml:"max_pending"`
	PruneBatch int      `yaml:"prune_batch" toml:"prune_batch"`

	ChallengeTTL time.Duration `yaml:"-" toml:"-"`
	SessionTTL   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ChallengeTTLRaw string `yaml:"challenge_ttl" toml:"challenge_ttl"`
	SessionTTLRaw   string `yaml:"session_ttl" toml:"session_ttl"`
}

// CertifierConfig holds the root certification key configuration
type CertifierConfig struct {
	// KeyFile is a PKCS#8 PEM Ed25519 key, created on first start if missing.
	// Empty uses an ephemeral key that changes on every restart.
	KeyFile string `yaml:"key_file" toml:"key_file"`
}

// RateLimitConfig holds per-address rate limits for prepare and login
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" toml:"enabled"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.SIWX.URIScheme == "" {
		c.SIWX.URIScheme = DefaultScheme
	}
	if c.SIWX.Statement == "" {
		c.SIWX.Statement = DefaultStatement
	}
	if c.SIWX.Nonce == "" {
		c.SIWX.Nonce = DefaultNonce
	}
	if c.SIWX.ChallengeTTL == 0 {
		c.SIWX.ChallengeTTL = DefaultChallengeTTL
	}
	if c.SIWX.SessionTTL == 0 {
		c.SIWX.SessionTTL = DefaultSessionTTL
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute == 0 {
			c.RateLimit.RequestsPerMinute = 30
		}
		if c.RateLimit.Burst == 0 {
			c.RateLimit.Burst = 5
		}
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch strings.ToLower(c.SIWX.Scheme) {
	case "ethereum", "solana":
	case "":
		return fmt.Errorf("siwx.scheme is required (ethereum or solana)")
	default:
		return fmt.Errorf("siwx.scheme must be ethereum or solana, got %q", c.SIWX.Scheme)
	}
	if c.SIWX.Domain == "" {
		return fmt.Errorf("siwx.domain is required")
	}
	if c.SIWX.URI == "" {
		return fmt.Errorf("siwx.uri is required")
	}
	if c.SIWX.Salt == "" {
		return fmt.Errorf("siwx.salt is required")
	}
	if len(c.SIWX.Salt) > 255 {
		return fmt.Errorf("siwx.salt must be at most 255 bytes")
	}
	if c.SIWX.Issuer == "" {
		return fmt.Errorf("siwx.issuer is required")
	}
	if c.SIWX.ChallengeTTL < 0 || c.SIWX.SessionTTL < 0 {
		return fmt.Errorf("siwx.challenge_ttl and siwx.session_ttl must be positive")
	}
	if c.SIWX.Nonce != "secure" && c.SIWX.Nonce != "placeholder" {
		return fmt.Errorf("siwx.nonce must be secure or placeholder, got %q", c.SIWX.Nonce)
	}
	if c.SIWX.MaxPending < 0 || c.SIWX.PruneBatch < 0 {
		return fmt.Errorf("siwx.max_pending and siwx.prune_batch must not be negative")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0) {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.SIWX.ChallengeTTLRaw != "" {
		cfg.SIWX.ChallengeTTL, err = time.ParseDuration(cfg.SIWX.ChallengeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing challenge_ttl %q: %w", cfg.SIWX.ChallengeTTLRaw, err)
		}
	}

	if cfg.SIWX.SessionTTLRaw != "" {
		cfg.SIWX.SessionTTL, err = time.ParseDuration(cfg.SIWX.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.SIWX.SessionTTLRaw, err)
		}
	}

	return nil
}
