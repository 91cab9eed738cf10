// Package config handles configuration loading for siwx-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files (chosen by extension) with
// environment variable expansion. Defaults are applied before validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SIWX_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/siwx/gateway.yaml
//  3. ~/.config/siwx/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	siwx:
//	  salt: "${SIWX_SALT}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Sign-in:
//
//	siwx:
//	  scheme: "ethereum"              # ethereum or solana
//	  domain: "app.example.com"
//	  uri: "https://app.example.com"
//	  chain_id: "1"
//	  salt: "${SIWX_SALT}"            # at most 255 bytes, never change it
//	  issuer: "rrkah-fqaaa-aaaaa-aaaaq-cai"
//	  challenge_ttl: "5m"
//	  session_ttl: "30m"
//	  nonce: "secure"                 # secure or placeholder
//	  targets: []
//
// Root certification:
//
//	certifier:
//	  key_file: "/var/lib/siwx/certifier.pem"
//
// Login audit (optional):
//
//	database:
//	  path: "/var/lib/siwx/audit.db"
//
// Rate limiting:
//
//	rate_limit:
//	  enabled: true
//	  requests_per_minute: 30
//	  burst: 5
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "siwx-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
