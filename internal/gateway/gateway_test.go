// ABOUTME: Tests for Gateway construction, lifecycle and health endpoints
// ABOUTME: Runs a real HTTP listener on a free port and shuts it down via context

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/siwx-gateway/internal/config"
	"github.com/2389/siwx-gateway/internal/wallet"
)

const testIssuer = "rrkah-fqaaa-aaaaa-aaaaq-cai"

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpAddr := ln.Addr().String()
	ln.Close()

	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: httpAddr},
		Database: config.DatabaseConfig{
			Path: filepath.Join(t.TempDir(), "audit.db"),
		},
		SIWX: config.SIWXConfig{
			Scheme:       "ethereum",
			Domain:       "127.0.0.1",
			URI:          "http://127.0.0.1:5173",
			URIScheme:    "http",
			Statement:    "Login to the app",
			ChainID:      "1",
			Salt:         "test-salt",
			Issuer:       testIssuer,
			Nonce:        "secure",
			ChallengeTTL: 5 * time.Minute,
			SessionTTL:   30 * time.Minute,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, mutate ...func(*config.Config)) *Gateway {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = gw.Shutdown(context.Background())
	})
	return gw
}

func TestGatewayNew(t *testing.T) {
	gw := newTestGateway(t)

	assert.NotNil(t, gw.login)
	assert.NotNil(t, gw.signer)
	assert.NotNil(t, gw.store, "audit store should be open when database.path is set")
	assert.NotNil(t, gw.metrics)
	assert.Nil(t, gw.limiter, "rate limiting is off by default")
	assert.Equal(t, wallet.Ethereum, gw.scheme)
	assert.Equal(t, testIssuer, gw.signer.Issuer())
}

func TestGatewayNew_AuditDisabled(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) {
		c.Database.Path = ""
		c.Metrics.Enabled = false
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 30, Burst: 5}
	})

	assert.Nil(t, gw.store)
	assert.Nil(t, gw.metrics)
	assert.NotNil(t, gw.limiter)
}

func TestGatewayNew_InvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad scheme", func(c *config.Config) { c.SIWX.Scheme = "bitcoin" }},
		{"bad issuer", func(c *config.Config) { c.SIWX.Issuer = "not-a-principal" }},
		{"bad target", func(c *config.Config) { c.SIWX.Targets = []string{"zzzzz"} }},
		{"missing domain", func(c *config.Config) { c.SIWX.Domain = "" }},
		{"zero session ttl", func(c *config.Config) { c.SIWX.SessionTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := New(cfg, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestLoginSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.SIWX.Scheme = "Solana"
	cfg.SIWX.Targets = []string{"aaaaa-aa", testIssuer}
	cfg.SIWX.MaxPending = 7
	cfg.SIWX.PruneBatch = 3

	s, err := LoginSettings(&cfg.SIWX)
	require.NoError(t, err)

	assert.Equal(t, wallet.Solana, s.Scheme)
	assert.Equal(t, testIssuer, s.Issuer.String())
	require.Len(t, s.Targets, 2)
	assert.Equal(t, "aaaaa-aa", s.Targets[0].String())
	assert.Equal(t, "http", s.Challenge.Scheme)
	assert.Equal(t, "127.0.0.1", s.Challenge.Domain)
	assert.Equal(t, 5*time.Minute, s.Challenge.TTL)
	assert.Equal(t, 30*time.Minute, s.SessionTTL)
	assert.Equal(t, 7, s.MaxPending)
	assert.Equal(t, 3, s.PruneBatch)
}

func TestLoginSettings_EmptyTargetsMeansUnrestricted(t *testing.T) {
	cfg := testConfig(t)
	cfg.SIWX.Targets = []string{}

	s, err := LoginSettings(&cfg.SIWX)
	require.NoError(t, err)
	assert.Nil(t, s.Targets)
}

func TestHealthEndpoints(t *testing.T) {
	gw := newTestGateway(t)
	h := gw.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready (0 delegations)", rec.Body.String())
}

func TestGatewayRun_ServesUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	url := "http://" + cfg.Server.HTTPAddr + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGatewayRun_ListenError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	gw := newTestGateway(t, func(c *config.Config) {
		c.Server.HTTPAddr = occupied.Addr().String()
	})

	err = gw.Run(context.Background())
	assert.ErrorContains(t, err, "listening on HTTP address")
}

func TestDeterminePublicURL(t *testing.T) {
	t.Setenv("SIWX_GATEWAY_URL", "")

	cfg := &config.Config{Server: config.ServerConfig{HTTPAddr: "localhost:8080"}}
	assert.Equal(t, "http://localhost:8080", determinePublicURL(cfg))

	cfg.Tailscale = config.TailscaleConfig{Enabled: true, Hostname: "siwx"}
	assert.Equal(t, "http://siwx", determinePublicURL(cfg))

	cfg.Tailscale.Funnel = true
	assert.Equal(t, "https://siwx", determinePublicURL(cfg))

	t.Setenv("SIWX_GATEWAY_URL", "https://login.example.com")
	assert.Equal(t, "https://login.example.com", determinePublicURL(cfg))
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/siwx")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/siwx", dir)

	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Contains(t, dir, filepath.Join("siwx-gateway", "tailscale"))
}
