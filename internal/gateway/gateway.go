// ABOUTME: Gateway orchestrator that owns the login service and the HTTP server
// ABOUTME: Manages listeners (TCP or tsnet), audit store, metrics and graceful shutdown

package gateway

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/siwx-gateway/internal/certify"
	"github.com/2389/siwx-gateway/internal/challenge"
	"github.com/2389/siwx-gateway/internal/config"
	"github.com/2389/siwx-gateway/internal/identity"
	"github.com/2389/siwx-gateway/internal/login"
	"github.com/2389/siwx-gateway/internal/metrics"
	"github.com/2389/siwx-gateway/internal/ratelimit"
	"github.com/2389/siwx-gateway/internal/store"
	"github.com/2389/siwx-gateway/internal/wallet"
)

// Gateway serves the sign-in API for one wallet scheme.
type Gateway struct {
	config      *config.Config
	scheme      wallet.Scheme
	verifier    wallet.Verifier // canonicalizes addresses for rate limiting and audit
	login       *login.Service
	signer      *certify.Signer
	store       store.Store // nil when the audit trail is disabled
	limiter     *ratelimit.Limiter
	metrics     *metrics.Metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// publicURL is the externally reachable base URL, refined once tailscale is up
	publicURL string
}

// initStore opens the audit store. An empty path disables auditing.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SIWX_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// parseTargets converts configured principal texts. No targets means no restriction.
func parseTargets(texts []string) ([]identity.Principal, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	targets := make([]identity.Principal, 0, len(texts))
	for _, text := range texts {
		p, err := identity.ParsePrincipal(text)
		if err != nil {
			return nil, fmt.Errorf("parsing target %q: %w", text, err)
		}
		targets = append(targets, p)
	}
	return targets, nil
}

// nonceSource picks the challenge nonce generator named in config.
func nonceSource(name string) challenge.NonceSource {
	if name == "placeholder" {
		return challenge.PlaceholderNonce{}
	}
	return challenge.NewSecureNonce(rand.Reader)
}

// LoginSettings translates the siwx config section into service settings.
func LoginSettings(cfg *config.SIWXConfig) (login.Settings, error) {
	scheme, err := wallet.ParseScheme(cfg.Scheme)
	if err != nil {
		return login.Settings{}, err
	}
	issuer, err := identity.ParsePrincipal(cfg.Issuer)
	if err != nil {
		return login.Settings{}, fmt.Errorf("parsing issuer: %w", err)
	}
	targets, err := parseTargets(cfg.Targets)
	if err != nil {
		return login.Settings{}, err
	}

	return login.Settings{
		Scheme: scheme,
		Challenge: challenge.Settings{
			Scheme:    cfg.URIScheme,
			Domain:    cfg.Domain,
			Statement: cfg.Statement,
			URI:       cfg.URI,
			ChainID:   cfg.ChainID,
			TTL:       cfg.ChallengeTTL,
		},
		Salt:       cfg.Salt,
		Issuer:     issuer,
		SessionTTL: cfg.SessionTTL,
		Targets:    targets,
		MaxPending: cfg.MaxPending,
		PruneBatch: cfg.PruneBatch,
	}, nil
}

// createSigner loads the root certification key.
func createSigner(cfg *config.Config, logger *slog.Logger) (*certify.Signer, error) {
	key, err := certify.LoadOrGenerateKey(cfg.Certifier.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading certifier key: %w", err)
	}
	if cfg.Certifier.KeyFile == "" {
		logger.Warn("certifier.key_file not set - using an ephemeral key, signatures will not survive a restart")
	}
	return certify.NewSigner(key, cfg.SIWX.Issuer), nil
}

// determinePublicURL resolves the base URL reported in logs and readiness output.
func determinePublicURL(cfg *config.Config) string {
	if envURL := os.Getenv("SIWX_GATEWAY_URL"); envURL != "" {
		return envURL
	}
	if !cfg.Tailscale.Enabled {
		return "http://" + cfg.Server.HTTPAddr
	}
	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	settings, err := LoginSettings(&cfg.SIWX)
	if err != nil {
		return nil, err
	}

	signer, err := createSigner(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := login.New(settings, login.Options{
		Nonces:    nonceSource(cfg.SIWX.Nonce),
		Certifier: signer,
		Logger:    logger.With("component", "login"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating login service: %w", err)
	}

	verifier, err := wallet.NewVerifier(settings.Scheme)
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:    cfg,
		scheme:    settings.Scheme,
		verifier:  verifier,
		login:     svc,
		signer:    signer,
		store:     s,
		logger:    logger.With("component", "gateway"),
		serverID:  generateServerID(),
		publicURL: determinePublicURL(cfg),
	}

	if cfg.RateLimit.Enabled {
		gw.limiter = ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, 0)
		logger.Info("rate limiting enabled",
			"requests_per_minute", cfg.RateLimit.RequestsPerMinute,
			"burst", cfg.RateLimit.Burst,
		)
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	if cfg.Metrics.Enabled {
		gw.metrics, err = metrics.New(svc.Stats)
		if err != nil {
			gw.closeStore()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		mux.Handle(cfg.Metrics.Path, gw.metrics.Handler())
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	gw.registerAPIRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.metrics.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("sign-in gateway configured",
		"scheme", settings.Scheme,
		"domain", cfg.SIWX.Domain,
		"issuer", cfg.SIWX.Issuer,
		"audit", s != nil,
		"public_url", gw.publicURL,
	)
	return gw, nil
}

// Handler returns the root HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "siwx-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.createTailscaleHTTPListener(tsCfg)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, err
	}
	return ln, nil
}

// logTailscaleStatus logs the node address and refines the public URL.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	if dnsName != "" && os.Getenv("SIWX_GATEWAY_URL") == "" {
		scheme := "http://"
		if g.config.Tailscale.HTTPS || g.config.Tailscale.Funnel {
			scheme = "https://"
		}
		g.publicURL = scheme + strings.TrimSuffix(dnsName, ".")
	}
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener(tsCfg)
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener serves TLS on :443 using either configured cert
// files or Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if tsCfg.CertFile != "" && tsCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tsCfg.CertFile, tsCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS key pair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
		g.logger.Info("enabling HTTPS with configured certificate on :443", "cert_file", tsCfg.CertFile)
	} else {
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		tlsCfg.GetCertificate = lc.GetCertificate
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	}

	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	return tls.NewListener(ln, tlsCfg), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) closeStore() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.closeStore())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the login service can certify roots.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	root, err := g.login.Root()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("login service not initialized"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d delegations)", root.Entries)
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("siwx-gateway-%d", time.Now().UnixNano()%1000000)
}
