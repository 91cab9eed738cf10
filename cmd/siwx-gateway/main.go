// ABOUTME: Entry point for siwx-gateway, the wallet sign-in and delegation server
// ABOUTME: Provides serve, init, health, principal and logins commands

package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/siwx-gateway/internal/certify"
	"github.com/2389/siwx-gateway/internal/config"
	"github.com/2389/siwx-gateway/internal/gateway"
	"github.com/2389/siwx-gateway/internal/identity"
	"github.com/2389/siwx-gateway/internal/store"
	"github.com/2389/siwx-gateway/internal/wallet"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                                 _
 ___(_)_      ____  __      __ _  __ _| |_ _____      ____ _ _   _
/ __| \ \ /\ / /\ \/ /____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
\__ \ |\ V  V /  >  <_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|___/_| \_/\_/  /_/\_\     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                           |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: SIWX_CONFIG env var > XDG_CONFIG_HOME/siwx/gateway.yaml > ~/.config/siwx/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SIWX_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "siwx", "gateway.yaml")
}

// getDataPath returns the path to the siwx data directory.
// Priority: XDG_DATA_HOME/siwx > ~/.local/share/siwx
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "siwx")
}

func usage() {
	fmt.Println("Usage: siwx-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                Start the gateway server")
	fmt.Println("  init                 Create a new config file interactively")
	fmt.Println("  health               Check gateway health")
	fmt.Println("  principal <address>  Show the principal a wallet address signs in as")
	fmt.Println("  logins [flags]       List recent logins from the audit trail")
	fmt.Println("                       --address A  --outcome O  --limit N")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "health":
		err = runHealth(ctx)
	case "principal":
		err = runPrincipal(os.Stdout, os.Args[2:])
	case "logins":
		err = runLogins(ctx, os.Stdout, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Scheme:    %s\n", cfg.SIWX.Scheme)
	green.Print("    ▶ ")
	fmt.Printf("Domain:    %s\n", cfg.SIWX.Domain)
	green.Print("    ▶ ")
	fmt.Printf("Issuer:    %s\n", cfg.SIWX.Issuer)
	if !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.SIWX.Nonce == "placeholder" {
		yellow.Println("    ! placeholder nonces in use, challenges are predictable")
	}

	fmt.Println()

	logger.Info("starting siwx-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"scheme", cfg.SIWX.Scheme,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(string(body))
	return nil
}

// runPrincipal derives the identity for a wallet address offline, using
// the salt and issuer from config.
func runPrincipal(out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: siwx-gateway principal <address>")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return printPrincipal(out, &cfg.SIWX, args[0])
}

func printPrincipal(out io.Writer, cfg *config.SIWXConfig, address string) error {
	settings, err := gateway.LoginSettings(cfg)
	if err != nil {
		return err
	}
	verifier, err := wallet.NewVerifier(settings.Scheme)
	if err != nil {
		return err
	}
	subject, err := verifier.ParseSubject(address)
	if err != nil {
		return err
	}
	deriver, err := identity.NewDeriver(settings.Salt, settings.Issuer)
	if err != nil {
		return err
	}
	id, err := deriver.Identity(subject.Bytes)
	if err != nil {
		return err
	}

	seedHash := id.Seed.Hash()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Address:\t%s\n", subject.Text)
	fmt.Fprintf(tw, "Principal:\t%s\n", id.Principal)
	fmt.Fprintf(tw, "Public key:\t%s\n", hex.EncodeToString(id.PublicKey))
	fmt.Fprintf(tw, "Witness key:\t%s\n", hex.EncodeToString(seedHash[:]))
	return tw.Flush()
}

// runLogins prints recent audit records.
// Supports "--flag value" and "--flag=value" forms.
func runLogins(ctx context.Context, out io.Writer, args []string) error {
	filter, err := parseLoginFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is not configured; the audit trail is disabled")
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	return printLogins(ctx, out, s, filter)
}

func parseLoginFlags(args []string) (store.LoginFilter, error) {
	var f store.LoginFilter
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--address", "--outcome", "--limit":
		default:
			return f, fmt.Errorf("unknown flag: %s", args[i])
		}
		if !hasValue {
			if i+1 >= len(args) {
				return f, fmt.Errorf("%s requires a value", name)
			}
			value = args[i+1]
			i++
		}

		switch name {
		case "--address":
			f.Address = &value
		case "--outcome":
			f.Outcome = &value
		case "--limit":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return f, fmt.Errorf("--limit must be a positive integer")
			}
			f.Limit = n
		}
	}
	return f, nil
}

func printLogins(ctx context.Context, out io.Writer, s store.Store, f store.LoginFilter) error {
	records, err := s.ListLogins(ctx, f)
	if err != nil {
		return err
	}
	total, err := s.CountPrincipals(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOUTCOME\tADDRESS\tPRINCIPAL\tREMOTE")
	for _, r := range records {
		outcome := r.Outcome
		if outcome == store.OutcomeSuccess {
			outcome = color.GreenString(outcome)
		} else {
			outcome = color.RedString(outcome)
		}
		principal := r.Principal
		if principal == "" {
			principal = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			outcome,
			r.Address,
			principal,
			r.RemoteAddr,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d login(s) shown, %d distinct principal(s)\n", len(records), total)
	return nil
}

// issuerFromKey derives a self-authenticating principal for the certifier key.
func issuerFromKey(key ed25519.PrivateKey) (identity.Principal, error) {
	der, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, fmt.Errorf("encoding certifier public key: %w", err)
	}
	return identity.SelfAuthenticating(der), nil
}

func randomSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("siwx-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Sign-in Configuration ---")
	scheme := prompt(reader, "Wallet scheme (ethereum/solana)", "ethereum")
	if _, err := wallet.ParseScheme(scheme); err != nil {
		return err
	}
	domain := prompt(reader, "Domain shown to the wallet", "localhost:5173")
	uri := prompt(reader, "Origin URI", "http://localhost:5173")
	statement := prompt(reader, "Statement", config.DefaultStatement)
	chainID := prompt(reader, "Chain ID", defaultChainID(scheme))

	keyFile := prompt(reader, "Certifier key file", filepath.Join(defaultDataPath, "certifier.pem"))
	key, err := certify.LoadOrGenerateKey(keyFile)
	if err != nil {
		return err
	}
	issuer, err := issuerFromKey(key)
	if err != nil {
		return err
	}
	issuerText := prompt(reader, "Issuer principal", issuer.String())

	salt, err := randomSalt()
	if err != nil {
		return err
	}

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "Audit database path (empty disables)", filepath.Join(defaultDataPath, "audit.db"))

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes(prompt(reader, "Enable Tailscale?", "no"))

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "siwx-gateway")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		tsEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		tsFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# siwx-gateway configuration\n")
	cfg.WriteString("# Generated by siwx-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("siwx:\n")
	cfg.WriteString(fmt.Sprintf("  scheme: %q\n", scheme))
	cfg.WriteString(fmt.Sprintf("  domain: %q\n", domain))
	cfg.WriteString(fmt.Sprintf("  uri: %q\n", uri))
	cfg.WriteString(fmt.Sprintf("  statement: %q\n", statement))
	cfg.WriteString(fmt.Sprintf("  chain_id: %q\n", chainID))
	cfg.WriteString(fmt.Sprintf("  salt: %q\n", salt))
	cfg.WriteString(fmt.Sprintf("  issuer: %q\n", issuerText))
	cfg.WriteString("  nonce: \"secure\"\n")
	cfg.WriteString("  challenge_ttl: \"5m\"\n")
	cfg.WriteString("  session_ttl: \"30m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("certifier:\n")
	cfg.WriteString(fmt.Sprintf("  key_file: %q\n", keyFile))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("rate_limit:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  requests_per_minute: 30\n")
	cfg.WriteString("  burst: 5\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The salt is secret enough that the file should not be world readable.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Certifier key:   %s\n", keyFile)
	fmt.Printf("Issuer:          %s\n", issuerText)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  SIWX_CONFIG=%s siwx-gateway serve\n", outputFile)

	return nil
}

func defaultChainID(scheme string) string {
	if strings.EqualFold(scheme, string(wallet.Solana)) {
		return "mainnet"
	}
	return "1"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
