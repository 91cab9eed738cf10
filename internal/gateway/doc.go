// Package gateway serves the wallet sign-in engine over HTTP.
//
// # Overview
//
// The gateway owns one login.Service for the configured wallet scheme, the
// Ed25519 signer that certifies signature map roots, the optional login audit
// store, the per-address rate limiter and the Prometheus registry.
//
// # HTTP API
//
// The gateway exposes these endpoints in api.go:
//
//   - POST /api/siwx/prepare - Issue a challenge for {address}
//   - POST /api/siwx/login - Verify {signature, address, session_key}
//   - POST /api/siwx/delegation - Fetch a signed delegation registered by login
//   - GET /api/siwx/root - Current root, entry count and certificate
//   - GET /api/siwx/witness/{key} - CBOR witness for a seed hash
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check
//   - GET /metrics - Prometheus metrics (when enabled)
//
// Binary values are hex encoded. Expirations are decimal strings of unix
// nanoseconds so they survive JSON number precision.
//
// # Errors
//
// Failures are JSON objects with "error" and "code". Codes from the login
// package map to statuses:
//
//	challenge_not_found      404
//	invalid_signature        401
//	malformed_signature      400
//	malformed_key            400
//	delegation_construction  500
//	signature_not_found      404
//	not_initialized          503
//
// The gateway adds bad_request (400), rate_limited (429) and internal (500).
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Run listens on server.http_addr, or on the tailnet when tailscale is
// enabled, and shuts down gracefully when ctx is canceled.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, listeners, Run/Shutdown
//   - api.go: HTTP handlers and error mapping
//   - audit.go: Login audit recording
package gateway
