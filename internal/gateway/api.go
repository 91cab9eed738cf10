// ABOUTME: HTTP API handlers for the wallet sign-in flow
// ABOUTME: Provides prepare, login, delegation, root and witness endpoints with hex-encoded binary fields

package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/2389/siwx-gateway/internal/login"
	"github.com/2389/siwx-gateway/internal/sigmap"
)

// maxBodyBytes bounds request bodies; session keys are at most a few hundred bytes.
const maxBodyBytes = 64 << 10

// Gateway-level error codes, alongside login.Code values.
const (
	codeBadRequest  = "bad_request"
	codeRateLimited = "rate_limited"
	codeInternal    = "internal"
)

// PrepareRequest is the JSON request body for POST /api/siwx/prepare.
type PrepareRequest struct {
	Address string `json:"address"`
}

// PrepareResponse carries the challenge text the wallet must sign.
type PrepareResponse struct {
	Message string `json:"message"`
}

// LoginRequest is the JSON request body for POST /api/siwx/login.
type LoginRequest struct {
	Signature  string `json:"signature"`
	Address    string `json:"address"`
	SessionKey string `json:"session_key"` // hex DER session public key
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Expiration         string `json:"expiration"` // unix nanoseconds, decimal
	UserCanisterPubkey string `json:"user_canister_pubkey"`
	Principal          string `json:"principal"`
}

// DelegationRequest is the JSON request body for POST /api/siwx/delegation.
type DelegationRequest struct {
	Address    string `json:"address"`
	SessionKey string `json:"session_key"`
	Expiration string `json:"expiration"`
}

// DelegationBody mirrors delegation.Delegation on the wire.
type DelegationBody struct {
	PubKey     string   `json:"pubkey"`
	Expiration string   `json:"expiration"`
	Targets    []string `json:"targets,omitempty"`
}

// DelegationResponse is the JSON response for POST /api/siwx/delegation.
type DelegationResponse struct {
	Delegation DelegationBody `json:"delegation"`
	Signature  string         `json:"signature"` // hex CBOR certified signature
}

// RootResponse is the JSON response for GET /api/siwx/root.
type RootResponse struct {
	Root        string `json:"root"`
	Entries     int    `json:"entries"`
	Certificate string `json:"certificate,omitempty"`
	Issuer      string `json:"issuer"`
	PublicKey   string `json:"public_key"` // hex Ed25519 key that signs certificates
}

// WitnessResponse is the JSON response for GET /api/siwx/witness/{key}.
type WitnessResponse struct {
	Key      string `json:"key"`
	Contains bool   `json:"contains"`
	Witness  string `json:"witness"` // hex CBOR sigmap.Witness
}

// registerAPIRoutes registers the sign-in endpoints on mux.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/siwx/prepare", g.handlePrepare)
	mux.HandleFunc("/api/siwx/login", g.handleLogin)
	mux.HandleFunc("/api/siwx/delegation", g.handleDelegation)
	mux.HandleFunc("/api/siwx/root", g.handleRoot)
	mux.HandleFunc("/api/siwx/witness/", g.handleWitness)
}

// handlePrepare handles POST /api/siwx/prepare.
func (g *Gateway) handlePrepare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req PrepareRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if req.Address == "" {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, "address is required")
		return
	}
	if !g.allow(w, "prepare", req.Address) {
		return
	}

	message, err := g.login.PrepareLogin(req.Address)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.metrics.ChallengeIssued()

	writeJSON(w, http.StatusOK, PrepareResponse{Message: message})
}

// handleLogin handles POST /api/siwx/login.
// Every attempt that reaches the login service is audited, successful or not.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.Signature == "" || req.SessionKey == "" {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, "signature, address, and session_key are required")
		return
	}
	sessionKey, err := decodeHex(req.SessionKey)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, "session_key must be hex")
		return
	}
	if !g.allow(w, "login", req.Address) {
		return
	}

	details, err := g.login.Login(req.Signature, req.Address, sessionKey)
	outcome := outcomeOf(err)
	g.metrics.Login(outcome)
	g.recordLogin(r, req.Address, sessionKey, details, outcome)

	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Expiration:         strconv.FormatUint(details.Expiration, 10),
		UserCanisterPubkey: hex.EncodeToString(details.UserPublicKey),
		Principal:          details.Principal.String(),
	})
}

// handleDelegation handles POST /api/siwx/delegation.
func (g *Gateway) handleDelegation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req DelegationRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.SessionKey == "" || req.Expiration == "" {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, "address, session_key, and expiration are required")
		return
	}
	sessionKey, err := decodeHex(req.SessionKey)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, "session_key must be hex")
		return
	}
	expiration, err := strconv.ParseUint(req.Expiration, 10, 64)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, "expiration must be a decimal nanosecond timestamp")
		return
	}

	signed, err := g.login.GetDelegation(req.Address, sessionKey, expiration)
	g.metrics.Delegation(outcomeOf(err))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	body := DelegationBody{
		PubKey:     hex.EncodeToString(signed.Delegation.PubKey),
		Expiration: strconv.FormatUint(signed.Delegation.Expiration, 10),
	}
	for _, t := range signed.Delegation.Targets {
		body.Targets = append(body.Targets, t.String())
	}

	writeJSON(w, http.StatusOK, DelegationResponse{
		Delegation: body,
		Signature:  hex.EncodeToString(signed.Signature),
	})
}

// handleRoot handles GET /api/siwx/root.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	root, err := g.login.Root()
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RootResponse{
		Root:        hex.EncodeToString(root.Hash[:]),
		Entries:     root.Entries,
		Certificate: string(root.Certificate),
		Issuer:      g.signer.Issuer(),
		PublicKey:   hex.EncodeToString(g.signer.PublicKey()),
	})
}

// handleWitness handles GET /api/siwx/witness/{key} where key is the hex
// SHA-256 of an identity seed.
func (g *Gateway) handleWitness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw, err := decodeHex(strings.TrimPrefix(r.URL.Path, "/api/siwx/witness/"))
	if err != nil || len(raw) != len(sigmap.Hash{}) {
		g.sendJSONError(w, http.StatusBadRequest, codeBadRequest, "key must be 32 hex-encoded bytes")
		return
	}
	var key sigmap.Hash
	copy(key[:], raw)

	witness, err := g.login.Witness(key)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	encoded, err := cbor.Marshal(witness)
	if err != nil {
		g.logger.Error("failed to encode witness", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, WitnessResponse{
		Key:      hex.EncodeToString(key[:]),
		Contains: witness.Contains(),
		Witness:  hex.EncodeToString(encoded),
	})
}

// allow applies the per-address rate limit and writes a 429 when exhausted.
func (g *Gateway) allow(w http.ResponseWriter, endpoint, address string) bool {
	if g.limiter.Allow(g.canonicalAddress(address), time.Now()) {
		return true
	}
	g.metrics.RateLimited(endpoint)
	g.logger.Warn("rate limited", "endpoint", endpoint, "address", address)
	w.Header().Set("Retry-After", "60")
	g.sendJSONError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
	return false
}

// canonicalAddress returns the canonical address so spelling variants share
// a rate limit bucket and an audit identity.
// Unparseable input is keyed as given; the service rejects it anyway.
func (g *Gateway) canonicalAddress(address string) string {
	subject, err := g.verifier.ParseSubject(address)
	if err != nil {
		return address
	}
	return subject.Text
}

// statusForCode maps login error codes to HTTP statuses.
func statusForCode(code login.Code) int {
	switch code {
	case login.CodeChallengeNotFound, login.CodeSignatureNotFound:
		return http.StatusNotFound
	case login.CodeInvalidSignature:
		return http.StatusUnauthorized
	case login.CodeMalformedSignature, login.CodeMalformedKey:
		return http.StatusBadRequest
	case login.CodeNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// outcomeOf names the result of a login service call for metrics and audit.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if code, ok := login.CodeOf(err); ok {
		return string(code)
	}
	return codeInternal
}

// sendServiceError writes a classified login error, hiding unclassified ones.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	code, ok := login.CodeOf(err)
	if !ok {
		g.logger.Error("login service failure", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}
	g.sendJSONError(w, statusForCode(code), string(code), err.Error())
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody parses a bounded JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

// decodeHex accepts hex with or without a 0x prefix.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, errors.New("empty hex string")
	}
	return hex.DecodeString(s)
}
