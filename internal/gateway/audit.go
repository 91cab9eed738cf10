// ABOUTME: Login audit recording for the HTTP layer
// ABOUTME: Writes one store record per login attempt outside the login service lock

package gateway

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"time"

	"github.com/2389/siwx-gateway/internal/login"
	"github.com/2389/siwx-gateway/internal/store"
)

// auditTimeout bounds a single audit write.
const auditTimeout = 2 * time.Second

// recordLogin saves the outcome of a login attempt. Audit failures are logged
// and counted but never fail the request.
func (g *Gateway) recordLogin(r *http.Request, address string, sessionKey []byte, details *login.Details, outcome string) {
	if g.store == nil {
		return
	}

	rec := &store.LoginRecord{
		Scheme:     string(g.scheme),
		Address:    g.canonicalAddress(address),
		Outcome:    outcome,
		RemoteAddr: remoteHost(r.RemoteAddr),
	}
	if details != nil {
		rec.Principal = details.Principal.String()
		rec.SessionKey = hex.EncodeToString(sessionKey)
		rec.Expiration = details.Expiration
	}

	// The write outlives a client that hangs up mid-request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()

	if err := g.store.RecordLogin(ctx, rec); err != nil {
		g.metrics.AuditFailure()
		g.logger.Error("failed to record login", "address", address, "outcome", outcome, "error", err)
	}
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
