// ABOUTME: Store interface and data types for the login audit trail
// ABOUTME: Defines LoginRecord, PrincipalRecord and the filters used to list them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// OutcomeSuccess marks a login that produced a delegation. Failed logins
// carry the failure code instead.
const OutcomeSuccess = "success"

// LoginRecord is one login attempt that reached signature verification
type LoginRecord struct {
	ID         string    // UUID v4, generated if empty
	Scheme     string    // wallet family
	Address    string    // canonical wallet address
	Principal  string    // principal text, empty for failures
	Outcome    string    // OutcomeSuccess or a failure code
	SessionKey string    // hex session public key, empty for failures
	Expiration uint64    // delegation expiration in unix nanoseconds, 0 for failures
	RemoteAddr string    // client address as seen by the HTTP server
	Timestamp  time.Time // generated if zero
}

// PrincipalRecord summarizes every successful login of one principal
type PrincipalRecord struct {
	Principal  string
	Scheme     string
	Address    string
	FirstSeen  time.Time
	LastLogin  time.Time
	LoginCount int
}

// LoginFilter specifies filtering options for listing login records
type LoginFilter struct {
	Since     *time.Time // records after this time
	Address   *string    // filter by wallet address
	Principal *string    // filter by principal
	Outcome   *string    // filter by outcome
	Limit     int        // max results (default 100, max 1000)
}

// Store is the login audit trail
type Store interface {
	// RecordLogin appends a login record. Successful records also update the
	// principal summary.
	RecordLogin(ctx context.Context, r *LoginRecord) error
	ListLogins(ctx context.Context, f LoginFilter) ([]LoginRecord, error)
	GetPrincipal(ctx context.Context, principal string) (*PrincipalRecord, error)
	CountPrincipals(ctx context.Context) (int, error)
	Close() error
}
