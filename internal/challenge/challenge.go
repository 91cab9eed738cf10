// ABOUTME: Sign-in challenge type and the Issuer that builds challenges from settings
// ABOUTME: Handles validity windows and the expiry check used by the store and login flow

package challenge

import (
	"errors"
	"fmt"
	"time"
)

// Version is the message format version rendered into every challenge.
const Version = 1

// Challenge errors
var (
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrMalformedChallenge = errors.New("malformed challenge text")
)

// Challenge is a pending sign-in message bound to one wallet address.
type Challenge struct {
	Scheme         string    `json:"scheme"`  // origin scheme, e.g. "https"
	Domain         string    `json:"domain"`  // host requesting the sign-in
	Account        string    `json:"account"` // wallet family label, e.g. "Ethereum"
	Address        string    `json:"address"` // canonical subject text
	Statement      string    `json:"statement"`
	URI            string    `json:"uri"`
	Version        int       `json:"version"`
	ChainID        string    `json:"chain_id"`
	Nonce          string    `json:"nonce"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpirationTime time.Time `json:"expiration_time"`
}

// IsExpired reports whether now falls outside [IssuedAt, ExpirationTime].
// A clock that moved backwards past IssuedAt also counts as expired.
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.Before(c.IssuedAt) || now.After(c.ExpirationTime)
}

// Settings holds the challenge fields that come from configuration.
type Settings struct {
	Scheme    string
	Domain    string
	Statement string
	URI       string
	ChainID   string
	TTL       time.Duration
}

// Issuer builds challenges for one deployment.
type Issuer struct {
	settings Settings
	account  string
	nonces   NonceSource
	now      func() time.Time
}

// NewIssuer creates an issuer. account is the wallet family label rendered in
// the header line. A nil nonce source uses PlaceholderNonce; a nil clock uses time.Now.
func NewIssuer(settings Settings, account string, nonces NonceSource, now func() time.Time) (*Issuer, error) {
	if settings.TTL <= 0 {
		return nil, fmt.Errorf("challenge ttl must be positive, got %v", settings.TTL)
	}
	if settings.Domain == "" {
		return nil, errors.New("challenge domain is required")
	}
	if nonces == nil {
		nonces = PlaceholderNonce{}
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		settings: settings,
		account:  account,
		nonces:   nonces,
		now:      now,
	}, nil
}

// Issue builds a fresh challenge for address, valid from now for the configured TTL.
func (i *Issuer) Issue(address string) (*Challenge, error) {
	nonce, err := i.nonces.Nonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	issuedAt := i.now().UTC()
	return &Challenge{
		Scheme:         i.settings.Scheme,
		Domain:         i.settings.Domain,
		Account:        i.account,
		Address:        address,
		Statement:      i.settings.Statement,
		URI:            i.settings.URI,
		Version:        Version,
		ChainID:        i.settings.ChainID,
		Nonce:          nonce,
		IssuedAt:       issuedAt,
		ExpirationTime: issuedAt.Add(i.settings.TTL),
	}, nil
}
