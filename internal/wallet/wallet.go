// ABOUTME: Wallet scheme selection and the Verifier contract shared by all wallet families
// ABOUTME: Defines Subject (parsed wallet key) and the signature error sentinels

package wallet

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme identifies a wallet family.
type Scheme string

const (
	Ethereum Scheme = "ethereum"
	Solana   Scheme = "solana"
)

// Signature errors
var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrMalformedKey       = errors.New("malformed public key")
	ErrUnknownScheme      = errors.New("unknown signature scheme")
)

// Subject is a wallet public key (or address) in both byte and canonical text form.
type Subject struct {
	Scheme Scheme
	Bytes  []byte // raw key or address bytes, used for keying and seed derivation
	Text   string // canonical text, rendered into the challenge
}

// Key returns the subject bytes as a string for use as a map key.
func (s Subject) Key() string {
	return string(s.Bytes)
}

func (s Subject) String() string {
	return s.Text
}

// Verifier parses subjects and verifies signatures for one wallet family.
type Verifier interface {
	Scheme() Scheme
	// AccountLabel is the chain name used in the challenge header line.
	AccountLabel() string
	ParseSubject(text string) (Subject, error)
	Verify(message, signature string, subject Subject) error
}

// ParseScheme parses a scheme name from configuration. Matching is case-insensitive.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case Ethereum:
		return Ethereum, nil
	case Solana:
		return Solana, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, s)
	}
}

// NewVerifier returns the verifier for the given scheme.
func NewVerifier(scheme Scheme) (Verifier, error) {
	switch scheme {
	case Ethereum:
		return EthereumVerifier{}, nil
	case Solana:
		return SolanaVerifier{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// checkScheme rejects subjects parsed by a different verifier.
func checkScheme(subject Subject, want Scheme) error {
	if subject.Scheme != want || len(subject.Bytes) == 0 {
		return fmt.Errorf("%w: subject is not a %s key", ErrMalformedKey, want)
	}
	return nil
}
