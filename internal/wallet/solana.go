// ABOUTME: Solana Ed25519 signature verification for sign-in challenges
// ABOUTME: Keys and signatures are base58 encoded as produced by Solana wallets

package wallet

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// SolanaVerifier verifies Ed25519 signatures from Solana wallets.
type SolanaVerifier struct{}

func (SolanaVerifier) Scheme() Scheme { return Solana }

func (SolanaVerifier) AccountLabel() string { return "Solana" }

// ParseSubject decodes a base58 Solana address into its 32-byte public key.
func (SolanaVerifier) ParseSubject(text string) (Subject, error) {
	text = strings.TrimSpace(text)
	decoded, err := base58.Decode(text)
	if err != nil {
		return Subject{}, fmt.Errorf("%w: base58 decode failed: %v", ErrMalformedKey, err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return Subject{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedKey, len(decoded), ed25519.PublicKeySize)
	}

	return Subject{
		Scheme: Solana,
		Bytes:  decoded,
		Text:   base58.Encode(decoded),
	}, nil
}

// Verify checks a base58 Ed25519 signature over the exact message bytes.
func (SolanaVerifier) Verify(message, signature string, subject Subject) error {
	if err := checkScheme(subject, Solana); err != nil {
		return err
	}

	sig, err := base58.Decode(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("%w: base58 decode failed: %v", ErrMalformedSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedSignature, len(sig), ed25519.SignatureSize)
	}

	if !ed25519.Verify(ed25519.PublicKey(subject.Bytes), []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}
