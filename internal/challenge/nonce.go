// ABOUTME: Nonce sources for challenges: a fixed placeholder or a seeded ChaCha20 stream
// ABOUTME: The secure source seeds lazily from an entropy reader and reseeds periodically

package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
)

const (
	// nonceBytes is the number of random bytes per nonce (hex encoded to 20 chars).
	nonceBytes = 10

	// reseedAfter bounds how many nonces one key stream produces.
	reseedAfter = 1 << 24
)

// placeholderNonce is hex("Not in use").
var placeholderNonce = hex.EncodeToString([]byte("Not in use"))

// NonceSource produces challenge nonces.
type NonceSource interface {
	Nonce() (string, error)
}

// PlaceholderNonce always returns the same nonce. Replay protection comes from
// the single-use challenge store, not from the nonce.
type PlaceholderNonce struct{}

func (PlaceholderNonce) Nonce() (string, error) {
	return placeholderNonce, nil
}

// SecureNonce draws nonces from a ChaCha20 key stream seeded from entropy.
// It is safe for concurrent use.
type SecureNonce struct {
	mu      sync.Mutex
	entropy io.Reader
	stream  *chacha20.Cipher
	drawn   int
}

// NewSecureNonce creates a secure source. A nil entropy reader uses crypto/rand.
// The stream is seeded on first use.
func NewSecureNonce(entropy io.Reader) *SecureNonce {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &SecureNonce{entropy: entropy}
}

func (s *SecureNonce) Nonce() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil || s.drawn >= reseedAfter {
		if err := s.seedLocked(); err != nil {
			return "", err
		}
	}

	buf := make([]byte, nonceBytes)
	s.stream.XORKeyStream(buf, buf)
	s.drawn++
	return hex.EncodeToString(buf), nil
}

// seedLocked replaces the key stream. Must be called with mu held.
func (s *SecureNonce) seedLocked() error {
	seed := make([]byte, chacha20.KeySize+chacha20.NonceSize)
	if _, err := io.ReadFull(s.entropy, seed); err != nil {
		return fmt.Errorf("reading nonce seed: %w", err)
	}
	stream, err := chacha20.NewUnauthenticatedCipher(seed[:chacha20.KeySize], seed[chacha20.KeySize:])
	if err != nil {
		return fmt.Errorf("initializing nonce stream: %w", err)
	}
	s.stream = stream
	s.drawn = 0
	return nil
}
