// ABOUTME: In-process certification of signature map roots
// ABOUTME: Issues EdDSA-signed JWT certificates over a root and verifies them

package certify

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/siwx-gateway/internal/sigmap"
)

// Certificate errors
var (
	ErrInvalidCertificate = errors.New("invalid certificate")
	ErrMissingClaim       = errors.New("missing required claim")
)

// Claims are the JWT claims of a root certificate.
type Claims struct {
	Root string `json:"root"`
	jwt.RegisteredClaims
}

// Signer certifies roots with an Ed25519 key.
type Signer struct {
	key    ed25519.PrivateKey
	issuer string
	now    func() time.Time
}

// NewSigner creates a signer. The issuer is written to the "iss" claim.
func NewSigner(key ed25519.PrivateKey, issuer string) *Signer {
	return &Signer{
		key:    key,
		issuer: issuer,
		now:    time.Now,
	}
}

// PublicKey returns the verification key for certificates from this signer.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Issuer returns the issuer claim value.
func (s *Signer) Issuer() string {
	return s.issuer
}

// Certify signs root and returns the compact JWT.
func (s *Signer) Certify(root sigmap.Hash) ([]byte, error) {
	claims := Claims{
		Root: hex.EncodeToString(root[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("signing root certificate: %w", err)
	}
	return []byte(signed), nil
}

// VerifyCertificate checks the certificate signature and returns the certified root.
// An empty issuer skips the issuer check.
func VerifyCertificate(pub ed25519.PublicKey, issuer string, certificate []byte) (sigmap.Hash, *Claims, error) {
	var root sigmap.Hash

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(string(certificate), claims, func(token *jwt.Token) (interface{}, error) {
		return pub, nil
	}, opts...)
	if err != nil {
		return root, nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if !token.Valid {
		return root, nil, ErrInvalidCertificate
	}

	if claims.Root == "" {
		return root, nil, fmt.Errorf("%w: root", ErrMissingClaim)
	}
	raw, err := hex.DecodeString(claims.Root)
	if err != nil || len(raw) != len(root) {
		return root, nil, fmt.Errorf("%w: malformed root claim", ErrInvalidCertificate)
	}
	copy(root[:], raw)
	return root, claims, nil
}

// LoadOrGenerateKey reads a PKCS#8 PEM Ed25519 key from path, creating one if
// the file does not exist. An empty path returns an ephemeral key.
func LoadOrGenerateKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating certifier key: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return parseKey(data)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading certifier key: %w", err)
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating certifier key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding certifier key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, block, 0600); err != nil {
		return nil, fmt.Errorf("writing certifier key: %w", err)
	}
	return key, nil
}

func parseKey(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("certifier key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certifier key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("certifier key is %T, want ed25519", parsed)
	}
	return key, nil
}
