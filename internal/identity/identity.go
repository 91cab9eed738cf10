// ABOUTME: Deterministic mapping from wallet keys to stable platform identities
// ABOUTME: Derives the seed, the DER user public key, and the resulting principal

package identity

import (
	"crypto/sha256"
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// SeedSize is the length of a derived seed in bytes.
const SeedSize = sha256.Size

// canisterSigOID identifies canister-signature public keys (1.3.6.1.4.1.56387.1.2).
var canisterSigOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 56387, 1, 2}

// Identity errors
var (
	ErrMalformedPublicKey = errors.New("malformed user public key")
	ErrIssuerTooLong      = errors.New("issuer principal longer than 255 bytes")
	ErrSaltTooLong        = errors.New("salt longer than 255 bytes")
	ErrSubjectTooLong     = errors.New("subject key longer than 255 bytes")
)

// Seed is the deterministic per-wallet secret-free identifier inside one deployment.
type Seed [SeedSize]byte

// Hash returns SHA-256(seed), the key under which delegations are certified.
func (s Seed) Hash() [32]byte {
	return sha256.Sum256(s[:])
}

// DeriveSeed returns SHA-256(len(salt) || salt || len(subject) || subject)
// with single-byte lengths. Both inputs must be at most 255 bytes long.
func DeriveSeed(salt, subject []byte) Seed {
	buf := make([]byte, 0, len(salt)+len(subject)+2)
	buf = append(buf, byte(len(salt)))
	buf = append(buf, salt...)
	buf = append(buf, byte(len(subject)))
	buf = append(buf, subject...)
	return sha256.Sum256(buf)
}

// Identity is what a wallet resolves to on this deployment.
type Identity struct {
	Seed      Seed
	PublicKey []byte    // DER SubjectPublicKeyInfo
	Principal Principal // self-authenticating principal of PublicKey
}

// Deriver maps wallet subjects to identities for one issuer and salt.
type Deriver struct {
	salt   []byte
	issuer Principal
}

// NewDeriver creates a deriver. The issuer is the principal that certifies delegations.
func NewDeriver(salt string, issuer Principal) (*Deriver, error) {
	if len(issuer) > 255 {
		return nil, ErrIssuerTooLong
	}
	if len(salt) > 255 {
		return nil, ErrSaltTooLong
	}
	return &Deriver{
		salt:   []byte(salt),
		issuer: issuer,
	}, nil
}

// Seed derives the seed for subject.
func (d *Deriver) Seed(subject []byte) (Seed, error) {
	if len(subject) > 255 {
		return Seed{}, ErrSubjectTooLong
	}
	return DeriveSeed(d.salt, subject), nil
}

// Identity derives the full identity for subject.
func (d *Deriver) Identity(subject []byte) (*Identity, error) {
	seed, err := d.Seed(subject)
	if err != nil {
		return nil, err
	}
	pub, err := UserPublicKey(d.issuer, seed)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Seed:      seed,
		PublicKey: pub,
		Principal: SelfAuthenticating(pub),
	}, nil
}

// UserPublicKey encodes the canister-signature public key for seed:
//
//	SEQUENCE {
//	  SEQUENCE { OBJECT IDENTIFIER 1.3.6.1.4.1.56387.1.2 }
//	  BIT STRING { len(issuer) || issuer || seed }
//	}
func UserPublicKey(issuer Principal, seed Seed) ([]byte, error) {
	if len(issuer) > 255 {
		return nil, ErrIssuerTooLong
	}

	key := make([]byte, 0, 1+len(issuer)+len(seed))
	key = append(key, byte(len(issuer)))
	key = append(key, issuer...)
	key = append(key, seed[:]...)

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(canisterSigOID)
		})
		b.AddASN1BitString(key)
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding user public key: %w", err)
	}
	return der, nil
}

// ParseUserPublicKey reverses UserPublicKey.
func ParseUserPublicKey(der []byte) (Principal, Seed, error) {
	var (
		spki, algo cryptobyte.String
		oid        asn1.ObjectIdentifier
		bits       asn1.BitString
		seed       Seed
	)

	input := cryptobyte.String(der)
	if !input.ReadASN1(&spki, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, seed, fmt.Errorf("%w: outer sequence", ErrMalformedPublicKey)
	}
	if !spki.ReadASN1(&algo, cbasn1.SEQUENCE) || !algo.ReadASN1ObjectIdentifier(&oid) {
		return nil, seed, fmt.Errorf("%w: algorithm identifier", ErrMalformedPublicKey)
	}
	if !oid.Equal(canisterSigOID) {
		return nil, seed, fmt.Errorf("%w: unexpected algorithm %s", ErrMalformedPublicKey, oid)
	}
	if !spki.ReadASN1BitString(&bits) || !spki.Empty() || bits.BitLength%8 != 0 {
		return nil, seed, fmt.Errorf("%w: subject public key", ErrMalformedPublicKey)
	}

	key := bits.Bytes
	if len(key) < 1 {
		return nil, seed, fmt.Errorf("%w: empty key", ErrMalformedPublicKey)
	}
	issuerLen := int(key[0])
	if len(key) != 1+issuerLen+SeedSize {
		return nil, seed, fmt.Errorf("%w: key length %d", ErrMalformedPublicKey, len(key))
	}

	issuer := Principal(append([]byte(nil), key[1:1+issuerLen]...))
	copy(seed[:], key[1+issuerLen:])
	return issuer, seed, nil
}
