// ABOUTME: CBOR envelope pairing a root certificate with a signature map witness
// ABOUTME: VerifySignature checks the whole chain from certificate to delegation hash

package certify

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/2389/siwx-gateway/internal/sigmap"
)

// ErrSignatureMismatch is returned when a verified witness does not prove the expected entry.
var ErrSignatureMismatch = errors.New("certified signature does not cover delegation")

// CertifiedSignature is the signature handed to clients with a delegation.
type CertifiedSignature struct {
	Certificate []byte          `cbor:"certificate"`
	Tree        *sigmap.Witness `cbor:"tree"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: %v", err))
	}
}

// Encode serializes the envelope as canonical CBOR.
func (s *CertifiedSignature) Encode() ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding certified signature: %w", err)
	}
	return data, nil
}

// DecodeSignature parses a CBOR envelope.
func DecodeSignature(data []byte) (*CertifiedSignature, error) {
	var s CertifiedSignature
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if s.Tree == nil {
		return nil, fmt.Errorf("%w: missing tree", ErrInvalidCertificate)
	}
	return &s, nil
}

// VerifySignature checks that signature certifies value under key.
func VerifySignature(pub ed25519.PublicKey, issuer string, signature []byte, key, value sigmap.Hash) error {
	sig, err := DecodeSignature(signature)
	if err != nil {
		return err
	}
	root, _, err := VerifyCertificate(pub, issuer, sig.Certificate)
	if err != nil {
		return err
	}
	if err := sigmap.VerifyWitness(root, sig.Tree); err != nil {
		return err
	}
	if sig.Tree.Key != key {
		return fmt.Errorf("%w: witness is for another key", ErrSignatureMismatch)
	}
	got, ok := sig.Tree.Value()
	if !ok {
		return fmt.Errorf("%w: key is absent", ErrSignatureMismatch)
	}
	if got != value {
		return fmt.Errorf("%w: value differs", ErrSignatureMismatch)
	}
	return nil
}
