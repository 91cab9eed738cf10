// ABOUTME: Time-bounded delegations from a derived identity to a session key
// ABOUTME: Computes the representation-independent hash that the signature map certifies

package delegation

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/2389/siwx-gateway/internal/identity"
)

// MaxSessionKeyLength bounds the DER-encoded session public key.
const MaxSessionKeyLength = 512

// domainSeparator prefixes every delegation hash.
const domainSeparator = "\x1Aic-request-auth-delegation"

// ErrDelegationConstruction is returned when a delegation cannot be built.
var ErrDelegationConstruction = errors.New("delegation construction failed")

// Hash is a 32-byte SHA-256 digest.
type Hash = [sha256.Size]byte

// Delegation authorizes PubKey to act for an identity until Expiration.
type Delegation struct {
	PubKey     []byte
	Expiration uint64 // nanoseconds since the Unix epoch
	Targets    []identity.Principal
}

// New builds a delegation. The inputs are copied.
func New(sessionKey []byte, expiration uint64, targets []identity.Principal) (*Delegation, error) {
	switch {
	case len(sessionKey) == 0:
		return nil, fmt.Errorf("%w: empty session key", ErrDelegationConstruction)
	case len(sessionKey) > MaxSessionKeyLength:
		return nil, fmt.Errorf("%w: session key is %d bytes, limit %d", ErrDelegationConstruction, len(sessionKey), MaxSessionKeyLength)
	case expiration == 0:
		return nil, fmt.Errorf("%w: zero expiration", ErrDelegationConstruction)
	}

	d := &Delegation{
		PubKey:     bytes.Clone(sessionKey),
		Expiration: expiration,
	}
	if targets != nil {
		d.Targets = make([]identity.Principal, len(targets))
		for i, t := range targets {
			d.Targets[i] = bytes.Clone(t)
		}
	}
	return d, nil
}

// Hash returns SHA-256(domain separator || H(map)) over the delegation fields.
// Targets are omitted from the map when nil.
func (d *Delegation) Hash() Hash {
	fields := []field{
		{"pubkey", hashBlob(d.PubKey)},
		{"expiration", hashNat(d.Expiration)},
	}
	if d.Targets != nil {
		blobs := make([][]byte, len(d.Targets))
		for i, t := range d.Targets {
			blobs[i] = t
		}
		fields = append(fields, field{"targets", hashBlobArray(blobs)})
	}

	mapHash := hashMap(fields)
	buf := make([]byte, 0, len(domainSeparator)+len(mapHash))
	buf = append(buf, domainSeparator...)
	buf = append(buf, mapHash[:]...)
	return sha256.Sum256(buf)
}

type field struct {
	key   string
	value Hash
}

func hashBlob(b []byte) Hash {
	return sha256.Sum256(b)
}

func hashNat(n uint64) Hash {
	return sha256.Sum256(leb128(n))
}

func hashBlobArray(items [][]byte) Hash {
	buf := make([]byte, 0, len(items)*sha256.Size)
	for _, item := range items {
		h := hashBlob(item)
		buf = append(buf, h[:]...)
	}
	return sha256.Sum256(buf)
}

// hashMap hashes the sorted concatenation of SHA-256(key) || H(value) pairs.
func hashMap(fields []field) Hash {
	pairs := make([][]byte, len(fields))
	for i, f := range fields {
		k := sha256.Sum256([]byte(f.key))
		pair := make([]byte, 0, 2*sha256.Size)
		pair = append(pair, k[:]...)
		pairs[i] = append(pair, f.value[:]...)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i], pairs[j]) < 0
	})
	return sha256.Sum256(bytes.Join(pairs, nil))
}

// leb128 encodes n as unsigned LEB128.
func leb128(n uint64) []byte {
	return binary.AppendUvarint(nil, n)
}
