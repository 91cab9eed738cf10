// ABOUTME: Principal identifiers and their checksummed textual form
// ABOUTME: Text is base32 of crc32 || bytes, lowercased and grouped in fives

package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxPrincipalLength is the largest principal in bytes.
const MaxPrincipalLength = 29

// selfAuthenticatingTag marks principals derived from a public key.
const selfAuthenticatingTag = 0x02

var (
	ErrMalformedPrincipal = errors.New("malformed principal")

	principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Principal is an opaque platform identifier.
type Principal []byte

// SelfAuthenticating returns SHA-224(publicKey) || 0x02.
func SelfAuthenticating(publicKey []byte) Principal {
	h := sha256.Sum224(publicKey)
	p := make(Principal, 0, len(h)+1)
	p = append(p, h[:]...)
	return append(p, selfAuthenticatingTag)
}

// String returns the textual form, e.g. "rrkah-fqaaa-aaaaa-aaaaq-cai".
func (p Principal) String() string {
	buf := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(p)), crc32.ChecksumIEEE(p))
	buf = append(buf, p...)
	enc := strings.ToLower(principalEncoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+5, len(enc))
		b.WriteString(enc[i:end])
	}
	return b.String()
}

// Equal reports whether two principals are the same.
func (p Principal) Equal(other Principal) bool {
	return bytes.Equal(p, other)
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePrincipal parses the textual form and verifies its checksum.
func ParsePrincipal(text string) (Principal, error) {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(text), "-", ""))
	raw, err := principalEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPrincipal, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: too short", ErrMalformedPrincipal)
	}
	if len(raw)-4 > MaxPrincipalLength {
		return nil, fmt.Errorf("%w: too long", ErrMalformedPrincipal)
	}

	p := Principal(raw[4:])
	if binary.BigEndian.Uint32(raw[:4]) != crc32.ChecksumIEEE(p) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrMalformedPrincipal)
	}
	if p.String() != strings.ToLower(strings.TrimSpace(text)) {
		return nil, fmt.Errorf("%w: not in canonical form", ErrMalformedPrincipal)
	}
	return p, nil
}
