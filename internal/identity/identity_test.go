// ABOUTME: Tests for seed derivation, user public key encoding and principals
// ABOUTME: Uses fixed vectors for the principal text form and DER layout

package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIssuer = Principal{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}

func TestPrincipal_String(t *testing.T) {
	tests := []struct {
		name string
		p    Principal
		want string
	}{
		{"management", Principal{}, "aaaaa-aa"},
		{"anonymous", Principal{0x04}, "2vxsx-fae"},
		{"canister", testIssuer, "rrkah-fqaaa-aaaaa-aaaaq-cai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.String())

			parsed, err := ParsePrincipal(tt.want)
			require.NoError(t, err)
			assert.True(t, tt.p.Equal(parsed))
		})
	}
}

func TestParsePrincipal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"bad checksum", "rrkah-fqaaa-aaaaa-aaaaq-caa"},
		{"bad alphabet", "rrkah-fqaaa-aaaaa-aaaaq-ca1"},
		{"wrong grouping", "rrkahf-qaaa-aaaaa-aaaaq-cai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePrincipal(tt.text)
			assert.ErrorIs(t, err, ErrMalformedPrincipal)
		})
	}
}

func TestParsePrincipal_UppercaseAccepted(t *testing.T) {
	p, err := ParsePrincipal("RRKAH-FQAAA-AAAAA-AAAAQ-CAI")
	require.NoError(t, err)
	assert.True(t, testIssuer.Equal(p))
}

func TestSelfAuthenticating(t *testing.T) {
	p := SelfAuthenticating([]byte("some public key"))
	assert.Len(t, p, 29)
	assert.Equal(t, byte(0x02), p[28])
	assert.Equal(t, p, SelfAuthenticating([]byte("some public key")))
	assert.NotEqual(t, p, SelfAuthenticating([]byte("another public key")))
}

func TestDeriveSeed_Layout(t *testing.T) {
	want := sha256.Sum256([]byte{4, 's', 'a', 'l', 't', 2, 0xab, 0xcd})
	assert.Equal(t, Seed(want), DeriveSeed([]byte("salt"), []byte{0xab, 0xcd}))
}

func TestDeriveSeed(t *testing.T) {
	a := DeriveSeed([]byte("salt"), []byte{1, 2, 3})
	assert.Equal(t, a, DeriveSeed([]byte("salt"), []byte{1, 2, 3}), "derivation must be deterministic")
	assert.NotEqual(t, a, DeriveSeed([]byte("other"), []byte{1, 2, 3}), "salt must change the seed")
	assert.NotEqual(t, a, DeriveSeed([]byte("salt"), []byte{1, 2, 4}), "subject must change the seed")

	// Length prefixes keep the boundary between salt and subject unambiguous.
	assert.NotEqual(t, DeriveSeed([]byte("ab"), []byte("c")), DeriveSeed([]byte("a"), []byte("bc")))
}

func TestUserPublicKey_Layout(t *testing.T) {
	var seed Seed
	for i := range seed {
		seed[i] = byte(i)
	}

	der, err := UserPublicKey(testIssuer, seed)
	require.NoError(t, err)

	prefix, _ := hex.DecodeString("303c300c060a2b0601040183b8430102032c000a")
	assert.True(t, bytes.HasPrefix(der, prefix), "unexpected DER prefix %x", der)
	assert.Equal(t, []byte(testIssuer), der[len(prefix):len(prefix)+len(testIssuer)])
	assert.Equal(t, seed[:], der[len(der)-SeedSize:])

	issuer, parsedSeed, err := ParseUserPublicKey(der)
	require.NoError(t, err)
	assert.True(t, testIssuer.Equal(issuer))
	assert.Equal(t, seed, parsedSeed)
}

func TestParseUserPublicKey_Invalid(t *testing.T) {
	der, err := UserPublicKey(testIssuer, Seed{})
	require.NoError(t, err)

	tests := []struct {
		name string
		der  []byte
	}{
		{"empty", nil},
		{"truncated", der[:len(der)-1]},
		{"trailing data", append(append([]byte(nil), der...), 0)},
		{"wrong oid", func() []byte {
			d := append([]byte(nil), der...)
			d[13] ^= 0xff
			return d
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseUserPublicKey(tt.der)
			assert.ErrorIs(t, err, ErrMalformedPublicKey)
		})
	}
}

func TestUserPublicKey_IssuerTooLong(t *testing.T) {
	_, err := UserPublicKey(make(Principal, 256), Seed{})
	assert.ErrorIs(t, err, ErrIssuerTooLong)

	_, err = NewDeriver("salt", make(Principal, 256))
	assert.ErrorIs(t, err, ErrIssuerTooLong)

	_, err = NewDeriver(string(make([]byte, 256)), testIssuer)
	assert.ErrorIs(t, err, ErrSaltTooLong)

	d, err := NewDeriver("salt", testIssuer)
	require.NoError(t, err)
	_, err = d.Identity(make([]byte, 256))
	assert.ErrorIs(t, err, ErrSubjectTooLong)
}

func TestDeriver_Identity(t *testing.T) {
	d, err := NewDeriver("deployment-salt", testIssuer)
	require.NoError(t, err)

	subject := []byte{0xde, 0xad, 0xbe, 0xef}
	id, err := d.Identity(subject)
	require.NoError(t, err)

	assert.Equal(t, DeriveSeed([]byte("deployment-salt"), subject), id.Seed)
	assert.Equal(t, SelfAuthenticating(id.PublicKey), id.Principal)

	again, err := d.Identity(subject)
	require.NoError(t, err)
	assert.Equal(t, id.Principal.String(), again.Principal.String(), "same wallet must map to the same principal")

	other, err := NewDeriver("another-salt", testIssuer)
	require.NoError(t, err)
	otherID, err := other.Identity(subject)
	require.NoError(t, err)
	assert.False(t, id.Principal.Equal(otherID.Principal), "different salt must map to a different principal")
}
