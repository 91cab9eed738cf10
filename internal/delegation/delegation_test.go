// ABOUTME: Tests for delegation construction and hashing
// ABOUTME: Pins the representation-independent hash layout field by field

package delegation

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/siwx-gateway/internal/identity"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name       string
		key        []byte
		expiration uint64
	}{
		{"empty key", nil, 1},
		{"oversized key", make([]byte, MaxSessionKeyLength+1), 1},
		{"zero expiration", []byte{1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.key, tt.expiration, nil)
			assert.ErrorIs(t, err, ErrDelegationConstruction)
		})
	}
}

func TestNew_CopiesInputs(t *testing.T) {
	key := []byte{1, 2, 3}
	target := identity.Principal{9}
	d, err := New(key, 42, []identity.Principal{target})
	require.NoError(t, err)

	key[0] = 0xff
	target[0] = 0xff
	assert.Equal(t, []byte{1, 2, 3}, d.PubKey)
	assert.Equal(t, identity.Principal{9}, d.Targets[0])
}

func TestLEB128(t *testing.T) {
	assert.Equal(t, []byte{0x00}, leb128(0))
	assert.Equal(t, []byte{0x7f}, leb128(127))
	assert.Equal(t, []byte{0x80, 0x01}, leb128(128))
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, leb128(624485))
}

func TestHash_Layout(t *testing.T) {
	d, err := New([]byte{0xaa, 0xbb}, 300, nil)
	require.NoError(t, err)

	pair := func(key string, value []byte) []byte {
		k := sha256.Sum256([]byte(key))
		v := sha256.Sum256(value)
		return append(k[:], v[:]...)
	}
	a := pair("pubkey", []byte{0xaa, 0xbb})
	b := pair("expiration", []byte{0xac, 0x02})
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	mapHash := sha256.Sum256(append(a, b...))
	want := sha256.Sum256(append([]byte("\x1Aic-request-auth-delegation"), mapHash[:]...))

	assert.Equal(t, Hash(want), d.Hash())
}

func TestHash_Sensitivity(t *testing.T) {
	base, err := New([]byte{1}, 1000, nil)
	require.NoError(t, err)

	otherKey, _ := New([]byte{2}, 1000, nil)
	otherExp, _ := New([]byte{1}, 1001, nil)
	noTargets, _ := New([]byte{1}, 1000, []identity.Principal{})
	withTarget, _ := New([]byte{1}, 1000, []identity.Principal{{7}})

	assert.NotEqual(t, base.Hash(), otherKey.Hash())
	assert.NotEqual(t, base.Hash(), otherExp.Hash())
	assert.NotEqual(t, base.Hash(), noTargets.Hash(), "an empty target list differs from no target list")
	assert.NotEqual(t, noTargets.Hash(), withTarget.Hash())

	same, _ := New([]byte{1}, 1000, nil)
	assert.Equal(t, base.Hash(), same.Hash())
}
