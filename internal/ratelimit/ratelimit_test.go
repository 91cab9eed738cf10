// ABOUTME: Tests for the per-key token bucket limiter
// ABOUTME: Covers burst exhaustion, refill, key isolation and idle eviction

package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidArgsDisableLimiting(t *testing.T) {
	assert.Nil(t, New(0, 5, 0))
	assert.Nil(t, New(30, 0, 0))

	var l *Limiter
	assert.True(t, l.Allow("anything", time.Now()))
	assert.Equal(t, 0, l.Len())
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l := New(60, 2, time.Minute) // one token per second
	require.NotNil(t, l)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("0xabc", now))
	assert.True(t, l.Allow("0xabc", now))
	assert.False(t, l.Allow("0xabc", now), "burst exhausted")

	assert.True(t, l.Allow("0xabc", now.Add(time.Second)), "one token refilled")
	assert.False(t, l.Allow("0xabc", now.Add(time.Second)))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(60, 1, time.Minute)
	now := time.Now()

	assert.True(t, l.Allow("7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV", now))
	assert.False(t, l.Allow(" 7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV ", now), "same key after trimming")
	assert.True(t, l.Allow("7ecdhsygxxyscszyep35khn8vvw3svaulktzxwcfltv", now), "base58 keys are case sensitive")
	assert.Equal(t, 2, l.Len())
}

func TestAllow_EmptyKeyUnlimited(t *testing.T) {
	l := New(60, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("  ", now))
	}
	assert.Equal(t, 0, l.Len())
}

func TestAllow_EvictsIdleKeys(t *testing.T) {
	l := New(6000, 1000, time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, l.Allow("stale", start))

	later := start.Add(2 * time.Minute)
	for i := 1; i < evictEvery; i++ {
		l.Allow(fmt.Sprintf("k%d", i%4), later)
	}

	assert.Equal(t, 4, l.Len())
}
