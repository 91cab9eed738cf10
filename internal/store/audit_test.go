// ABOUTME: Tests for login audit store operations
// ABOUTME: Covers RecordLogin, ListLogins filtering and principal summaries

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stores runs a test against both implementations.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestAuditStore_RecordLogin_GeneratesIDAndTimestamp(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := &LoginRecord{Scheme: "ethereum", Address: "0xabc", Outcome: "invalid_signature"}
			require.NoError(t, s.RecordLogin(context.Background(), r))

			assert.NotEmpty(t, r.ID)
			assert.False(t, r.Timestamp.IsZero())
		})
	}
}

func TestAuditStore_PrincipalSummary(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				require.NoError(t, s.RecordLogin(ctx, &LoginRecord{
					Scheme:     "solana",
					Address:    "wallet-1",
					Principal:  "principal-1",
					Outcome:    OutcomeSuccess,
					SessionKey: "abcd",
					Expiration: 42,
					Timestamp:  base.Add(time.Duration(i) * time.Minute),
				}))
			}
			// Failures never touch the summary.
			require.NoError(t, s.RecordLogin(ctx, &LoginRecord{
				Scheme:    "solana",
				Address:   "wallet-1",
				Outcome:   "invalid_signature",
				Timestamp: base.Add(time.Hour),
			}))

			p, err := s.GetPrincipal(ctx, "principal-1")
			require.NoError(t, err)
			assert.Equal(t, 3, p.LoginCount)
			assert.Equal(t, "wallet-1", p.Address)
			assert.True(t, base.Equal(p.FirstSeen), "first seen = %v", p.FirstSeen)
			assert.True(t, base.Add(2*time.Minute).Equal(p.LastLogin), "last login = %v", p.LastLogin)

			n, err := s.CountPrincipals(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = s.GetPrincipal(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAuditStore_ListLogins(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 6; i++ {
				r := &LoginRecord{
					Scheme:    "ethereum",
					Address:   fmt.Sprintf("wallet-%d", i%2),
					Outcome:   OutcomeSuccess,
					Principal: fmt.Sprintf("principal-%d", i%2),
					// Sub-second offsets exercise timestamp ordering.
					Timestamp: base.Add(time.Duration(i) * 500 * time.Millisecond),
				}
				if i == 5 {
					r.Outcome = "malformed_signature"
					r.Principal = ""
				}
				require.NoError(t, s.RecordLogin(ctx, r))
			}

			all, err := s.ListLogins(ctx, LoginFilter{})
			require.NoError(t, err)
			require.Len(t, all, 6)
			for i := 1; i < len(all); i++ {
				assert.True(t, all[i-1].Timestamp.After(all[i].Timestamp), "records must be newest first")
			}

			addr := "wallet-0"
			byAddr, err := s.ListLogins(ctx, LoginFilter{Address: &addr})
			require.NoError(t, err)
			assert.Len(t, byAddr, 3)

			outcome := "malformed_signature"
			failed, err := s.ListLogins(ctx, LoginFilter{Outcome: &outcome})
			require.NoError(t, err)
			require.Len(t, failed, 1)
			assert.Empty(t, failed[0].Principal)

			since := base.Add(2 * time.Second)
			recent, err := s.ListLogins(ctx, LoginFilter{Since: &since})
			require.NoError(t, err)
			assert.Len(t, recent, 2)

			limited, err := s.ListLogins(ctx, LoginFilter{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, limited, 2)
		})
	}
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeLimit(0))
	assert.Equal(t, 100, normalizeLimit(-5))
	assert.Equal(t, 50, normalizeLimit(50))
	assert.Equal(t, 1000, normalizeLimit(5000))
}
