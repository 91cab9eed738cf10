// ABOUTME: Login audit store methods for recording and listing sign-in attempts
// ABOUTME: Maintains per-principal first-seen and last-login summaries in the same transaction

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordLogin appends a login record.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) RecordLogin(ctx context.Context, r *LoginRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	ts := r.Timestamp.UTC().Format(tsLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO logins (login_id, scheme, address, principal_id, outcome, session_key, expiration_ns, remote_addr, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Scheme,
		r.Address,
		nullString(r.Principal),
		r.Outcome,
		nullString(r.SessionKey),
		int64(r.Expiration),
		nullString(r.RemoteAddr),
		ts,
	)
	if err != nil {
		return fmt.Errorf("inserting login record: %w", err)
	}

	if r.Outcome == OutcomeSuccess && r.Principal != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO principals (principal_id, scheme, address, first_seen, last_login, login_count)
			VALUES (?, ?, ?, ?, ?, 1)
			ON CONFLICT(principal_id) DO UPDATE SET
				last_login = excluded.last_login,
				login_count = login_count + 1
		`, r.Principal, r.Scheme, r.Address, ts, ts)
		if err != nil {
			return fmt.Errorf("updating principal summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing login record: %w", err)
	}

	s.logger.Debug("recorded login",
		"id", r.ID,
		"address", r.Address,
		"outcome", r.Outcome,
	)
	return nil
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const loginsQuery = `
	SELECT login_id, scheme, address, principal_id, outcome, session_key, expiration_ns, remote_addr, ts
	FROM logins
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR address = ?)
	  AND (? IS NULL OR principal_id = ?)
	  AND (? IS NULL OR outcome = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListLogins returns login records newest first.
func (s *SQLiteStore) ListLogins(ctx context.Context, f LoginFilter) ([]LoginRecord, error) {
	var since *string
	if f.Since != nil {
		str := f.Since.UTC().Format(tsLayout)
		since = &str
	}

	rows, err := s.db.QueryContext(ctx, loginsQuery,
		since, since,
		f.Address, f.Address,
		f.Principal, f.Principal,
		f.Outcome, f.Outcome,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying logins: %w", err)
	}
	defer rows.Close()

	var records []LoginRecord
	for rows.Next() {
		r, err := scanLogin(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logins: %w", err)
	}
	return records, nil
}

// scanLogin scans a row into a LoginRecord.
func scanLogin(scanner interface{ Scan(dest ...any) error }) (LoginRecord, error) {
	var r LoginRecord
	var principal, sessionKey, remoteAddr sql.NullString
	var expiration int64
	var tsStr string

	if err := scanner.Scan(
		&r.ID,
		&r.Scheme,
		&r.Address,
		&principal,
		&r.Outcome,
		&sessionKey,
		&expiration,
		&remoteAddr,
		&tsStr,
	); err != nil {
		return r, fmt.Errorf("scanning login record: %w", err)
	}

	r.Principal = principal.String
	r.SessionKey = sessionKey.String
	r.RemoteAddr = remoteAddr.String
	r.Expiration = uint64(expiration)

	var err error
	r.Timestamp, err = time.Parse(tsLayout, tsStr)
	if err != nil {
		return r, fmt.Errorf("parsing timestamp: %w", err)
	}
	return r, nil
}

// GetPrincipal returns the login summary for principal.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, principal string) (*PrincipalRecord, error) {
	var p PrincipalRecord
	var firstSeen, lastLogin string

	err := s.db.QueryRowContext(ctx, `
		SELECT principal_id, scheme, address, first_seen, last_login, login_count
		FROM principals
		WHERE principal_id = ?
	`, principal).Scan(&p.Principal, &p.Scheme, &p.Address, &firstSeen, &lastLogin, &p.LoginCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}

	if p.FirstSeen, err = time.Parse(tsLayout, firstSeen); err != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", err)
	}
	if p.LastLogin, err = time.Parse(tsLayout, lastLogin); err != nil {
		return nil, fmt.Errorf("parsing last_login: %w", err)
	}
	return &p, nil
}

// CountPrincipals returns how many distinct principals have logged in.
func (s *SQLiteStore) CountPrincipals(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
