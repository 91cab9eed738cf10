// Package store persists the login audit trail using SQLite.
//
// The sign-in engine itself keeps no durable state; challenges and the
// signature map live in memory. This package records what happened so an
// operator can answer "who logged in, when, and with which wallet".
//
// # Data Models
//
//   - LoginRecord: one login attempt with its outcome (success or failure code)
//   - PrincipalRecord: first-seen, last-login and login count per principal
//
// SQLiteStore is the production implementation. MockStore keeps everything in
// memory for tests.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/siwx/audit.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.RecordLogin(ctx, &store.LoginRecord{
//	    Scheme:    "ethereum",
//	    Address:   addr,
//	    Principal: principal,
//	    Outcome:   store.OutcomeSuccess,
//	})
package store
