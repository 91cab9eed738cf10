// Package login orchestrates wallet sign-in.
//
// PrepareLogin issues a challenge for a wallet address. Login verifies the
// wallet's signature over that challenge, consumes it, derives the wallet's
// identity and registers a delegation to the caller's session key in the
// certified signature map. GetDelegation later returns that delegation with
// a certified signature proving it.
//
// Every failure the caller can act on is an *Error with a Code from a closed
// set; the wrapped error keeps the underlying sentinel visible to errors.Is.
package login
