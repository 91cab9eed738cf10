// Package challenge issues, renders and stores sign-in challenges.
//
// A challenge is the human-readable message a wallet signs to prove control of
// its key. The Issuer fills it from settings, Render produces the exact text
// the wallet signs and Parse reverses it. Store keeps at most one pending
// challenge per wallet until it is consumed or expires.
//
// Nonces come from a NonceSource chosen at construction: PlaceholderNonce
// (default, fixed value) or SecureNonce (ChaCha20 stream seeded from entropy).
package challenge
