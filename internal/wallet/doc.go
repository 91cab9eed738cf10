// Package wallet verifies wallet signatures over sign-in challenges.
//
// # Schemes
//
// Two wallet families are supported, selected by siwx.scheme in the config:
//
//   - ethereum: the subject is a 0x-prefixed 20-byte address. Signatures are
//     65-byte r||s||v values produced by personal_sign (EIP-191). The public key
//     is recovered from the signature and its address compared to the subject.
//
//   - solana: the subject is a base58 Ed25519 public key. Signatures are base58
//     64-byte Ed25519 signatures checked directly against the key.
//
// # Errors
//
// Verify returns one of three sentinels, always wrapped with detail:
//
//	ErrMalformedKey        // subject could not be parsed
//	ErrMalformedSignature  // signature has the wrong encoding or length
//	ErrInvalidSignature    // signature does not match the subject
//
// Verifiers hold no state and are safe for concurrent use.
package wallet
