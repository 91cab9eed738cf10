// Package certify is the certification hook for signature map roots.
//
// A Signer turns the current root into a certificate, a compact EdDSA JWT
// with the hex root in the "root" claim. Clients receive the certificate
// together with a map witness in a CBOR CertifiedSignature, and
// VerifySignature checks the certificate, the witness and the proven value in
// one call.
package certify
