// Package identity derives stable platform identities from wallet keys.
//
// A wallet subject is hashed with the deployment salt into a Seed. The seed
// and the issuer principal form a DER user public key, and the principal is
// the self-authenticating hash of that key. The same wallet on the same
// deployment always resolves to the same principal.
package identity
