// ABOUTME: Test wallets that sign challenges the way browser wallets do
// ABOUTME: Shared by verifier, orchestrator and HTTP tests

// Package wallettest provides throwaway Ethereum and Solana wallets for tests.
package wallettest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/2389/siwx-gateway/internal/wallet"
)

// Wallet signs messages for a single key.
type Wallet interface {
	Scheme() wallet.Scheme
	Address() string
	Sign(t testing.TB, message string) string
}

// EthereumWallet signs with personal_sign semantics (v = 27/28).
type EthereumWallet struct {
	key *ecdsa.PrivateKey
}

// NewEthereum generates a fresh secp256k1 key.
func NewEthereum(t testing.TB) *EthereumWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate ethereum key: %v", err)
	}
	return &EthereumWallet{key: key}
}

func (w *EthereumWallet) Scheme() wallet.Scheme { return wallet.Ethereum }

// Address returns the EIP-55 checksummed address.
func (w *EthereumWallet) Address() string {
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

func (w *EthereumWallet) Sign(t testing.TB, message string) string {
	t.Helper()
	sig, err := crypto.Sign(wallet.PersonalMessageHash([]byte(message)), w.key)
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

// SolanaWallet signs with a raw Ed25519 key.
type SolanaWallet struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewSolana generates a fresh Ed25519 key.
func NewSolana(t testing.TB) *SolanaWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ed25519 key: %v", err)
	}
	return &SolanaWallet{pub: pub, priv: priv}
}

func (w *SolanaWallet) Scheme() wallet.Scheme { return wallet.Solana }

// Address returns the base58 public key.
func (w *SolanaWallet) Address() string {
	return base58.Encode(w.pub)
}

func (w *SolanaWallet) Sign(t testing.TB, message string) string {
	t.Helper()
	return base58.Encode(ed25519.Sign(w.priv, []byte(message)))
}

// New returns a fresh wallet for the scheme.
func New(t testing.TB, scheme wallet.Scheme) Wallet {
	t.Helper()
	switch scheme {
	case wallet.Ethereum:
		return NewEthereum(t)
	case wallet.Solana:
		return NewSolana(t)
	default:
		t.Fatalf("unknown scheme %q", scheme)
		return nil
	}
}
