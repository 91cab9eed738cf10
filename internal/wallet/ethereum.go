// ABOUTME: Ethereum personal_sign verification via public key recovery
// ABOUTME: Hashes with the EIP-191 prefix and Keccak-256, then compares recovered addresses

package wallet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ethSignatureLength is r (32) || s (32) || v (1).
const ethSignatureLength = 65

// EthereumVerifier verifies EIP-191 signatures from Ethereum wallets.
type EthereumVerifier struct{}

func (EthereumVerifier) Scheme() Scheme { return Ethereum }

func (EthereumVerifier) AccountLabel() string { return "Ethereum" }

// ParseSubject accepts a 0x-prefixed hex address in any letter case.
// The canonical text form is the EIP-55 checksummed address.
func (EthereumVerifier) ParseSubject(text string) (Subject, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
		return Subject{}, fmt.Errorf("%w: address must start with 0x", ErrMalformedKey)
	}
	if !common.IsHexAddress(text) {
		return Subject{}, fmt.Errorf("%w: %q is not a 20-byte hex address", ErrMalformedKey, text)
	}

	addr := common.HexToAddress(text)
	return Subject{
		Scheme: Ethereum,
		Bytes:  addr.Bytes(),
		Text:   addr.Hex(),
	}, nil
}

// Verify recovers the signer of message and checks it is the subject's address.
func (EthereumVerifier) Verify(message, signature string, subject Subject) error {
	if err := checkScheme(subject, Ethereum); err != nil {
		return err
	}

	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != ethSignatureLength {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedSignature, len(sig), ethSignatureLength)
	}

	// Wallets emit v as 27/28; go-ethereum expects the recovery id 0/1.
	switch sig[64] {
	case 0, 1:
	case 27, 28:
		sig[64] -= 27
	default:
		return fmt.Errorf("%w: invalid recovery id %d", ErrMalformedSignature, sig[64])
	}

	pub, err := crypto.SigToPub(PersonalMessageHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if !bytes.Equal(recovered.Bytes(), subject.Bytes) {
		return fmt.Errorf("%w: recovered address %s does not match %s", ErrInvalidSignature, recovered.Hex(), subject.Text)
	}
	return nil
}

// PersonalMessageHash returns keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PersonalMessageHash(msg []byte) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}
