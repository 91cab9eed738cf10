// ABOUTME: Membership and non-membership witnesses for the signature map
// ABOUTME: VerifyWitness recomputes the root from a witness and checks it

package sigmap

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrInvalidWitness is returned when a witness does not match a root.
var ErrInvalidWitness = errors.New("invalid witness")

// Proof ties one leaf to the root.
type Proof struct {
	Index    int    `cbor:"index" json:"index"`
	Key      Hash   `cbor:"key" json:"key"`
	Value    Hash   `cbor:"value" json:"value"`
	Siblings []Hash `cbor:"siblings" json:"siblings"`
}

// Witness is either a membership proof (Member set) or a non-membership proof
// built from the neighbouring leaves. Left and Right are both nil only for an
// empty map.
type Witness struct {
	Key    Hash   `cbor:"key" json:"key"`
	Size   int    `cbor:"size" json:"size"`
	Member *Proof `cbor:"member,omitempty" json:"member,omitempty"`
	Left   *Proof `cbor:"left,omitempty" json:"left,omitempty"`
	Right  *Proof `cbor:"right,omitempty" json:"right,omitempty"`
}

// Contains reports whether the witness claims membership.
func (w *Witness) Contains() bool {
	return w.Member != nil
}

// Value returns the proven value for a membership witness.
func (w *Witness) Value() (Hash, bool) {
	if w.Member == nil {
		return Hash{}, false
	}
	return w.Member.Value, true
}

// VerifyWitness checks w against root.
func VerifyWitness(root Hash, w *Witness) error {
	if w == nil {
		return fmt.Errorf("%w: nil witness", ErrInvalidWitness)
	}
	if w.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidWitness)
	}

	if w.Member != nil {
		if w.Left != nil || w.Right != nil {
			return fmt.Errorf("%w: membership witness carries neighbours", ErrInvalidWitness)
		}
		if w.Member.Key != w.Key {
			return fmt.Errorf("%w: proven key differs", ErrInvalidWitness)
		}
		return verifyProof(root, w.Size, w.Member)
	}

	switch {
	case w.Left == nil && w.Right == nil:
		if w.Size != 0 || root != EmptyRoot {
			return fmt.Errorf("%w: absence without neighbours in a non-empty map", ErrInvalidWitness)
		}
		return nil

	case w.Left == nil:
		if w.Right.Index != 0 {
			return fmt.Errorf("%w: successor is not the first leaf", ErrInvalidWitness)
		}

	case w.Right == nil:
		if w.Left.Index != w.Size-1 {
			return fmt.Errorf("%w: predecessor is not the last leaf", ErrInvalidWitness)
		}

	default:
		if w.Right.Index != w.Left.Index+1 {
			return fmt.Errorf("%w: neighbours are not adjacent", ErrInvalidWitness)
		}
	}

	if w.Left != nil {
		if bytes.Compare(w.Left.Key[:], w.Key[:]) >= 0 {
			return fmt.Errorf("%w: predecessor does not sort before key", ErrInvalidWitness)
		}
		if err := verifyProof(root, w.Size, w.Left); err != nil {
			return err
		}
	}
	if w.Right != nil {
		if bytes.Compare(w.Right.Key[:], w.Key[:]) <= 0 {
			return fmt.Errorf("%w: successor does not sort after key", ErrInvalidWitness)
		}
		if err := verifyProof(root, w.Size, w.Right); err != nil {
			return err
		}
	}
	return nil
}

func verifyProof(root Hash, size int, p *Proof) error {
	got, ok := rootFromPath(leafHash(p.Key, p.Value), p.Index, size, p.Siblings)
	if !ok {
		return fmt.Errorf("%w: malformed path for leaf %d", ErrInvalidWitness, p.Index)
	}
	if got != root {
		return fmt.Errorf("%w: root mismatch for leaf %d", ErrInvalidWitness, p.Index)
	}
	return nil
}
