// Package principal implements the opaque external identifier used for
// every entity the engine exposes across its host boundary: vaults,
// members, invitations, content items, upload sessions, and payment
// payers. A Principal is unlinkable and can be generated offline by a
// caller; the engine never derives one deterministically from another
// identifier.
package principal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the payload length of a Principal: 29 bytes of random material
// plus a 1-byte type tag, matching SPEC_FULL.md's glossary definition.
const Size = 30

// Tag classifies what kind of entity a Principal names. It is not
// authorization-bearing; it is only a decoding aid and a cheap sanity
// check against passing the wrong kind of ID to an operation.
type Tag byte

const (
	TagUnspecified Tag = 0
	TagVault       Tag = 1
	TagMember      Tag = 2
	TagInvite      Tag = 3
	TagContent     Tag = 4
	TagUpload      Tag = 5
	TagPayer       Tag = 6
)

// Principal is a fixed-size, comparable value so it can be used directly
// as a Go map key (for VaultConfig, VaultMember, Approvals, ContentIndex
// primary-map keys) without a separate byte-slice conversion step.
type Principal [Size]byte

// ErrMalformed is returned by Parse when the input is not a well-formed
// Principal encoding.
var ErrMalformed = errors.New("principal: malformed identifier")

// New draws a fresh Principal of the given tag from a cryptographic RNG.
// This is the engine's one suspension point for identifier generation
// (SPEC_FULL.md / spec.md §5): the caller may yield here, but New performs
// no partial writes, so there is nothing to roll back if it is
// interleaved with other operations.
func New(tag Tag) (Principal, error) {
	var p Principal
	if _, err := rand.Read(p[:Size-1]); err != nil {
		return Principal{}, fmt.Errorf("principal: rng draw failed: %w", err)
	}
	p[Size-1] = byte(tag)
	return p, nil
}

// Tag reports the type tag embedded in the Principal.
func (p Principal) Tag() Tag {
	return Tag(p[Size-1])
}

// Bytes returns the Principal's canonical byte representation, suitable
// as an ordered-map or secondary-index key.
func (p Principal) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, p[:])
	return out
}

// String renders the Principal as lowercase hex, used only for logging
// and error messages — never as a storage key.
func (p Principal) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether p is the zero value, used to detect optional
// Principal fields (e.g. InviteToken.ClaimedBy before a claim).
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// FromBytes parses a Principal out of its canonical byte representation,
// as produced by Bytes or read back from a secondary index key.
func FromBytes(b []byte) (Principal, error) {
	var p Principal
	if len(b) != Size {
		return Principal{}, ErrMalformed
	}
	copy(p[:], b)
	return p, nil
}

// Parse parses a Principal from its hex string representation.
func Parse(s string) (Principal, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromBytes(b)
}
