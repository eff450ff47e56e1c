// Package idx implements the Counter & Index Layer (spec.md §2.4): for
// every entity with a dual identifier, a monotonic counter cell assigns
// the internal 64-bit key and a secondary ordered map resolves the
// external Principal back to it. Primary map and secondary index are
// always updated together within the same region.Tx, which is what
// spec.md §3.1's "a reader must never observe one without the other"
// invariant requires.
package idx

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
)

// DualIndex pairs a counter region with a secondary-index region for one
// collection.
type DualIndex struct {
	counterID   region.ID
	secondaryID region.ID
}

func New(counterID, secondaryID region.ID) DualIndex {
	return DualIndex{counterID: counterID, secondaryID: secondaryID}
}

func (d DualIndex) counterBucket(tx *region.Tx) *bolt.Bucket   { return tx.Bucket(d.counterID) }
func (d DualIndex) secondaryBucket(tx *region.Tx) *bolt.Bucket { return tx.Bucket(d.secondaryID) }

func encodeInternalID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeInternalID(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// AllocateTx draws a fresh external Principal of the given tag, assigns
// it the next internal key, and records external→internal in the
// secondary index. It does not touch the primary map: the caller is
// responsible for inserting the primary record in the same
// transaction, preserving atomicity across the two maps.
func (d DualIndex) AllocateTx(tx *region.Tx, tag principal.Tag) (internalID uint64, external principal.Principal, err error) {
	external, err = principal.New(tag)
	if err != nil {
		return 0, principal.Principal{}, err
	}
	internalID, err = d.counterBucket(tx).NextSequence()
	if err != nil {
		return 0, principal.Principal{}, err
	}
	if err = d.secondaryBucket(tx).Put(external.Bytes(), encodeInternalID(internalID)); err != nil {
		return 0, principal.Principal{}, err
	}
	return internalID, external, nil
}

// ResolveTx looks up the internal key for an external Principal.
func (d DualIndex) ResolveTx(tx *region.Tx, external principal.Principal) (internalID uint64, ok bool) {
	raw := d.secondaryBucket(tx).Get(external.Bytes())
	if raw == nil {
		return 0, false
	}
	return decodeInternalID(raw), true
}

// DropTx removes external from the secondary index. Callers must remove
// the corresponding primary-map entry in the same transaction.
func (d DualIndex) DropTx(tx *region.Tx, external principal.Principal) error {
	return d.secondaryBucket(tx).Delete(external.Bytes())
}
