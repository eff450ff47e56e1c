// Package container implements the three primitive building blocks
// spec.md §2.3 describes over a region: an ordered map sorted by key
// bytes, a single-slot cell, and an append-only log. Collection modules
// (pkg/storage/...) compose these; they never touch a bbolt bucket
// directly.
package container

import (
	"bytes"

	bolt "go.etcd.io/bbolt"

	"github.com/coldkeep/vaultengine/internal/codec"
	"github.com/coldkeep/vaultengine/internal/region"
)

// OrderedMap is a typed view over one region, sorted by raw key bytes —
// bbolt buckets already maintain this order, so OrderedMap only adds the
// canonical-codec encode/decode step on top.
type OrderedMap struct {
	id region.ID
}

func NewOrderedMap(id region.ID) OrderedMap {
	return OrderedMap{id: id}
}

func (m OrderedMap) bucket(tx *region.Tx) *bolt.Bucket {
	return tx.Bucket(m.id)
}

// PutTx encodes v and stores it under key, replacing any prior value.
func (m OrderedMap) PutTx(tx *region.Tx, key []byte, v interface{}) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	return m.bucket(tx).Put(key, data)
}

// GetTx decodes the value stored at key into v. It reports false if no
// value is present.
func (m OrderedMap) GetTx(tx *region.Tx, key []byte, v interface{}) (bool, error) {
	data := m.bucket(tx).Get(key)
	if data == nil {
		return false, nil
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// HasTx reports whether key is present, without decoding its value —
// used by index-consistency checks (spec.md §3.3).
func (m OrderedMap) HasTx(tx *region.Tx, key []byte) bool {
	return m.bucket(tx).Get(key) != nil
}

// DeleteTx removes key. Deleting an absent key is a no-op.
func (m OrderedMap) DeleteTx(tx *region.Tx, key []byte) error {
	return m.bucket(tx).Delete(key)
}

// ForEachTx streams every (key, raw-value) pair in key order. Callers
// that only need the decoded value should decode raw themselves; this
// keeps maintenance sweeps (spec.md §4.7) from materializing a full list
// before acting.
func (m OrderedMap) ForEachTx(tx *region.Tx, fn func(key, raw []byte) error) error {
	return m.bucket(tx).ForEach(fn)
}

// RangeTx streams every (key, raw-value) pair whose key has the given
// prefix, in key order, stopping early if fn returns cont=false.
func (m OrderedMap) RangeTx(tx *region.Tx, prefix []byte, fn func(key, raw []byte) (cont bool, err error)) error {
	c := m.bucket(tx).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Decode is a convenience for callers holding a raw value from ForEachTx
// or RangeTx that want it decoded into v.
func Decode(raw []byte, v interface{}) error {
	return codec.Unmarshal(raw, v)
}
