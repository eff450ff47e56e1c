package container

import (
	"github.com/coldkeep/vaultengine/internal/codec"
	"github.com/coldkeep/vaultengine/internal/region"
)

// cellKey is the single fixed key a Cell's region bucket ever holds.
// This is the same shape the teacher's storage package uses for its
// bucketCA singleton (SaveCA/GetCA): one bucket, one key, atomic
// replace.
var cellKey = []byte("_cell")

// Cell is a single-slot atomic-replace container: the second primitive
// building block from spec.md §2.3. It backs the global config cells,
// the metrics cell, and the cursor.
type Cell struct {
	id region.ID
}

func NewCell(id region.ID) Cell {
	return Cell{id: id}
}

// SetTx replaces the cell's contents with v.
func (c Cell) SetTx(tx *region.Tx, v interface{}) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(c.id).Put(cellKey, data)
}

// GetTx decodes the cell's contents into v, reporting false if the cell
// has never been set.
func (c Cell) GetTx(tx *region.Tx, v interface{}) (bool, error) {
	data := tx.Bucket(c.id).Get(cellKey)
	if data == nil {
		return false, nil
	}
	return true, codec.Unmarshal(data, v)
}

// Counter is a monotonic 64-bit counter cell: the allocator behind every
// collection's internal-key assignment (spec.md §3.1). It is built on
// bbolt's own per-bucket sequence, which already guarantees the
// strict-monotonicity, never-reused invariant across restarts without
// any extra bookkeeping.
type Counter struct {
	id region.ID
}

func NewCounter(id region.ID) Counter {
	return Counter{id: id}
}

// NextTx allocates and returns the next value in the sequence.
func (c Counter) NextTx(tx *region.Tx) (uint64, error) {
	return tx.Bucket(c.id).NextSequence()
}

// CurrentTx returns the most recently allocated value without advancing
// the sequence (0 if Next has never been called).
func (c Counter) CurrentTx(tx *region.Tx) uint64 {
	return tx.Bucket(c.id).Sequence()
}
