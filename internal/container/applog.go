package container

import (
	"encoding/binary"

	"github.com/coldkeep/vaultengine/internal/codec"
	"github.com/coldkeep/vaultengine/internal/region"
)

// AppendLog is the third primitive building block from spec.md §2.3: an
// append-only log addressed by a monotonically increasing index, used
// for the billing log (spec.md §3.2, §3.4) and available to any
// collection module that wants append-only-with-pagination semantics
// instead of an ordered map. Records are never mutated or reordered;
// only appended.
//
// It is grounded in the index+data log-application shape the teacher's
// pkg/manager/fsm.go uses for its Raft command log, but — unlike that
// package — runs over a single region bucket with no replication, since
// spec.md §5 describes a single-threaded, non-replicated engine.
type AppendLog struct {
	id region.ID
}

func NewAppendLog(id region.ID) AppendLog {
	return AppendLog{id: id}
}

func indexKey(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func keyIndex(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}

func (l AppendLog) lastIndexTx(tx *region.Tx) uint64 {
	c := tx.Bucket(l.id).Cursor()
	k, _ := c.Last()
	if k == nil {
		return 0
	}
	return keyIndex(k)
}

// AppendTx encodes v and appends it as the next index, returning the
// index assigned to the record.
func (l AppendLog) AppendTx(tx *region.Tx, v interface{}) (uint64, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return 0, err
	}
	idx := l.lastIndexTx(tx) + 1
	if err := tx.Bucket(l.id).Put(indexKey(idx), data); err != nil {
		return 0, err
	}
	return idx, nil
}

// LenTx returns the number of records currently in the log.
func (l AppendLog) LenTx(tx *region.Tx) uint64 {
	return uint64(tx.Bucket(l.id).Stats().KeyN)
}

// RangeTx decodes records starting at the given zero-based offset from
// the oldest record, up to limit records (0 == no limit), in append
// order. This backs BillingEntry's (offset, limit) pagination.
func (l AppendLog) RangeTx(tx *region.Tx, offset, limit uint64, fn func(raw []byte) error) error {
	c := tx.Bucket(l.id).Cursor()
	var skipped uint64
	var emitted uint64
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && emitted >= limit {
			break
		}
		if err := fn(v); err != nil {
			return err
		}
		emitted++
	}
	return nil
}
