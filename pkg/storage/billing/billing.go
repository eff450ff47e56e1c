// Package billing is the collection module owning the append-only
// billing log (spec.md §3.2, §3.4, §4.2). Entries are never mutated
// once appended; retrieval is by (offset, limit) pagination.
package billing

import (
	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the BillingLog region.
type Store struct {
	log container.AppendLog
}

func New() Store {
	return Store{log: container.NewAppendLog(region.BillingLog)}
}

// AppendTx appends one BillingEntry, returning its log index.
func (s Store) AppendTx(tx *region.Tx, e *types.BillingEntry) (uint64, error) {
	idx, err := s.log.AppendTx(tx, e)
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeStorageError, "append billing entry", err)
	}
	return idx, nil
}

// LenTx returns the total number of billing entries (spec.md §4.2:
// "Total count is derivable from the log length").
func (s Store) LenTx(tx *region.Tx) uint64 {
	return s.log.LenTx(tx)
}

// ListTx returns up to limit entries starting at offset, oldest first
// (spec.md §6.1's list_billing query).
func (s Store) ListTx(tx *region.Tx, offset, limit uint64) ([]types.BillingEntry, error) {
	var out []types.BillingEntry
	err := s.log.RangeTx(tx, offset, limit, func(raw []byte) error {
		var e types.BillingEntry
		if err := container.Decode(raw, &e); err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageError, "decode billing entry", err)
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
