// Package cursor is the collection module owning the generic monotone
// pagination cursor (spec.md §3.2, §4.9). It is not transactional with
// respect to any other collection.
package cursor

import (
	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the Cursor cell region.
type Store struct {
	cell container.Cell
}

func New() Store {
	return Store{cell: container.NewCell(region.Cursor)}
}

// GetTx returns the current cursor value (0 if never set).
func (s Store) GetTx(tx *region.Tx) (uint64, error) {
	var c types.Cursor
	ok, err := s.cell.GetTx(tx, &c)
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeStorageError, "get cursor", err)
	}
	if !ok {
		return 0, nil
	}
	return c.Value, nil
}

// SetTx replaces the cursor value.
func (s Store) SetTx(tx *region.Tx, value uint64) error {
	if err := s.cell.SetTx(tx, &types.Cursor{Value: value}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "set cursor", err)
	}
	return nil
}

// IncrementTx advances the cursor by one and returns its new value.
func (s Store) IncrementTx(tx *region.Tx) (uint64, error) {
	v, err := s.GetTx(tx)
	if err != nil {
		return 0, err
	}
	v++
	if err := s.SetTx(tx, v); err != nil {
		return 0, err
	}
	return v, nil
}
