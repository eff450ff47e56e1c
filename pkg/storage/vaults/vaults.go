// Package vaults is the collection module owning the VaultConfig
// primary map (spec.md §3.2). VaultConfig is keyed directly by its
// Principal — no secondary index is needed.
package vaults

import (
	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the Vaults region.
type Store struct {
	primary container.OrderedMap
}

func New() Store {
	return Store{primary: container.NewOrderedMap(region.Vaults)}
}

// PutTx inserts or replaces a VaultConfig.
func (s Store) PutTx(tx *region.Tx, v *types.VaultConfig) error {
	if err := s.primary.PutTx(tx, v.VaultID.Bytes(), v); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "put vault", err)
	}
	return nil
}

// GetTx returns a vault by its external Principal.
func (s Store) GetTx(tx *region.Tx, vaultID principal.Principal) (*types.VaultConfig, bool, error) {
	var v types.VaultConfig
	ok, err := s.primary.GetTx(tx, vaultID.Bytes(), &v)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get vault", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

// DeleteTx removes a vault's record.
func (s Store) DeleteTx(tx *region.Tx, vaultID principal.Principal) error {
	if err := s.primary.DeleteTx(tx, vaultID.Bytes()); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete vault", err)
	}
	return nil
}

// ListTx streams every vault in key order, honoring (offset, limit)
// pagination for the admin-facing list_vaults query (spec.md §6.1).
func (s Store) ListTx(tx *region.Tx, offset, limit int, fn func(*types.VaultConfig) error) error {
	var skipped, emitted int
	var outerErr error
	_ = s.primary.ForEachTx(tx, func(_, raw []byte) error {
		if outerErr != nil {
			return nil
		}
		if skipped < offset {
			skipped++
			return nil
		}
		if limit > 0 && emitted >= limit {
			return nil
		}
		var v types.VaultConfig
		if err := container.Decode(raw, &v); err != nil {
			outerErr = vaulterr.Wrap(vaulterr.CodeStorageError, "decode vault", err)
			return nil
		}
		if err := fn(&v); err != nil {
			outerErr = err
			return nil
		}
		emitted++
		return nil
	})
	return outerErr
}

// ForEachTx streams every vault, undecoded until fn needs it — used by
// the maintenance engine's lifecycle sweep so it never materializes a
// full vault list (spec.md §4.7).
func (s Store) ForEachTx(tx *region.Tx, fn func(*types.VaultConfig) error) error {
	var outerErr error
	_ = s.primary.ForEachTx(tx, func(_, raw []byte) error {
		if outerErr != nil {
			return nil
		}
		var v types.VaultConfig
		if err := container.Decode(raw, &v); err != nil {
			outerErr = vaulterr.Wrap(vaulterr.CodeStorageError, "decode vault", err)
			return nil
		}
		outerErr = fn(&v)
		return nil
	})
	return outerErr
}
