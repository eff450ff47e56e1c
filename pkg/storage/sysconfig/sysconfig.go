// Package sysconfig is the collection module owning the engine-wide
// GlobalConfig singleton cell, set exactly once by init_config (spec.md
// §4.9).
package sysconfig

import (
	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the GlobalConfig cell region.
type Store struct {
	cell container.Cell
}

func New() Store {
	return Store{cell: container.NewCell(region.GlobalConfig)}
}

// InitTx writes GlobalConfig exactly once; re-invocation fails with
// InvalidState (spec.md §4.9).
func (s Store) InitTx(tx *region.Tx, cfg *types.GlobalConfig) error {
	_, ok, err := s.GetTx(tx)
	if err != nil {
		return err
	}
	if ok {
		return vaulterr.New(vaulterr.CodeInvalidState, "global config already initialized")
	}
	if err := s.cell.SetTx(tx, cfg); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "init global config", err)
	}
	return nil
}

// GetTx reads GlobalConfig. Reads are pure (spec.md §4.9).
func (s Store) GetTx(tx *region.Tx) (*types.GlobalConfig, bool, error) {
	var cfg types.GlobalConfig
	ok, err := s.cell.GetTx(tx, &cfg)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get global config", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &cfg, true, nil
}
