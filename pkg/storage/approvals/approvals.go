// Package approvals is the collection module owning the per-vault
// Approvals record (spec.md §3.2, §4.8), keyed by VaultID.
package approvals

import (
	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the Approvals region.
type Store struct {
	records container.OrderedMap
}

func New() Store {
	return Store{records: container.NewOrderedMap(region.Approvals)}
}

// InitTx creates a zeroed Approvals record for a new vault.
func (s Store) InitTx(tx *region.Tx, vaultID principal.Principal) error {
	a := &types.Approvals{VaultID: vaultID}
	if err := s.records.PutTx(tx, vaultID.Bytes(), a); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "init approvals", err)
	}
	return nil
}

// GetTx returns a vault's Approvals record.
func (s Store) GetTx(tx *region.Tx, vaultID principal.Principal) (*types.Approvals, bool, error) {
	var a types.Approvals
	ok, err := s.records.GetTx(tx, vaultID.Bytes(), &a)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get approvals", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

// RecordTx increments the counter for role, after the caller has
// already verified the acting member (spec.md §4.8).
func (s Store) RecordTx(tx *region.Tx, vaultID principal.Principal, role types.Role) error {
	a, ok, err := s.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	if !ok {
		a = &types.Approvals{VaultID: vaultID}
	}
	switch role {
	case types.RoleHeir:
		a.Heirs++
	case types.RoleWitness:
		a.Witnesses++
	}
	if err := s.records.PutTx(tx, vaultID.Bytes(), a); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "record approval", err)
	}
	return nil
}

// DeleteTx removes a vault's Approvals record — used by the vault
// deletion cascade.
func (s Store) DeleteTx(tx *region.Tx, vaultID principal.Principal) error {
	if err := s.records.DeleteTx(tx, vaultID.Bytes()); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete approvals", err)
	}
	return nil
}
