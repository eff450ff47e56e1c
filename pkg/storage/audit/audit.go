// Package audit is the collection module owning the per-vault audit
// vector (spec.md §3.2, §4.6): a heterogeneous sequence rewritten on
// each append. This shape is a known inefficiency the specification
// explicitly permits (spec.md §9) so long as the append-only law holds.
package audit

import (
	"time"

	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the AuditLog region.
type Store struct {
	vectors container.OrderedMap
}

func New() Store {
	return Store{vectors: container.NewOrderedMap(region.AuditLog)}
}

// GetTx returns the full audit vector for vaultID.
func (s Store) GetTx(tx *region.Tx, vaultID principal.Principal) (*types.AuditVector, error) {
	var v types.AuditVector
	ok, err := s.vectors.GetTx(tx, vaultID.Bytes(), &v)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageError, "get audit vector", err)
	}
	if !ok {
		return &types.AuditVector{VaultID: vaultID}, nil
	}
	return &v, nil
}

// AppendTx loads, appends, and rewrites the full vector (spec.md §4.6).
func (s Store) AppendTx(tx *region.Tx, vaultID principal.Principal, actor principal.Principal, action string) error {
	v, err := s.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	v.Entries = append(v.Entries, types.AuditEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: time.Now(),
		VaultID:   vaultID,
	})
	if err := s.vectors.PutTx(tx, vaultID.Bytes(), v); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "append audit entry", err)
	}
	return nil
}

// CompactTx truncates the head of the vector, keeping the tail of
// length min(keepLastN, len) (spec.md §4.6).
func (s Store) CompactTx(tx *region.Tx, vaultID principal.Principal, keepLastN int) error {
	v, err := s.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	if len(v.Entries) <= keepLastN {
		return nil
	}
	v.Entries = v.Entries[len(v.Entries)-keepLastN:]
	if err := s.vectors.PutTx(tx, vaultID.Bytes(), v); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "compact audit vector", err)
	}
	return nil
}

// DeleteTx removes a vault's audit vector entirely — used by the vault
// deletion cascade.
func (s Store) DeleteTx(tx *region.Tx, vaultID principal.Principal) error {
	if err := s.vectors.DeleteTx(tx, vaultID.Bytes()); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete audit vector", err)
	}
	return nil
}

// ForEachTx streams every vault's audit vector — used by the
// maintenance engine's compaction sweep (spec.md §4.7).
func (s Store) ForEachTx(tx *region.Tx, fn func(vaultID principal.Principal, v *types.AuditVector) error) error {
	var outerErr error
	_ = s.vectors.ForEachTx(tx, func(key, raw []byte) error {
		if outerErr != nil {
			return nil
		}
		vaultID, err := principal.FromBytes(key)
		if err != nil {
			outerErr = vaulterr.Wrap(vaulterr.CodeStorageError, "decode audit key", err)
			return nil
		}
		var v types.AuditVector
		if err := container.Decode(raw, &v); err != nil {
			outerErr = vaulterr.Wrap(vaulterr.CodeStorageError, "decode audit vector", err)
			return nil
		}
		outerErr = fn(vaultID, &v)
		return nil
	})
	return outerErr
}
