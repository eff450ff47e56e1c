// Package invites is the collection module owning the InviteToken dual
// map: a primary map keyed by internal uint64 and a secondary index
// resolving the external Principal (spec.md §3.1, §3.2).
package invites

import (
	"encoding/binary"

	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/idx"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the invite primary map, secondary
// index, and counter regions.
type Store struct {
	primary container.OrderedMap
	index   idx.DualIndex
}

func New() Store {
	return Store{
		primary: container.NewOrderedMap(region.InvitesPrimary),
		index:   idx.New(region.InviteCounter, region.InvitesSecondary),
	}
}

func internalKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// AllocateTx draws a fresh external invite Principal and assigns it an
// internal key, without writing the primary record — the caller writes
// the InviteToken itself in the same transaction via InsertTx.
func (s Store) AllocateTx(tx *region.Tx) (internalID uint64, external principal.Principal, err error) {
	internalID, external, err = s.index.AllocateTx(tx, principal.TagInvite)
	if err != nil {
		return 0, principal.Principal{}, vaulterr.Wrap(vaulterr.CodeStorageError, "allocate invite id", err)
	}
	return internalID, external, nil
}

// InsertTx writes the primary record for an already-allocated invite.
func (s Store) InsertTx(tx *region.Tx, t *types.InviteToken) error {
	if err := s.primary.PutTx(tx, internalKey(t.InternalID), t); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "insert invite", err)
	}
	return nil
}

// PutTx replaces an existing invite's record (status transitions).
func (s Store) PutTx(tx *region.Tx, t *types.InviteToken) error {
	return s.InsertTx(tx, t)
}

// GetByInternalTx returns an invite by its internal key.
func (s Store) GetByInternalTx(tx *region.Tx, internalID uint64) (*types.InviteToken, bool, error) {
	var t types.InviteToken
	ok, err := s.primary.GetTx(tx, internalKey(internalID), &t)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get invite", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &t, true, nil
}

// ResolveTx returns the invite identified by its external Principal, or
// (nil, false, nil) if the external ID is unknown (spec.md §4.3's
// TokenInvalid case).
func (s Store) ResolveTx(tx *region.Tx, external principal.Principal) (*types.InviteToken, bool, error) {
	internalID, ok := s.index.ResolveTx(tx, external)
	if !ok {
		return nil, false, nil
	}
	return s.GetByInternalTx(tx, internalID)
}

// DeleteTx removes both the primary and secondary entries for an
// invite.
func (s Store) DeleteTx(tx *region.Tx, t *types.InviteToken) error {
	if err := s.primary.DeleteTx(tx, internalKey(t.InternalID)); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete invite", err)
	}
	if err := s.index.DropTx(tx, t.ExternalID); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete invite index", err)
	}
	return nil
}

// ForEachTx streams every invite in internal-key (creation) order —
// used by the maintenance engine's expiry sweep (spec.md §4.7) so it
// never materializes a full invite list.
func (s Store) ForEachTx(tx *region.Tx, fn func(*types.InviteToken) error) error {
	var outerErr error
	_ = s.primary.ForEachTx(tx, func(_, raw []byte) error {
		if outerErr != nil {
			return nil
		}
		var t types.InviteToken
		if err := container.Decode(raw, &t); err != nil {
			outerErr = vaulterr.Wrap(vaulterr.CodeStorageError, "decode invite", err)
			return nil
		}
		outerErr = fn(&t)
		return nil
	})
	return outerErr
}

// RemoveAllByVaultTx deletes every invite belonging to vaultID — used by
// the vault deletion cascade (spec.md §4.1). It scans the full primary
// map since invites are keyed by internal ID, not by vault.
func (s Store) RemoveAllByVaultTx(tx *region.Tx, vaultID principal.Principal) error {
	var toDelete []*types.InviteToken
	if err := s.ForEachTx(tx, func(t *types.InviteToken) error {
		if t.VaultID == vaultID {
			cp := *t
			toDelete = append(toDelete, &cp)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, t := range toDelete {
		if err := s.DeleteTx(tx, t); err != nil {
			return err
		}
	}
	return nil
}
