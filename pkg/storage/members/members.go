// Package members is the collection module owning the VaultMember
// primary map, keyed by the composite (vault_id, member_principal)
// (spec.md §3.2).
package members

import (
	"bytes"

	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the Members region.
type Store struct {
	primary container.OrderedMap
}

func New() Store {
	return Store{primary: container.NewOrderedMap(region.Members)}
}

func compositeKey(vaultID, member principal.Principal) []byte {
	key := make([]byte, 0, principal.Size*2)
	key = append(key, vaultID.Bytes()...)
	key = append(key, member.Bytes()...)
	return key
}

// PutTx inserts or replaces a VaultMember.
func (s Store) PutTx(tx *region.Tx, m *types.VaultMember) error {
	if err := s.primary.PutTx(tx, compositeKey(m.VaultID, m.Member), m); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "put member", err)
	}
	return nil
}

// GetTx returns a member by (vaultID, member).
func (s Store) GetTx(tx *region.Tx, vaultID, member principal.Principal) (*types.VaultMember, bool, error) {
	var m types.VaultMember
	ok, err := s.primary.GetTx(tx, compositeKey(vaultID, member), &m)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get member", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

// DeleteTx removes a member's record.
func (s Store) DeleteTx(tx *region.Tx, vaultID, member principal.Principal) error {
	if err := s.primary.DeleteTx(tx, compositeKey(vaultID, member)); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete member", err)
	}
	return nil
}

// ListByVaultTx streams every member of vaultID, in key order, by
// scanning the key-prefix range formed by vaultID's bytes.
func (s Store) ListByVaultTx(tx *region.Tx, vaultID principal.Principal, fn func(*types.VaultMember) error) error {
	var outerErr error
	_ = s.primary.RangeTx(tx, vaultID.Bytes(), func(_, raw []byte) (bool, error) {
		var m types.VaultMember
		if err := container.Decode(raw, &m); err != nil {
			outerErr = vaulterr.Wrap(vaulterr.CodeStorageError, "decode member", err)
			return false, nil
		}
		if err := fn(&m); err != nil {
			outerErr = err
			return false, nil
		}
		return true, nil
	})
	return outerErr
}

// UsedShamirIndices returns the set of Shamir indices currently used by
// Active members of the given role within vaultID (spec.md §4.3).
func (s Store) UsedShamirIndices(tx *region.Tx, vaultID principal.Principal, role types.Role) (map[uint8]bool, error) {
	used := make(map[uint8]bool)
	err := s.ListByVaultTx(tx, vaultID, func(m *types.VaultMember) error {
		if m.Role == role && m.Status == types.MemberActive {
			used[m.ShamirIndex] = true
		}
		return nil
	})
	return used, err
}

// RemoveAllByVaultTx deletes every member belonging to vaultID — used by
// the vault deletion cascade (spec.md §4.1).
func (s Store) RemoveAllByVaultTx(tx *region.Tx, vaultID principal.Principal) error {
	var keys [][]byte
	_ = s.primary.RangeTx(tx, vaultID.Bytes(), func(key, _ []byte) (bool, error) {
		cp := make([]byte, len(key))
		copy(cp, key)
		keys = append(keys, cp)
		return true, nil
	})
	for _, k := range keys {
		if !bytes.HasPrefix(k, vaultID.Bytes()) {
			continue
		}
		if err := s.primary.DeleteTx(tx, k); err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageError, "cascade delete member", err)
		}
	}
	return nil
}
