// Package content is the collection module owning ContentItem's dual map
// and the per-vault ContentIndex that defines listing order (spec.md
// §3.2, §4.5).
package content

import (
	"encoding/binary"

	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/idx"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the content primary map, secondary
// index, counter, and per-vault index regions.
type Store struct {
	primary container.OrderedMap
	index   idx.DualIndex
	byVault container.OrderedMap
}

func New() Store {
	return Store{
		primary: container.NewOrderedMap(region.ContentPrimary),
		index:   idx.New(region.ContentCounter, region.ContentSecondary),
		byVault: container.NewOrderedMap(region.ContentIndex),
	}
}

func internalKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// AllocateTx draws a fresh external content Principal and assigns it an
// internal key.
func (s Store) AllocateTx(tx *region.Tx) (internalID uint64, external principal.Principal, err error) {
	internalID, external, err = s.index.AllocateTx(tx, principal.TagContent)
	if err != nil {
		return 0, principal.Principal{}, vaulterr.Wrap(vaulterr.CodeStorageError, "allocate content id", err)
	}
	return internalID, external, nil
}

// PutTx inserts or replaces a ContentItem's primary record. It does not
// touch the per-vault index; callers append to the index once, on
// first insert, via AppendToIndexTx.
func (s Store) PutTx(tx *region.Tx, c *types.ContentItem) error {
	if err := s.primary.PutTx(tx, internalKey(c.InternalID), c); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "put content", err)
	}
	return nil
}

// GetByExternalTx resolves an external content ID to its record.
func (s Store) GetByExternalTx(tx *region.Tx, external principal.Principal) (*types.ContentItem, bool, error) {
	internalID, ok := s.index.ResolveTx(tx, external)
	if !ok {
		return nil, false, nil
	}
	var c types.ContentItem
	ok, err := s.primary.GetTx(tx, internalKey(internalID), &c)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get content", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

// DeleteTx removes both the primary and secondary entries for a content
// item. It does not touch the per-vault index.
func (s Store) DeleteTx(tx *region.Tx, c *types.ContentItem) error {
	if err := s.primary.DeleteTx(tx, internalKey(c.InternalID)); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete content", err)
	}
	if err := s.index.DropTx(tx, c.ExternalID); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete content index", err)
	}
	return nil
}

// GetIndexTx returns the ordered sequence of external content IDs for a
// vault.
func (s Store) GetIndexTx(tx *region.Tx, vaultID principal.Principal) (*types.ContentIndex, error) {
	var ci types.ContentIndex
	ok, err := s.byVault.GetTx(tx, vaultID.Bytes(), &ci)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageError, "get content index", err)
	}
	if !ok {
		return &types.ContentIndex{VaultID: vaultID}, nil
	}
	return &ci, nil
}

// AppendToIndexTx appends external to vaultID's ContentIndex, defining
// listing order (spec.md §4.4 step 4).
func (s Store) AppendToIndexTx(tx *region.Tx, vaultID, external principal.Principal) error {
	ci, err := s.GetIndexTx(tx, vaultID)
	if err != nil {
		return err
	}
	ci.Order = append(ci.Order, external)
	if err := s.byVault.PutTx(tx, vaultID.Bytes(), ci); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "append content index", err)
	}
	return nil
}

// RemoveFromIndexTx removes external from vaultID's ContentIndex
// (spec.md §4.5 delete_content).
func (s Store) RemoveFromIndexTx(tx *region.Tx, vaultID, external principal.Principal) error {
	ci, err := s.GetIndexTx(tx, vaultID)
	if err != nil {
		return err
	}
	filtered := ci.Order[:0]
	for _, id := range ci.Order {
		if id != external {
			filtered = append(filtered, id)
		}
	}
	ci.Order = filtered
	if err := s.byVault.PutTx(tx, vaultID.Bytes(), ci); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "remove content index entry", err)
	}
	return nil
}

// DeleteIndexTx removes a vault's entire ContentIndex — used by the
// vault deletion cascade.
func (s Store) DeleteIndexTx(tx *region.Tx, vaultID principal.Principal) error {
	if err := s.byVault.DeleteTx(tx, vaultID.Bytes()); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete content index", err)
	}
	return nil
}

// ListByVaultTx resolves and streams a vault's content items in index
// order.
func (s Store) ListByVaultTx(tx *region.Tx, vaultID principal.Principal, fn func(*types.ContentItem) error) error {
	ci, err := s.GetIndexTx(tx, vaultID)
	if err != nil {
		return err
	}
	for _, external := range ci.Order {
		item, ok, err := s.GetByExternalTx(tx, external)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}
