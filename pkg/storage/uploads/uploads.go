// Package uploads is the collection module owning UploadSession's dual
// map and the UploadChunk composite-keyed map (spec.md §3.2, §4.4).
package uploads

import (
	"encoding/binary"

	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/idx"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the upload session and chunk regions.
type Store struct {
	sessions container.OrderedMap
	index    idx.DualIndex
	chunks   container.OrderedMap
}

func New() Store {
	return Store{
		sessions: container.NewOrderedMap(region.UploadsPrimary),
		index:    idx.New(region.UploadCounter, region.UploadsSecondary),
		chunks:   container.NewOrderedMap(region.UploadChunks),
	}
}

func sessionKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// chunkKey composes (internal_upload_id, chunk_index) into one sortable
// key, so a vault's chunks iterate in chunk order.
func chunkKey(uploadID uint64, idx uint32) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[:8], uploadID)
	binary.BigEndian.PutUint32(b[8:], idx)
	return b
}

// AllocateTx draws a fresh external upload Principal and assigns it an
// internal key.
func (s Store) AllocateTx(tx *region.Tx) (internalID uint64, external principal.Principal, err error) {
	internalID, external, err = s.index.AllocateTx(tx, principal.TagUpload)
	if err != nil {
		return 0, principal.Principal{}, vaulterr.Wrap(vaulterr.CodeStorageError, "allocate upload id", err)
	}
	return internalID, external, nil
}

// PutSessionTx inserts or replaces an UploadSession's primary record.
func (s Store) PutSessionTx(tx *region.Tx, u *types.UploadSession) error {
	if err := s.sessions.PutTx(tx, sessionKey(u.InternalID), u); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "put upload session", err)
	}
	return nil
}

// GetByExternalTx resolves an external upload ID to its session.
func (s Store) GetByExternalTx(tx *region.Tx, external principal.Principal) (*types.UploadSession, bool, error) {
	internalID, ok := s.index.ResolveTx(tx, external)
	if !ok {
		return nil, false, nil
	}
	var u types.UploadSession
	ok, err := s.sessions.GetTx(tx, sessionKey(internalID), &u)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get upload session", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

// DeleteSessionTx removes both the primary and secondary entries for a
// session.
func (s Store) DeleteSessionTx(tx *region.Tx, u *types.UploadSession) error {
	if err := s.sessions.DeleteTx(tx, sessionKey(u.InternalID)); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete upload session", err)
	}
	if err := s.index.DropTx(tx, u.ExternalID); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "delete upload session index", err)
	}
	return nil
}

// PutChunkTx stores a chunk, overwriting any prior chunk at the same
// index (spec.md §4.4: duplicate index overwrites, idempotent retry).
func (s Store) PutChunkTx(tx *region.Tx, c *types.UploadChunk) error {
	if err := s.chunks.PutTx(tx, chunkKey(c.InternalUploadID, c.ChunkIndex), c); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "put upload chunk", err)
	}
	return nil
}

// GetChunkTx returns one chunk by (uploadID, index).
func (s Store) GetChunkTx(tx *region.Tx, uploadID uint64, index uint32) (*types.UploadChunk, bool, error) {
	var c types.UploadChunk
	ok, err := s.chunks.GetTx(tx, chunkKey(uploadID, index), &c)
	if err != nil {
		return nil, false, vaulterr.Wrap(vaulterr.CodeStorageError, "get upload chunk", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

// DeleteChunksTx removes every chunk belonging to uploadID.
func (s Store) DeleteChunksTx(tx *region.Tx, uploadID uint64) error {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uploadID)
	var keys [][]byte
	_ = s.chunks.RangeTx(tx, prefix, func(key, _ []byte) (bool, error) {
		cp := make([]byte, len(key))
		copy(cp, key)
		keys = append(keys, cp)
		return true, nil
	})
	for _, k := range keys {
		if err := s.chunks.DeleteTx(tx, k); err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageError, "delete upload chunk", err)
		}
	}
	return nil
}

// ForEachSessionTx streams every session in internal-key (creation)
// order — used by the maintenance engine's stale-upload GC (spec.md
// §4.7) so it never materializes a full session list.
func (s Store) ForEachSessionTx(tx *region.Tx, fn func(*types.UploadSession) error) error {
	var outerErr error
	_ = s.sessions.ForEachTx(tx, func(_, raw []byte) error {
		if outerErr != nil {
			return nil
		}
		var u types.UploadSession
		if err := container.Decode(raw, &u); err != nil {
			outerErr = vaulterr.Wrap(vaulterr.CodeStorageError, "decode upload session", err)
			return nil
		}
		outerErr = fn(&u)
		return nil
	})
	return outerErr
}
