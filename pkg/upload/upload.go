// Package upload implements the Chunked Upload Engine (spec.md §4.4):
// begin_upload, upload_chunk, finish_upload (with integrity verification
// and a storage-quota check), and abort_upload.
package upload

import (
	"crypto/sha256"
	"time"

	"github.com/rs/zerolog"

	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/ratelimit"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
	"github.com/coldkeep/vaultengine/pkg/log"
	"github.com/coldkeep/vaultengine/pkg/metrics"
	"github.com/coldkeep/vaultengine/pkg/storage/content"
	"github.com/coldkeep/vaultengine/pkg/storage/members"
	"github.com/coldkeep/vaultengine/pkg/storage/uploads"
	"github.com/coldkeep/vaultengine/pkg/storage/vaults"
)

// StaleAfter is the age at which an open, never-finished upload session
// becomes eligible for the maintenance engine's GC sweep (spec.md §4.7).
const StaleAfter = 24 * time.Hour

// Coordinator is the Chunked Upload Engine.
type Coordinator struct {
	Vaults  vaults.Store
	Members members.Store
	Content content.Store
	Uploads uploads.Store

	// WriteBuckets gates begin_upload/upload_chunk/finish_upload/
	// abort_upload, one token bucket per caller (spec.md §5). Nil
	// disables rate limiting, matching an un-configured host process.
	WriteBuckets *ratelimit.Buckets

	log zerolog.Logger
}

func (c *Coordinator) checkWriteRate(caller principal.Principal, operation string) error {
	if c.WriteBuckets == nil {
		return nil
	}
	if !c.WriteBuckets.Allow(caller) {
		metrics.RateLimitedTotal.WithLabelValues(operation).Inc()
		return vaulterr.New(vaulterr.CodeRateLimitExceeded, "write rate limit exceeded for this caller")
	}
	return nil
}

func New() *Coordinator {
	return &Coordinator{
		Vaults:  vaults.New(),
		Members: members.New(),
		Content: content.New(),
		Uploads: uploads.New(),
		log:     log.WithComponent("upload"),
	}
}

// uploadableStatuses are the vault states begin_upload permits (spec.md
// §4.4): content only moves while the vault is actively administered.
var uploadableStatuses = map[types.VaultStatus]bool{
	types.StatusSetupComplete: true,
	types.StatusActive:        true,
}

func (c *Coordinator) authorize(tx *region.Tx, v *types.VaultConfig, caller principal.Principal) error {
	if v.Owner == caller {
		return nil
	}
	if _, ok, err := c.Members.GetTx(tx, v.VaultID, caller); err != nil {
		return err
	} else if ok {
		return nil
	}
	return vaulterr.New(vaulterr.CodeMemberGuardFailed, "caller is not the vault owner or a member")
}

// BeginUploadTx validates the vault accepts uploads, the caller is owner
// or a member, and the declared size fits both a single-session budget
// and the vault's remaining quota, then opens an UploadSession in the
// Open state (spec.md §4.4). chunkCount is caller-declared (spec.md
// §4.4's begin_upload meta); it must cover declaredSize at
// MaxChunkBytes per chunk, plus at most one trailing zero-byte chunk
// to let a declared size that divides MaxChunkBytes evenly still end
// on an empty final chunk.
func (c *Coordinator) BeginUploadTx(tx *region.Tx, vaultID, caller principal.Principal, kind types.ContentKind, filename, mimeType string, declaredSize int64, chunkCount uint32) (principal.Principal, error) {
	if err := c.checkWriteRate(caller, "begin_upload"); err != nil {
		return principal.Principal{}, err
	}
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return principal.Principal{}, err
	}
	if !ok {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if !uploadableStatuses[v.Status] {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeInvalidState, "vault status does not permit uploads")
	}
	if err := c.authorize(tx, v, caller); err != nil {
		return principal.Principal{}, err
	}
	if declaredSize <= 0 {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeInvalidInput, "declared size must be positive")
	}
	if declaredSize > v.StorageQuotaBytes-v.BytesUsed {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeStorageLimitExceeded, "declared size exceeds remaining storage quota")
	}
	minChunks := uint32((declaredSize + types.MaxChunkBytes - 1) / types.MaxChunkBytes)
	if chunkCount < minChunks || chunkCount > minChunks+1 {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeInvalidInput, "chunk count is inconsistent with declared size")
	}

	internalID, external, err := c.Uploads.AllocateTx(tx)
	if err != nil {
		return principal.Principal{}, err
	}
	session := &types.UploadSession{
		InternalID:     internalID,
		ExternalID:     external,
		VaultID:        vaultID,
		Initiator:      caller,
		Kind:           kind,
		Filename:       filename,
		MimeType:       mimeType,
		DeclaredSize:   declaredSize,
		ChunkCount:     chunkCount,
		ReceivedChunks: make(map[uint32]bool),
		Status:         types.UploadOpen,
		CreatedAt:      time.Now(),
	}
	if err := c.Uploads.PutSessionTx(tx, session); err != nil {
		return principal.Principal{}, err
	}

	c.log.Info().Str("vault_id", vaultID.String()).Str("upload_id", external.String()).Int64("declared_size", declaredSize).Msg("upload session opened")
	return external, nil
}

// UploadChunkTx accepts one chunk. Only the session's own initiator may
// upload into it (spec.md §9 Open Questions). Re-submitting an already
// received index overwrites it, making retries idempotent (spec.md
// §4.4).
func (c *Coordinator) UploadChunkTx(tx *region.Tx, uploadID, caller principal.Principal, index uint32, data []byte) error {
	if err := c.checkWriteRate(caller, "upload_chunk"); err != nil {
		return err
	}
	session, ok, err := c.Uploads.GetByExternalTx(tx, uploadID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeUploadNotFound, "upload session not found")
	}
	if session.Status != types.UploadOpen {
		return vaulterr.New(vaulterr.CodeInvalidState, "upload session is not open")
	}
	if session.Initiator != caller {
		return vaulterr.New(vaulterr.CodeMemberGuardFailed, "caller did not initiate this upload session")
	}
	if index >= session.ChunkCount {
		return vaulterr.New(vaulterr.CodeChunkOutOfOrder, "chunk index exceeds session chunk count")
	}
	if len(data) > types.MaxChunkBytes {
		return vaulterr.New(vaulterr.CodeInvalidChunk, "chunk size out of bounds")
	}
	// Only the final chunk may be short, and only it may be empty: an
	// exact multiple of MaxChunkBytes legitimately ends on a zero-byte
	// chunk (spec.md §4.4 seed case).
	if index != session.ChunkCount-1 {
		if len(data) != types.MaxChunkBytes {
			return vaulterr.New(vaulterr.CodeInvalidChunk, "non-final chunk must be exactly the maximum chunk size")
		}
	} else if len(data) == 0 && session.ChunkCount == 1 {
		return vaulterr.New(vaulterr.CodeInvalidChunk, "chunk size out of bounds")
	}

	if err := c.Uploads.PutChunkTx(tx, &types.UploadChunk{
		InternalUploadID: session.InternalID,
		ChunkIndex:       index,
		Data:             data,
	}); err != nil {
		return err
	}

	if !session.ReceivedChunks[index] {
		session.ReceivedChunks[index] = true
		if err := c.Uploads.PutSessionTx(tx, session); err != nil {
			return err
		}
	}

	metrics.ChunksReceivedTotal.Inc()
	return nil
}

// FinishUploadTx requires every declared chunk to be present,
// concatenates them in index order, verifies the caller-declared SHA-256
// digest, assembles a ContentItem, appends it to the vault's content
// index, updates the vault's storage usage, and deletes the upload's
// working state (spec.md §4.4).
func (c *Coordinator) FinishUploadTx(tx *region.Tx, uploadID, caller principal.Principal, expectedSHA256 []byte, title string) (principal.Principal, error) {
	if err := c.checkWriteRate(caller, "finish_upload"); err != nil {
		return principal.Principal{}, err
	}
	session, ok, err := c.Uploads.GetByExternalTx(tx, uploadID)
	if err != nil {
		return principal.Principal{}, err
	}
	if !ok {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeUploadNotFound, "upload session not found")
	}
	if session.Status != types.UploadOpen {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeInvalidState, "upload session is not open")
	}
	if session.Initiator != caller {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeMemberGuardFailed, "caller did not initiate this upload session")
	}
	for i := uint32(0); i < session.ChunkCount; i++ {
		if !session.ReceivedChunks[i] {
			return principal.Principal{}, vaulterr.New(vaulterr.CodeInvalidState, "not all chunks have been received")
		}
	}

	session.Status = types.UploadFinalizing
	if err := c.Uploads.PutSessionTx(tx, session); err != nil {
		return principal.Principal{}, err
	}

	h := sha256.New()
	payload := make([]byte, 0, session.DeclaredSize)
	for i := uint32(0); i < session.ChunkCount; i++ {
		chunk, ok, err := c.Uploads.GetChunkTx(tx, session.InternalID, i)
		if err != nil {
			return principal.Principal{}, err
		}
		if !ok {
			return principal.Principal{}, vaulterr.New(vaulterr.CodeInvalidState, "chunk missing during assembly")
		}
		h.Write(chunk.Data)
		payload = append(payload, chunk.Data...)
	}
	digest := h.Sum(nil)
	if !equalDigest(digest, expectedSHA256) {
		session.Status = types.UploadOpen
		_ = c.Uploads.PutSessionTx(tx, session)
		return principal.Principal{}, vaulterr.New(vaulterr.CodeChecksumMismatch, "assembled content digest does not match declared digest")
	}

	v, ok, err := c.Vaults.GetTx(tx, session.VaultID)
	if err != nil {
		return principal.Principal{}, err
	}
	if !ok {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}

	internalID, external, err := c.Content.AllocateTx(tx)
	if err != nil {
		return principal.Principal{}, err
	}
	now := time.Now()
	item := &types.ContentItem{
		InternalID: internalID,
		ExternalID: external,
		VaultID:    session.VaultID,
		Kind:       session.Kind,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
		Payload:    payload,
	}
	if err := c.Content.PutTx(tx, item); err != nil {
		return principal.Principal{}, err
	}
	if err := c.Content.AppendToIndexTx(tx, session.VaultID, external); err != nil {
		return principal.Principal{}, err
	}

	v.BytesUsed += int64(len(payload))
	v.UpdatedAt = now
	if err := c.Vaults.PutTx(tx, v); err != nil {
		return principal.Principal{}, err
	}

	if err := c.Uploads.DeleteChunksTx(tx, session.InternalID); err != nil {
		return principal.Principal{}, err
	}
	session.Status = types.UploadCommitted
	if err := c.Uploads.DeleteSessionTx(tx, session); err != nil {
		return principal.Principal{}, err
	}

	metrics.UploadsFinalizedTotal.Inc()
	c.log.Info().Str("vault_id", session.VaultID.String()).Str("content_id", external.String()).Int("bytes", len(payload)).Msg("upload finalized")
	return external, nil
}

// AbortUploadTx is callable by the initiator at any point before
// finish_upload commits; it discards chunk data without touching
// content or vault storage usage (spec.md §4.4).
func (c *Coordinator) AbortUploadTx(tx *region.Tx, uploadID, caller principal.Principal) error {
	if err := c.checkWriteRate(caller, "abort_upload"); err != nil {
		return err
	}
	session, ok, err := c.Uploads.GetByExternalTx(tx, uploadID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeUploadNotFound, "upload session not found")
	}
	if session.Initiator != caller {
		return vaulterr.New(vaulterr.CodeMemberGuardFailed, "caller did not initiate this upload session")
	}
	if session.Status != types.UploadOpen {
		return vaulterr.New(vaulterr.CodeInvalidState, "upload session cannot be aborted from its current status")
	}
	if err := c.Uploads.DeleteChunksTx(tx, session.InternalID); err != nil {
		return err
	}
	if err := c.Uploads.DeleteSessionTx(tx, session); err != nil {
		return err
	}
	metrics.UploadsAbortedTotal.Inc()
	return nil
}

func equalDigest(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
