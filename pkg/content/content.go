// Package content implements the Content Store coordinator (spec.md
// §4.5): reading a vault's content listing and deleting an item, which
// returns its bytes to the vault's quota.
package content

import (
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
	"github.com/coldkeep/vaultengine/pkg/storage/vaults"
)

// DownloadDescriptor is the response to request_download (spec.md
// §6.1): enough to let the host stream the ciphertext blob back to the
// caller without re-touching the region store.
type DownloadDescriptor struct {
	ContentID principal.Principal
	VaultID   principal.Principal
	Kind      types.ContentKind
	Title     string
	SizeBytes int
	Payload   []byte
}

// Coordinator is the Content Store coordinator.
type Coordinator struct {
	Vaults  vaults.Store
	Members members.Store
	Content content.Store

	// WriteBuckets gates update_content/delete_content, one token
	// bucket per caller (spec.md §5). request_download uses the
	// separate DownloadBuckets passed into RequestDownloadTx.
	WriteBuckets *ratelimit.Buckets

	log zerolog.Logger
}

func New() *Coordinator {
	return &Coordinator{
		Vaults:  vaults.New(),
		Members: members.New(),
		Content: content.New(),
		log:     log.WithComponent("content"),
	}
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

// GetContentTx returns one content item, gated by ownership or
// membership in its vault.
func (c *Coordinator) GetContentTx(tx *region.Tx, external, caller principal.Principal) (*types.ContentItem, error) {
	item, ok, err := c.Content.GetByExternalTx(tx, external)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeContentNotFound, "content not found")
	}
	v, ok, err := c.Vaults.GetTx(tx, item.VaultID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := c.authorize(tx, v, caller); err != nil {
		return nil, err
	}
	return item, nil
}

// ListByVaultTx returns every content item in a vault, in index order.
func (c *Coordinator) ListByVaultTx(tx *region.Tx, vaultID, caller principal.Principal) ([]*types.ContentItem, error) {
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := c.authorize(tx, v, caller); err != nil {
		return nil, err
	}
	var items []*types.ContentItem
	err = c.Content.ListByVaultTx(tx, vaultID, func(item *types.ContentItem) error {
		items = append(items, item)
		return nil
	})
	return items, err
}

// UpdateContentTx replaces a content item's title and payload in place,
// preserving CreatedAt and stamping UpdatedAt (spec.md §4.5). Changing
// the payload size adjusts the vault's bytes_used by the delta.
func (c *Coordinator) UpdateContentTx(tx *region.Tx, external, caller principal.Principal, title string, payload []byte) error {
	if err := c.checkWriteRate(caller, "update_content"); err != nil {
		return err
	}
	item, ok, err := c.Content.GetByExternalTx(tx, external)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeContentNotFound, "content not found")
	}
	v, ok, err := c.Vaults.GetTx(tx, item.VaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := c.authorize(tx, v, caller); err != nil {
		return err
	}

	delta := int64(len(payload)) - int64(len(item.Payload))
	if delta > 0 && delta > v.StorageQuotaBytes-v.BytesUsed {
		return vaulterr.New(vaulterr.CodeStorageLimitExceeded, "updated content exceeds remaining storage quota")
	}

	item.Title = title
	item.Payload = payload
	item.UpdatedAt = time.Now()
	if err := c.Content.PutTx(tx, item); err != nil {
		return err
	}

	v.BytesUsed += delta
	if v.BytesUsed < 0 {
		v.BytesUsed = 0
	}
	v.UpdatedAt = time.Now()
	return c.Vaults.PutTx(tx, v)
}

// RequestDownloadTx is a query (no mutation) gated by a separate
// download-specific rate limiter from the write-operation bucket
// (spec.md §6.1's RateLimitDownload).
func (c *Coordinator) RequestDownloadTx(tx *region.Tx, downloadBuckets *ratelimit.Buckets, external, caller principal.Principal) (*DownloadDescriptor, error) {
	if downloadBuckets != nil && !downloadBuckets.Allow(caller) {
		return nil, vaulterr.New(vaulterr.CodeRateLimitDownload, "download rate limit exceeded")
	}
	item, err := c.GetContentTx(tx, external, caller)
	if err != nil {
		return nil, err
	}
	return &DownloadDescriptor{
		ContentID: item.ExternalID,
		VaultID:   item.VaultID,
		Kind:      item.Kind,
		Title:     item.Title,
		SizeBytes: len(item.Payload),
		Payload:   item.Payload,
	}, nil
}

// DeleteContentTx removes a content item, returns its bytes to the
// vault's quota, and removes it from the content index (spec.md §4.5).
func (c *Coordinator) DeleteContentTx(tx *region.Tx, external, caller principal.Principal) error {
	if err := c.checkWriteRate(caller, "delete_content"); err != nil {
		return err
	}
	item, ok, err := c.Content.GetByExternalTx(tx, external)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeContentNotFound, "content not found")
	}
	v, ok, err := c.Vaults.GetTx(tx, item.VaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := c.authorize(tx, v, caller); err != nil {
		return err
	}

	if err := c.Content.RemoveFromIndexTx(tx, item.VaultID, external); err != nil {
		return err
	}
	if err := c.Content.DeleteTx(tx, item); err != nil {
		return err
	}

	v.BytesUsed -= int64(len(item.Payload))
	if v.BytesUsed < 0 {
		v.BytesUsed = 0
	}
	v.UpdatedAt = time.Now()
	if err := c.Vaults.PutTx(tx, v); err != nil {
		return err
	}

	c.log.Info().Str("vault_id", item.VaultID.String()).Str("content_id", external.String()).Msg("content deleted")
	return nil
}
