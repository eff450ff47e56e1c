// Package maintenance implements the Maintenance Engine (spec.md §4.7):
// a scheduler-triggered, strictly-ordered five-step sweep executed to
// completion, one step at a time, at least once daily.
package maintenance

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
	"github.com/coldkeep/vaultengine/pkg/storage/audit"
	"github.com/coldkeep/vaultengine/pkg/storage/invites"
	"github.com/coldkeep/vaultengine/pkg/storage/metricscell"
	"github.com/coldkeep/vaultengine/pkg/storage/sysconfig"
	"github.com/coldkeep/vaultengine/pkg/storage/uploads"
	"github.com/coldkeep/vaultengine/pkg/storage/vaults"
	"github.com/coldkeep/vaultengine/pkg/upload"
	"github.com/coldkeep/vaultengine/pkg/vault"
)

// DefaultAuditCap is the entry count above which a vault's audit vector
// becomes eligible for compaction in step 4 (spec.md §4.7), used when
// the host process config leaves Audit.CapEntries unset.
const DefaultAuditCap = 500

// DefaultAuditKeepLastN is the tail length compaction preserves by
// default.
const DefaultAuditKeepLastN = 200

// graceHeirTimeout is how long GRACE_HEIR may run without quorum before
// the vault is force-deleted (spec.md §4.7).
const graceHeirTimeout = 14 * 24 * time.Hour

// graceMasterTimeout is how long GRACE_MASTER persists before handing
// over to GRACE_HEIR.
const graceMasterTimeout = 14 * 24 * time.Hour

// unlockableTimeout is how long UNLOCKABLE persists before expiring.
const unlockableTimeout = 365 * 24 * time.Hour

// expiredTimeout is how long EXPIRED persists before final deletion.
const expiredTimeout = 30 * 24 * time.Hour

// Engine is the Maintenance Engine.
type Engine struct {
	Vaults  vaults.Store
	Invites invites.Store
	Uploads uploads.Store
	Audit   audit.Store
	Metrics metricscell.Store
	Config  sysconfig.Store
	Vault   *vault.Coordinator

	DownloadBuckets *ratelimit.Buckets
	WriteBuckets    *ratelimit.Buckets

	auditCap       int
	auditKeepLastN int

	log zerolog.Logger
}

func New(vc *vault.Coordinator) *Engine {
	return &Engine{
		Vaults:         vaults.New(),
		Invites:        invites.New(),
		Uploads:        uploads.New(),
		Audit:          audit.New(),
		Metrics:        metricscell.New(),
		Config:         sysconfig.New(),
		Vault:          vc,
		auditCap:       DefaultAuditCap,
		auditKeepLastN: DefaultAuditKeepLastN,
		log:            log.WithComponent("maintenance"),
	}
}

// SetAuditConfig overrides the default audit compaction cap and tail
// length, normally sourced from the host process's config.File.Audit.
func (e *Engine) SetAuditConfig(capEntries, keepLastN int) {
	if capEntries > 0 {
		e.auditCap = capEntries
	}
	if keepLastN > 0 {
		e.auditKeepLastN = keepLastN
	}
}

// RunTx executes the daily_maintenance operation (spec.md §6.1):
// scheduler-only, and the five steps run to completion in order within
// one transaction.
func (e *Engine) RunTx(tx *region.Tx, caller principal.Principal) error {
	cfg, ok, err := e.Config.GetTx(tx)
	if err != nil {
		return err
	}
	if !ok || cfg.Scheduler != caller {
		return vaulterr.New(vaulterr.CodeSchedulerGuardFailed, "caller is not the scheduler principal")
	}

	timer := metrics.NewTimer()
	now := time.Now()
	if err := e.expireInvites(tx, now); err != nil {
		return err
	}
	if err := e.gcStaleUploads(tx, now); err != nil {
		return err
	}
	if err := e.advanceLifecycle(tx, now); err != nil {
		return err
	}
	if err := e.compactAuditLogs(tx); err != nil {
		return err
	}
	if err := e.recomputeMetrics(tx, now); err != nil {
		return err
	}
	e.evictIdleBuckets(now)
	timer.ObserveDuration(metrics.MaintenanceSweepDuration)

	e.log.Info().Time("run_at", now).Msg("maintenance sweep completed")
	return nil
}

// evictIdleBuckets drops token buckets for callers that have gone quiet,
// so the rate limiters' caller maps don't grow unbounded (spec.md §5).
func (e *Engine) evictIdleBuckets(now time.Time) {
	if e.WriteBuckets != nil {
		e.WriteBuckets.Evict(now)
	}
	if e.DownloadBuckets != nil {
		e.DownloadBuckets.Evict(now)
	}
}

// expireInvites is step 1: a streaming scan, no list materialization.
func (e *Engine) expireInvites(tx *region.Tx, now time.Time) error {
	var toExpire []*types.InviteToken
	if err := e.Invites.ForEachTx(tx, func(t *types.InviteToken) error {
		if t.Status == types.InvitePending && now.After(t.ExpiresAt) {
			cp := *t
			toExpire = append(toExpire, &cp)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, t := range toExpire {
		t.Status = types.InviteExpired
		if err := e.Invites.PutTx(tx, t); err != nil {
			return err
		}
		metrics.InvitesExpiredTotal.Inc()
	}
	return nil
}

// gcStaleUploads is step 2: sessions older than upload.StaleAfter are
// dropped along with their chunks.
func (e *Engine) gcStaleUploads(tx *region.Tx, now time.Time) error {
	var stale []*types.UploadSession
	if err := e.Uploads.ForEachSessionTx(tx, func(u *types.UploadSession) error {
		if u.Status == types.UploadOpen && now.Sub(u.CreatedAt) > upload.StaleAfter {
			cp := *u
			stale = append(stale, &cp)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, u := range stale {
		if err := e.Uploads.DeleteChunksTx(tx, u.InternalID); err != nil {
			return err
		}
		if err := e.Uploads.DeleteSessionTx(tx, u); err != nil {
			return err
		}
		metrics.UploadsAbortedTotal.Inc()
	}
	return nil
}

// advanceLifecycle is step 3: fires the purely time-based status edges
// (spec.md §4.7).
func (e *Engine) advanceLifecycle(tx *region.Tx, now time.Time) error {
	var targets []struct {
		id principal.Principal
		to types.VaultStatus
	}
	if err := e.Vaults.ForEachTx(tx, func(v *types.VaultConfig) error {
		switch v.Status {
		case types.StatusActive:
			if !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt) {
				targets = append(targets, struct {
					id principal.Principal
					to types.VaultStatus
				}{v.VaultID, types.StatusGraceMaster})
			}
		case types.StatusGraceMaster:
			if now.Sub(v.GraceMasterEnteredAt) > graceMasterTimeout {
				targets = append(targets, struct {
					id principal.Principal
					to types.VaultStatus
				}{v.VaultID, types.StatusGraceHeir})
			}
		case types.StatusGraceHeir:
			if now.Sub(v.GraceHeirEnteredAt) > graceHeirTimeout {
				targets = append(targets, struct {
					id principal.Principal
					to types.VaultStatus
				}{v.VaultID, types.StatusDeleted})
			}
		case types.StatusUnlockable:
			if now.Sub(v.UnlockedAt) > unlockableTimeout {
				targets = append(targets, struct {
					id principal.Principal
					to types.VaultStatus
				}{v.VaultID, types.StatusExpired})
			}
		case types.StatusExpired:
			if now.Sub(v.UpdatedAt) > expiredTimeout {
				targets = append(targets, struct {
					id principal.Principal
					to types.VaultStatus
				}{v.VaultID, types.StatusDeleted})
			}
		}
		return nil
	}); err != nil {
		return err
	}
	for _, t := range targets {
		if err := e.Vault.SetVaultStatusTx(tx, t.id, t.to); err != nil {
			return err
		}
	}
	return nil
}

// compactAuditLogs is step 4: any vault's vector longer than auditCap is
// truncated to its last auditKeepLastN entries.
func (e *Engine) compactAuditLogs(tx *region.Tx) error {
	var overCap []principal.Principal
	if err := e.Audit.ForEachTx(tx, func(vaultID principal.Principal, v *types.AuditVector) error {
		if len(v.Entries) > e.auditCap {
			overCap = append(overCap, vaultID)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, vaultID := range overCap {
		if err := e.Audit.CompactTx(tx, vaultID, e.auditKeepLastN); err != nil {
			return err
		}
	}
	return nil
}

// recomputeMetrics is step 5: recounts vault statuses and aggregate
// storage bytes into the metrics cell.
func (e *Engine) recomputeMetrics(tx *region.Tx, now time.Time) error {
	var total, active, unlocked, needSetup, expired uint64
	var storageBytes uint64
	if err := e.Vaults.ForEachTx(tx, func(v *types.VaultConfig) error {
		total++
		storageBytes += uint64(v.BytesUsed)
		switch v.Status {
		case types.StatusActive:
			active++
		case types.StatusUnlockable:
			unlocked++
		case types.StatusNeedSetup:
			needSetup++
		case types.StatusExpired:
			expired++
		}
		return nil
	}); err != nil {
		return err
	}

	return e.Metrics.UpdateTx(tx, func(m *types.Metrics) {
		m.TotalVaults = total
		m.ActiveVaults = active
		m.UnlockedVaults = unlocked
		m.NeedSetupVaults = needSetup
		m.ExpiredVaults = expired
		m.StorageUsedBytes = storageBytes
		m.SchedulerLastRun = now
		metrics.MaintenanceSweepsTotal.Inc()
	})
}
