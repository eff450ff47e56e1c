// Package vault implements the Vault Lifecycle Coordinator (spec.md
// §4.1): the sole writer of VaultConfig.status, and the cross-collection
// operations that create, update, unlock, and delete a vault.
package vault

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
	"github.com/coldkeep/vaultengine/pkg/storage/approvals"
	"github.com/coldkeep/vaultengine/pkg/storage/audit"
	"github.com/coldkeep/vaultengine/pkg/storage/content"
	"github.com/coldkeep/vaultengine/pkg/storage/invites"
	"github.com/coldkeep/vaultengine/pkg/storage/members"
	"github.com/coldkeep/vaultengine/pkg/storage/sysconfig"
	"github.com/coldkeep/vaultengine/pkg/storage/uploads"
	"github.com/coldkeep/vaultengine/pkg/storage/vaults"
)

// PaymentInitiator is the narrow view of the Payment & Billing
// Coordinator that update_vault needs to open a PlanUpgrade session
// (spec.md §4.1's update_vault). Defined here rather than depending on
// package payment directly, since payment's verify_session dispatches
// back into this package (create_vault, finalize_plan_change) — a
// two-way call graph that an interface on each side breaks cleanly.
type PaymentInitiator interface {
	InitUpgradeSessionTx(tx *region.Tx, vaultID, payer principal.Principal, newPlan types.PlanTier, amount uint64) (sessionID principal.Principal, receiveAddr string, expiresAt time.Time, err error)
}

// Coordinator is the Vault Lifecycle Coordinator.
type Coordinator struct {
	Vaults    vaults.Store
	Members   members.Store
	Invites   invites.Store
	Content   content.Store
	Uploads   uploads.Store
	Audit     audit.Store
	Approvals approvals.Store
	Config    sysconfig.Store
	Payments  PaymentInitiator

	// WriteBuckets gates caller-facing write operations (spec.md §5). Nil
	// disables rate limiting, which tests rely on.
	WriteBuckets *ratelimit.Buckets

	log zerolog.Logger
}

// checkWriteRate consumes one token from caller's write bucket before any
// storage access, so an exhausted caller fails cheaply (spec.md §5).
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

// New constructs a Coordinator over the standard storage modules.
// Payments may be nil for tests that never exercise update_vault's
// upgrade path.
func New(payments PaymentInitiator) *Coordinator {
	return &Coordinator{
		Vaults:    vaults.New(),
		Members:   members.New(),
		Invites:   invites.New(),
		Content:   content.New(),
		Uploads:   uploads.New(),
		Audit:     audit.New(),
		Approvals: approvals.New(),
		Config:    sysconfig.New(),
		Payments:  payments,
		log:       log.WithComponent("vault"),
	}
}

// CreateVaultTx is invoked internally by the payment coordinator on
// confirmed InitialVaultCreation verification (spec.md §4.1). It
// generates vault_id, persists VaultConfig in DRAFT, immediately
// transitions to NEED_SETUP, initializes Approvals, and increments
// metrics. Callers supply the enclosing transaction so this participates
// in the payment coordinator's single post-suspension write phase
// (spec.md §5).
func (c *Coordinator) CreateVaultTx(tx *region.Tx, owner principal.Principal, plan types.PlanTier, heirThreshold, witnessThreshold uint32) (principal.Principal, error) {
	vaultID, err := principal.New(principal.TagVault)
	if err != nil {
		return principal.Principal{}, vaulterr.Wrap(vaulterr.CodeInternalError, "generate vault id", err)
	}

	now := time.Now()
	v := &types.VaultConfig{
		VaultID:           vaultID,
		Owner:             owner,
		Plan:              plan,
		Status:            types.StatusDraft,
		StorageQuotaBytes: PlanQuota(plan),
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(BillingPeriod),
		HeirThreshold:     heirThreshold,
		WitnessThreshold:  witnessThreshold,
	}
	if err := c.Vaults.PutTx(tx, v); err != nil {
		return principal.Principal{}, err
	}

	v.Status = types.StatusNeedSetup
	v.UpdatedAt = now
	if err := c.Vaults.PutTx(tx, v); err != nil {
		return principal.Principal{}, err
	}

	if err := c.Approvals.InitTx(tx, vaultID); err != nil {
		return principal.Principal{}, err
	}

	metrics.VaultsTotal.WithLabelValues(string(types.StatusNeedSetup)).Inc()
	c.log.Info().Str("vault_id", vaultID.String()).Msg("vault created")
	return vaultID, nil
}

// VaultPatch names the fields update_vault is allowed to change
// directly, without going through a payment session (spec.md §4.1).
type VaultPatch struct {
	UnlockAt         *time.Time
	InactivityDays   *uint32
	HeirThreshold    *uint32
	WitnessThreshold *uint32
	NewPlan          types.PlanTier // zero value means no plan change requested
}

// UpdateVaultTx authorizes caller as owner and applies allowed fields. If
// NewPlan names a higher tier, it computes the prorated upgrade cost and
// opens a PlanUpgrade PaymentSession rather than committing the plan
// change directly (spec.md §4.1). The prorate fraction is
// remaining-quota-period / full-period, rounded half-up to the nearest
// base unit (SPEC_FULL.md's resolution of the spec's open rounding
// question).
func (c *Coordinator) UpdateVaultTx(tx *region.Tx, vaultID, caller principal.Principal, patch VaultPatch) (sessionID principal.Principal, receiveAddr string, err error) {
	if err := c.checkWriteRate(caller, "update_vault"); err != nil {
		return principal.Principal{}, "", err
	}
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return principal.Principal{}, "", err
	}
	if !ok {
		return principal.Principal{}, "", vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := ownerGuard(v, caller); err != nil {
		return principal.Principal{}, "", err
	}

	if patch.UnlockAt != nil {
		v.UnlockAt = *patch.UnlockAt
	}
	if patch.InactivityDays != nil {
		v.InactivityDays = *patch.InactivityDays
	}
	if patch.HeirThreshold != nil {
		v.HeirThreshold = *patch.HeirThreshold
	}
	if patch.WitnessThreshold != nil {
		v.WitnessThreshold = *patch.WitnessThreshold
	}
	v.UpdatedAt = time.Now()

	var openedSession principal.Principal
	var addr string
	if patch.NewPlan != "" && patch.NewPlan != v.Plan {
		oldPrice := PlanPrice(v.Plan)
		newPrice := PlanPrice(patch.NewPlan)
		if newPrice <= oldPrice {
			return principal.Principal{}, "", vaulterr.New(vaulterr.CodeInvalidInput, "new plan is not a higher tier")
		}
		if c.Payments == nil {
			return principal.Principal{}, "", vaulterr.New(vaulterr.CodeInternalError, "no payment coordinator wired")
		}
		amount := prorateUpgrade(oldPrice, newPrice, v.CreatedAt, v.ExpiresAt, time.Now())
		openedSession, addr, _, err = c.Payments.InitUpgradeSessionTx(tx, vaultID, caller, patch.NewPlan, amount)
		if err != nil {
			return principal.Principal{}, "", err
		}
	}

	if err := c.Vaults.PutTx(tx, v); err != nil {
		return principal.Principal{}, "", err
	}
	return openedSession, addr, nil
}

// prorateUpgrade computes (newPrice - oldPrice) * t, where t is the
// fraction of the vault's billing period remaining at `now`, rounded
// half-up to the nearest base unit. If expiresAt is zero (no fixed
// period configured), the full delta is charged.
func prorateUpgrade(oldPrice, newPrice uint64, createdAt, expiresAt, now time.Time) uint64 {
	delta := newPrice - oldPrice
	if expiresAt.IsZero() || !now.Before(expiresAt) || !createdAt.Before(expiresAt) {
		return delta
	}
	total := expiresAt.Sub(createdAt).Seconds()
	remaining := expiresAt.Sub(now).Seconds()
	if total <= 0 {
		return delta
	}
	fraction := remaining / total
	scaled := float64(delta)*fraction + 0.5 // round half-up
	return uint64(scaled)
}

// FinalizePlanChangeTx writes the new plan and recomputes storage quota.
// Idempotent by (vaultID, newPlan): re-invoking with the plan already
// applied is a no-op success (spec.md §4.1, §8 property 6).
func (c *Coordinator) FinalizePlanChangeTx(tx *region.Tx, vaultID principal.Principal, newPlan types.PlanTier) error {
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if v.Plan == newPlan {
		return nil
	}
	v.Plan = newPlan
	v.StorageQuotaBytes = PlanQuota(newPlan)
	v.UpdatedAt = time.Now()
	v.ExpiresAt = v.UpdatedAt.Add(BillingPeriod)
	return c.Vaults.PutTx(tx, v)
}

// SetVaultStatusTx validates target against the permitted-edges table
// and updates UpdatedAt (spec.md §4.1). This coordinator is the only
// writer of VaultConfig.Status.
func (c *Coordinator) SetVaultStatusTx(tx *region.Tx, vaultID principal.Principal, target types.VaultStatus) error {
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if !canTransition(v.Status, target) {
		return vaulterr.New(vaulterr.CodeInvalidStateTransition, "no permitted edge from "+string(v.Status)+" to "+string(target))
	}
	from := v.Status
	v.Status = target
	v.UpdatedAt = time.Now()
	switch target {
	case types.StatusGraceMaster:
		v.GraceMasterEnteredAt = v.UpdatedAt
	case types.StatusGraceHeir:
		v.GraceHeirEnteredAt = v.UpdatedAt
	case types.StatusUnlockable:
		v.UnlockedAt = v.UpdatedAt
	}
	if err := c.Vaults.PutTx(tx, v); err != nil {
		return err
	}
	metrics.VaultsTotal.WithLabelValues(string(from)).Dec()
	metrics.VaultsTotal.WithLabelValues(string(target)).Inc()
	c.log.Info().Str("vault_id", vaultID.String()).Str("from", string(from)).Str("to", string(target)).Msg("vault status transition")
	return nil
}

// RecordApprovalTx increments a vault's heir or witness approval
// counter after verifying caller is a Verified member of that role
// (spec.md §4.8).
func (c *Coordinator) RecordApprovalTx(tx *region.Tx, vaultID, caller principal.Principal, role types.Role) error {
	if err := c.checkWriteRate(caller, "record_approval"); err != nil {
		return err
	}
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := roleGuard(tx, c.Members, v, caller, role); err != nil {
		return err
	}
	return c.Approvals.RecordTx(tx, vaultID, role)
}

// VerifyMemberTx transitions the caller's own Active membership to
// Verified, confirming they have received and secured their Shamir share
// (spec.md §3.2's member status, the precondition record_approval's
// roleGuard checks at §4.8). Only the member themselves may verify their
// own membership; it is idempotent from Verified and rejected from any
// other status.
func (c *Coordinator) VerifyMemberTx(tx *region.Tx, vaultID, caller principal.Principal) (*types.VaultMember, error) {
	if err := c.checkWriteRate(caller, "verify_member"); err != nil {
		return nil, err
	}
	if _, ok, err := c.Vaults.GetTx(tx, vaultID); err != nil {
		return nil, err
	} else if !ok {
		return nil, vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	m, ok, err := c.Members.GetTx(tx, vaultID, caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeMemberGuardFailed, "caller is not a member of this vault")
	}
	if m.Status == types.MemberVerified {
		return m, nil
	}
	if m.Status != types.MemberActive {
		return nil, vaulterr.New(vaulterr.CodeInvalidState, "member is not in a verifiable status")
	}
	m.Status = types.MemberVerified
	if err := c.Members.PutTx(tx, m); err != nil {
		return nil, err
	}
	c.log.Info().Str("vault_id", vaultID.String()).Str("role", string(m.Role)).Msg("member verified")
	return m, nil
}

// CheckUnlockTx evaluates spec.md §4.1's check_unlock predicate: (time
// reached OR inactivity exceeded) AND approvals meet the configured
// thresholds.
func (c *Coordinator) CheckUnlockTx(tx *region.Tx, vaultID principal.Principal) (bool, error) {
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}

	timeReached := !v.UnlockAt.IsZero() && !time.Now().Before(v.UnlockAt)
	inactive := v.InactivityDays > 0 && !v.LastAccessedByOwner.IsZero() &&
		time.Since(v.LastAccessedByOwner) >= time.Duration(v.InactivityDays)*24*time.Hour
	if !timeReached && !inactive {
		return false, nil
	}

	a, ok, err := c.Approvals.GetTx(tx, vaultID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return a.Heirs >= v.HeirThreshold && a.Witnesses >= v.WitnessThreshold, nil
}

// TriggerUnlockTx implements the host-facing trigger_unlock operation
// (spec.md §6.1): ACTIVE->UNLOCKABLE on a manual trigger with valid
// quorum.
func (c *Coordinator) TriggerUnlockTx(tx *region.Tx, vaultID, caller principal.Principal) error {
	if err := c.checkWriteRate(caller, "trigger_unlock"); err != nil {
		return err
	}
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := ownerOrHeirGuard(tx, c.Members, v, caller); err != nil {
		return err
	}
	ok, err = c.CheckUnlockTx(tx, vaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeApprovalQuorumNotMet, "approval quorum not met")
	}
	return c.SetVaultStatusTx(tx, vaultID, types.StatusUnlockable)
}

// DeleteVaultTx is owner-only, only from a terminal state, and cascades
// deletion to members, invites, content, upload sessions, chunks,
// content index, audit log, and approvals (spec.md §4.1).
func (c *Coordinator) DeleteVaultTx(tx *region.Tx, vaultID, caller principal.Principal) error {
	if err := c.checkWriteRate(caller, "delete_vault"); err != nil {
		return err
	}
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if err := ownerGuard(v, caller); err != nil {
		return err
	}
	if v.Status != types.StatusExpired && v.Status != types.StatusDeleted {
		return vaulterr.New(vaulterr.CodeInvalidState, "vault is not in a terminal state")
	}

	if err := c.Members.RemoveAllByVaultTx(tx, vaultID); err != nil {
		return err
	}
	if err := c.Invites.RemoveAllByVaultTx(tx, vaultID); err != nil {
		return err
	}

	var contentIDs []principal.Principal
	ci, err := c.Content.GetIndexTx(tx, vaultID)
	if err != nil {
		return err
	}
	contentIDs = append(contentIDs, ci.Order...)
	for _, external := range contentIDs {
		item, ok, err := c.Content.GetByExternalTx(tx, external)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := c.Content.DeleteTx(tx, item); err != nil {
			return err
		}
	}
	if err := c.Content.DeleteIndexTx(tx, vaultID); err != nil {
		return err
	}

	var staleUploads []*types.UploadSession
	if err := c.Uploads.ForEachSessionTx(tx, func(u *types.UploadSession) error {
		if u.VaultID == vaultID {
			cp := *u
			staleUploads = append(staleUploads, &cp)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, u := range staleUploads {
		if err := c.Uploads.DeleteChunksTx(tx, u.InternalID); err != nil {
			return err
		}
		if err := c.Uploads.DeleteSessionTx(tx, u); err != nil {
			return err
		}
	}

	if err := c.Audit.DeleteTx(tx, vaultID); err != nil {
		return err
	}
	if err := c.Approvals.DeleteTx(tx, vaultID); err != nil {
		return err
	}
	if err := c.Vaults.DeleteTx(tx, vaultID); err != nil {
		return err
	}

	metrics.VaultsTotal.WithLabelValues(string(v.Status)).Dec()
	c.log.Info().Str("vault_id", vaultID.String()).Msg("vault deleted with cascade")
	return nil
}
