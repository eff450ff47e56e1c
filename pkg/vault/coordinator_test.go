package vault

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/ratelimit"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

func openTestStore(t *testing.T) *region.Store {
	t.Helper()
	store, err := region.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("region.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestProrateUpgradeNoPeriodChargesFullDelta(t *testing.T) {
	got := prorateUpgrade(1000, 2500, time.Time{}, time.Time{}, time.Now())
	if got != 1500 {
		t.Fatalf("got %d, want 1500", got)
	}
}

func TestProrateUpgradeHalfwayThroughPeriod(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC) // 10 day period
	now := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)      // 5 days remaining
	got := prorateUpgrade(1000, 2000, created, expires, now)
	if got != 500 {
		t.Fatalf("got %d, want 500 (half the 1000 delta)", got)
	}
}

func TestProrateUpgradePastExpiryChargesFullDelta(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) // after expiry
	got := prorateUpgrade(1000, 2000, created, expires, now)
	if got != 1000 {
		t.Fatalf("got %d, want 1000 (full delta once expired)", got)
	}
}

func TestProrateUpgradeRoundsHalfUp(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC) // 3 second period
	now := time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC)     // 1 second remaining, fraction = 1/3
	got := prorateUpgrade(0, 10, created, expires, now)
	// fraction = 0.333..., delta*fraction = 3.33, +0.5 = 3.83 -> truncates to 3
	if got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestCreateVaultTxTransitionsToNeedSetup(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		v, ok, err := c.Vaults.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("expected vault to exist")
		}
		if v.Status != types.StatusNeedSetup {
			t.Fatalf("status = %s, want NEED_SETUP", v.Status)
		}
		if v.StorageQuotaBytes != PlanQuota(types.PlanStarter) {
			t.Fatalf("quota not set from plan")
		}
		_, ok, err = c.Approvals.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("expected approvals to be initialized")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestSetVaultStatusTxRejectsInvalidTransition(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.SetVaultStatusTx(tx, vaultID, types.StatusActive)
	})
	if !vaulterr.Is(err, vaulterr.CodeInvalidStateTransition) {
		t.Fatalf("expected CodeInvalidStateTransition, got %v", err)
	}
}

func TestSetVaultStatusTxAllowsPermittedEdge(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.SetVaultStatusTx(tx, vaultID, types.StatusSetupComplete)
	})
	if err != nil {
		t.Fatalf("SetVaultStatusTx to SETUP_COMPLETE: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		v, _, err := c.Vaults.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if v.Status != types.StatusSetupComplete {
			t.Fatalf("status = %s, want SETUP_COMPLETE", v.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestRecordApprovalTxRequiresVerifiedRole(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)
	heir, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.RecordApprovalTx(tx, vaultID, heir, types.RoleHeir)
	})
	if !vaulterr.Is(err, vaulterr.CodeMemberGuardFailed) {
		t.Fatalf("expected CodeMemberGuardFailed for non-member, got %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.Members.PutTx(tx, &types.VaultMember{
			VaultID: vaultID,
			Member:  heir,
			Role:    types.RoleHeir,
			Status:  types.MemberActive,
		})
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.RecordApprovalTx(tx, vaultID, heir, types.RoleHeir)
	})
	if !vaulterr.Is(err, vaulterr.CodeMemberGuardFailed) {
		t.Fatalf("expected CodeMemberGuardFailed for an Active (not yet Verified) member, got %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		_, err := c.VerifyMemberTx(tx, vaultID, heir)
		return err
	})
	if err != nil {
		t.Fatalf("VerifyMemberTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.RecordApprovalTx(tx, vaultID, heir, types.RoleHeir)
	})
	if err != nil {
		t.Fatalf("RecordApprovalTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		a, ok, err := c.Approvals.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if !ok || a.Heirs != 1 {
			t.Fatalf("expected 1 heir approval, got %+v ok=%v", a, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestVerifyMemberTxTransitionsActiveToVerified(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)
	heir, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.Members.PutTx(tx, &types.VaultMember{
			VaultID: vaultID,
			Member:  heir,
			Role:    types.RoleHeir,
			Status:  types.MemberActive,
		})
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		m, err := c.VerifyMemberTx(tx, vaultID, heir)
		if err != nil {
			return err
		}
		if m.Status != types.MemberVerified {
			t.Fatalf("status = %s, want Verified", m.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("VerifyMemberTx: %v", err)
	}

	// Idempotent re-verification.
	err = store.Update(func(tx *region.Tx) error {
		m, err := c.VerifyMemberTx(tx, vaultID, heir)
		if err != nil {
			return err
		}
		if m.Status != types.MemberVerified {
			t.Fatalf("status = %s, want Verified", m.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("VerifyMemberTx (repeat): %v", err)
	}
}

func TestVerifyMemberTxRejectsNonMemberAndRevoked(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)
	stranger, _ := principal.New(principal.TagMember)
	revoked, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		_, err := c.VerifyMemberTx(tx, vaultID, stranger)
		return err
	})
	if !vaulterr.Is(err, vaulterr.CodeMemberGuardFailed) {
		t.Fatalf("expected CodeMemberGuardFailed for non-member, got %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.Members.PutTx(tx, &types.VaultMember{
			VaultID: vaultID,
			Member:  revoked,
			Role:    types.RoleWitness,
			Status:  types.MemberRevoked,
		})
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		_, err := c.VerifyMemberTx(tx, vaultID, revoked)
		return err
	})
	if !vaulterr.Is(err, vaulterr.CodeInvalidState) {
		t.Fatalf("expected CodeInvalidState for a revoked member, got %v", err)
	}
}

func TestUpdateVaultTxRejectsCallerOverWriteRateLimit(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	c.WriteBuckets = ratelimit.New(ratelimit.Config{Burst: 1, RefillPerSecond: 0, IdleEvictAfter: time.Hour})
	owner, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	days := uint32(5)
	err = store.Update(func(tx *region.Tx) error {
		_, _, err := c.UpdateVaultTx(tx, vaultID, owner, VaultPatch{InactivityDays: &days})
		return err
	})
	if err != nil {
		t.Fatalf("first UpdateVaultTx (within burst): %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		_, _, err := c.UpdateVaultTx(tx, vaultID, owner, VaultPatch{InactivityDays: &days})
		return err
	})
	if !vaulterr.Is(err, vaulterr.CodeRateLimitExceeded) {
		t.Fatalf("expected CodeRateLimitExceeded once the burst is exhausted, got %v", err)
	}
}

func TestCheckUnlockTxRequiresTimeOrInactivityAndQuorum(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 0)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		ok, err := c.CheckUnlockTx(tx, vaultID)
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("expected unlock to be false before any trigger condition")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		v, _, err := c.Vaults.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		v.UnlockAt = time.Now().Add(-time.Hour)
		return c.Vaults.PutTx(tx, v)
	})
	if err != nil {
		t.Fatalf("seed UnlockAt: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		ok, err := c.CheckUnlockTx(tx, vaultID)
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("expected unlock to still be false, quorum not met")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	heir, _ := principal.New(principal.TagMember)
	err = store.Update(func(tx *region.Tx) error {
		if err := c.Members.PutTx(tx, &types.VaultMember{
			VaultID: vaultID,
			Member:  heir,
			Role:    types.RoleHeir,
			Status:  types.MemberVerified,
		}); err != nil {
			return err
		}
		return c.RecordApprovalTx(tx, vaultID, heir, types.RoleHeir)
	})
	if err != nil {
		t.Fatalf("seed approval: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		ok, err := c.CheckUnlockTx(tx, vaultID)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("expected unlock to be true once quorum met")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestDeleteVaultTxRequiresTerminalState(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("CreateVaultTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.DeleteVaultTx(tx, vaultID, owner)
	})
	if !vaulterr.Is(err, vaulterr.CodeInvalidState) {
		t.Fatalf("expected CodeInvalidState, got %v", err)
	}
}

func TestDeleteVaultTxCascadesFromTerminalState(t *testing.T) {
	store := openTestStore(t)
	c := New(nil)
	owner, _ := principal.New(principal.TagMember)
	heir, _ := principal.New(principal.TagMember)

	var vaultID principal.Principal
	err := store.Update(func(tx *region.Tx) error {
		var err error
		vaultID, err = c.CreateVaultTx(tx, owner, types.PlanStarter, 1, 1)
		if err != nil {
			return err
		}
		if err := c.Members.PutTx(tx, &types.VaultMember{
			VaultID: vaultID,
			Member:  heir,
			Role:    types.RoleHeir,
			Status:  types.MemberVerified,
		}); err != nil {
			return err
		}
		v, _, err := c.Vaults.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		v.Status = types.StatusExpired
		return c.Vaults.PutTx(tx, v)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return c.DeleteVaultTx(tx, vaultID, owner)
	})
	if err != nil {
		t.Fatalf("DeleteVaultTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		if _, ok, err := c.Vaults.GetTx(tx, vaultID); err != nil {
			return err
		} else if ok {
			t.Fatalf("expected vault to be gone")
		}
		if _, ok, err := c.Members.GetTx(tx, vaultID, heir); err != nil {
			return err
		} else if ok {
			t.Fatalf("expected member to be cascaded away")
		}
		if _, ok, err := c.Approvals.GetTx(tx, vaultID); err != nil {
			return err
		} else if ok {
			t.Fatalf("expected approvals to be cascaded away")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
