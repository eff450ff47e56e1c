package invite

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

func TestNextShamirIndexFirstFreeSlot(t *testing.T) {
	got, err := nextShamirIndex(map[uint8]bool{})
	if err != nil {
		t.Fatalf("nextShamirIndex: %v", err)
	}
	if got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestNextShamirIndexSkipsUsed(t *testing.T) {
	used := map[uint8]bool{1: true, 2: true, 4: true}
	got, err := nextShamirIndex(used)
	if err != nil {
		t.Fatalf("nextShamirIndex: %v", err)
	}
	if got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestNextShamirIndexExhausted(t *testing.T) {
	used := make(map[uint8]bool, maxShamirIndex)
	for i := 1; i <= maxShamirIndex; i++ {
		used[uint8(i)] = true
	}
	_, err := nextShamirIndex(used)
	if !vaulterr.Is(err, vaulterr.CodeShareIndexExhausted) {
		t.Fatalf("expected CodeShareIndexExhausted, got %v", err)
	}
}

func TestGenerateInviteTxRejectsCallerOverWriteRateLimit(t *testing.T) {
	store := openTestStore(t)
	c := New()
	c.WriteBuckets = ratelimit.New(ratelimit.Config{Burst: 1, RefillPerSecond: 0, IdleEvictAfter: time.Hour})
	owner, _ := principal.New(principal.TagMember)

	vaultID, _ := principal.New(principal.TagVault)
	err := store.Update(func(tx *region.Tx) error {
		return c.Vaults.PutTx(tx, &types.VaultConfig{
			VaultID:   vaultID,
			Owner:     owner,
			Status:    types.StatusActive,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		})
	})
	if err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		_, err := c.GenerateInviteTx(tx, vaultID, owner, types.RoleHeir)
		return err
	})
	if err != nil {
		t.Fatalf("first GenerateInviteTx (within burst): %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		_, err := c.GenerateInviteTx(tx, vaultID, owner, types.RoleHeir)
		return err
	})
	if !vaulterr.Is(err, vaulterr.CodeRateLimitExceeded) {
		t.Fatalf("expected CodeRateLimitExceeded once the burst is exhausted, got %v", err)
	}
}

func TestClaimInviteTxCreatesActiveMemberAndAdvancesSetup(t *testing.T) {
	store := openTestStore(t)
	c := New()
	owner, _ := principal.New(principal.TagMember)
	heir, _ := principal.New(principal.TagMember)

	vaultID, _ := principal.New(principal.TagVault)
	err := store.Update(func(tx *region.Tx) error {
		return c.Vaults.PutTx(tx, &types.VaultConfig{
			VaultID:   vaultID,
			Owner:     owner,
			Status:    types.StatusNeedSetup,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		})
	})
	if err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	var external principal.Principal
	err = store.Update(func(tx *region.Tx) error {
		var err error
		external, err = c.GenerateInviteTx(tx, vaultID, owner, types.RoleHeir)
		return err
	})
	if err != nil {
		t.Fatalf("GenerateInviteTx: %v", err)
	}

	var member *types.VaultMember
	err = store.Update(func(tx *region.Tx) error {
		var err error
		member, err = c.ClaimInviteTx(tx, external, heir)
		return err
	})
	if err != nil {
		t.Fatalf("ClaimInviteTx: %v", err)
	}
	if member.Status != types.MemberActive {
		t.Fatalf("status = %s, want Active", member.Status)
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
