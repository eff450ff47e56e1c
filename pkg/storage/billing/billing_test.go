package billing

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
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

func TestAppendAndLenTrackEntryCount(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)
	payer, _ := principal.New(principal.TagMember)

	err := store.Update(func(tx *region.Tx) error {
		for i := 0; i < 3; i++ {
			if _, err := s.AppendTx(tx, &types.BillingEntry{
				Timestamp:        time.Now(),
				VaultID:          vaultID,
				TxType:           types.BillingInitialVaultCreation,
				AmountBaseUnits:  uint64(100 * (i + 1)),
				RelatedPrincipal: payer,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		if got := s.LenTx(tx); got != 3 {
			t.Fatalf("LenTx = %d, want 3", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestListTxPaginatesOldestFirst(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)
	payer, _ := principal.New(principal.TagMember)

	err := store.Update(func(tx *region.Tx) error {
		for i := 0; i < 5; i++ {
			if _, err := s.AppendTx(tx, &types.BillingEntry{
				VaultID:          vaultID,
				AmountBaseUnits:  uint64(i),
				RelatedPrincipal: payer,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		entries, err := s.ListTx(tx, 1, 2)
		if err != nil {
			return err
		}
		if len(entries) != 2 || entries[0].AmountBaseUnits != 1 || entries[1].AmountBaseUnits != 2 {
			t.Fatalf("got %+v, want amounts [1 2]", entries)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
