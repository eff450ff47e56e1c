package audit

import (
	"path/filepath"
	"testing"

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

func TestGetTxOnUnknownVaultReturnsEmptyVector(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)

	err := store.View(func(tx *region.Tx) error {
		v, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if v.VaultID != vaultID || len(v.Entries) != 0 {
			t.Fatalf("got %+v, want empty vector for %v", v, vaultID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestAppendTxGrowsVectorInOrder(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)
	actor, _ := principal.New(principal.TagMember)

	err := store.Update(func(tx *region.Tx) error {
		if err := s.AppendTx(tx, vaultID, actor, "vault.created"); err != nil {
			return err
		}
		return s.AppendTx(tx, vaultID, actor, "vault.setup_complete")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		v, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if len(v.Entries) != 2 || v.Entries[0].Action != "vault.created" || v.Entries[1].Action != "vault.setup_complete" {
			t.Fatalf("got %+v", v.Entries)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestCompactTxKeepsOnlyTail(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)
	actor, _ := principal.New(principal.TagMember)

	err := store.Update(func(tx *region.Tx) error {
		for _, action := range []string{"a", "b", "c", "d", "e"} {
			if err := s.AppendTx(tx, vaultID, actor, action); err != nil {
				return err
			}
		}
		return s.CompactTx(tx, vaultID, 2)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		v, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if len(v.Entries) != 2 || v.Entries[0].Action != "d" || v.Entries[1].Action != "e" {
			t.Fatalf("got %+v, want tail [d e]", v.Entries)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestCompactTxNoOpWhenUnderCap(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)
	actor, _ := principal.New(principal.TagMember)

	err := store.Update(func(tx *region.Tx) error {
		if err := s.AppendTx(tx, vaultID, actor, "only"); err != nil {
			return err
		}
		return s.CompactTx(tx, vaultID, 5)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		v, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if len(v.Entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(v.Entries))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestDeleteTxRemovesVector(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)
	actor, _ := principal.New(principal.TagMember)

	err := store.Update(func(tx *region.Tx) error {
		return s.AppendTx(tx, vaultID, actor, "vault.created")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return s.DeleteTx(tx, vaultID)
	})
	if err != nil {
		t.Fatalf("DeleteTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		v, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if len(v.Entries) != 0 {
			t.Fatalf("expected empty vector after delete, got %+v", v.Entries)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestForEachTxVisitsEveryVault(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultA, _ := principal.New(principal.TagVault)
	vaultB, _ := principal.New(principal.TagVault)
	actor, _ := principal.New(principal.TagMember)

	err := store.Update(func(tx *region.Tx) error {
		if err := s.AppendTx(tx, vaultA, actor, "a"); err != nil {
			return err
		}
		return s.AppendTx(tx, vaultB, actor, "b")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	seen := map[principal.Principal]bool{}
	err = store.View(func(tx *region.Tx) error {
		return s.ForEachTx(tx, func(vaultID principal.Principal, v *types.AuditVector) error {
			seen[vaultID] = true
			return nil
		})
	})
	if err != nil {
		t.Fatalf("ForEachTx: %v", err)
	}
	if !seen[vaultA] || !seen[vaultB] || len(seen) != 2 {
		t.Fatalf("got %v, want both vaults visited", seen)
	}
}
