package approvals

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

func TestInitTxCreatesZeroedRecord(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)

	err := store.Update(func(tx *region.Tx) error {
		return s.InitTx(tx, vaultID)
	})
	if err != nil {
		t.Fatalf("InitTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		a, ok, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if !ok || a.Heirs != 0 || a.Witnesses != 0 {
			t.Fatalf("got %+v ok=%v", a, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestRecordTxIncrementsIndependentlyByRole(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)

	err := store.Update(func(tx *region.Tx) error {
		if err := s.InitTx(tx, vaultID); err != nil {
			return err
		}
		if err := s.RecordTx(tx, vaultID, types.RoleHeir); err != nil {
			return err
		}
		if err := s.RecordTx(tx, vaultID, types.RoleHeir); err != nil {
			return err
		}
		return s.RecordTx(tx, vaultID, types.RoleWitness)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		a, ok, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if !ok || a.Heirs != 2 || a.Witnesses != 1 {
			t.Fatalf("got %+v", a)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestRecordTxOnUninitializedVaultStartsFromZero(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)

	err := store.Update(func(tx *region.Tx) error {
		return s.RecordTx(tx, vaultID, types.RoleWitness)
	})
	if err != nil {
		t.Fatalf("RecordTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		a, ok, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if !ok || a.Witnesses != 1 {
			t.Fatalf("got %+v ok=%v", a, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestDeleteTxRemovesRecord(t *testing.T) {
	store := openTestStore(t)
	s := New()
	vaultID, _ := principal.New(principal.TagVault)

	err := store.Update(func(tx *region.Tx) error {
		return s.InitTx(tx, vaultID)
	})
	if err != nil {
		t.Fatalf("InitTx: %v", err)
	}

	err = store.Update(func(tx *region.Tx) error {
		return s.DeleteTx(tx, vaultID)
	})
	if err != nil {
		t.Fatalf("DeleteTx: %v", err)
	}

	err = store.View(func(tx *region.Tx) error {
		_, ok, err := s.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("expected approvals record to be gone")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
