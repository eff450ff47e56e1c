package region

import (
	"path/filepath"
	"testing"
)

func TestOpenProvisionsEveryRegionBucket(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	err = store.View(func(tx *Tx) error {
		for i := ID(0); i < _numRegions; i++ {
			if b := tx.Bucket(i); b == nil {
				t.Fatalf("region %d has no bucket", i)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestUpdateTransactionIsWritable(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	err = store.Update(func(tx *Tx) error {
		if !tx.Writable() {
			t.Fatalf("expected Update transaction to be writable")
		}
		return tx.Bucket(Vaults).Put([]byte("k"), []byte("v"))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.View(func(tx *Tx) error {
		if tx.Writable() {
			t.Fatalf("expected View transaction to be read-only")
		}
		got := tx.Bucket(Vaults).Get([]byte("k"))
		if string(got) != "v" {
			t.Fatalf("got %q, want %q", got, "v")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestViewTransactionRejectsWrites(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	err = store.View(func(tx *Tx) error {
		return tx.Bucket(Vaults).Put([]byte("k"), []byte("v"))
	})
	if err == nil {
		t.Fatalf("expected write inside View to fail")
	}
}

func TestOpenReopensExistingFileWithoutDataLoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = store.Update(func(tx *Tx) error {
		return tx.Bucket(Cursor).Put([]byte("seq"), []byte{1})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()

	err = store2.View(func(tx *Tx) error {
		got := tx.Bucket(Cursor).Get([]byte("seq"))
		if len(got) != 1 || got[0] != 1 {
			t.Fatalf("got %v, want [1]", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
