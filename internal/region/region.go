// Package region implements the region allocator (spec.md §2.1): it
// multiplexes one backing bbolt database across many disjoint logical
// collections ("regions"), each addressed by a small fixed integer ID.
// A region is a bbolt bucket; bbolt already keeps bucket contents sorted
// by key, which is what makes it a faithful host for the ordered-map and
// single-slot-cell primitive containers described in spec.md §2.3.
package region

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// ID names one collection module's sub-region. The assignment is part of
// the on-disk schema (spec.md §6.2): changing an existing ID is a
// breaking change, so IDs are only ever appended to, never reordered.
type ID uint16

const (
	Vaults ID = iota
	Members
	InvitesPrimary
	InvitesSecondary
	InviteCounter
	ContentPrimary
	ContentSecondary
	ContentCounter
	ContentIndex
	UploadsPrimary
	UploadsSecondary
	UploadCounter
	UploadChunks
	AuditLog
	BillingLog
	Approvals
	MetricsCell
	GlobalConfig
	Cursor
	_numRegions
)

func (id ID) bucketName() []byte {
	return []byte(fmt.Sprintf("r%02d", uint16(id)))
}

// Store owns the single backing file and guarantees every region's
// bucket exists before any collection module touches it.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the backing store at path and
// provisions every region bucket declared above.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("region: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for i := ID(0); i < _numRegions; i++ {
			if _, err := tx.CreateBucketIfNotExists(i.bucketName()); err != nil {
				return fmt.Errorf("region: create bucket %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the backing file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a single bbolt transaction scoped to one or more regions. Every
// collection module's low-level methods take a *Tx so that a Lifecycle
// Coordinator can fold several collections' writes into one
// all-or-nothing transaction (spec.md §5's ordering guarantee).
type Tx struct {
	tx *bolt.Tx
}

// Bucket returns the bucket backing region id within this transaction.
// It never returns nil: every region bucket is created by Open.
func (t *Tx) Bucket(id ID) *bolt.Bucket {
	return t.tx.Bucket(id.bucketName())
}

// Writable reports whether this transaction may mutate its buckets.
func (t *Tx) Writable() bool {
	return t.tx.Writable()
}

// Update runs fn inside a single writable transaction spanning every
// region. All mutations fn performs commit together or not at all.
func (s *Store) Update(fn func(*Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// View runs fn inside a read-only transaction spanning every region.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// DB exposes the underlying bbolt handle to callers that need a
// transaction not scoped through Update/View, such as the migration
// tool.
func (s *Store) DB() *bolt.DB {
	return s.db
}
