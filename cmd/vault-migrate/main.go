package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
)

// legacyUploadsBucket held whole-file blobs keyed by the upload's
// internal ID before chunked staging moved into the region-allocated
// UploadChunks collection (spec.md §4.4's Open Question on migrating
// pre-existing in-memory upload staging to persistent-only storage).
// A prior engine version buffered a session's bytes entirely in this
// one bucket; this tool splits each blob into types.MaxChunkBytes
// chunks in the current UploadChunks region. It writes chunk records
// only: no UploadSession record is created or updated, so a session's
// ReceivedChunks set is left as it was.
var legacyUploadsBucket = []byte("uploads_blob")

var (
	dataDir    = flag.String("data-dir", "/var/lib/vaultd", "vaultd data directory")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up the database before migration (default: <data-dir>/vault.db.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Vault Engine Migration Tool - legacy upload blobs -> UploadChunks")
	log.Println("==================================================================")

	dbPath := filepath.Join(*dataDir, "vault.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}

	log.Printf("database: %s", dbPath)
	log.Printf("dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("failed to create backup: %v", err)
		}
		log.Println("backup created successfully")
	}

	store, err := region.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open region store: %v", err)
	}
	defer store.Close()

	if err := migrateLegacyUploads(store.DB(), store, *dryRun); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if *dryRun {
		log.Println("dry run completed, no changes made")
	} else {
		log.Println("migration completed successfully")
		log.Printf("legacy bucket %q preserved for rollback; drop it manually once verified", legacyUploadsBucket)
	}
}

// migrateLegacyUploads reads each raw blob from the legacy bucket,
// splits it into types.MaxChunkBytes chunks, and writes them through
// the region allocator so the rest of the engine sees an ordinary
// chunked upload.
func migrateLegacyUploads(db *bolt.DB, store *region.Store, dryRun bool) error {
	type legacyEntry struct {
		internalID uint64
		data       []byte
	}
	var entries []legacyEntry

	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(legacyUploadsBucket)
		if bucket == nil {
			log.Println("no legacy upload blobs found, database already on chunked staging")
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				log.Printf("skipping malformed legacy key %x", k)
				return nil
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			entries = append(entries, legacyEntry{internalID: binary.BigEndian.Uint64(k), data: cp})
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Printf("found %d legacy upload blob(s) to migrate", len(entries))
	if len(entries) == 0 {
		return nil
	}
	if dryRun {
		for _, e := range entries {
			chunkCount := (len(e.data) + types.MaxChunkBytes - 1) / types.MaxChunkBytes
			log.Printf("[DRY RUN] upload %d: %d bytes -> %d chunk(s)", e.internalID, len(e.data), chunkCount)
		}
		return nil
	}

	chunks := container.NewOrderedMap(region.UploadChunks)
	migrated := 0
	return store.Update(func(rtx *region.Tx) error {
		for _, e := range entries {
			chunkCount := uint32((len(e.data) + types.MaxChunkBytes - 1) / types.MaxChunkBytes)
			for i := uint32(0); i < chunkCount; i++ {
				start := int(i) * types.MaxChunkBytes
				end := start + types.MaxChunkBytes
				if end > len(e.data) {
					end = len(e.data)
				}
				chunk := &types.UploadChunk{
					InternalUploadID: e.internalID,
					ChunkIndex:       i,
					Data:             e.data[start:end],
				}
				key := chunkKey(e.internalID, i)
				if err := chunks.PutTx(rtx, key, chunk); err != nil {
					return fmt.Errorf("write chunk %d for upload %d: %w", i, e.internalID, err)
				}
			}
			migrated++
			log.Printf("migrated upload %d (%d chunks)", e.internalID, chunkCount)
		}
		return nil
	})
}

// chunkKey mirrors pkg/storage/uploads's composite key layout so
// migrated chunks sort identically to natively-written ones.
func chunkKey(uploadID uint64, idx uint32) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[:8], uploadID)
	binary.BigEndian.PutUint32(b[8:], idx)
	return b
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
