package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/witnz/ledgerd/internal/storage"
)

// Rewrites one audit entry directly in the ledger's bbolt file, bypassing the
// ledger, so `ledgerd verify` has something to find.
func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <ledger-db-path> [operation-id]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "This tool corrupts one audit entry (the first one by default)\n")
		os.Exit(1)
	}

	dbPath := os.Args[1]
	var opID uint64
	if len(os.Args) == 3 {
		id, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid operation id %q: %v\n", os.Args[2], err)
			os.Exit(1)
		}
		opID = id
	}

	fmt.Printf("Opening BoltDB: %s\n", dbPath)
	fmt.Printf("Target operation: %d\n", opID)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open BoltDB: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, opID)

	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(storage.OperationsBucket)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", storage.OperationsBucket)
		}

		data := bucket.Get(key)
		if data == nil {
			return fmt.Errorf("operation %d not found", opID)
		}

		var op storage.OperationRecord
		if err := json.Unmarshal(data, &op); err != nil {
			return fmt.Errorf("failed to decode operation %d: %w", opID, err)
		}

		fmt.Printf("Found %s by %s at height %d\n", op.Type, op.Performer, op.Timestamp)
		fmt.Printf("  Hash: %s...\n", op.Hash[:32])

		// Forge the recorded value and performer but keep the stored hashes.
		forged := uint64(999_999)
		if op.NewValue != nil && *op.NewValue == forged {
			forged--
		}
		op.NewValue = &forged
		op.Performer = "tamper-boltdb"

		corrupted, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal corrupted entry: %w", err)
		}
		if err := bucket.Put(key, corrupted); err != nil {
			return fmt.Errorf("failed to save corrupted entry: %w", err)
		}

		fmt.Printf("Corrupted operation %d: new_value=%d performer=%s\n", op.ID, forged, op.Performer)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("BoltDB tampering completed")
}
