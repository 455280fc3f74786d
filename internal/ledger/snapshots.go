package ledger

import (
	"errors"
	"fmt"

	"github.com/witnz/ledgerd/internal/hash"
	"github.com/witnz/ledgerd/internal/storage"
)

// contentTag is the serialized form hashed into SnapshotRecord.ContentHash.
type contentTag struct {
	Height          uint64 `json:"height"`
	TotalOperations uint64 `json:"total_operations"`
}

// CreateBackup records a snapshot marker. No data is copied; the marker pins
// the operation count and the audit root at the time of the call.
func (l *Ledger) CreateBackup(call Call, snapshotID string) (*storage.SnapshotRecord, error) {
	var snap *storage.SnapshotRecord
	err := l.mutate(call, OpCreateBackup, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := requirePermission(tx, call.Caller, PermAdmin); err != nil {
			return err
		}
		if err := validateString("snapshot id", snapshotID, MaxSnapshotIDLen); err != nil {
			return err
		}
		if _, err := tx.GetSnapshot(snapshotID); err == nil {
			return newError(KindAlreadyExists, "snapshot %q already exists", snapshotID)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		total := tx.GetUint64(storage.MetaTotalOperations)
		contentHash, err := hash.Calculate(contentTag{Height: op.Timestamp, TotalOperations: total})
		if err != nil {
			return err
		}
		root, err := auditRoot(tx, total)
		if err != nil {
			return fmt.Errorf("failed to compute audit root: %w", err)
		}

		snap = &storage.SnapshotRecord{
			SnapshotID:  snapshotID,
			CreatedAt:   op.Timestamp,
			CreatedBy:   call.Caller,
			DataCount:   total,
			ContentHash: contentHash,
			AuditRoot:   root,
		}
		if err := tx.PutSnapshot(snap); err != nil {
			return err
		}

		op.Key = str(snapshotID)
		op.OldValue = u64(tx.GetUint64(storage.MetaLastBackupHeight))
		op.NewValue = u64(op.Timestamp)
		return tx.SetUint64(storage.MetaLastBackupHeight, op.Timestamp)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (l *Ledger) GetSnapshot(snapshotID string) (*storage.SnapshotRecord, error) {
	var snap *storage.SnapshotRecord
	err := l.view(func(tx *storage.Tx) error {
		var err error
		snap, err = tx.GetSnapshot(snapshotID)
		return notFound(err, "snapshot %q not found", snapshotID)
	})
	return snap, err
}

func (l *Ledger) LastBackupHeight() (uint64, error) {
	var h uint64
	err := l.view(func(tx *storage.Tx) error {
		h = tx.GetUint64(storage.MetaLastBackupHeight)
		return nil
	})
	return h, err
}

// ContentHash recomputes the content tag of a snapshot taken at height with
// total operations.
func ContentHash(height, total uint64) (string, error) {
	return hash.Calculate(contentTag{Height: height, TotalOperations: total})
}
