package ledger

import (
	"errors"

	"github.com/witnz/ledgerd/internal/storage"
)

type BatchItem struct {
	Key   string `json:"key"`
	Value uint64 `json:"value"`
	Text  string `json:"text"`
}

// BatchStore writes every item or none of them. Batch-written records always
// start over at version 1 with no tags, whatever was stored before.
func (l *Ledger) BatchStore(call Call, items []BatchItem) error {
	return l.mutate(call, OpBatchStore, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := requirePermission(tx, call.Caller, PermWrite); err != nil {
			return err
		}
		if len(items) == 0 {
			return newError(KindInvalidValue, "batch is empty")
		}
		if len(items) > MaxBatchSize {
			return newError(KindBatchTooLarge, "%d items exceed the limit of %d", len(items), MaxBatchSize)
		}
		for i, item := range items {
			if err := validateRecord(item.Key, item.Value, item.Text); err != nil {
				return newError(KindInvalidValue, "item %d: %v", i, err)
			}
		}
		if err := l.requireRateLimit(tx, call.Caller, op.Timestamp); err != nil {
			return err
		}

		op.NewValue = u64(uint64(len(items)))

		for _, item := range items {
			existing, err := tx.GetRecord(item.Key)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if existing != nil && existing.Locked {
				op.Key = str(item.Key)
				return reject(newError(KindRecordLocked, "record %q is locked", item.Key))
			}

			err = tx.PutRecord(&storage.Record{
				Key:       item.Key,
				Value:     item.Value,
				Text:      item.Text,
				UpdatedBy: call.Caller,
				UpdatedAt: op.Timestamp,
				Version:   1,
				Tags:      []string{},
			})
			if err != nil {
				return err
			}
		}
		return l.recordAction(tx, call.Caller, op.Timestamp)
	})
}
