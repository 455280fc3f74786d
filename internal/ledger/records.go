package ledger

import (
	"errors"

	"github.com/witnz/ledgerd/internal/storage"
)

type StoreInput struct {
	Key   string   `json:"key"`
	Value uint64   `json:"value"`
	Text  string   `json:"text"`
	Tags  []string `json:"tags"`
}

// StoreData writes a record, bumping its version, and returns the stored
// record. A locked record is refused after the preconditions have passed, so
// the refusal is audited.
func (l *Ledger) StoreData(call Call, in StoreInput) (*storage.Record, error) {
	var rec *storage.Record
	err := l.mutate(call, OpStoreData, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := requirePermission(tx, call.Caller, PermWrite); err != nil {
			return err
		}
		if err := validateRecord(in.Key, in.Value, in.Text); err != nil {
			return err
		}
		tags, err := normalizeTags(in.Tags)
		if err != nil {
			return err
		}
		if err := l.requireRateLimit(tx, call.Caller, op.Timestamp); err != nil {
			return err
		}

		op.Key = str(in.Key)
		op.NewValue = u64(in.Value)

		existing, err := tx.GetRecord(in.Key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		version := uint64(1)
		if existing != nil {
			op.OldValue = u64(existing.Value)
			if existing.Locked {
				return reject(newError(KindRecordLocked, "record %q is locked", in.Key))
			}
			version = existing.Version + 1
		}

		rec = &storage.Record{
			Key:       in.Key,
			Value:     in.Value,
			Text:      in.Text,
			UpdatedBy: call.Caller,
			UpdatedAt: op.Timestamp,
			Version:   version,
			Locked:    false,
			Tags:      tags,
		}
		if err := tx.PutRecord(rec); err != nil {
			return err
		}
		return l.recordAction(tx, call.Caller, op.Timestamp)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// LockData sets or clears the lock flag of an existing record. Value and
// version are untouched.
func (l *Ledger) LockData(call Call, key string, locked bool) error {
	return l.mutate(call, OpLockData, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := requirePermission(tx, call.Caller, PermAdmin); err != nil {
			return err
		}

		rec, err := tx.GetRecord(key)
		if err != nil {
			return notFound(err, "record %q not found", key)
		}

		op.Key = str(key)
		op.OldValue = boolValue(rec.Locked)
		op.NewValue = boolValue(locked)
		rec.Locked = locked
		return tx.PutRecord(rec)
	})
}

func (l *Ledger) GetData(key string) (*storage.Record, error) {
	var rec *storage.Record
	err := l.view(func(tx *storage.Tx) error {
		var err error
		rec, err = tx.GetRecord(key)
		return notFound(err, "record %q not found", key)
	})
	return rec, err
}

// HasTag is false for an absent key.
func (l *Ledger) HasTag(key, tag string) (bool, error) {
	var ok bool
	err := l.view(func(tx *storage.Tx) error {
		rec, err := tx.GetRecord(key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = rec.HasTag(tag)
		return nil
	})
	return ok, err
}

func validateRecord(key string, value uint64, text string) error {
	if err := validateString("key", key, MaxKeyLen); err != nil {
		return err
	}
	if value > MaxValue {
		return newError(KindInvalidValue, "value %d exceeds %d", value, MaxValue)
	}
	return validateOptionalString("text", text, MaxTextLen)
}

// normalizeTags drops duplicates, keeping first-seen order.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if err := validateString("tag", tag, MaxTagLen); err != nil {
			return nil, err
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return nil, newError(KindInvalidValue, "%d tags exceed the limit of %d", len(out), MaxTags)
	}
	return out, nil
}
