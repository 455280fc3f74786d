package ledger

import (
	"github.com/witnz/ledgerd/internal/storage"
)

// AddCategory creates or overwrites a category and marks it active.
func (l *Ledger) AddCategory(call Call, category, description, color string) error {
	return l.mutate(call, OpAddCategory, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := requirePermission(tx, call.Caller, PermAdmin); err != nil {
			return err
		}
		if err := validateString("category", category, MaxCategoryLen); err != nil {
			return err
		}
		if err := validateOptionalString("description", description, MaxDescriptionLen); err != nil {
			return err
		}
		if err := validateOptionalString("color", color, MaxColorLen); err != nil {
			return err
		}

		op.Key = str(category)
		return tx.PutCategory(&storage.CategoryRecord{
			Category:    category,
			Description: description,
			Color:       color,
			Active:      true,
		})
	})
}

func (l *Ledger) DeactivateCategory(call Call, category string) error {
	return l.mutate(call, OpDeactivateCategory, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := requirePermission(tx, call.Caller, PermAdmin); err != nil {
			return err
		}

		rec, err := tx.GetCategory(category)
		if err != nil {
			return notFound(err, "category %q not found", category)
		}

		op.Key = str(category)
		op.OldValue = boolValue(rec.Active)
		op.NewValue = boolValue(false)
		rec.Active = false
		return tx.PutCategory(rec)
	})
}

func (l *Ledger) GetCategory(category string) (*storage.CategoryRecord, error) {
	var rec *storage.CategoryRecord
	err := l.view(func(tx *storage.Tx) error {
		var err error
		rec, err = tx.GetCategory(category)
		return notFound(err, "category %q not found", category)
	})
	return rec, err
}
