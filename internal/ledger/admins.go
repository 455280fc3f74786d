package ledger

import (
	"errors"

	"github.com/witnz/ledgerd/internal/storage"
)

// AddAdmin registers identity with the given permissions. Owner only.
func (l *Ledger) AddAdmin(call Call, identity string, perms Permission) error {
	return l.mutate(call, OpAddAdmin, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := l.requireOwner(call); err != nil {
			return err
		}
		if err := validateString("identity", identity, MaxIdentityLen); err != nil {
			return err
		}
		if tx.CountAdmins() >= MaxAdmins {
			return newError(KindMaxAdminsReached, "registry holds %d admins", MaxAdmins)
		}
		if _, err := tx.GetAdmin(identity); err == nil {
			return newError(KindAlreadyExists, "admin %q already exists", identity)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if !perms.Valid() {
			return newError(KindInvalidPermission, "permission %d out of range", perms)
		}

		op.Key = str(identity)
		op.NewValue = u64(uint64(perms))
		return tx.PutAdmin(&storage.AdminEntry{
			Identity:    identity,
			Permissions: uint8(perms),
			AddedAt:     op.Timestamp,
			AddedBy:     call.Caller,
			Active:      true,
		})
	})
}

// UpdateAdminPermissions replaces the permission set of an existing admin and
// leaves every other field alone. Owner only.
func (l *Ledger) UpdateAdminPermissions(call Call, identity string, perms Permission) error {
	return l.mutate(call, OpUpdatePermissions, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := l.requireOwner(call); err != nil {
			return err
		}

		entry, err := tx.GetAdmin(identity)
		if err != nil {
			return notFound(err, "admin %q not found", identity)
		}
		if !perms.Valid() {
			return newError(KindInvalidPermission, "permission %d out of range", perms)
		}

		op.Key = str(identity)
		op.OldValue = u64(uint64(entry.Permissions))
		op.NewValue = u64(uint64(perms))
		entry.Permissions = uint8(perms)
		return tx.PutAdmin(entry)
	})
}

// DeactivateAdmin marks an admin inactive. The entry stays in the registry.
func (l *Ledger) DeactivateAdmin(call Call, identity string) error {
	return l.mutate(call, OpDeactivateAdmin, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := l.requireOwner(call); err != nil {
			return err
		}

		entry, err := tx.GetAdmin(identity)
		if err != nil {
			return notFound(err, "admin %q not found", identity)
		}

		op.Key = str(identity)
		op.OldValue = boolValue(entry.Active)
		op.NewValue = boolValue(false)
		entry.Active = false
		return tx.PutAdmin(entry)
	})
}

// HasPermission reports whether identity is an active admin holding at least
// one of the required capabilities.
func (l *Ledger) HasPermission(identity string, required Permission) (bool, error) {
	var ok bool
	err := l.view(func(tx *storage.Tx) error {
		ok = hasPermission(tx, identity, required)
		return nil
	})
	return ok, err
}

func hasPermission(tx *storage.Tx, identity string, required Permission) bool {
	entry, err := tx.GetAdmin(identity)
	if err != nil {
		return false
	}
	return entry.Active && Permission(entry.Permissions).Has(required)
}

func (l *Ledger) GetAdmin(identity string) (*storage.AdminEntry, error) {
	var entry *storage.AdminEntry
	err := l.view(func(tx *storage.Tx) error {
		var err error
		entry, err = tx.GetAdmin(identity)
		return notFound(err, "admin %q not found", identity)
	})
	return entry, err
}

// AdminCount returns the number of registry entries, inactive ones included.
func (l *Ledger) AdminCount() (int, error) {
	var n int
	err := l.view(func(tx *storage.Tx) error {
		n = tx.CountAdmins()
		return nil
	})
	return n, err
}
