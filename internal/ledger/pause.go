package ledger

import (
	"github.com/witnz/ledgerd/internal/storage"
)

// Operation types recorded in the audit log.
const (
	OpTogglePause        = "toggle-pause"
	OpEmergencyStop      = "emergency-stop"
	OpAddAdmin           = "add-admin"
	OpUpdatePermissions  = "update-admin-permissions"
	OpDeactivateAdmin    = "deactivate-admin"
	OpStoreData          = "store-data"
	OpLockData           = "lock-data"
	OpBatchStore         = "batch-store"
	OpCreateBackup       = "create-backup"
	OpAddCategory        = "add-category"
	OpDeactivateCategory = "deactivate-category"
	OpUpdateVersion      = "update-version"
)

// TogglePause flips the pause flag and returns the new state. It is the one
// way out of a pause, so it is accepted while paused.
func (l *Ledger) TogglePause(call Call) (bool, error) {
	var paused bool
	err := l.mutate(call, OpTogglePause, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := l.requireOwner(call); err != nil {
			return err
		}

		old := tx.GetBool(storage.MetaPaused)
		paused = !old
		if err := tx.SetBool(storage.MetaPaused, paused); err != nil {
			return err
		}

		op.OldValue = boolValue(old)
		op.NewValue = boolValue(paused)
		return nil
	})
	return paused, err
}

// EmergencyStop pauses the ledger. Calling it while already paused succeeds
// and is still logged.
func (l *Ledger) EmergencyStop(call Call) error {
	return l.mutate(call, OpEmergencyStop, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := l.requireOwner(call); err != nil {
			return err
		}

		op.OldValue = boolValue(tx.GetBool(storage.MetaPaused))
		op.NewValue = boolValue(true)
		return tx.SetBool(storage.MetaPaused, true)
	})
}

func (l *Ledger) IsPaused() (bool, error) {
	var paused bool
	err := l.view(func(tx *storage.Tx) error {
		paused = tx.GetBool(storage.MetaPaused)
		return nil
	})
	return paused, err
}
