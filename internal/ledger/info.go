package ledger

import (
	"github.com/witnz/ledgerd/internal/storage"
)

// Info summarizes the ledger state.
type Info struct {
	Owner            string `json:"owner" yaml:"owner"`
	Paused           bool   `json:"paused" yaml:"paused"`
	Version          uint64 `json:"version" yaml:"version"`
	Height           uint64 `json:"height" yaml:"height"`
	TotalOperations  uint64 `json:"total_operations" yaml:"total_operations"`
	AdminCount       int    `json:"admin_count" yaml:"admin_count"`
	LastBackupHeight uint64 `json:"last_backup_height" yaml:"last_backup_height"`
	LastHash         string `json:"last_operation_hash" yaml:"last_operation_hash"`
}

// UpdateVersion stores the contract version number. Owner only.
func (l *Ledger) UpdateVersion(call Call, version uint64) error {
	return l.mutate(call, OpUpdateVersion, func(tx *storage.Tx, op *storage.OperationRecord) error {
		if err := requireNotPaused(tx); err != nil {
			return err
		}
		if err := l.requireOwner(call); err != nil {
			return err
		}

		op.OldValue = u64(tx.GetUint64(storage.MetaContractVersion))
		op.NewValue = u64(version)
		return tx.SetUint64(storage.MetaContractVersion, version)
	})
}

func (l *Ledger) Info() (*Info, error) {
	info := &Info{Owner: l.owner}
	err := l.view(func(tx *storage.Tx) error {
		info.Paused = tx.GetBool(storage.MetaPaused)
		info.Version = tx.GetUint64(storage.MetaContractVersion)
		info.Height = tx.GetUint64(storage.MetaHeight)
		info.TotalOperations = tx.GetUint64(storage.MetaTotalOperations)
		info.AdminCount = tx.CountAdmins()
		info.LastBackupHeight = tx.GetUint64(storage.MetaLastBackupHeight)
		info.LastHash = tx.GetString(storage.MetaLastOperationHash)
		return nil
	})
	return info, err
}

// Height returns the last height the ledger has seen.
func (l *Ledger) Height() (uint64, error) {
	var h uint64
	err := l.view(func(tx *storage.Tx) error {
		h = tx.GetUint64(storage.MetaHeight)
		return nil
	})
	return h, err
}

// AppliedIndex returns the highest replicated log index whose effects are
// stored.
func (l *Ledger) AppliedIndex() (uint64, error) {
	var idx uint64
	err := l.view(func(tx *storage.Tx) error {
		idx = tx.GetUint64(storage.MetaAppliedIndex)
		return nil
	})
	return idx, err
}
