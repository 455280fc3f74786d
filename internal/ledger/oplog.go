package ledger

import (
	"errors"
	"fmt"

	"github.com/witnz/ledgerd/internal/hash"
	"github.com/witnz/ledgerd/internal/storage"
)

func (l *Ledger) GetOperation(id uint64) (*storage.OperationRecord, error) {
	var op *storage.OperationRecord
	err := l.view(func(tx *storage.Tx) error {
		var err error
		op, err = tx.GetOperation(id)
		return notFound(err, "operation %d not found", id)
	})
	return op, err
}

// GetOperations looks up to MaxBatchSize ids at once. The result has one slot
// per id; a missing operation leaves its slot nil.
func (l *Ledger) GetOperations(ids []uint64) ([]*storage.OperationRecord, error) {
	if len(ids) > MaxBatchSize {
		return nil, newError(KindBatchTooLarge, "%d ids exceed the limit of %d", len(ids), MaxBatchSize)
	}

	ops := make([]*storage.OperationRecord, len(ids))
	err := l.view(func(tx *storage.Tx) error {
		for i, id := range ids {
			op, err := tx.GetOperation(id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			ops[i] = op
		}
		return nil
	})
	return ops, err
}

func (l *Ledger) TotalOperations() (uint64, error) {
	var n uint64
	err := l.view(func(tx *storage.Tx) error {
		n = tx.GetUint64(storage.MetaTotalOperations)
		return nil
	})
	return n, err
}

// auditRoot is the ordered Merkle root over the hashes of operations
// [0, count).
func auditRoot(tx *storage.Tx, count uint64) (string, error) {
	tree := hash.NewMerkleTree()
	if count == 0 {
		return "", nil
	}

	var next uint64
	errDone := errors.New("done")
	err := tx.ForEachOperation(0, func(op *storage.OperationRecord) error {
		if op.ID != next {
			return fmt.Errorf("operation log has a gap at %d", next)
		}
		tree.AddLeafHash(op.Hash)
		next++
		if next == count {
			return errDone
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDone) {
		return "", err
	}
	if next != count {
		return "", fmt.Errorf("operation log holds %d of %d entries", next, count)
	}
	return tree.GetRoot(), nil
}

// AuditRoot recomputes the Merkle root over the first count operations.
func (l *Ledger) AuditRoot(count uint64) (string, error) {
	var root string
	err := l.view(func(tx *storage.Tx) error {
		var err error
		root, err = auditRoot(tx, count)
		return err
	})
	return root, err
}
