// Package verify re-derives the audit hash chain and snapshot audit roots
// from what is stored and reports any entry that no longer matches.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/alert"
	"github.com/witnz/ledgerd/internal/hash"
	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/storage"
)

// ChainReport summarizes a successful chain walk.
type ChainReport struct {
	Operations uint64 `json:"operations"`
	LastHash   string `json:"last_hash"`
}

// SnapshotReport is the outcome for one snapshot marker.
type SnapshotReport struct {
	SnapshotID string `json:"snapshot_id"`
	DataCount  uint64 `json:"data_count"`
	AuditRoot  string `json:"audit_root"`
	Err        error  `json:"-"`
}

func (r SnapshotReport) OK() bool {
	return r.Err == nil
}

type AuditVerifier struct {
	storage      *storage.Storage
	alertManager *alert.Manager
	logger       *zap.Logger
	onTamper     func(err *TamperingError)
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func NewAuditVerifier(store *storage.Storage, alertManager *alert.Manager, logger *zap.Logger) *AuditVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditVerifier{
		storage:      store,
		alertManager: alertManager,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// OnTamper registers a callback run after a tampering alert, e.g. to pause
// the node.
func (v *AuditVerifier) OnTamper(fn func(err *TamperingError)) {
	v.onTamper = fn
}

// VerifyChain walks the audit log from the first entry and recomputes every
// link. The first broken entry is returned as a *TamperingError.
func (v *AuditVerifier) VerifyChain(ctx context.Context) (*ChainReport, error) {
	report := &ChainReport{}

	err := v.storage.View(func(tx *storage.Tx) error {
		chain := hash.NewHashChain(hash.Genesis)
		var next uint64

		err := tx.ForEachOperation(0, func(op *storage.OperationRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if op.ID != next {
				return NewTamperingError(next, fmt.Sprintf("entry missing, found %d instead", op.ID))
			}
			if op.PreviousHash != chain.GetPreviousHash() {
				return NewTamperingError(op.ID, "previous hash does not match the preceding entry")
			}

			dataHash, err := op.DataHash()
			if err != nil {
				return fmt.Errorf("failed to hash operation %d: %w", op.ID, err)
			}
			if expected := chain.AddHash(dataHash); op.Hash != expected {
				return NewTamperingError(op.ID, "content does not match its hash")
			}

			next++
			return nil
		})
		if err != nil {
			return err
		}

		if total := tx.GetUint64(storage.MetaTotalOperations); total != next {
			return NewTamperingError(next, fmt.Sprintf("log holds %d entries, counter says %d", next, total))
		}
		if next > 0 && tx.GetString(storage.MetaLastOperationHash) != chain.GetPreviousHash() {
			return NewTamperingError(next-1, "recorded chain head does not match the log")
		}

		report.Operations = next
		report.LastHash = chain.GetPreviousHash()
		return nil
	})
	if err != nil {
		v.raise(err)
		return nil, err
	}

	return report, nil
}

// VerifySnapshot recomputes the content hash and audit root of one snapshot.
func (v *AuditVerifier) VerifySnapshot(ctx context.Context, snapshotID string) (*SnapshotReport, error) {
	var report *SnapshotReport
	err := v.storage.View(func(tx *storage.Tx) error {
		snap, err := tx.GetSnapshot(snapshotID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("snapshot %q not found", snapshotID)
		}
		if err != nil {
			return err
		}
		report = verifySnapshot(ctx, tx, snap)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Err != nil {
		v.raise(report.Err)
	}
	return report, nil
}

// VerifySnapshots checks every snapshot marker.
func (v *AuditVerifier) VerifySnapshots(ctx context.Context) ([]SnapshotReport, error) {
	var reports []SnapshotReport
	err := v.storage.View(func(tx *storage.Tx) error {
		return tx.ForEachSnapshot(func(snap *storage.SnapshotRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports = append(reports, *verifySnapshot(ctx, tx, snap))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for _, r := range reports {
		if r.Err != nil {
			v.raise(r.Err)
		}
	}
	return reports, nil
}

func verifySnapshot(ctx context.Context, tx *storage.Tx, snap *storage.SnapshotRecord) *SnapshotReport {
	report := &SnapshotReport{SnapshotID: snap.SnapshotID, DataCount: snap.DataCount}

	contentHash, err := ledger.ContentHash(snap.CreatedAt, snap.DataCount)
	if err != nil {
		report.Err = err
		return report
	}
	if contentHash != snap.ContentHash {
		report.Err = newSnapshotTamperingError(snap.SnapshotID, "content hash does not match height and count")
		return report
	}

	tree := hash.NewMerkleTree()
	var next uint64
	errDone := errors.New("done")
	if snap.DataCount > 0 {
		err = tx.ForEachOperation(0, func(op *storage.OperationRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tree.AddLeafHash(op.Hash)
			next++
			if next == snap.DataCount {
				return errDone
			}
			return nil
		})
		if err != nil && !errors.Is(err, errDone) {
			report.Err = err
			return report
		}
	}
	if next != snap.DataCount {
		report.Err = newSnapshotTamperingError(snap.SnapshotID,
			fmt.Sprintf("log holds %d of %d covered entries", next, snap.DataCount))
		return report
	}

	report.AuditRoot = tree.GetRoot()
	if report.AuditRoot != snap.AuditRoot {
		report.Err = &TamperingError{
			SnapshotID: snap.SnapshotID,
			Reason:     fmt.Sprintf("audit root %s does not match recorded %s", short(report.AuditRoot), short(snap.AuditRoot)),
		}
	}
	return report
}

// Start verifies once, then again every interval until Stop or ctx ends.
func (v *AuditVerifier) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid verify interval: %v", interval)
	}

	v.runOnce(ctx)

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-v.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				v.runOnce(ctx)
			}
		}
	}()

	return nil
}

func (v *AuditVerifier) Stop() {
	v.stopOnce.Do(func() { close(v.stopCh) })
	v.wg.Wait()
}

func (v *AuditVerifier) runOnce(ctx context.Context) {
	report, err := v.VerifyChain(ctx)
	if err != nil {
		v.logger.Error("audit chain verification failed", zap.Error(err))
		return
	}
	v.logger.Info("audit chain verified",
		zap.Uint64("operations", report.Operations),
		zap.String("last_hash", report.LastHash))

	if _, err := v.VerifySnapshots(ctx); err != nil {
		v.logger.Error("snapshot verification failed", zap.Error(err))
	}
}

func (v *AuditVerifier) raise(err error) {
	te := AsTamperingError(err)
	if te == nil {
		return
	}

	v.logger.Error("tampering detected",
		zap.Uint64("operation_id", te.OperationID),
		zap.String("snapshot_id", te.SnapshotID),
		zap.String("reason", te.Reason))

	if v.alertManager != nil {
		var alertErr error
		if te.SnapshotID != "" {
			alertErr = v.alertManager.SendSnapshotMismatchAlert(te.SnapshotID, te.Reason)
		} else {
			alertErr = v.alertManager.SendAuditTamperAlert(te.OperationID, te.Reason)
		}
		if alertErr != nil {
			v.logger.Warn("failed to send tamper alert", zap.Error(alertErr))
		}
	}

	if v.onTamper != nil {
		v.onTamper(te)
	}
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
