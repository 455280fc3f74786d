package verify

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witnz/ledgerd/internal/alert"
	"github.com/witnz/ledgerd/internal/hash"
	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/storage"
)

type countingClient struct {
	requests int
}

func (c *countingClient) Do(req *http.Request) (*http.Response, error) {
	c.requests++
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func setupLedger(t *testing.T) (*storage.Storage, *ledger.Ledger) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	l, err := ledger.New(store, ledger.Options{Owner: "owner"})
	require.NoError(t, err)

	call := func(caller string, h uint64) ledger.Call { return ledger.Call{Caller: caller, Height: h} }
	require.NoError(t, l.AddAdmin(call("owner", 1), "alice", ledger.PermAll))
	_, err = l.StoreData(call("alice", 2), ledger.StoreInput{Key: "k", Value: 10})
	require.NoError(t, err)
	_, err = l.CreateBackup(call("alice", 3), "snap-1")
	require.NoError(t, err)
	require.NoError(t, l.LockData(call("alice", 4), "k", true))
	_, err = l.StoreData(call("alice", 5), ledger.StoreInput{Key: "k", Value: 11})
	require.ErrorIs(t, err, ledger.ErrRecordLocked)
	_, err = l.CreateBackup(call("alice", 6), "snap-2")
	require.NoError(t, err)

	return store, l
}

func tamperOperation(t *testing.T, store *storage.Storage, id uint64, mutate func(op *storage.OperationRecord)) {
	t.Helper()
	require.NoError(t, store.Update(func(tx *storage.Tx) error {
		op, err := tx.GetOperation(id)
		if err != nil {
			return err
		}
		mutate(op)
		return tx.PutOperation(op)
	}))
}

func TestVerifyChainIntact(t *testing.T) {
	store, l := setupLedger(t)
	v := NewAuditVerifier(store, nil, nil)

	report, err := v.VerifyChain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(6), report.Operations)

	info, err := l.Info()
	require.NoError(t, err)
	assert.Equal(t, info.LastHash, report.LastHash)
}

func TestVerifyChainEmptyLog(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()

	report, err := NewAuditVerifier(store, nil, nil).VerifyChain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Operations)
}

func TestVerifyChainDetectsModifiedContent(t *testing.T) {
	store, _ := setupLedger(t)
	client := &countingClient{}
	v := NewAuditVerifier(store, alert.NewManagerWithClient(true, "https://hooks.slack.com/test", client), nil)

	var reported *TamperingError
	v.OnTamper(func(err *TamperingError) { reported = err })

	tamperOperation(t, store, 1, func(op *storage.OperationRecord) {
		forged := uint64(999_999)
		op.NewValue = &forged
	})

	_, err := v.VerifyChain(context.Background())
	require.Error(t, err)

	te := AsTamperingError(err)
	require.NotNil(t, te)
	assert.Equal(t, uint64(1), te.OperationID)
	assert.True(t, IsTamperingError(err))
	assert.Equal(t, 1, client.requests)
	require.NotNil(t, reported)
	assert.Equal(t, uint64(1), reported.OperationID)
}

func TestVerifyChainDetectsRewrittenHash(t *testing.T) {
	store, _ := setupLedger(t)
	v := NewAuditVerifier(store, nil, nil)

	// A consistent rewrite of entry 2 still breaks the link held by entry 3.
	tamperOperation(t, store, 2, func(op *storage.OperationRecord) {
		op.Performer = "mallory"
		dataHash, err := op.DataHash()
		require.NoError(t, err)
		op.Hash = hash.Link(op.PreviousHash, dataHash)
	})

	_, err := v.VerifyChain(context.Background())
	te := AsTamperingError(err)
	require.NotNil(t, te)
	assert.Equal(t, uint64(3), te.OperationID)
}

func TestVerifyChainDetectsCounterMismatch(t *testing.T) {
	store, _ := setupLedger(t)
	require.NoError(t, store.Update(func(tx *storage.Tx) error {
		return tx.SetUint64(storage.MetaTotalOperations, 99)
	}))

	_, err := NewAuditVerifier(store, nil, nil).VerifyChain(context.Background())
	assert.True(t, IsTamperingError(err))
}

func TestVerifySnapshots(t *testing.T) {
	store, l := setupLedger(t)
	v := NewAuditVerifier(store, nil, nil)

	reports, err := v.VerifySnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.OK(), "snapshot %s: %v", r.SnapshotID, r.Err)
	}

	snap, err := l.GetSnapshot("snap-2")
	require.NoError(t, err)
	report, err := v.VerifySnapshot(context.Background(), "snap-2")
	require.NoError(t, err)
	assert.Equal(t, snap.AuditRoot, report.AuditRoot)
	assert.Equal(t, uint64(5), report.DataCount)
}

func TestVerifySnapshotDetectsTamperedLog(t *testing.T) {
	store, _ := setupLedger(t)
	v := NewAuditVerifier(store, nil, nil)

	// Operation 3 is covered by snap-2 but not by snap-1.
	tamperOperation(t, store, 3, func(op *storage.OperationRecord) {
		op.Hash = "0000"
	})

	report, err := v.VerifySnapshot(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.True(t, report.OK())

	report, err = v.VerifySnapshot(context.Background(), "snap-2")
	require.NoError(t, err)
	require.False(t, report.OK())
	te := AsTamperingError(report.Err)
	require.NotNil(t, te)
	assert.Equal(t, "snap-2", te.SnapshotID)
}

func TestVerifySnapshotDetectsForgedContentHash(t *testing.T) {
	store, _ := setupLedger(t)
	require.NoError(t, store.Update(func(tx *storage.Tx) error {
		snap, err := tx.GetSnapshot("snap-1")
		if err != nil {
			return err
		}
		snap.DataCount = 1
		return tx.PutSnapshot(snap)
	}))

	report, err := NewAuditVerifier(store, nil, nil).VerifySnapshot(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.True(t, IsTamperingError(report.Err))
}

func TestVerifySnapshotNotFound(t *testing.T) {
	store, _ := setupLedger(t)

	_, err := NewAuditVerifier(store, nil, nil).VerifySnapshot(context.Background(), "missing")
	assert.Error(t, err)
	assert.False(t, IsTamperingError(err))
}

func TestAuditVerifierStartStop(t *testing.T) {
	store, _ := setupLedger(t)
	v := NewAuditVerifier(store, nil, nil)

	assert.Error(t, v.Start(context.Background(), 0))

	require.NoError(t, v.Start(context.Background(), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	v.Stop()
	v.Stop()
}

func TestTamperingErrorMessages(t *testing.T) {
	assert.Contains(t, NewTamperingError(4, "bad").Error(), "operation 4")
	assert.Contains(t, newSnapshotTamperingError("s", "bad").Error(), "snapshot s")
	assert.Nil(t, AsTamperingError(errors.New("plain")))
}
