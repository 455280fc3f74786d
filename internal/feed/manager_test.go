package feed

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/storage"
)

type mockHandler struct {
	mu       sync.Mutex
	ops      []storage.OperationRecord
	failures int
	calls    int
}

func (m *mockHandler) Name() string { return "mock" }

func (m *mockHandler) HandleOperation(ctx context.Context, op storage.OperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("sink unavailable")
	}
	m.ops = append(m.ops, op)
	return nil
}

func (m *mockHandler) received() []storage.OperationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.OperationRecord(nil), m.ops...)
}

func TestManagerStartStop(t *testing.T) {
	manager := NewManager(Options{})
	ctx := context.Background()

	manager.Stop()

	require.NoError(t, manager.Start(ctx))
	assert.Error(t, manager.Start(ctx), "second Start should fail")
	manager.Stop()
	manager.Stop()
}

func TestManagerDeliversInOrder(t *testing.T) {
	manager := NewManager(Options{})
	handler := &mockHandler{}
	manager.AddHandler(handler)

	require.NoError(t, manager.Start(context.Background()))
	for i := uint64(0); i < 5; i++ {
		manager.OperationRecorded(storage.OperationRecord{ID: i})
	}
	manager.Stop()

	ops := handler.received()
	require.Len(t, ops, 5)
	for i, op := range ops {
		assert.Equal(t, uint64(i), op.ID)
	}
	assert.Equal(t, uint64(5), manager.Delivered())
	assert.Zero(t, manager.Dropped())
}

func TestManagerDropsWhenFull(t *testing.T) {
	manager := NewManager(Options{BufferSize: 2})

	for i := uint64(0); i < 5; i++ {
		manager.OperationRecorded(storage.OperationRecord{ID: i})
	}

	assert.Equal(t, uint64(3), manager.Dropped())
}

func TestManagerRetriesFailedDelivery(t *testing.T) {
	manager := NewManager(Options{MaxAttempts: 3, BaseBackoff: time.Millisecond})
	handler := &mockHandler{failures: 2}
	manager.AddHandler(handler)

	require.NoError(t, manager.Start(context.Background()))
	manager.OperationRecorded(storage.OperationRecord{ID: 9})
	manager.Stop()

	assert.Equal(t, 3, handler.calls)
	require.Len(t, handler.received(), 1)
}

func TestManagerGivesUpAfterMaxAttempts(t *testing.T) {
	manager := NewManager(Options{MaxAttempts: 2, BaseBackoff: time.Millisecond})
	failing := &mockHandler{failures: 10}
	healthy := &mockHandler{}
	manager.AddHandler(failing)
	manager.AddHandler(healthy)

	require.NoError(t, manager.Start(context.Background()))
	manager.OperationRecorded(storage.OperationRecord{ID: 1})
	manager.Stop()

	assert.Equal(t, 2, failing.calls)
	assert.Len(t, healthy.received(), 1, "one failing handler must not block the others")
}

func TestManagerObservesLedger(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	l, err := ledger.New(store, ledger.Options{Owner: "owner"})
	require.NoError(t, err)

	manager := NewManager(Options{})
	handler := &mockHandler{}
	manager.AddHandler(handler)
	l.AddObserver(manager)

	require.NoError(t, manager.Start(context.Background()))
	require.NoError(t, l.AddAdmin(ledger.Call{Caller: "owner", Height: 1}, "alice", ledger.PermWrite))
	_, err = l.StoreData(ledger.Call{Caller: "alice", Height: 2}, ledger.StoreInput{Key: "k", Value: 1})
	require.NoError(t, err)
	manager.Stop()

	ops := handler.received()
	require.Len(t, ops, 2)
	assert.Equal(t, ledger.OpAddAdmin, ops[0].Type)
	assert.Equal(t, ledger.OpStoreData, ops[1].Type)
	assert.NotEmpty(t, ops[1].Hash)
}
