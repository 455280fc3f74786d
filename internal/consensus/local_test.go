package consensus

import (
	"context"
	"sync"
	"testing"

	"github.com/witnz/ledgerd/internal/ledger"
)

func TestLocalApplierAdvancesHeight(t *testing.T) {
	l, _ := newTestLedger(t)
	applier := NewLocalApplier(l)
	ctx := context.Background()

	cmd, _ := ledger.NewCommand(ledger.OpAddAdmin, testOwner, ledger.AdminArgs{Identity: "alice", Permissions: ledger.PermWrite})
	if _, err := applier.Apply(ctx, cmd); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd, _ := ledger.NewCommand(ledger.OpStoreData, "alice", ledger.StoreInput{Key: "k", Value: uint64(i)})
			if _, err := applier.Apply(ctx, cmd); err != nil {
				t.Errorf("Apply failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	height, _ := l.Height()
	if height != 6 {
		t.Errorf("Expected height 6 after 6 commands, got %d", height)
	}

	rec, err := l.GetData("k")
	if err != nil {
		t.Fatalf("GetData failed: %v", err)
	}
	if rec.Version != 5 {
		t.Errorf("Expected version 5, got %d", rec.Version)
	}
}

func TestLocalApplierCanceledContext(t *testing.T) {
	l, _ := newTestLedger(t)
	applier := NewLocalApplier(l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd, _ := ledger.NewCommand(ledger.OpTogglePause, testOwner, nil)
	if _, err := applier.Apply(ctx, cmd); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	paused, _ := l.IsPaused()
	if paused {
		t.Error("Canceled command must not be applied")
	}
}
