package consensus

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestLeadershipRotator_Start(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("creates rotator with valid interval", func(t *testing.T) {
		node := &Node{}
		interval := 1 * time.Second

		rotator := NewLeadershipRotator(node, interval, logger)

		if rotator.interval != interval {
			t.Errorf("expected interval %v, got %v", interval, rotator.interval)
		}
		if rotator.node != node {
			t.Error("expected node to be set")
		}
	})

	t.Run("fails with zero interval", func(t *testing.T) {
		rotator := NewLeadershipRotator(&Node{}, 0, logger)

		if err := rotator.Start(context.Background()); err == nil {
			t.Error("expected error for zero interval")
		}
	})

	t.Run("returns without blocking", func(t *testing.T) {
		rotator := NewLeadershipRotator(&Node{}, 10*time.Second, logger)

		started := make(chan error, 1)
		go func() {
			started <- rotator.Start(context.Background())
		}()

		select {
		case err := <-started:
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Start blocked")
		}
		rotator.Stop()
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		rotator := NewLeadershipRotator(&Node{}, 10*time.Second, logger)

		ctx, cancel := context.WithCancel(context.Background())
		if err := rotator.Start(ctx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		cancel()

		select {
		case <-rotator.done:
		case <-time.After(time.Second):
			t.Error("rotator did not stop in time")
		}
	})

	t.Run("Stop is idempotent", func(t *testing.T) {
		rotator := NewLeadershipRotator(&Node{}, 10*time.Millisecond, nil)
		if err := rotator.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		time.Sleep(50 * time.Millisecond)
		rotator.Stop()
		rotator.Stop()

		select {
		case <-rotator.done:
		default:
			t.Error("loop should have exited after Stop")
		}
	})
}

func TestLeadershipRotator_rotate(t *testing.T) {
	t.Run("skips transfer when raft is not running", func(t *testing.T) {
		rotator := NewLeadershipRotator(&Node{config: &NodeConfig{NodeID: "n1"}}, time.Second, zaptest.NewLogger(t))
		rotator.rotate()
	})
}
