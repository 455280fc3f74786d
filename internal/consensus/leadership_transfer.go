package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LeadershipRotator hands leadership to another voter on a fixed interval so
// no single node stays the writer for long.
type LeadershipRotator struct {
	node     *Node
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewLeadershipRotator(node *Node, interval time.Duration, logger *zap.Logger) *LeadershipRotator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LeadershipRotator{
		node:     node,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the rotation loop and returns. The loop ends on Stop or when
// ctx is done.
func (r *LeadershipRotator) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("invalid interval: %v", r.interval)
	}

	r.logger.Info("leadership rotator started", zap.Duration("interval", r.interval))
	go r.run(ctx)
	return nil
}

func (r *LeadershipRotator) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.rotate()
		case <-r.stopCh:
			r.logger.Info("leadership rotator stopped")
			return
		case <-ctx.Done():
			r.logger.Info("leadership rotator stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

// rotate is a no-op on followers.
func (r *LeadershipRotator) rotate() {
	if !r.node.IsLeader() {
		r.logger.Debug("not the leader, skipping leadership transfer")
		return
	}

	previous := r.node.config.NodeID
	if err := r.node.TransferLeadership(); err != nil {
		r.logger.Error("leadership transfer failed", zap.Error(err))
		return
	}

	r.logger.Info("leadership transferred",
		zap.String("old_leader", previous),
		zap.String("new_leader", r.node.Leader()))
}

// Stop ends the loop and waits for it to exit. Calling it twice is fine.
func (r *LeadershipRotator) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	select {
	case <-r.done:
	case <-time.After(r.interval + time.Second):
	}
}
