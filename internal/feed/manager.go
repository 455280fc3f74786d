// Package feed delivers committed audit entries to external consumers. The
// ledger publishes into a buffered channel and never waits; one worker fans
// each entry out to the registered handlers in order.
package feed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/alert"
	"github.com/witnz/ledgerd/internal/storage"
)

const (
	DefaultBufferSize  = 1024
	defaultMaxAttempts = 5
	maxBackoff         = 30 * time.Second
)

type Options struct {
	BufferSize int
	// MaxAttempts bounds delivery retries per handler and entry.
	MaxAttempts int
	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff  time.Duration
	Logger       *zap.Logger
	AlertManager *alert.Manager
}

type Manager struct {
	events       chan storage.OperationRecord
	handlers     []Handler
	mu           sync.RWMutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
	dropped      atomic.Uint64
	delivered    atomic.Uint64
	maxAttempts  int
	baseBackoff  time.Duration
	logger       *zap.Logger
	alertManager *alert.Manager
}

func NewManager(opts Options) *Manager {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Manager{
		events:       make(chan storage.OperationRecord, opts.BufferSize),
		handlers:     make([]Handler, 0),
		stopCh:       make(chan struct{}),
		maxAttempts:  opts.MaxAttempts,
		baseBackoff:  opts.BaseBackoff,
		logger:       opts.Logger,
		alertManager: opts.AlertManager,
	}
}

func (m *Manager) AddHandler(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// OperationRecorded queues op for delivery. A full buffer drops the entry;
// the audit log itself is unaffected and Dropped reports the loss.
func (m *Manager) OperationRecorded(op storage.OperationRecord) {
	select {
	case m.events <- op:
	default:
		m.dropped.Add(1)
		m.logger.Warn("operation feed full, dropping entry",
			zap.Uint64("operation_id", op.ID),
			zap.Uint64("dropped_total", m.dropped.Load()))
	}
}

func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Manager) Delivered() uint64 {
	return m.delivered.Load()
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("feed already running")
	}

	m.running = true
	m.wg.Add(1)
	go m.run(ctx)

	return nil
}

// Stop halts the worker after it has delivered what is already queued.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.events:
			m.dispatch(ctx, op)
		case <-ctx.Done():
			return
		case <-m.stopCh:
			for {
				select {
				case op := <-m.events:
					m.dispatch(ctx, op)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, op storage.OperationRecord) {
	m.mu.RLock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if err := m.deliver(ctx, handler, op); err != nil {
			m.logger.Error("operation delivery failed",
				zap.String("handler", handler.Name()),
				zap.Uint64("operation_id", op.ID),
				zap.Error(err))

			if m.alertManager != nil {
				_ = m.alertManager.SendSystemAlert(
					"Operation Feed Delivery Failed",
					fmt.Sprintf("%s gave up on operation %d: %v", handler.Name(), op.ID, err),
					"warning",
				)
			}
		}
	}
	m.delivered.Add(1)
}

func (m *Manager) deliver(ctx context.Context, handler Handler, op storage.OperationRecord) error {
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err = handler.HandleOperation(ctx, op); err == nil {
			return nil
		}
		if attempt == m.maxAttempts {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * m.baseBackoff
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		m.logger.Warn("operation delivery failed, retrying",
			zap.String("handler", handler.Name()),
			zap.Uint64("operation_id", op.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
