// Package ledger implements the permissioned, versioned key-value ledger:
// pause guard, admin registry, rate limiter, audit log, versioned records,
// batch writes, snapshot markers and categories over one bbolt store.
//
// Every mutating operation runs under a single mutex and inside a single
// storage transaction. The precondition chain is pause, permission,
// validation, rate limit; a failure there returns without an audit entry.
// Anything that passes the chain produces exactly one audit entry.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/hash"
	"github.com/witnz/ledgerd/internal/storage"
)

const (
	MaxAdmins      = 5
	MaxValue       = 1_000_000
	MaxTags        = 5
	MaxBatchSize   = 10
	RateLimitCount = 10

	DefaultRateWindow uint64 = 144
)

// String bounds, in bytes.
const (
	MaxIdentityLen    = 128
	MaxKeyLen         = 64
	MaxTextLen        = 256
	MaxTagLen         = 32
	MaxSnapshotIDLen  = 64
	MaxCategoryLen    = 32
	MaxDescriptionLen = 128
	MaxColorLen       = 16
)

// Call carries the environment of one invocation: who is calling and at which
// height. Index is the replicated log index of the call, zero when the call
// did not come from the log.
type Call struct {
	Caller string
	Height uint64
	Index  uint64
}

// Observer is told about every audit entry after its transaction commits.
// Implementations must not block.
type Observer interface {
	OperationRecorded(op storage.OperationRecord)
}

type Options struct {
	// Owner is the fixed identity allowed to run owner-only operations.
	Owner string
	// RateWindow is the rate limiter window length in heights.
	RateWindow uint64
	Logger     *zap.Logger
}

type Ledger struct {
	mu         sync.Mutex
	store      *storage.Storage
	owner      string
	rateWindow uint64
	logger     *zap.Logger

	obsMu     sync.RWMutex
	observers []Observer
}

func New(store *storage.Storage, opts Options) (*Ledger, error) {
	if opts.Owner == "" {
		return nil, fmt.Errorf("owner identity is required")
	}
	if opts.RateWindow == 0 {
		opts.RateWindow = DefaultRateWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Ledger{
		store:      store,
		owner:      opts.Owner,
		rateWindow: opts.RateWindow,
		logger:     opts.Logger,
	}, nil
}

func (l *Ledger) Owner() string {
	return l.owner
}

func (l *Ledger) AddObserver(o Observer) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, o)
}

func (l *Ledger) notify(op storage.OperationRecord) {
	l.obsMu.RLock()
	defer l.obsMu.RUnlock()
	for _, o := range l.observers {
		o.OperationRecorded(op)
	}
}

// mutate runs one mutating operation. fn performs the precondition chain and
// the mutation, filling in the audit fields of op as it goes. On success op is
// appended in the same transaction. If fn fails with a rejection, the
// transaction rolls back and op is appended alone with success=false.
func (l *Ledger) mutate(call Call, opType string, fn func(tx *storage.Tx, op *storage.OperationRecord) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	op := &storage.OperationRecord{Type: opType, Performer: call.Caller}

	err := l.store.Update(func(tx *storage.Tx) error {
		op.Timestamp = advanceHeight(tx, call.Height)
		if err := fn(tx, op); err != nil {
			return err
		}
		op.Success = true
		if err := recordIndex(tx, call.Index); err != nil {
			return err
		}
		return appendOperation(tx, op)
	})
	if err == nil {
		l.logger.Debug("operation committed",
			zap.Uint64("operation_id", op.ID),
			zap.String("type", op.Type),
			zap.String("performer", op.Performer),
			zap.Uint64("height", op.Timestamp))
		l.notify(*op)
		return nil
	}

	var rej *rejection
	if !errors.As(err, &rej) {
		if KindOf(err) != "" && call.Index > 0 {
			if idxErr := l.store.Update(func(tx *storage.Tx) error {
				return recordIndex(tx, call.Index)
			}); idxErr != nil {
				return fmt.Errorf("failed to record applied index: %w", idxErr)
			}
		}
		return err
	}

	op.Success = false
	logErr := l.store.Update(func(tx *storage.Tx) error {
		advanceHeight(tx, call.Height)
		if err := recordIndex(tx, call.Index); err != nil {
			return err
		}
		return appendOperation(tx, op)
	})
	if logErr != nil {
		return fmt.Errorf("failed to record rejected %s: %w", opType, logErr)
	}

	l.logger.Info("operation rejected",
		zap.Uint64("operation_id", op.ID),
		zap.String("type", op.Type),
		zap.String("performer", op.Performer),
		zap.Error(rej.err))
	l.notify(*op)
	return rej.err
}

// view runs a read-only transaction. Reads never take the writer mutex; bbolt
// gives them a consistent snapshot.
func (l *Ledger) view(fn func(tx *storage.Tx) error) error {
	return l.store.View(fn)
}

// advanceHeight records the height of the current call and returns the
// effective height. A height lower than the stored one is clamped up so the
// stored height never decreases.
func advanceHeight(tx *storage.Tx, height uint64) uint64 {
	current := tx.GetUint64(storage.MetaHeight)
	if height < current {
		return current
	}
	// bbolt only fails a Put on a read-only tx or an oversized key; neither
	// applies to metadata.
	_ = tx.SetUint64(storage.MetaHeight, height)
	return height
}

// recordIndex stores the log index of the call being applied. Zero means the
// call was not replicated and leaves the stored index alone.
func recordIndex(tx *storage.Tx, index uint64) error {
	if index == 0 || index <= tx.GetUint64(storage.MetaAppliedIndex) {
		return nil
	}
	return tx.SetUint64(storage.MetaAppliedIndex, index)
}

// appendOperation assigns the next operation id, links op into the hash
// chain, and stores it.
func appendOperation(tx *storage.Tx, op *storage.OperationRecord) error {
	op.ID = tx.GetUint64(storage.MetaTotalOperations)

	previous := tx.GetString(storage.MetaLastOperationHash)
	if previous == "" {
		previous = hash.Genesis
	}
	dataHash, err := op.DataHash()
	if err != nil {
		return fmt.Errorf("failed to hash operation: %w", err)
	}
	op.PreviousHash = previous
	op.Hash = hash.Link(previous, dataHash)

	if err := tx.PutOperation(op); err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	if err := tx.SetUint64(storage.MetaTotalOperations, op.ID+1); err != nil {
		return err
	}
	return tx.SetString(storage.MetaLastOperationHash, op.Hash)
}

func (l *Ledger) requireOwner(call Call) error {
	if call.Caller != l.owner {
		return newError(KindOwnerOnly, "%q is not the owner", call.Caller)
	}
	return nil
}

func requireNotPaused(tx *storage.Tx) error {
	if tx.GetBool(storage.MetaPaused) {
		return ErrContractPaused
	}
	return nil
}

func requirePermission(tx *storage.Tx, identity string, required Permission) error {
	if !hasPermission(tx, identity, required) {
		return newError(KindNotAdmin, "%q lacks %s permission", identity, required)
	}
	return nil
}

func validateString(field, s string, max int) error {
	if s == "" {
		return newError(KindInvalidValue, "%s is required", field)
	}
	if len(s) > max {
		return newError(KindInvalidValue, "%s exceeds %d bytes", field, max)
	}
	return nil
}

func validateOptionalString(field, s string, max int) error {
	if len(s) > max {
		return newError(KindInvalidValue, "%s exceeds %d bytes", field, max)
	}
	return nil
}

func u64(v uint64) *uint64 {
	return &v
}

func boolValue(b bool) *uint64 {
	if b {
		return u64(1)
	}
	return u64(0)
}

func str(s string) *string {
	return &s
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, storage.ErrNotFound) {
		return newError(KindNotFound, format, args...)
	}
	return err
}
