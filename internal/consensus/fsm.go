package consensus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/storage"
)

// FSM applies replicated ledger commands. The Raft log index of each entry is
// the height the command runs at, so every replica assigns the same heights.
//
// The ledger file outlives the process, so after a restart Raft replays
// entries whose effects are already stored. Apply skips every entry at or
// below the ledger's applied index.
type FSM struct {
	mu      sync.RWMutex
	ledger  *ledger.Ledger
	storage *storage.Storage
}

func NewFSM(l *ledger.Ledger, store *storage.Storage) *FSM {
	return &FSM{
		ledger:  l,
		storage: store,
	}
}

func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cmd ledger.Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return &ApplyResult{Err: fmt.Errorf("failed to unmarshal command: %w", err)}
	}

	applied, err := f.ledger.AppliedIndex()
	if err != nil {
		return &ApplyResult{Err: fmt.Errorf("failed to read applied index: %w", err)}
	}
	if log.Index <= applied {
		return &ApplyResult{}
	}

	value, err := f.ledger.ExecuteEntry(log.Index, cmd)
	return &ApplyResult{Value: value, Err: err}
}

// Snapshot copies the whole store while Apply is held off; Persist then only
// writes the copy.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var buf bytes.Buffer
	if err := f.storage.Export(&buf); err != nil {
		return nil, fmt.Errorf("failed to export state: %w", err)
	}

	return &fsmSnapshot{data: buf.Bytes()}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer rc.Close()

	if err := f.storage.Import(rc); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return nil
}

type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {
}
