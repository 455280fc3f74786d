package consensus

import (
	"context"
	"errors"

	"github.com/witnz/ledgerd/internal/ledger"
)

// ErrNotLeader is returned when a command is submitted to a follower.
var ErrNotLeader = errors.New("not the leader")

// Applier runs ledger commands in one global order and assigns each its
// height.
type Applier interface {
	Apply(ctx context.Context, cmd ledger.Command) (interface{}, error)
}

// ApplyResult is what the FSM hands back through the Raft apply future.
type ApplyResult struct {
	Value interface{}
	Err   error
}

// Raft log and stable store backends.
const (
	LogStoreBbolt  = "bbolt"
	LogStoreBoltDB = "boltdb"
)
