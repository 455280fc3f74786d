package consensus

import (
	"context"
	"sync"

	"github.com/witnz/ledgerd/internal/ledger"
)

// LocalApplier serializes commands on a single node. Each command is applied
// one height above the last height the ledger has seen.
type LocalApplier struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
}

func NewLocalApplier(l *ledger.Ledger) *LocalApplier {
	return &LocalApplier{ledger: l}
}

func (a *LocalApplier) Apply(ctx context.Context, cmd ledger.Command) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	height, err := a.ledger.Height()
	if err != nil {
		return nil, err
	}
	return a.ledger.Execute(height+1, cmd)
}
