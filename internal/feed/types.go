package feed

import (
	"context"

	"github.com/witnz/ledgerd/internal/storage"
)

// Handler consumes committed audit entries in operation order.
type Handler interface {
	Name() string
	HandleOperation(ctx context.Context, op storage.OperationRecord) error
}
