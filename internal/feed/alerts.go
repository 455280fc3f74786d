package feed

import (
	"context"

	"github.com/witnz/ledgerd/internal/alert"
	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/storage"
)

// AlertHandler raises Slack alerts for pause-guard changes.
type AlertHandler struct {
	manager *alert.Manager
}

func NewAlertHandler(manager *alert.Manager) *AlertHandler {
	return &AlertHandler{manager: manager}
}

func (h *AlertHandler) Name() string {
	return "alerts"
}

func (h *AlertHandler) HandleOperation(ctx context.Context, op storage.OperationRecord) error {
	if !op.Success {
		return nil
	}

	switch op.Type {
	case ledger.OpEmergencyStop:
		return h.manager.SendEmergencyStopAlert(op.Performer, op.Timestamp)
	case ledger.OpTogglePause:
		paused := op.NewValue != nil && *op.NewValue == 1
		return h.manager.SendPauseAlert(paused, op.Performer, op.Timestamp)
	}
	return nil
}
