package verify

import (
	"errors"
	"fmt"
)

// TamperingError reports audit data that no longer matches what was
// committed. OperationID is set for chain breaks, SnapshotID for snapshot
// mismatches.
type TamperingError struct {
	OperationID uint64
	SnapshotID  string
	Reason      string
}

func (e *TamperingError) Error() string {
	if e.SnapshotID != "" {
		return fmt.Sprintf("TAMPERING DETECTED: snapshot %s: %s", e.SnapshotID, e.Reason)
	}
	return fmt.Sprintf("TAMPERING DETECTED: operation %d: %s", e.OperationID, e.Reason)
}

func (e *TamperingError) IsTampering() bool {
	return true
}

func NewTamperingError(operationID uint64, reason string) *TamperingError {
	return &TamperingError{
		OperationID: operationID,
		Reason:      reason,
	}
}

func newSnapshotTamperingError(snapshotID, reason string) *TamperingError {
	return &TamperingError{
		SnapshotID: snapshotID,
		Reason:     reason,
	}
}

func IsTamperingError(err error) bool {
	return AsTamperingError(err) != nil
}

func AsTamperingError(err error) *TamperingError {
	var te *TamperingError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
