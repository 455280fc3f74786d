package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command is the serialized form of one mutating call. It is what the
// single-node applier and the Raft log carry; the height is supplied when the
// command is applied.
type Command struct {
	Op     string          `json:"op"`
	Caller string          `json:"caller"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type AdminArgs struct {
	Identity    string     `json:"identity"`
	Permissions Permission `json:"permissions"`
}

type LockArgs struct {
	Key    string `json:"key"`
	Locked bool   `json:"locked"`
}

type BatchArgs struct {
	Items []BatchItem `json:"items"`
}

type BackupArgs struct {
	SnapshotID string `json:"snapshot_id"`
}

type CategoryArgs struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

type VersionArgs struct {
	Version uint64 `json:"version"`
}

// NewCommand builds a command with args encoded as JSON.
func NewCommand(op, caller string, args interface{}) (Command, error) {
	cmd := Command{Op: op, Caller: caller}
	if args == nil {
		return cmd, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Command{}, fmt.Errorf("failed to encode %s args: %w", op, err)
	}
	cmd.Args = data
	return cmd, nil
}

func (c Command) decode(v interface{}) error {
	if len(c.Args) == 0 {
		return newError(KindInvalidValue, "%s requires arguments", c.Op)
	}
	if err := json.Unmarshal(c.Args, v); err != nil {
		var le *Error
		if errors.As(err, &le) {
			return le
		}
		return newError(KindInvalidValue, "malformed %s arguments: %v", c.Op, err)
	}
	return nil
}

// Execute applies cmd at height and returns the operation's result value, if
// it has one.
func (l *Ledger) Execute(height uint64, cmd Command) (interface{}, error) {
	return l.execute(Call{Caller: cmd.Caller, Height: height}, cmd)
}

// ExecuteEntry applies cmd as the replicated log entry at index, which is also
// its height. The index is stored with the call's effects so AppliedIndex
// tells a replaying replica where its state already stands.
func (l *Ledger) ExecuteEntry(index uint64, cmd Command) (interface{}, error) {
	return l.execute(Call{Caller: cmd.Caller, Height: index, Index: index}, cmd)
}

func (l *Ledger) execute(call Call, cmd Command) (interface{}, error) {
	switch cmd.Op {
	case OpTogglePause:
		return l.TogglePause(call)

	case OpEmergencyStop:
		return nil, l.EmergencyStop(call)

	case OpAddAdmin:
		var args AdminArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.AddAdmin(call, args.Identity, args.Permissions)

	case OpUpdatePermissions:
		var args AdminArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.UpdateAdminPermissions(call, args.Identity, args.Permissions)

	case OpDeactivateAdmin:
		var args AdminArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.DeactivateAdmin(call, args.Identity)

	case OpStoreData:
		var args StoreInput
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return l.StoreData(call, args)

	case OpLockData:
		var args LockArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.LockData(call, args.Key, args.Locked)

	case OpBatchStore:
		var args BatchArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.BatchStore(call, args.Items)

	case OpCreateBackup:
		var args BackupArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return l.CreateBackup(call, args.SnapshotID)

	case OpAddCategory:
		var args CategoryArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.AddCategory(call, args.Category, args.Description, args.Color)

	case OpDeactivateCategory:
		var args CategoryArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.DeactivateCategory(call, args.Category)

	case OpUpdateVersion:
		var args VersionArgs
		if err := cmd.decode(&args); err != nil {
			return nil, err
		}
		return nil, l.UpdateVersion(call, args.Version)

	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Op)
	}
}
