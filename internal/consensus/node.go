package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/storage"
)

const applyTimeout = 10 * time.Second

type NodeConfig struct {
	NodeID        string
	BindAddr      string
	DataDir       string
	Bootstrap     bool
	PeerAddrs     map[string]string
	LogStore      string
	JoinRetries   int
	JoinRetryWait time.Duration
	Logger        *zap.Logger
}

// Node replicates ledger commands with Raft. Only the leader accepts
// commands; every replica applies them through its FSM.
type Node struct {
	config  *NodeConfig
	raft    *raft.Raft
	fsm     *FSM
	ledger  *ledger.Ledger
	storage *storage.Storage
	logger  *zap.Logger
	closers []io.Closer
}

func NewNode(cfg *NodeConfig, l *ledger.Ledger, store *storage.Storage) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Node{
		config:  cfg,
		ledger:  l,
		storage: store,
		logger:  logger.With(zap.String("node_id", cfg.NodeID)),
	}, nil
}

func (n *Node) Start(ctx context.Context) error {
	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(n.config.NodeID)

	raftDir := filepath.Join(n.config.DataDir, "raft")
	if err := os.MkdirAll(raftDir, 0755); err != nil {
		return fmt.Errorf("failed to create raft directory: %w", err)
	}

	logStore, stableStore, closers, err := openRaftStores(n.config.LogStore, raftDir)
	if err != nil {
		return err
	}
	n.closers = closers

	snapshotStore, err := raft.NewFileSnapshotStore(raftDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", n.config.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve address: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.config.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	n.closers = append(n.closers, transport)

	n.fsm = NewFSM(n.ledger, n.storage)

	ra, err := raft.NewRaft(raftConfig, n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}

	n.raft = ra

	if n.config.Bootstrap {
		hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
		if err != nil {
			return fmt.Errorf("failed to check existing state: %w", err)
		}

		if !hasState {
			servers := []raft.Server{
				{
					ID:      raftConfig.LocalID,
					Address: transport.LocalAddr(),
				},
			}

			for peerID, peerAddr := range n.config.PeerAddrs {
				servers = append(servers, raft.Server{
					ID:      raft.ServerID(peerID),
					Address: raft.ServerAddress(peerAddr),
				})
			}

			future := ra.BootstrapCluster(raft.Configuration{Servers: servers})
			if err := future.Error(); err != nil {
				return fmt.Errorf("failed to bootstrap cluster: %w", err)
			}
			n.logger.Info("bootstrapped cluster", zap.Int("servers", len(servers)))
		}
	} else if len(n.config.PeerAddrs) > 0 {
		if err := n.waitForMembership(ctx); err != nil {
			return fmt.Errorf("failed to wait for leader: %w", err)
		}
	}

	return nil
}

func (n *Node) waitForMembership(ctx context.Context) error {
	retries := n.config.JoinRetries
	if retries == 0 {
		retries = 30
	}
	retryWait := n.config.JoinRetryWait
	if retryWait == 0 {
		retryWait = 1 * time.Second
	}

	for i := 0; i < retries; i++ {
		if n.raft.Leader() != "" {
			future := n.raft.GetConfiguration()
			if err := future.Error(); err == nil {
				for _, server := range future.Configuration().Servers {
					if server.ID == raft.ServerID(n.config.NodeID) {
						return nil
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryWait):
		}
	}

	return fmt.Errorf("timeout waiting for leader after %d retries", retries)
}

func (n *Node) Stop() error {
	if n.raft != nil {
		future := n.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}

	var errs []error
	for _, c := range n.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}

// Apply replicates cmd and waits for the local FSM to apply it. The context
// deadline, if any, bounds the wait.
func (n *Node) Apply(ctx context.Context, cmd ledger.Command) (interface{}, error) {
	if !n.IsLeader() {
		return nil, ErrNotLeader
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	timeout := applyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
	}

	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, ErrNotLeader
		}
		return nil, fmt.Errorf("failed to apply command: %w", err)
	}

	switch resp := future.Response().(type) {
	case *ApplyResult:
		return resp.Value, resp.Err
	case error:
		return nil, resp
	default:
		return nil, nil
	}
}

func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

func (n *Node) Leader() string {
	if n.raft == nil {
		return ""
	}
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// Stats reports raft's own counters: state, term, commit and applied indexes.
func (n *Node) Stats() map[string]string {
	if n.raft == nil {
		return map[string]string{"state": "not initialized"}
	}
	return n.raft.Stats()
}

func (n *Node) TransferLeadership() error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	if n.raft.State() != raft.Leader {
		return fmt.Errorf("not the leader, cannot transfer")
	}

	future := n.raft.LeadershipTransfer()
	if err := future.Error(); err != nil {
		return fmt.Errorf("leadership transfer failed: %w", err)
	}

	return nil
}

// WaitForSync blocks until a leader is known and this replica has applied
// everything the cluster has committed. A restarted follower catches up
// through normal log and snapshot replication; this only waits for it.
func (n *Node) WaitForSync(ctx context.Context) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		leader := n.Leader()
		if leader != "" && n.raft.AppliedIndex() >= n.raft.CommitIndex() {
			n.logger.Info("replica in sync",
				zap.String("leader", leader),
				zap.Bool("is_leader", n.IsLeader()),
				zap.Uint64("applied_index", n.raft.AppliedIndex()))
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for sync: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
