package consensus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/witnz/ledgerd/internal/ledger"
)

func startTestCluster(t *testing.T, basePort int) ([]*Node, []*ledger.Ledger) {
	t.Helper()

	ids := []string{"node1", "node2", "node3"}
	addrs := map[string]string{}
	for i, id := range ids {
		addrs[id] = fmt.Sprintf("127.0.0.1:%d", basePort+i+1)
	}

	nodes := make([]*Node, len(ids))
	ledgers := make([]*ledger.Ledger, len(ids))
	for i, id := range ids {
		peers := map[string]string{}
		for _, other := range ids {
			if other != id {
				peers[other] = addrs[other]
			}
		}

		l, store := newTestLedger(t)
		node, err := NewNode(&NodeConfig{
			NodeID:    id,
			BindAddr:  addrs[id],
			DataDir:   t.TempDir(),
			Bootstrap: i == 0,
			PeerAddrs: peers,
		}, l, store)
		if err != nil {
			t.Fatalf("Failed to create %s: %v", id, err)
		}
		nodes[i] = node
		ledgers[i] = l
	}

	ctx := context.Background()
	if err := nodes[0].Start(ctx); err != nil {
		t.Fatalf("Failed to start node1: %v", err)
	}
	t.Cleanup(func() { nodes[0].Stop() })

	time.Sleep(2 * time.Second)

	for i := 1; i < len(nodes); i++ {
		if err := nodes[i].Start(ctx); err != nil {
			t.Fatalf("Failed to start %s: %v", ids[i], err)
		}
		n := nodes[i]
		t.Cleanup(func() { n.Stop() })
	}

	return nodes, ledgers
}

func TestThreeNodeClusterReplicatesLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping cluster test in short mode")
	}

	nodes, ledgers := startTestCluster(t, 17000)
	leader := waitForLeader(t, nodes...)

	leaderAddr := nodes[0].Leader()
	for i, n := range nodes {
		if n.Leader() != leaderAddr {
			t.Errorf("Leader mismatch on node%d: %s vs %s", i+1, n.Leader(), leaderAddr)
		}
	}

	ctx := context.Background()
	cmds := []struct {
		op     string
		caller string
		args   interface{}
	}{
		{ledger.OpAddAdmin, testOwner, ledger.AdminArgs{Identity: "alice", Permissions: ledger.PermAll}},
		{ledger.OpStoreData, "alice", ledger.StoreInput{Key: "k1", Value: 42, Text: "hello"}},
		{ledger.OpStoreData, "alice", ledger.StoreInput{Key: "k1", Value: 43}},
		{ledger.OpCreateBackup, "alice", ledger.BackupArgs{SnapshotID: "s1"}},
	}
	for _, c := range cmds {
		cmd, _ := ledger.NewCommand(c.op, c.caller, c.args)
		if _, err := leader.Apply(ctx, cmd); err != nil {
			t.Fatalf("Apply %s failed: %v", c.op, err)
		}
	}

	for _, n := range nodes {
		if n == leader {
			continue
		}
		cmd, _ := ledger.NewCommand(ledger.OpTogglePause, testOwner, nil)
		if _, err := n.Apply(ctx, cmd); err != ErrNotLeader {
			t.Errorf("Follower apply should fail with ErrNotLeader, got %v", err)
		}
	}

	time.Sleep(2 * time.Second)

	var wantHash string
	for i, l := range ledgers {
		rec, err := l.GetData("k1")
		if err != nil {
			t.Fatalf("node%d: GetData failed: %v", i+1, err)
		}
		if rec.Value != 43 || rec.Version != 2 {
			t.Errorf("node%d: expected value 43 version 2, got %d/%d", i+1, rec.Value, rec.Version)
		}

		snap, err := l.GetSnapshot("s1")
		if err != nil {
			t.Fatalf("node%d: GetSnapshot failed: %v", i+1, err)
		}
		if i == 0 {
			wantHash = snap.ContentHash
		} else if snap.ContentHash != wantHash {
			t.Errorf("node%d: content hash diverged", i+1)
		}
	}
}

func TestClusterLeaderElection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping cluster test in short mode")
	}

	nodes, _ := startTestCluster(t, 18000)
	waitForLeader(t, nodes...)

	leaderCount := 0
	for _, n := range nodes {
		if n.IsLeader() {
			leaderCount++
		}
	}

	if leaderCount != 1 {
		t.Errorf("Expected exactly 1 leader, got %d", leaderCount)
	}
}
