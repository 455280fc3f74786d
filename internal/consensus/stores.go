package consensus

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

const logCacheSize = 512

// openRaftStores opens the log and stable stores for kind. The in-tree bbolt
// store keeps log and stable state in separate files; raft-boltdb keeps both
// in one.
func openRaftStores(kind, dir string) (raft.LogStore, raft.StableStore, []io.Closer, error) {
	switch kind {
	case "", LogStoreBbolt:
		logStore, err := NewBoltStore(filepath.Join(dir, "raft-log.db"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create log store: %w", err)
		}
		stableStore, err := NewBoltStore(filepath.Join(dir, "raft-stable.db"))
		if err != nil {
			logStore.Close()
			return nil, nil, nil, fmt.Errorf("failed to create stable store: %w", err)
		}
		cached, err := raft.NewLogCache(logCacheSize, logStore)
		if err != nil {
			logStore.Close()
			stableStore.Close()
			return nil, nil, nil, fmt.Errorf("failed to create log cache: %w", err)
		}
		return cached, stableStore, []io.Closer{logStore, stableStore}, nil

	case LogStoreBoltDB:
		store, err := raftboltdb.NewBoltStore(filepath.Join(dir, "raft.db"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create raft-boltdb store: %w", err)
		}
		cached, err := raft.NewLogCache(logCacheSize, store)
		if err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("failed to create log cache: %w", err)
		}
		return cached, store, []io.Closer{store}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown raft log store %q", kind)
	}
}
