package consensus

import (
	"path/filepath"
	"testing"

	"github.com/hashicorp/raft"
)

func TestBoltStoreLogs(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "raft.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer store.Close()

	first, _ := store.FirstIndex()
	last, _ := store.LastIndex()
	if first != 0 || last != 0 {
		t.Fatalf("Empty store should report 0/0, got %d/%d", first, last)
	}

	logs := []*raft.Log{
		{Index: 1, Term: 1, Type: raft.LogCommand, Data: []byte("one")},
		{Index: 2, Term: 1, Type: raft.LogCommand, Data: []byte("two")},
		{Index: 3, Term: 2, Type: raft.LogNoop},
	}
	if err := store.StoreLogs(logs); err != nil {
		t.Fatalf("StoreLogs failed: %v", err)
	}

	var got raft.Log
	if err := store.GetLog(2, &got); err != nil {
		t.Fatalf("GetLog failed: %v", err)
	}
	if got.Term != 1 || string(got.Data) != "two" || got.Type != raft.LogCommand {
		t.Errorf("Unexpected log: %+v", got)
	}

	if err := store.DeleteRange(1, 2); err != nil {
		t.Fatalf("DeleteRange failed: %v", err)
	}
	first, _ = store.FirstIndex()
	last, _ = store.LastIndex()
	if first != 3 || last != 3 {
		t.Errorf("Expected 3/3 after delete, got %d/%d", first, last)
	}

	if err := store.GetLog(1, &got); err != raft.ErrLogNotFound {
		t.Errorf("Expected ErrLogNotFound, got %v", err)
	}
}

func TestBoltStoreStable(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "stable.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer store.Close()

	if val, _ := store.Get([]byte("missing")); val != nil {
		t.Errorf("Expected nil for missing key, got %v", val)
	}

	if err := store.SetUint64([]byte("CurrentTerm"), 42); err != nil {
		t.Fatalf("SetUint64 failed: %v", err)
	}
	term, err := store.GetUint64([]byte("CurrentTerm"))
	if err != nil {
		t.Fatalf("GetUint64 failed: %v", err)
	}
	if term != 42 {
		t.Errorf("Expected 42, got %d", term)
	}

	store.Set([]byte("bad"), []byte{1, 2})
	if _, err := store.GetUint64([]byte("bad")); err == nil {
		t.Error("Expected error for malformed uint64")
	}
}

func TestOpenRaftStores(t *testing.T) {
	for _, kind := range []string{"", LogStoreBbolt, LogStoreBoltDB} {
		logStore, stableStore, closers, err := openRaftStores(kind, t.TempDir())
		if err != nil {
			t.Fatalf("openRaftStores(%q) failed: %v", kind, err)
		}

		if err := logStore.StoreLog(&raft.Log{Index: 1, Term: 1, Data: []byte("x")}); err != nil {
			t.Errorf("%q: StoreLog failed: %v", kind, err)
		}
		if err := stableStore.SetUint64([]byte("k"), 1); err != nil {
			t.Errorf("%q: SetUint64 failed: %v", kind, err)
		}

		for _, c := range closers {
			c.Close()
		}
	}

	if _, _, _, err := openRaftStores("leveldb", t.TempDir()); err == nil {
		t.Error("Expected error for unknown store kind")
	}
}
