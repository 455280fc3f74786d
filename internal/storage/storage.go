package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	AdminsBucket     = []byte("admins")
	RecordsBucket    = []byte("records")
	OperationsBucket = []byte("operations")
	ActivityBucket   = []byte("activity")
	SnapshotsBucket  = []byte("snapshots")
	CategoriesBucket = []byte("categories")
	MetadataBucket   = []byte("metadata")
)

var allBuckets = [][]byte{
	AdminsBucket,
	RecordsBucket,
	OperationsBucket,
	ActivityBucket,
	SnapshotsBucket,
	CategoriesBucket,
	MetadataBucket,
}

// Metadata keys.
const (
	MetaTotalOperations   = "total_operations"
	MetaLastOperationHash = "last_operation_hash"
	MetaPaused            = "paused"
	MetaLastBackupHeight  = "last_backup_height"
	MetaContractVersion   = "contract_version"
	MetaHeight            = "height"
	MetaAppliedIndex      = "applied_index"
)

// ErrNotFound is returned when a key is absent from its bucket.
var ErrNotFound = errors.New("not found")

type Storage struct {
	db *bolt.DB
}

func New(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Path() string {
	return s.db.Path()
}

// Update runs fn in a read-write transaction. Returning an error rolls back
// every write fn made.
func (s *Storage) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

func (s *Storage) View(fn func(tx *Tx) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// Tx is a typed view over one bbolt transaction.
type Tx struct {
	tx *bolt.Tx
}

func (t *Tx) getJSON(bucket []byte, key []byte, v interface{}) error {
	data := t.tx.Bucket(bucket).Get(key)
	if data == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s entry: %w", bucket, err)
	}
	return nil
}

func (t *Tx) putJSON(bucket []byte, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry: %w", bucket, err)
	}
	return t.tx.Bucket(bucket).Put(key, data)
}

func (t *Tx) GetAdmin(identity string) (*AdminEntry, error) {
	var entry AdminEntry
	if err := t.getJSON(AdminsBucket, []byte(identity), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *Tx) PutAdmin(entry *AdminEntry) error {
	return t.putJSON(AdminsBucket, []byte(entry.Identity), entry)
}

// CountAdmins counts entries by cursor; bucket stats do not see writes that
// are still pending in this transaction.
func (t *Tx) CountAdmins() int {
	n := 0
	cursor := t.tx.Bucket(AdminsBucket).Cursor()
	for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
		n++
	}
	return n
}

func (t *Tx) GetRecord(key string) (*Record, error) {
	var rec Record
	if err := t.getJSON(RecordsBucket, []byte(key), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *Tx) PutRecord(rec *Record) error {
	return t.putJSON(RecordsBucket, []byte(rec.Key), rec)
}

func (t *Tx) GetActivity(user string) (*ActivityEntry, error) {
	var entry ActivityEntry
	if err := t.getJSON(ActivityBucket, []byte(user), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *Tx) PutActivity(entry *ActivityEntry) error {
	return t.putJSON(ActivityBucket, []byte(entry.User), entry)
}

func (t *Tx) GetSnapshot(id string) (*SnapshotRecord, error) {
	var snap SnapshotRecord
	if err := t.getJSON(SnapshotsBucket, []byte(id), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (t *Tx) PutSnapshot(snap *SnapshotRecord) error {
	return t.putJSON(SnapshotsBucket, []byte(snap.SnapshotID), snap)
}

// ForEachSnapshot visits snapshot markers in id order.
func (t *Tx) ForEachSnapshot(fn func(snap *SnapshotRecord) error) error {
	return t.tx.Bucket(SnapshotsBucket).ForEach(func(k, v []byte) error {
		var snap SnapshotRecord
		if err := json.Unmarshal(v, &snap); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot %s: %w", k, err)
		}
		return fn(&snap)
	})
}

func (t *Tx) GetCategory(category string) (*CategoryRecord, error) {
	var rec CategoryRecord
	if err := t.getJSON(CategoriesBucket, []byte(category), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *Tx) PutCategory(rec *CategoryRecord) error {
	return t.putJSON(CategoriesBucket, []byte(rec.Category), rec)
}

func operationKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// PutOperation stores an audit entry keyed by its big-endian id so cursor order
// is operation order.
func (t *Tx) PutOperation(op *OperationRecord) error {
	return t.putJSON(OperationsBucket, operationKey(op.ID), op)
}

func (t *Tx) GetOperation(id uint64) (*OperationRecord, error) {
	var op OperationRecord
	if err := t.getJSON(OperationsBucket, operationKey(id), &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// ForEachOperation visits audit entries in id order starting at from. Returning
// an error from fn stops the walk.
func (t *Tx) ForEachOperation(from uint64, fn func(op *OperationRecord) error) error {
	cursor := t.tx.Bucket(OperationsBucket).Cursor()
	for k, v := cursor.Seek(operationKey(from)); k != nil; k, v = cursor.Next() {
		var op OperationRecord
		if err := json.Unmarshal(v, &op); err != nil {
			return fmt.Errorf("failed to unmarshal operation %d: %w", binary.BigEndian.Uint64(k), err)
		}
		if err := fn(&op); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) GetUint64(key string) uint64 {
	data := t.tx.Bucket(MetadataBucket).Get([]byte(key))
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func (t *Tx) SetUint64(key string, val uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, val)
	return t.tx.Bucket(MetadataBucket).Put([]byte(key), buf)
}

func (t *Tx) GetBool(key string) bool {
	data := t.tx.Bucket(MetadataBucket).Get([]byte(key))
	return len(data) == 1 && data[0] == 1
}

func (t *Tx) SetBool(key string, val bool) error {
	b := byte(0)
	if val {
		b = 1
	}
	return t.tx.Bucket(MetadataBucket).Put([]byte(key), []byte{b})
}

func (t *Tx) GetString(key string) string {
	return string(t.tx.Bucket(MetadataBucket).Get([]byte(key)))
}

func (t *Tx) SetString(key, val string) error {
	return t.tx.Bucket(MetadataBucket).Put([]byte(key), []byte(val))
}

type kv struct {
	Key   []byte `json:"k"`
	Value []byte `json:"v"`
}

type dump struct {
	Buckets map[string][]kv `json:"buckets"`
}

// Export writes every bucket as JSON. It backs Raft snapshots.
func (s *Storage) Export(w io.Writer) error {
	d := dump{Buckets: make(map[string][]kv, len(allBuckets))}

	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			pairs := make([]kv, 0)
			err := tx.Bucket(name).ForEach(func(k, v []byte) error {
				pairs = append(pairs, kv{
					Key:   append([]byte(nil), k...),
					Value: append([]byte(nil), v...),
				})
				return nil
			})
			if err != nil {
				return err
			}
			d.Buckets[string(name)] = pairs
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read buckets: %w", err)
	}

	return json.NewEncoder(w).Encode(d)
}

// Import replaces the content of every bucket with the dump read from r.
func (s *Storage) Import(r io.Reader) error {
	var d dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return fmt.Errorf("failed to decode dump: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("failed to drop bucket %s: %w", name, err)
			}
			bucket, err := tx.CreateBucket(name)
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
			for _, pair := range d.Buckets[string(name)] {
				if err := bucket.Put(pair.Key, pair.Value); err != nil {
					return fmt.Errorf("failed to restore %s entry: %w", name, err)
				}
			}
		}
		return nil
	})
}
