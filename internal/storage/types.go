package storage

import (
	"github.com/witnz/ledgerd/internal/hash"
)

type AdminEntry struct {
	Identity    string `json:"identity"`
	Permissions uint8  `json:"permissions"`
	AddedAt     uint64 `json:"added_at"`
	AddedBy     string `json:"added_by"`
	Active      bool   `json:"active"`
}

type Record struct {
	Key       string   `json:"key"`
	Value     uint64   `json:"value"`
	Text      string   `json:"text"`
	UpdatedBy string   `json:"updated_by"`
	UpdatedAt uint64   `json:"updated_at"`
	Version   uint64   `json:"version"`
	Locked    bool     `json:"locked"`
	Tags      []string `json:"tags"`
}

// HasTag reports whether tag is a member of the record's tag set.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type OperationRecord struct {
	ID           uint64  `json:"operation_id"`
	Type         string  `json:"operation_type"`
	Key          *string `json:"key,omitempty"`
	OldValue     *uint64 `json:"old_value,omitempty"`
	NewValue     *uint64 `json:"new_value,omitempty"`
	Performer    string  `json:"performer"`
	Timestamp    uint64  `json:"timestamp"`
	Success      bool    `json:"success"`
	PreviousHash string  `json:"previous_hash"`
	Hash         string  `json:"hash"`
}

// operationDigest is the hashed view of an OperationRecord: everything except
// the chain fields themselves.
type operationDigest struct {
	ID        uint64  `json:"operation_id"`
	Type      string  `json:"operation_type"`
	Key       *string `json:"key"`
	OldValue  *uint64 `json:"old_value"`
	NewValue  *uint64 `json:"new_value"`
	Performer string  `json:"performer"`
	Timestamp uint64  `json:"timestamp"`
	Success   bool    `json:"success"`
}

// DataHash hashes the record content without its chain links.
func (o *OperationRecord) DataHash() (string, error) {
	return hash.Calculate(operationDigest{
		ID:        o.ID,
		Type:      o.Type,
		Key:       o.Key,
		OldValue:  o.OldValue,
		NewValue:  o.NewValue,
		Performer: o.Performer,
		Timestamp: o.Timestamp,
		Success:   o.Success,
	})
}

type ActivityEntry struct {
	User            string `json:"user"`
	LastAction      uint64 `json:"last_action"`
	ActionCount     uint64 `json:"action_count"`
	RateWindowStart uint64 `json:"rate_window_start"`
}

type SnapshotRecord struct {
	SnapshotID  string `json:"snapshot_id"`
	CreatedAt   uint64 `json:"created_at"`
	CreatedBy   string `json:"created_by"`
	DataCount   uint64 `json:"data_count"`
	ContentHash string `json:"content_hash"`
	AuditRoot   string `json:"audit_root"`
}

type CategoryRecord struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Active      bool   `json:"active"`
}
