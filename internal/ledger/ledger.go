// Package ledger is the in-memory store of field id → signature record. It
// is deliberately unopinionated: relating ledger keys to the document's
// field list is the tracker's job, keeping this store a simple fast map.
package ledger

import (
	"sort"

	"github.com/inkfield/signview/internal/stamp"
)

// Ledger maps signature field ids to captured records. It is not safe for
// concurrent use; the viewer serializes all mutation through its modal
// capture flow.
type Ledger struct {
	records map[string]stamp.Record
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{records: make(map[string]stamp.Record)}
}

// Apply stores a record for the field, replacing any existing record
// (last write wins, no merge).
func (l *Ledger) Apply(fieldID string, rec stamp.Record) {
	l.records[fieldID] = rec
}

// Clear removes the record for the field and reports whether one existed
func (l *Ledger) Clear(fieldID string) bool {
	if _, ok := l.records[fieldID]; !ok {
		return false
	}
	delete(l.records, fieldID)
	return true
}

// Get returns the record for the field
func (l *Ledger) Get(fieldID string) (stamp.Record, bool) {
	rec, ok := l.records[fieldID]
	return rec, ok
}

// Has reports whether the field has a record
func (l *Ledger) Has(fieldID string) bool {
	_, ok := l.records[fieldID]
	return ok
}

// Len returns the number of stored records
func (l *Ledger) Len() int {
	return len(l.records)
}

// Keys returns the stored field ids in sorted order
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.records))
	for k := range l.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the store. Mutating the copy does not affect
// the ledger.
func (l *Ledger) Snapshot() map[string]stamp.Record {
	out := make(map[string]stamp.Record, len(l.records))
	for k, v := range l.records {
		out[k] = v
	}
	return out
}
