// Package tracker derives completion and navigation state from the field
// list and the ledger keys. It never trusts a ledger key that has no
// corresponding field: such a key is a tamper or stale-state signal and is
// excluded from every count.
package tracker

import (
	"log"

	"github.com/inkfield/signview/internal/fields"
)

// Tracker computes document-level signing state
type Tracker struct {
	fields  []fields.SignatureField
	index   map[string]int // field id → position in fields
	current int
	logger  *log.Logger
}

// New creates a tracker over the given field list. A nil logger falls back
// to the standard logger.
func New(fieldList []fields.SignatureField, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	index := make(map[string]int, len(fieldList))
	for i, f := range fieldList {
		index[f.ID] = i
	}
	return &Tracker{
		fields: fieldList,
		index:  index,
		logger: logger,
	}
}

// AllSigned reports whether every required field has a ledger entry. A
// document with zero required fields is never reported as fully signed:
// the vacuous true would let a caller skip signing entirely.
func (t *Tracker) AllSigned(ledgerKeys []string) bool {
	return t.allSigned(t.validKeySet(ledgerKeys))
}

func (t *Tracker) allSigned(signed map[string]bool) bool {
	requiredTotal := 0
	requiredSigned := 0
	for _, f := range t.fields {
		if !f.Required {
			continue
		}
		requiredTotal++
		if signed[f.ID] {
			requiredSigned++
		}
	}
	return requiredTotal > 0 && requiredSigned >= requiredTotal
}

// NextUnsigned returns the first field in list order without a ledger entry
// and moves the current index to it. Once every required field carries an
// entry the document is complete and there is nothing left to prompt for;
// unsigned optional fields are not offered.
func (t *Tracker) NextUnsigned(ledgerKeys []string) (fields.SignatureField, bool) {
	signed := t.validKeySet(ledgerKeys)
	if t.allSigned(signed) {
		return fields.SignatureField{}, false
	}
	for i, f := range t.fields {
		if !signed[f.ID] {
			t.current = i
			return f, true
		}
	}
	return fields.SignatureField{}, false
}

// PreviousSigned returns the last field in list order with a ledger entry
// and moves the current index to it.
func (t *Tracker) PreviousSigned(ledgerKeys []string) (fields.SignatureField, bool) {
	signed := t.validKeySet(ledgerKeys)
	for i := len(t.fields) - 1; i >= 0; i-- {
		if signed[t.fields[i].ID] {
			t.current = i
			return t.fields[i], true
		}
	}
	return fields.SignatureField{}, false
}

// CurrentIndex returns the position of the field last returned by
// NextUnsigned or PreviousSigned. It starts at 0.
func (t *Tracker) CurrentIndex() int {
	return t.current
}

// Fields returns the tracked field list
func (t *Tracker) Fields() []fields.SignatureField {
	return t.fields
}

// validKeySet filters ledger keys down to ids present in the field list.
// Orphaned keys are logged at error severity and dropped.
func (t *Tracker) validKeySet(ledgerKeys []string) map[string]bool {
	signed := make(map[string]bool, len(ledgerKeys))
	for _, key := range ledgerKeys {
		if _, ok := t.index[key]; !ok {
			t.logger.Printf("ERROR: ledger entry %q has no matching signature field; excluding (possible tampering or stale state)", key)
			continue
		}
		signed[key] = true
	}
	return signed
}
