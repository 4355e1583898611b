package stamp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashedFieldCount is the number of inputs folded into a record hash, in
// canonical order: kind, imagePayload, capturedAt, signerName, signerId,
// intent, documentHash.
const hashedFieldCount = 7

// ComputeRecordHash returns the hex SHA-256 of the record's canonical
// serialization. The serialization is a JSON array of the hashed fields in
// fixed order, which is deterministic and unambiguous under any field
// content (JSON escaping keeps field boundaries intact).
func ComputeRecordHash(rec Record) string {
	parts := [hashedFieldCount]string{
		string(rec.Kind),
		rec.ImagePayload,
		rec.CapturedAt,
		rec.SignerName,
		rec.SignerID,
		rec.SignerIntent,
		rec.DocumentHash,
	}

	// Marshal of a string array cannot fail.
	canonical, _ := json.Marshal(parts)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// VerifyRecord reports whether the record's hash still matches its fields.
// A false result means the record was mutated after stamping and must be
// re-stamped, never hash-patched in place.
func VerifyRecord(rec Record) bool {
	return rec.RecordHash != "" && rec.RecordHash == ComputeRecordHash(rec)
}
