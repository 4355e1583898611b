// Package stamp turns raw signature captures into attributed, hashed,
// versioned signature records. A record is stamped exactly once; any later
// mutation invalidates its hash and requires re-stamping.
package stamp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkfield/signview/internal/validate"
)

// Kind distinguishes how a signature was produced
type Kind string

const (
	KindDrawn Kind = "drawn"
	KindTyped Kind = "typed"
)

// RecordVersion identifies the stamping scheme used for a record
const RecordVersion = "1"

// Capture is the raw output of a capture surface before stamping
type Capture struct {
	Kind         Kind
	ImagePayload string // validated inline image data URL
}

// SignerContext carries the identity and session data required for a
// compliant record. All of SignerName, SignerID, DocumentHash plus the
// intent argument must be present; absence fails the stamping attempt
// rather than silently downgrading the record.
type SignerContext struct {
	SignerName   string
	SignerID     string
	SessionID    string
	DocumentHash string
	AuthMethod   string
	IPAddress    string // only recorded when device info collection is opted in
}

// DeviceContext holds opt-in audit metadata. It is omitted entirely unless
// the caller explicitly requests collection.
type DeviceContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// Record is a compliance-stamped signature. RecordHash is computed over the
// canonical serialization of the other hashed fields at stamping time and
// must always be reproducible by VerifyRecord.
type Record struct {
	Version      string         `json:"version"`
	Kind         Kind           `json:"kind"`
	ImagePayload string         `json:"image_payload"`
	CapturedAt   string         `json:"captured_at"` // ISO-8601 UTC
	SignerName   string         `json:"signer_name,omitempty"`
	SignerIntent string         `json:"signer_intent,omitempty"`
	SignerID     string         `json:"signer_id,omitempty"`
	AuthMethod   string         `json:"auth_method,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	RecordHash   string         `json:"record_hash"`
	DocumentHash string         `json:"document_hash,omitempty"`
	Compliant    bool           `json:"compliant"`
	Device       *DeviceContext `json:"device,omitempty"`
}

// DeviceInfoFunc supplies runtime device metadata when collection is opted in
type DeviceInfoFunc func() DeviceContext

// Stamper produces signature records
type Stamper struct {
	now        func() time.Time
	deviceInfo DeviceInfoFunc
}

// Option configures a Stamper
type Option func(*Stamper)

// WithClock overrides the time source, used by tests for determinism
func WithClock(now func() time.Time) Option {
	return func(s *Stamper) { s.now = now }
}

// WithDeviceInfo sets the source of device metadata for opted-in captures
func WithDeviceInfo(fn DeviceInfoFunc) Option {
	return func(s *Stamper) { s.deviceInfo = fn }
}

// NewStamper creates a stamper with the real clock
func NewStamper(opts ...Option) *Stamper {
	s := &Stamper{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stamp validates a capture and produces a compliant record. It fails with a
// ValidationError when the payload is unsafe or any required identity field
// is missing.
func (s *Stamper) Stamp(capture Capture, signer SignerContext, intent string, collectDeviceInfo bool) (Record, error) {
	if err := requireContext(signer, intent); err != nil {
		return Record{}, err
	}
	if err := validate.CheckImagePayload(capture.ImagePayload); err != nil {
		return Record{}, fmt.Errorf("capture payload rejected: %w", err)
	}
	if capture.Kind != KindDrawn && capture.Kind != KindTyped {
		return Record{}, validate.NewValidationError("kind", validate.CodeUnknown,
			fmt.Sprintf("unknown capture kind %q", capture.Kind))
	}

	capturedAt := s.now().UTC().Format(time.RFC3339)

	rec := Record{
		Version:      RecordVersion,
		Kind:         capture.Kind,
		ImagePayload: capture.ImagePayload,
		CapturedAt:   capturedAt,
		SignerName:   signer.SignerName,
		SignerIntent: intent,
		SignerID:     signer.SignerID,
		AuthMethod:   signer.AuthMethod,
		SessionID:    signer.SessionID,
		DocumentHash: signer.DocumentHash,
		Compliant:    true,
	}

	// Device metadata is strictly opt-in, including the IP address already
	// present on the signer context.
	if collectDeviceInfo {
		device := DeviceContext{IPAddress: signer.IPAddress}
		if s.deviceInfo != nil {
			collected := s.deviceInfo()
			if collected.IPAddress != "" {
				device.IPAddress = collected.IPAddress
			}
			device.UserAgent = collected.UserAgent
			device.Platform = collected.Platform
		}
		rec.Device = &device
	}

	rec.RecordHash = ComputeRecordHash(rec)
	return rec, nil
}

// StampMinimal produces an explicitly non-compliant record carrying no
// attribution. Callers must request this variant deliberately; Stamp never
// falls back to it.
func (s *Stamper) StampMinimal(capture Capture) (Record, error) {
	if err := validate.CheckImagePayload(capture.ImagePayload); err != nil {
		return Record{}, fmt.Errorf("capture payload rejected: %w", err)
	}
	if capture.Kind != KindDrawn && capture.Kind != KindTyped {
		return Record{}, validate.NewValidationError("kind", validate.CodeUnknown,
			fmt.Sprintf("unknown capture kind %q", capture.Kind))
	}

	rec := Record{
		Version:      RecordVersion,
		Kind:         capture.Kind,
		ImagePayload: capture.ImagePayload,
		CapturedAt:   s.now().UTC().Format(time.RFC3339),
		Compliant:    false,
	}
	rec.RecordHash = ComputeRecordHash(rec)
	return rec, nil
}

// NewCaptureID generates a cryptographically secure identifier for a
// capture. google/uuid v4 draws from crypto/rand; these ids correlate
// captures with export annotations and attachments.
func NewCaptureID() string {
	return uuid.NewString()
}

func requireContext(signer SignerContext, intent string) error {
	switch {
	case signer.SignerName == "":
		return validate.NewValidationError("signerName", validate.CodeMissingField,
			"signer name is required for a compliant record")
	case signer.SignerID == "":
		return validate.NewValidationError("signerId", validate.CodeMissingField,
			"signer id is required for a compliant record")
	case signer.DocumentHash == "":
		return validate.NewValidationError("documentHash", validate.CodeMissingField,
			"document hash is required for a compliant record")
	case intent == "":
		return validate.NewValidationError("intent", validate.CodeMissingField,
			"signing intent is required for a compliant record")
	}
	return nil
}
