// Package viewer owns the document signing session: it loads documents
// through the rendering engine, coordinates the modal capture flow, and
// exposes navigation, completion and export over the field list and ledger.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/inkfield/signview/internal/export"
	"github.com/inkfield/signview/internal/fields"
	"github.com/inkfield/signview/internal/ledger"
	"github.com/inkfield/signview/internal/stamp"
	"github.com/inkfield/signview/internal/tracker"
	"github.com/inkfield/signview/internal/validate"
)

// Lifecycle errors surfaced by the viewer
var (
	ErrLoadCancelled     = errors.New("document load cancelled by a newer load")
	ErrNoDocument        = errors.New("no document is loaded")
	ErrCaptureInProgress = errors.New("a signature capture is already in progress")
	ErrNoActiveCapture   = errors.New("no signature capture is in progress")
	ErrUnknownField      = errors.New("unknown signature field")
	ErrEmptyCapture      = errors.New("capture surface is empty")
)

// RenderEngine loads documents. The engine fetches and parses whatever
// source it is given; the viewer vets sources before they reach it.
type RenderEngine interface {
	Load(ctx context.Context, source string) (Document, error)
}

// Document is a loaded document held by the rendering engine. The engine
// holds heavyweight resources per document (decoded page caches, worker
// handles), so every Document must be disposed exactly once, including
// documents whose load completed after cancellation.
type Document interface {
	PageCount() int
	PageAnnotations(pageIndex int) ([]fields.RawAnnotation, error)
	PageDimensions(pageIndex int) (width, height float64, err error)
	Dispose()
}

// CaptureSurface is the freehand capture collaborator
type CaptureSurface interface {
	ToImagePayload() (string, error)
	IsEmpty() bool
	Clear()
}

// Viewer is a plain stateful session object. It is not safe for concurrent
// use from multiple goroutines except for LoadDocument, which serializes
// against itself so a newer load always wins.
type Viewer struct {
	mu sync.Mutex

	engine  RenderEngine
	policy  *validate.SourcePolicy
	stamper *stamp.Stamper
	logger  *log.Logger

	loadSeq    uint64
	cancelLoad context.CancelFunc

	doc         Document
	fieldList   []fields.SignatureField
	pageHeights map[int]float64
	ledger      *ledger.Ledger
	tracker     *tracker.Tracker

	captureFieldID string
	captureActive  bool
}

// Option configures a Viewer
type Option func(*Viewer)

// WithLogger sets the session logger
func WithLogger(logger *log.Logger) Option {
	return func(v *Viewer) { v.logger = logger }
}

// New creates a viewer session. The engine and source policy are explicit
// dependencies supplied once at construction; there is no module-level
// engine or worker configuration.
func New(engine RenderEngine, policy *validate.SourcePolicy, stamper *stamp.Stamper, opts ...Option) *Viewer {
	v := &Viewer{
		engine:      engine,
		policy:      policy,
		stamper:     stamper,
		logger:      log.Default(),
		ledger:      ledger.New(),
		tracker:     tracker.New(nil, nil),
		pageHeights: make(map[int]float64),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// LoadDocument validates the source, loads it through the engine and
// replaces the current session state. Starting a new load cancels any load
// still in flight; a cancelled load that completes late is disposed
// immediately and its result discarded.
func (v *Viewer) LoadDocument(ctx context.Context, source string) error {
	if err := v.policy.CheckDocumentSource(source); err != nil {
		v.logger.Printf("rejected document source: %v", err)
		return err
	}

	v.mu.Lock()
	v.loadSeq++
	seq := v.loadSeq
	if v.cancelLoad != nil {
		v.cancelLoad()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	v.cancelLoad = cancel
	v.mu.Unlock()

	doc, err := v.engine.Load(loadCtx, source)

	v.mu.Lock()
	defer v.mu.Unlock()

	if seq != v.loadSeq {
		// A newer load superseded this one while it was in flight.
		if doc != nil {
			doc.Dispose()
		}
		return ErrLoadCancelled
	}
	cancel()
	v.cancelLoad = nil

	if err != nil {
		return fmt.Errorf("document load failed: %w", err)
	}

	v.replaceDocument(doc)
	return nil
}

// replaceDocument swaps session state to the new document. Callers hold mu.
func (v *Viewer) replaceDocument(doc Document) {
	if v.doc != nil {
		v.doc.Dispose()
	}
	v.doc = doc

	pages := make([]fields.PageAnnotations, 0, doc.PageCount())
	v.pageHeights = make(map[int]float64, doc.PageCount())
	for i := 0; i < doc.PageCount(); i++ {
		annots, err := doc.PageAnnotations(i)
		if err != nil {
			v.logger.Printf("skipping annotations for page %d: %v", i+1, err)
			continue
		}
		pages = append(pages, fields.PageAnnotations{PageNumber: i + 1, Annotations: annots})

		if _, height, err := doc.PageDimensions(i); err == nil && height > 0 {
			v.pageHeights[i] = height
		} else if err != nil {
			v.logger.Printf("page %d dimensions unavailable: %v", i+1, err)
		}
	}

	extractor := fields.NewExtractor(v.logger)
	v.fieldList = extractor.ExtractSignatureFields(pages)
	v.ledger = ledger.New()
	v.tracker = tracker.New(v.fieldList, v.logger)
	v.captureActive = false
	v.captureFieldID = ""
}

// Close disposes the current document and cancels any in-flight load. The
// viewer must always be closed when the session ends.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.loadSeq++ // invalidate any load still in flight
	if v.cancelLoad != nil {
		v.cancelLoad()
		v.cancelLoad = nil
	}
	if v.doc != nil {
		v.doc.Dispose()
		v.doc = nil
	}
	v.fieldList = nil
	v.tracker = tracker.New(nil, v.logger)
	v.ledger = ledger.New()
	v.captureActive = false
}

// Fields returns a copy of the extracted signature fields
func (v *Viewer) Fields() []fields.SignatureField {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]fields.SignatureField, len(v.fieldList))
	copy(out, v.fieldList)
	return out
}

// BeginCapture opens the modal capture flow for a field. A second capture
// while one is in flight is rejected, not queued: interleaving two captures
// would apply them against inconsistent state.
func (v *Viewer) BeginCapture(fieldID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.doc == nil {
		return ErrNoDocument
	}
	if v.captureActive {
		return ErrCaptureInProgress
	}
	if v.fieldIndex(fieldID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownField, fieldID)
	}
	v.captureActive = true
	v.captureFieldID = fieldID
	return nil
}

// CancelCapture abandons the active capture, if any
func (v *Viewer) CancelCapture() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.captureActive = false
	v.captureFieldID = ""
}

// SubmitDrawnCapture exports the capture surface, stamps the result and
// applies it to the active field.
func (v *Viewer) SubmitDrawnCapture(surface CaptureSurface, signer stamp.SignerContext, intent string, collectDeviceInfo bool) error {
	if surface.IsEmpty() {
		return ErrEmptyCapture
	}
	payload, err := surface.ToImagePayload()
	if err != nil {
		return fmt.Errorf("capture surface export failed: %w", err)
	}
	return v.submitCapture(stamp.Capture{Kind: stamp.KindDrawn, ImagePayload: payload}, signer, intent, collectDeviceInfo)
}

// SubmitTypedCapture sanitizes the typed text, then stamps and applies the
// caller-rasterized image payload to the active field. Rasterization itself
// happens upstream.
func (v *Viewer) SubmitTypedCapture(text, imagePayload string, signer stamp.SignerContext, intent string, collectDeviceInfo bool) error {
	if _, err := validate.SanitizeSignatureText(text); err != nil {
		return err
	}
	return v.submitCapture(stamp.Capture{Kind: stamp.KindTyped, ImagePayload: imagePayload}, signer, intent, collectDeviceInfo)
}

func (v *Viewer) submitCapture(capture stamp.Capture, signer stamp.SignerContext, intent string, collectDeviceInfo bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.captureActive {
		return ErrNoActiveCapture
	}

	rec, err := v.stamper.Stamp(capture, signer, intent, collectDeviceInfo)
	if err != nil {
		return err
	}

	fieldID := v.captureFieldID
	idx := v.fieldIndex(fieldID)
	if idx < 0 {
		// The field list was replaced while the dialog was open.
		v.captureActive = false
		v.captureFieldID = ""
		return fmt.Errorf("%w: %s", ErrUnknownField, fieldID)
	}

	v.ledger.Apply(v.fieldList[idx].ID, rec)
	v.fieldList[idx].SignedBy = rec.SignerName
	if t, ok := parseRecordTime(rec.CapturedAt); ok {
		v.fieldList[idx].SignedAt = &t
	}

	v.captureActive = false
	v.captureFieldID = ""
	return nil
}

// ClearSignature removes the signature for a field and resets its
// attribution. It reports whether a signature existed.
func (v *Viewer) ClearSignature(fieldID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.ledger.Clear(fieldID) {
		return false
	}
	if idx := v.fieldIndex(fieldID); idx >= 0 {
		v.fieldList[idx].SignedBy = ""
		v.fieldList[idx].SignedAt = nil
	}
	return true
}

// parseRecordTime parses a record's ISO-8601 capture timestamp
func parseRecordTime(value string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NextSignature returns the first unsigned field in document order
func (v *Viewer) NextSignature() (fields.SignatureField, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tracker.NextUnsigned(v.ledger.Keys())
}

// PreviousSignature returns the last signed field in document order
func (v *Viewer) PreviousSignature() (fields.SignatureField, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tracker.PreviousSigned(v.ledger.Keys())
}

// AllSigned reports whether every required field carries a signature
func (v *Viewer) AllSigned() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tracker.AllSigned(v.ledger.Keys())
}

// Signatures returns a snapshot of the ledger
func (v *Viewer) Signatures() map[string]stamp.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.Snapshot()
}

// Export assembles the annotation-exchange document for the current session
func (v *Viewer) Export() (export.Document, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.doc == nil {
		return export.Document{}, ErrNoDocument
	}
	assembler := export.NewAssembler(v.logger)
	return assembler.Assemble(v.fieldList, v.ledger, v.pageHeights), nil
}

// fieldIndex returns the position of a field id, or -1. Callers hold mu.
func (v *Viewer) fieldIndex(fieldID string) int {
	for i, f := range v.fieldList {
		if f.ID == fieldID {
			return i
		}
	}
	return -1
}
