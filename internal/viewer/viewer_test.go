package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkfield/signview/internal/fields"
	"github.com/inkfield/signview/internal/stamp"
	"github.com/inkfield/signview/internal/validate"
)

const testPayload = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func boolPtr(b bool) *bool { return &b }

// fakeDocument serves canned pages and counts disposals
type fakeDocument struct {
	pages    []fields.PageAnnotations
	heights  map[int]float64
	mu       sync.Mutex
	disposed int
}

func (d *fakeDocument) PageCount() int { return len(d.pages) }

func (d *fakeDocument) PageAnnotations(pageIndex int) ([]fields.RawAnnotation, error) {
	if pageIndex < 0 || pageIndex >= len(d.pages) {
		return nil, fmt.Errorf("page index %d out of range", pageIndex)
	}
	return d.pages[pageIndex].Annotations, nil
}

func (d *fakeDocument) PageDimensions(pageIndex int) (float64, float64, error) {
	h, ok := d.heights[pageIndex]
	if !ok {
		return 0, 0, fmt.Errorf("no dimensions for page %d", pageIndex)
	}
	return 612, h, nil
}

func (d *fakeDocument) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed++
}

func (d *fakeDocument) disposeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// fakeEngine returns a fresh document per source; gated sources block until
// the test delivers a document, ignoring context cancellation to simulate
// an engine that completes late.
type fakeEngine struct {
	mu      sync.Mutex
	docs    map[string]*fakeDocument
	gates   map[string]chan *fakeDocument
	started chan string
	loads   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		docs:    make(map[string]*fakeDocument),
		gates:   make(map[string]chan *fakeDocument),
		started: make(chan string, 16),
	}
}

func (e *fakeEngine) Load(ctx context.Context, source string) (Document, error) {
	e.mu.Lock()
	e.loads++
	gate := e.gates[source]
	doc := e.docs[source]
	e.mu.Unlock()

	select {
	case e.started <- source:
	default:
	}

	if gate != nil {
		return <-gate, nil
	}
	if doc == nil {
		return nil, fmt.Errorf("no such document: %s", source)
	}
	return doc, nil
}

// fakeSurface is a canned capture surface
type fakeSurface struct {
	payload string
	empty   bool
	cleared bool
}

func (s *fakeSurface) ToImagePayload() (string, error) { return s.payload, nil }
func (s *fakeSurface) IsEmpty() bool                   { return s.empty }
func (s *fakeSurface) Clear()                          { s.cleared = true }

func standardDocument() *fakeDocument {
	return &fakeDocument{
		pages: []fields.PageAnnotations{
			{
				PageNumber: 1,
				Annotations: []fields.RawAnnotation{
					{Subtype: "Widget", FieldType: "Sig", FieldName: "Buyer", Rect: []float64{100, 100, 300, 160}},
					{Subtype: "Widget", FieldType: "Sig", FieldName: "Witness", Rect: []float64{100, 300, 300, 360}, Required: boolPtr(false)},
				},
			},
		},
		heights: map[int]float64{0: 842},
	}
}

func testSigner() stamp.SignerContext {
	return stamp.SignerContext{
		SignerName:   "Ada Lovelace",
		SignerID:     "user-42",
		SessionID:    "sess-7",
		DocumentHash: "doc-hash-abc",
		AuthMethod:   "sso",
	}
}

func newTestViewer(t *testing.T, eng *fakeEngine) *Viewer {
	t.Helper()
	policy, err := validate.NewSourcePolicy(validate.ModeProduction, "https://app.example.com", []string{"docs.example.com"})
	require.NoError(t, err)
	logger := log.New(&bytes.Buffer{}, "", 0)
	return New(eng, policy, stamp.NewStamper(), WithLogger(logger))
}

const docURL = "https://docs.example.com/contract.pdf"

func TestLoadDocumentExtractsFields(t *testing.T) {
	eng := newFakeEngine()
	eng.docs[docURL] = standardDocument()
	v := newTestViewer(t, eng)
	defer v.Close()

	require.NoError(t, v.LoadDocument(context.Background(), docURL))

	fieldList := v.Fields()
	require.Len(t, fieldList, 2)
	assert.Equal(t, "sig-1-0", fieldList[0].ID)
	assert.True(t, fieldList[0].Required)
	assert.Equal(t, "sig-1-1", fieldList[1].ID)
	assert.False(t, fieldList[1].Required)
}

func TestLoadDocumentRejectsUnsafeSource(t *testing.T) {
	eng := newFakeEngine()
	v := newTestViewer(t, eng)
	defer v.Close()

	err := v.LoadDocument(context.Background(), "https://evil.example.net/contract.pdf")
	require.Error(t, err)
	_, ok := validate.IsValidationError(err)
	assert.True(t, ok)
	assert.Equal(t, 0, eng.loads, "a rejected source must never reach the engine")
}

func TestSignAndExportEndToEnd(t *testing.T) {
	eng := newFakeEngine()
	eng.docs[docURL] = standardDocument()
	v := newTestViewer(t, eng)
	defer v.Close()

	require.NoError(t, v.LoadDocument(context.Background(), docURL))

	// The required field comes first.
	next, ok := v.NextSignature()
	require.True(t, ok)
	assert.Equal(t, "sig-1-0", next.ID)
	assert.False(t, v.AllSigned())

	require.NoError(t, v.BeginCapture("sig-1-0"))
	surface := &fakeSurface{payload: testPayload}
	require.NoError(t, v.SubmitDrawnCapture(surface, testSigner(), "approve contract", false))

	// The optional field does not block completion, and once the document
	// is complete there is nothing left to navigate to.
	assert.True(t, v.AllSigned())

	_, ok = v.NextSignature()
	assert.False(t, ok, "a complete document has no next field to prompt for")

	sigs := v.Signatures()
	require.Len(t, sigs, 1)
	rec := sigs["sig-1-0"]
	assert.Equal(t, stamp.KindDrawn, rec.Kind)
	assert.True(t, stamp.VerifyRecord(rec))

	fieldList := v.Fields()
	assert.Equal(t, "Ada Lovelace", fieldList[0].SignedBy)
	require.NotNil(t, fieldList[0].SignedAt)
	assert.False(t, fieldList[0].SignedAt.IsZero())

	doc, err := v.Export()
	require.NoError(t, err)
	require.Len(t, doc.Annotations, 1)
	assert.Equal(t, "image", doc.Annotations[0].Type)
	assert.Len(t, doc.Attachments, 1)
}

func TestModalCaptureFlow(t *testing.T) {
	eng := newFakeEngine()
	eng.docs[docURL] = standardDocument()
	v := newTestViewer(t, eng)
	defer v.Close()

	require.NoError(t, v.LoadDocument(context.Background(), docURL))

	require.NoError(t, v.BeginCapture("sig-1-0"))
	// A second capture is rejected, not queued.
	err := v.BeginCapture("sig-1-1")
	assert.ErrorIs(t, err, ErrCaptureInProgress)

	v.CancelCapture()
	require.NoError(t, v.BeginCapture("sig-1-1"))
	v.CancelCapture()

	// Submitting with no active capture fails.
	err = v.SubmitDrawnCapture(&fakeSurface{payload: testPayload}, testSigner(), "approve", false)
	assert.ErrorIs(t, err, ErrNoActiveCapture)

	// Unknown fields are rejected up front.
	err = v.BeginCapture("sig-9-9")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestSubmitDrawnCaptureRejectsEmptySurface(t *testing.T) {
	eng := newFakeEngine()
	eng.docs[docURL] = standardDocument()
	v := newTestViewer(t, eng)
	defer v.Close()

	require.NoError(t, v.LoadDocument(context.Background(), docURL))
	require.NoError(t, v.BeginCapture("sig-1-0"))

	err := v.SubmitDrawnCapture(&fakeSurface{empty: true}, testSigner(), "approve", false)
	assert.ErrorIs(t, err, ErrEmptyCapture)
}

func TestSubmitTypedCaptureSanitizesText(t *testing.T) {
	eng := newFakeEngine()
	eng.docs[docURL] = standardDocument()
	v := newTestViewer(t, eng)
	defer v.Close()

	require.NoError(t, v.LoadDocument(context.Background(), docURL))
	require.NoError(t, v.BeginCapture("sig-1-0"))

	err := v.SubmitTypedCapture("J", testPayload, testSigner(), "approve", false)
	require.Error(t, err, "single-letter typed signature is too short")
	ve, ok := validate.IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, validate.CodeTooShort, ve.Code)

	require.NoError(t, v.SubmitTypedCapture(" John Doe ", testPayload, testSigner(), "approve", false))
	sigs := v.Signatures()
	assert.Equal(t, stamp.KindTyped, sigs["sig-1-0"].Kind)
}

func TestClearSignatureFlipsCompletion(t *testing.T) {
	eng := newFakeEngine()
	eng.docs[docURL] = standardDocument()
	v := newTestViewer(t, eng)
	defer v.Close()

	require.NoError(t, v.LoadDocument(context.Background(), docURL))
	require.NoError(t, v.BeginCapture("sig-1-0"))
	require.NoError(t, v.SubmitDrawnCapture(&fakeSurface{payload: testPayload}, testSigner(), "approve", false))
	require.True(t, v.AllSigned())

	assert.True(t, v.ClearSignature("sig-1-0"))
	assert.False(t, v.AllSigned(), "clearing a required signature must flip completion immediately")
	assert.False(t, v.ClearSignature("sig-1-0"), "second clear reports nothing to remove")

	fieldList := v.Fields()
	assert.Empty(t, fieldList[0].SignedBy)
	assert.Nil(t, fieldList[0].SignedAt)
}

func TestNewLoadCancelsInFlightLoad(t *testing.T) {
	eng := newFakeEngine()
	slowURL := "https://docs.example.com/slow.pdf"
	slowDoc := standardDocument()
	gate := make(chan *fakeDocument)
	eng.gates[slowURL] = gate
	eng.docs[docURL] = standardDocument()

	v := newTestViewer(t, eng)
	defer v.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- v.LoadDocument(context.Background(), slowURL)
	}()

	// Wait until the slow load is inside the engine, then supersede it.
	select {
	case <-eng.started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow load never started")
	}
	require.NoError(t, v.LoadDocument(context.Background(), docURL))

	// The slow load now completes late; its document must be disposed and
	// its result discarded.
	gate <- slowDoc
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrLoadCancelled), "late load reports cancellation, got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled load never returned")
	}
	assert.Equal(t, 1, slowDoc.disposeCount(), "late-completing document must be disposed immediately")

	// The superseding document is the live one.
	assert.Len(t, v.Fields(), 2)
}

func TestReloadDisposesPreviousDocument(t *testing.T) {
	eng := newFakeEngine()
	first := standardDocument()
	second := standardDocument()
	eng.docs[docURL] = first
	otherURL := "https://docs.example.com/other.pdf"
	eng.docs[otherURL] = second

	v := newTestViewer(t, eng)
	require.NoError(t, v.LoadDocument(context.Background(), docURL))
	require.NoError(t, v.LoadDocument(context.Background(), otherURL))
	assert.Equal(t, 1, first.disposeCount(), "replaced document must be disposed")

	// Reload also resets the ledger.
	assert.Empty(t, v.Signatures())

	v.Close()
	assert.Equal(t, 1, second.disposeCount(), "closing the viewer must dispose the current document")
	v.Close()
	assert.Equal(t, 1, second.disposeCount(), "double close must not double dispose")
}

func TestExportWithoutDocument(t *testing.T) {
	v := newTestViewer(t, newFakeEngine())
	defer v.Close()

	_, err := v.Export()
	assert.ErrorIs(t, err, ErrNoDocument)

	err = v.BeginCapture("sig-1-0")
	assert.ErrorIs(t, err, ErrNoDocument)
}
