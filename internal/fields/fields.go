package fields

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"
)

const (
	// Annotation filter values for signature widgets
	SubtypeWidget      = "Widget"
	FieldTypeSignature = "Sig"

	// MaxFieldNameLength caps sanitized field names
	MaxFieldNameLength = 100

	// Geometry sanity bounds for annotation rectangles
	MaxCoordinateMagnitude = 100000.0
	MinFieldExtent         = 10.0
	MaxFieldExtent         = 10000.0
)

// BoundingBox is a page-space rectangle with a top-left origin
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SignatureField is one signable region on one page. Fields are created once
// per document load and mutated only through the owning viewer when a
// signature is applied or cleared.
type SignatureField struct {
	ID          string      `json:"id"`
	PageIndex   int         `json:"page_index"`
	FieldName   string      `json:"field_name"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Required    bool        `json:"required"`
	SignedBy    string      `json:"signed_by,omitempty"`
	SignedAt    *time.Time  `json:"signed_at,omitempty"`
}

// RawAnnotation is one annotation record as delivered by the rendering
// engine, already lifted out of the engine's untyped dictionaries. Nothing
// downstream of the extractor sees unvalidated annotation data.
type RawAnnotation struct {
	Subtype   string
	FieldType string
	Rect      []float64
	FieldName string
	Required  *bool // nil when the source annotation omits the flag
}

// PageAnnotations couples a 1-based page number with its raw annotations
type PageAnnotations struct {
	PageNumber  int
	Annotations []RawAnnotation
}

// Extractor filters render-engine annotations down to signature-capable
// widgets and normalizes their geometry and naming.
type Extractor struct {
	logger *log.Logger
}

// NewExtractor creates an extractor. A nil logger falls back to the
// standard logger.
func NewExtractor(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{logger: logger}
}

// ExtractSignatureFields produces the normalized field list for a document.
// Annotations with malformed geometry are skipped, never repaired: a forged
// rectangle could otherwise place an invisible signable overlay anywhere on
// the page.
func (e *Extractor) ExtractSignatureFields(pages []PageAnnotations) []SignatureField {
	result := make([]SignatureField, 0)

	for _, page := range pages {
		ordinal := 0
		for _, annot := range page.Annotations {
			if annot.Subtype != SubtypeWidget || annot.FieldType != FieldTypeSignature {
				continue
			}

			box, err := ValidateRect(annot.Rect)
			if err != nil {
				e.logger.Printf("skipping signature annotation on page %d: %v", page.PageNumber, err)
				continue
			}

			name := SanitizeFieldName(annot.FieldName)
			if name == "" {
				name = fmt.Sprintf("signature-%d-%d", page.PageNumber, ordinal)
			}

			required := true
			if annot.Required != nil {
				required = *annot.Required
			}

			result = append(result, SignatureField{
				ID:          fmt.Sprintf("sig-%d-%d", page.PageNumber, ordinal),
				PageIndex:   page.PageNumber - 1,
				FieldName:   name,
				BoundingBox: box,
				Required:    required,
			})
			ordinal++
		}
	}

	return result
}

// SanitizeFieldName trims, truncates and strips a raw field name down to
// [A-Za-z0-9_-]. It returns "" when nothing survives; the caller supplies
// the generated fallback name.
func SanitizeFieldName(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > MaxFieldNameLength {
		trimmed = trimmed[:MaxFieldNameLength]
	}

	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateRect checks a raw [x1 y1 x2 y2] annotation rectangle and converts
// it into a bounding box. Any failure is returned as an error so the caller
// can skip the annotation.
func ValidateRect(rect []float64) (BoundingBox, error) {
	if len(rect) != 4 {
		return BoundingBox{}, fmt.Errorf("rect must have exactly 4 values, got %d", len(rect))
	}

	for i, v := range rect {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BoundingBox{}, fmt.Errorf("rect value %d is not finite", i)
		}
		if math.Abs(v) > MaxCoordinateMagnitude {
			return BoundingBox{}, fmt.Errorf("rect value %d exceeds coordinate bounds: %g", i, v)
		}
	}

	width := rect[2] - rect[0]
	height := rect[3] - rect[1]
	if width <= 0 || height <= 0 {
		return BoundingBox{}, fmt.Errorf("rect has non-positive extent: %gx%g", width, height)
	}
	if width < MinFieldExtent || height < MinFieldExtent {
		return BoundingBox{}, fmt.Errorf("rect is too small to be a signable region: %gx%g", width, height)
	}
	if width > MaxFieldExtent || height > MaxFieldExtent {
		return BoundingBox{}, fmt.Errorf("rect is implausibly large: %gx%g", width, height)
	}

	return BoundingBox{X: rect[0], Y: rect[1], Width: width, Height: height}, nil
}
