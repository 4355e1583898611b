// Package export converts the signature ledger and field list into the
// fixed annotation-exchange document consumed by the downstream backend.
package export

import (
	"log"

	"github.com/inkfield/signview/internal/fields"
	"github.com/inkfield/signview/internal/ledger"
	"github.com/inkfield/signview/internal/stamp"
	"github.com/inkfield/signview/internal/validate"
)

const (
	// FormatURI is the fixed schema identifier of the exchange document
	FormatURI = "https://pspdfkit.com/instant-json/v1"

	// Annotation types in the exchange schema
	TypeImage = "image"
	TypeInk   = "ink"

	// AttachmentContentType is the content type of embedded signature images
	AttachmentContentType = "image/png"

	// DefaultPageHeight is used when a page's height was never observed,
	// e.g. the page never finished loading. US Letter at 72 DPI.
	DefaultPageHeight = 792.0
)

// InkLine is one stroke of an ink annotation
type InkLine struct {
	Points      [][2]float64 `json:"points"`
	Intensities []float64    `json:"intensities"`
}

// Annotation is one exported signature annotation. BBox uses the schema's
// bottom-left origin, unlike the viewer's top-left field geometry.
type Annotation struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	PageIndex         int        `json:"pageIndex"`
	BBox              [4]float64 `json:"bbox"`
	CreatedAt         string     `json:"createdAt"`
	UpdatedAt         string     `json:"updatedAt"`
	FormFieldName     string     `json:"formFieldName"`
	ImageAttachmentID string     `json:"imageAttachmentId,omitempty"`
	Lines             []InkLine  `json:"lines,omitempty"`
}

// Attachment is an embedded base64 image referenced by an annotation
type Attachment struct {
	ContentType string `json:"contentType"`
	Data        string `json:"data"`
}

// Document is the assembled exchange document
type Document struct {
	Format      string                `json:"format"`
	Annotations []Annotation          `json:"annotations"`
	Attachments map[string]Attachment `json:"attachments,omitempty"`
}

// Assembler builds exchange documents
type Assembler struct {
	logger *log.Logger
}

// NewAssembler creates an assembler. A nil logger falls back to the
// standard logger.
func NewAssembler(logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{logger: logger}
}

// Assemble converts the ledger into the exchange document. Ledger entries
// whose field id is absent from the field list are excluded and logged —
// orphaned data is never exported with guessed geometry. pageHeights maps
// zero-based page index to page height in points.
func (a *Assembler) Assemble(fieldList []fields.SignatureField, led *ledger.Ledger, pageHeights map[int]float64) Document {
	doc := Document{
		Format:      FormatURI,
		Annotations: make([]Annotation, 0, led.Len()),
	}

	exported := make(map[string]bool, led.Len())
	for _, field := range fieldList {
		rec, ok := led.Get(field.ID)
		if !ok {
			continue
		}
		exported[field.ID] = true

		pageHeight, observed := pageHeights[field.PageIndex]
		if !observed || pageHeight <= 0 {
			pageHeight = DefaultPageHeight
		}

		annot := Annotation{
			ID:            stamp.NewCaptureID(),
			PageIndex:     field.PageIndex,
			BBox:          flipBoundingBox(field.BoundingBox, pageHeight),
			CreatedAt:     rec.CapturedAt,
			UpdatedAt:     rec.CapturedAt,
			FormFieldName: field.FieldName,
		}

		switch rec.Kind {
		case stamp.KindDrawn:
			annot.Type = TypeImage
			attachmentID := stamp.NewCaptureID()
			annot.ImageAttachmentID = attachmentID
			if doc.Attachments == nil {
				doc.Attachments = make(map[string]Attachment)
			}
			doc.Attachments[attachmentID] = Attachment{
				ContentType: AttachmentContentType,
				Data:        attachmentData(rec.ImagePayload),
			}
		case stamp.KindTyped:
			// Typed signatures export as a single placeholder stroke. Real
			// glyph-path reconstruction of the typed text is a known gap.
			annot.Type = TypeInk
			annot.Lines = placeholderInkLine(annot.BBox)
		}

		doc.Annotations = append(doc.Annotations, annot)
	}

	for _, key := range led.Keys() {
		if !exported[key] {
			a.logger.Printf("ERROR: excluding ledger entry %q from export: no matching signature field (possible tampering or stale state)", key)
		}
	}

	return doc
}

// flipBoundingBox converts a top-left-origin box into the schema's
// bottom-left-origin [x1 y1 x2 y2].
func flipBoundingBox(box fields.BoundingBox, pageHeight float64) [4]float64 {
	return [4]float64{
		box.X,
		pageHeight - (box.Y + box.Height),
		box.X + box.Width,
		pageHeight - box.Y,
	}
}

// attachmentData strips the data-URL header, leaving the raw base64 body
func attachmentData(payload string) string {
	if body, ok := validate.ImagePayloadBody(payload); ok {
		return body
	}
	return payload
}

// placeholderInkLine draws one horizontal stroke across the vertical middle
// of the box.
func placeholderInkLine(bbox [4]float64) []InkLine {
	midY := (bbox[1] + bbox[3]) / 2
	return []InkLine{
		{
			Points:      [][2]float64{{bbox[0], midY}, {bbox[2], midY}},
			Intensities: []float64{1, 1},
		},
	}
}
