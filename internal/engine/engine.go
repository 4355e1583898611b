// Package engine implements the viewer's rendering-engine contract for
// local PDF files. Documents are validated structurally with pdfcpu, then
// walked page by page with ledongthuc/pdf for annotations and geometry.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/inkfield/signview/internal/fields"
	"github.com/inkfield/signview/internal/viewer"
)

// maxParentDepth bounds inheritance walks through Parent chains so a
// malformed circular hierarchy cannot hang the walk.
const maxParentDepth = 16

// Engine loads PDF documents from the local filesystem
type Engine struct {
	maxFileSize int64
	logger      *log.Logger
}

// New creates an engine. maxFileSize caps accepted documents in bytes.
func New(maxFileSize int64, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{maxFileSize: maxFileSize, logger: logger}
}

// Load opens and validates the document at the given source. The source is
// a local path or file:// URL; the viewer's source policy has already
// vetted remote sources before they reach an engine.
func (e *Engine) Load(ctx context.Context, source string) (viewer.Document, error) {
	path := strings.TrimPrefix(source, "file://")

	if err := e.checkFile(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageCount, err := e.probeStructure(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	return &document{
		file:      file,
		reader:    reader,
		pageCount: pageCount,
		logger:    e.logger,
	}, nil
}

// checkFile performs basic filesystem validation before any parsing
func (e *Engine) checkFile(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}
	if e.maxFileSize > 0 && info.Size() > e.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), e.maxFileSize)
	}
	return nil
}

// probeStructure validates the document with pdfcpu and returns its page
// count. Relaxed validation matches what real-world signed documents need.
func (e *Engine) probeStructure(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(file, conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("failed to ensure page count: %w", err)
	}
	return pdfCtx.PageCount, nil
}

// document is a loaded PDF held open for page walks
type document struct {
	file      *os.File
	reader    *pdf.Reader
	pageCount int
	logger    *log.Logger
	disposed  bool
}

// PageCount returns the number of pages in the document
func (d *document) PageCount() int {
	return d.pageCount
}

// PageAnnotations returns the raw annotation records for a zero-based page
// index. Parse panics from corrupt annotation data are converted into an
// error for that page only.
func (d *document) PageAnnotations(pageIndex int) (annots []fields.RawAnnotation, err error) {
	defer func() {
		if r := recover(); r != nil {
			annots = nil
			err = fmt.Errorf("annotation parse failure on page %d: %v", pageIndex+1, r)
		}
	}()

	if pageIndex < 0 || pageIndex >= d.pageCount {
		return nil, fmt.Errorf("page index %d out of range", pageIndex)
	}

	page := d.reader.Page(pageIndex + 1)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d is not readable", pageIndex+1)
	}

	arr := page.V.Key("Annots")
	if arr.IsNull() || arr.Kind() != pdf.Array {
		return nil, nil
	}

	annots = make([]fields.RawAnnotation, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		annot := arr.Index(i)
		if annot.IsNull() {
			continue
		}
		annots = append(annots, rawAnnotation(annot))
	}
	return annots, nil
}

// PageDimensions returns the page's MediaBox extent, following Parent
// inheritance when the page dictionary omits it.
func (d *document) PageDimensions(pageIndex int) (width, height float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("media box parse failure on page %d: %v", pageIndex+1, r)
		}
	}()

	if pageIndex < 0 || pageIndex >= d.pageCount {
		return 0, 0, fmt.Errorf("page index %d out of range", pageIndex)
	}

	page := d.reader.Page(pageIndex + 1)
	if page.V.IsNull() {
		return 0, 0, fmt.Errorf("page %d is not readable", pageIndex+1)
	}

	node := page.V
	for depth := 0; depth < maxParentDepth && !node.IsNull(); depth++ {
		if box := node.Key("MediaBox"); !box.IsNull() {
			return mediaBoxExtent(box)
		}
		node = node.Key("Parent")
	}
	return 0, 0, fmt.Errorf("no MediaBox found for page %d", pageIndex+1)
}

// Dispose releases the underlying file handle. Safe to call once per load;
// later page calls fail.
func (d *document) Dispose() {
	if d.disposed {
		return
	}
	d.disposed = true
	if err := d.file.Close(); err != nil {
		d.logger.Printf("error closing document file: %v", err)
	}
}

// rawAnnotation lifts one annotation dictionary into a typed record. Field
// type and flags inherit through the Parent chain for widgets that are
// kids of a field dictionary.
func rawAnnotation(annot pdf.Value) fields.RawAnnotation {
	raw := fields.RawAnnotation{
		Subtype:   annot.Key("Subtype").Name(),
		FieldType: inheritedName(annot, "FT"),
		FieldName: inheritedText(annot, "T"),
	}

	if rect := annot.Key("Rect"); !rect.IsNull() && rect.Kind() == pdf.Array && rect.Len() == 4 {
		values := make([]float64, 0, 4)
		for i := 0; i < 4; i++ {
			if f, ok := numericValue(rect.Index(i)); ok {
				values = append(values, f)
			}
		}
		if len(values) == 4 {
			raw.Rect = values
		}
	}

	if flags, ok := inheritedInteger(annot, "Ff"); ok {
		required := flags&2 != 0 // bit 2: Required
		raw.Required = &required
	}
	return raw
}

func inheritedName(annot pdf.Value, key string) string {
	node := annot
	for depth := 0; depth < maxParentDepth && !node.IsNull(); depth++ {
		if v := node.Key(key); !v.IsNull() {
			return v.Name()
		}
		node = node.Key("Parent")
	}
	return ""
}

func inheritedText(annot pdf.Value, key string) string {
	node := annot
	for depth := 0; depth < maxParentDepth && !node.IsNull(); depth++ {
		if v := node.Key(key); !v.IsNull() {
			return v.Text()
		}
		node = node.Key("Parent")
	}
	return ""
}

func inheritedInteger(annot pdf.Value, key string) (int64, bool) {
	node := annot
	for depth := 0; depth < maxParentDepth && !node.IsNull(); depth++ {
		if v := node.Key(key); !v.IsNull() && v.Kind() == pdf.Integer {
			return v.Int64(), true
		}
		node = node.Key("Parent")
	}
	return 0, false
}

// numericValue reads a PDF number that may be stored as integer or real
func numericValue(v pdf.Value) (float64, bool) {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64()), true
	case pdf.Real:
		return v.Float64(), true
	default:
		return 0, false
	}
}

// mediaBoxExtent computes width and height from a MediaBox array
func mediaBoxExtent(box pdf.Value) (float64, float64, error) {
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return 0, 0, fmt.Errorf("invalid MediaBox array")
	}
	coords := make([]float64, 4)
	for i := 0; i < 4; i++ {
		f, ok := numericValue(box.Index(i))
		if !ok {
			return 0, 0, fmt.Errorf("invalid MediaBox coordinate at index %d", i)
		}
		coords[i] = f
	}
	return coords[2] - coords[0], coords[3] - coords[1], nil
}
