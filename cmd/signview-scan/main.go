// signview-scan inspects a local PDF and prints the signature fields the
// viewer would extract from it, optionally as a dry-run export skeleton.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/inkfield/signview/internal/config"
	"github.com/inkfield/signview/internal/engine"
	"github.com/inkfield/signview/internal/export"
	"github.com/inkfield/signview/internal/fields"
	"github.com/inkfield/signview/internal/ledger"
)

var (
	outputFormat = pflag.String("format", "text", "Output format: text, json")
	dryRunExport = pflag.Bool("export", false, "Print an empty export skeleton instead of the field list")
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetOutput(os.Stderr)

	if pflag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <pdf-file>\n\nOptions:\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(1)
	}
	path := pflag.Arg(0)

	eng := engine.New(cfg.MaxFileSize, log.Default())
	doc, err := eng.Load(context.Background(), path)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", path, err)
	}
	defer doc.Dispose()

	pages := make([]fields.PageAnnotations, 0, doc.PageCount())
	pageHeights := make(map[int]float64, doc.PageCount())
	for i := 0; i < doc.PageCount(); i++ {
		annots, err := doc.PageAnnotations(i)
		if err != nil {
			log.Printf("skipping annotations for page %d: %v", i+1, err)
			continue
		}
		pages = append(pages, fields.PageAnnotations{PageNumber: i + 1, Annotations: annots})
		if _, h, err := doc.PageDimensions(i); err == nil {
			pageHeights[i] = h
		}
	}

	extractor := fields.NewExtractor(log.Default())
	fieldList := extractor.ExtractSignatureFields(pages)

	if *dryRunExport {
		assembler := export.NewAssembler(log.Default())
		outputJSON(assembler.Assemble(fieldList, ledger.New(), pageHeights))
		return
	}

	switch *outputFormat {
	case "json":
		outputJSON(fieldList)
	default:
		outputText(path, doc.PageCount(), fieldList)
	}
}

func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}

func outputText(path string, pageCount int, fieldList []fields.SignatureField) {
	fmt.Printf("Document: %s (%d pages)\n", path, pageCount)
	fmt.Printf("Signature fields: %d\n\n", len(fieldList))
	for _, f := range fieldList {
		required := "optional"
		if f.Required {
			required = "required"
		}
		fmt.Printf("  %s  page=%d  name=%s  (%s)\n", f.ID, f.PageIndex+1, f.FieldName, required)
		fmt.Printf("      box: x=%.1f y=%.1f w=%.1f h=%.1f\n",
			f.BoundingBox.X, f.BoundingBox.Y, f.BoundingBox.Width, f.BoundingBox.Height)
	}
}
