package validate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/ports"
)

// supportedExtensions is the upload whitelist.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".bmp":  true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".bmp":  true,
}

// maxFileSizeMB holds per-type defaults; a requirement specification with
// max_size_mb overrides them.
var maxFileSizeMB = map[string]float64{
	"default":  10,
	"photo":    2,
	"passport": 5,
}

var bankStatementKeywords = []string{
	"statement", "balance", "account",
	"كشف حساب", "رصيد", "حساب",
	"bank", "بنك",
}

const (
	photoMinWidth  = 300
	photoMinHeight = 400
	photoMinAspect = 0.70
	photoMaxAspect = 0.85
)

// Outcome aggregates one validation pass. Error and warning strings carry
// the owning document type as a tag; AllValid is the transition input.
type Outcome struct {
	Documents []domain.Document
	Errors    []string
	Warnings  []string
	AllValid  bool
}

type report struct {
	status        domain.ValidationStatus
	errors        []string
	warnings      []string
	extractedText string
}

// Engine runs the per-document rule checks. Documents are independent and
// validated concurrently; results are reassembled in input order.
type Engine struct {
	extractor   ports.TextExtractor
	inspector   ports.ImageInspector
	log         *slog.Logger
	concurrency int
}

func New(extractor ports.TextExtractor, inspector ports.ImageInspector, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		extractor:   extractor,
		inspector:   inspector,
		log:         log,
		concurrency: 4,
	}
}

// Validate checks every document against the specifications of the first
// requirement naming its type. Document order is preserved.
func (e *Engine) Validate(ctx context.Context, documents []domain.Document, requirements []domain.Requirement) Outcome {
	specsByType := make(map[string]map[string]any)
	for _, req := range requirements {
		if req.DocumentType == "" {
			continue
		}
		if _, ok := specsByType[req.DocumentType]; !ok {
			specsByType[req.DocumentType] = req.Specifications
		}
	}

	reports := make([]report, len(documents))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for i := range documents {
		group.Go(func() error {
			reports[i] = e.validateDocument(groupCtx, documents[i], specsByType[documents[i].Type])
			return nil
		})
	}
	_ = group.Wait()

	validated := make([]domain.Document, len(documents))
	errs := make([]string, 0)
	warnings := make([]string, 0)
	for i, doc := range documents {
		rep := reports[i]
		doc.ValidationStatus = rep.status
		doc.ValidationErrors = rep.errors
		if rep.extractedText != "" {
			doc.ExtractedText = rep.extractedText
		}
		validated[i] = doc

		for _, msg := range rep.errors {
			errs = append(errs, fmt.Sprintf("[%s] %s", doc.Type, msg))
		}
		for _, msg := range rep.warnings {
			warnings = append(warnings, fmt.Sprintf("[%s] %s", doc.Type, msg))
		}
	}

	return Outcome{
		Documents: validated,
		Errors:    errs,
		Warnings:  warnings,
		AllValid:  len(errs) == 0,
	}
}

// ValidateSingle checks one document with no requirement context, for the
// standalone document endpoint.
func (e *Engine) ValidateSingle(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.FilePath == "" {
		return doc, domain.WrapError(domain.ErrInvalidInput, "validate document", fmt.Errorf("file_path is required"))
	}
	rep := e.validateDocument(ctx, doc, nil)
	doc.ValidationStatus = rep.status
	doc.ValidationErrors = rep.errors
	if rep.extractedText != "" {
		doc.ExtractedText = rep.extractedText
	}
	return doc, nil
}

// validateDocument short-circuits on structural failures (missing file,
// unsupported extension), then layers size, extraction, and type rules.
func (e *Engine) validateDocument(ctx context.Context, doc domain.Document, specs map[string]any) report {
	var errs, warnings []string

	info, statErr := os.Stat(doc.FilePath)
	if statErr != nil {
		errs = append(errs, fmt.Sprintf("File not found: %s", filepath.Base(doc.FilePath)))
		return report{status: domain.ValidationInvalid, errors: errs}
	}

	ext := strings.ToLower(filepath.Ext(doc.FilePath))
	if !supportedExtensions[ext] {
		errs = append(errs, fmt.Sprintf("Unsupported file type: %s", ext))
		return report{status: domain.ValidationInvalid, errors: errs}
	}

	maxMB := sizeLimitMB(doc.Type, specs)
	sizeMB := float64(info.Size()) / (1024 * 1024)
	if sizeMB > maxMB {
		errs = append(errs, fmt.Sprintf("File size (%.1fMB) exceeds maximum (%.0fMB)", sizeMB, maxMB))
	}

	extractedText := ""
	if imageExtensions[ext] {
		extractedText = e.extractText(ctx, doc.FilePath)
	}

	switch strings.ToLower(doc.Type) {
	case "passport":
		warnings = append(warnings, passportWarnings(extractedText)...)
	case "photo":
		photoErrs, photoWarnings := e.photoFindings(ctx, doc.FilePath)
		errs = append(errs, photoErrs...)
		warnings = append(warnings, photoWarnings...)
	case "bank_statement":
		warnings = append(warnings, bankStatementWarnings(extractedText)...)
	}

	status := domain.ValidationValid
	switch {
	case len(errs) > 0:
		status = domain.ValidationInvalid
	case len(warnings) > 0:
		status = domain.ValidationWarning
	}

	return report{
		status:        status,
		errors:        errs,
		warnings:      warnings,
		extractedText: extractedText,
	}
}

// extractText is a soft step: any extractor failure degrades to "".
func (e *Engine) extractText(ctx context.Context, filePath string) string {
	if e.extractor == nil {
		return ""
	}
	text, err := e.extractor.Extract(ctx, filePath)
	if err != nil {
		e.log.Warn("text extraction failed", "file", filepath.Base(filePath), "error", err)
		return ""
	}
	return text
}

func passportWarnings(extractedText string) []string {
	if extractedText == "" {
		return nil
	}
	upper := strings.ToUpper(extractedText)
	for _, marker := range []string{"P<", "<<<"} {
		if strings.Contains(upper, marker) {
			return nil
		}
	}
	return []string{"Could not detect passport MRZ - ensure clear scan"}
}

func (e *Engine) photoFindings(ctx context.Context, filePath string) (errs, warnings []string) {
	if e.inspector == nil {
		return nil, nil
	}
	info, err := e.inspector.Inspect(ctx, filePath)
	if err != nil {
		e.log.Warn("photo inspection failed", "file", filepath.Base(filePath), "error", err)
		return []string{"Could not validate photo"}, nil
	}

	if info.Width < photoMinWidth || info.Height < photoMinHeight {
		warnings = append(warnings, fmt.Sprintf("Photo resolution may be too low (%dx%dpx)", info.Width, info.Height))
	}
	if info.Height > 0 {
		aspect := float64(info.Width) / float64(info.Height)
		if aspect < photoMinAspect || aspect > photoMaxAspect {
			warnings = append(warnings, fmt.Sprintf("Photo aspect ratio (%.2f) may not match requirements", aspect))
		}
	}
	if !info.Color {
		warnings = append(warnings, "Photo should be in color")
	}
	return nil, warnings
}

func bankStatementWarnings(extractedText string) []string {
	if extractedText == "" {
		return nil
	}
	lower := strings.ToLower(extractedText)
	for _, keyword := range bankStatementKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return nil
		}
	}
	return []string{"Document may not be a valid bank statement"}
}

func sizeLimitMB(docType string, specs map[string]any) float64 {
	if specs != nil {
		switch v := specs["max_size_mb"].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	if limit, ok := maxFileSizeMB[strings.ToLower(docType)]; ok {
		return limit
	}
	return maxFileSizeMB["default"]
}
