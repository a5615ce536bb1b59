package ocr

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Extractor runs tesseract over image documents. Extraction is a soft
// dependency of validation: every failure degrades to an empty string and
// is never propagated.
type Extractor struct {
	languages []string
	log       *slog.Logger
}

func New(languages []string, log *slog.Logger) *Extractor {
	if len(languages) == 0 {
		languages = []string{"ara", "eng"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{languages: languages, log: log}
}

func (e *Extractor) Extract(ctx context.Context, filePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil
	}

	// gosseract clients are not safe for concurrent use; one per call.
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		e.log.Warn("ocr language setup failed", "languages", strings.Join(e.languages, "+"), "error", err)
		return "", nil
	}
	if err := client.SetImage(filePath); err != nil {
		e.log.Warn("ocr image load failed", "file", filepath.Base(filePath), "error", err)
		return "", nil
	}

	text, err := client.Text()
	if err != nil {
		e.log.Warn("ocr recognition failed", "file", filepath.Base(filePath), "error", err)
		return "", nil
	}
	return strings.TrimSpace(text), nil
}
