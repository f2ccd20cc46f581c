// Package extract turns stored object bytes into page-ordered text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

// ErrUnsupported is returned for document types with no extractor
var ErrUnsupported = errors.New("unsupported document type")

// PDFModel reads PDFs with a hosted model, returning numbered pages in order
type PDFModel interface {
	ExtractPDF(ctx context.Context, fileName string, data []byte) ([]models.Page, error)
}

type method struct {
	name    string
	extract func(context.Context, string, []byte) ([]models.Page, error)
}

// Extractor dispatches on document type. PDFs go through the methods selected by PDF_EXTRACTION.
type Extractor struct {
	methods []method
	timeout time.Duration
}

func New(cfg *config.Config, model PDFModel) *Extractor {
	e := &Extractor{timeout: cfg.ExtractTimeout}

	gemini := method{"gemini", func(ctx context.Context, name string, data []byte) ([]models.Page, error) {
		if model == nil {
			return nil, errors.New("gemini extraction not configured")
		}
		return model.ExtractPDF(ctx, name, data)
	}}
	local := method{"go-pdf", func(_ context.Context, _ string, data []byte) ([]models.Page, error) {
		return extractWithGoPDF(data)
	}}

	switch cfg.PDFExtraction {
	case "gemini":
		e.methods = []method{gemini}
	case "local":
		e.methods = []method{local}
	default:
		e.methods = []method{gemini, local}
	}
	return e
}

// Extract returns the text of one stored object. CSV and TXT are a single unnumbered page.
func (e *Extractor) Extract(ctx context.Context, name string, docType models.DocumentType, data []byte) ([]models.Page, error) {
	switch docType {
	case models.DocumentTypeCSV, models.DocumentTypeTXT:
		return []models.Page{{Text: DecodeText(data)}}, nil
	case models.DocumentTypePDF:
		return e.extractPDF(ctx, name, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, docType)
	}
}

// extractPDF tries each method in order and keeps the first result of acceptable quality
func (e *Extractor) extractPDF(ctx context.Context, name string, data []byte) ([]models.Page, error) {
	var lastErr error
	var best []models.Page
	bestQuality := -1.0

	for _, m := range e.methods {
		pages, err := e.withTimeout(ctx, m, name, data)
		if err != nil {
			logger.Warn("PDF extraction method failed", "method", m.name, "document", name, "error", err)
			lastErr = err
			continue
		}

		quality := evaluateTextQuality(joinPages(pages))
		logger.Debug("PDF extraction result", "method", m.name, "document", name, "pages", len(pages), "quality", quality)
		if quality >= 0.7 {
			return pages, nil
		}
		if quality > bestQuality {
			best, bestQuality = pages, quality
		}
	}

	if best != nil {
		return best, nil
	}
	return nil, fmt.Errorf("all extraction methods failed: %w", lastErr)
}

func (e *Extractor) withTimeout(ctx context.Context, m method, name string, data []byte) ([]models.Page, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return m.extract(ctx, name, data)
}

// DecodeText reads bytes as UTF-8, replacing invalid sequences and dropping a leading BOM
func DecodeText(data []byte) string {
	s := strings.ToValidUTF8(string(data), "\uFFFD")
	return strings.TrimPrefix(s, "\uFEFF")
}

func joinPages(pages []models.Page) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}
