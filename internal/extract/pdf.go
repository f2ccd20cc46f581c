package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

// extractWithGoPDF reads the text layer of every page locally
func extractWithGoPDF(content []byte) (pages []models.Page, err error) {
	// the pdf package panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("go-pdf: malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	n := reader.NumPage()
	pages = make([]models.Page, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no text extracted by go-pdf")
	}
	return pages, nil
}

// evaluateTextQuality scores extracted text between 0 and 1.
// Replacement characters and unusual code points lower the score.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0.0
	}
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == '\uFFFD':
			corrupted++
		case r >= 32 && r <= 126, r == '\n', r == '\t':
			printable++
		case r > 127 && isCommonUnicodeChar(r):
			printable++
		case r > 127:
			corrupted++
		}
	}

	total := float64(len([]rune(text)))
	alphanumericRatio := float64(alphanumeric) / total

	score := float64(printable) / total * 0.4
	score += min(alphanumericRatio, 0.3)
	score -= float64(corrupted) / total * 2.0
	if len(text) > 100 {
		score += 0.1
	}
	if hasSentences(text) {
		score += 0.2
	}

	return max(0, min(score, 1))
}

func isCommonUnicodeChar(r rune) bool {
	if r >= 0x00C0 && r <= 0x024F { // Latin accents
		return true
	}
	switch r {
	case '—', '–', '“', '”', '‘', '’', '…', '€', '£', '¥', '©', '®', '™', '•', '°':
		return true
	}
	return false
}

func hasSentences(text string) bool {
	return strings.Contains(text, ". ") || strings.Contains(text, ".\n")
}
