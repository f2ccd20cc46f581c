// Package chunker splits extracted document text into bounded retrieval units.
//
// Prose (PDF/TXT) text is split on whitespace and grouped into fixed-size token
// windows numbered chunk_0, chunk_1, ... Tabular (CSV) text yields one chunk per
// line after the header, numbered row_1, row_2, ... Output is deterministic.
package chunker

import (
	"fmt"
	"strings"

	"rag-document-platform/models"
)

// DefaultTokensPerChunk is the prose window size
const DefaultTokensPerChunk = 500

// Piece is one unit of chunker output
type Piece struct {
	Ordinal    int
	InternalID string
	Text       string
	Page       int // page of the first token, 0 when the source is not paginated
}

type Chunker struct {
	tokensPerChunk int
}

func New(tokensPerChunk int) *Chunker {
	if tokensPerChunk <= 0 {
		tokensPerChunk = DefaultTokensPerChunk
	}
	return &Chunker{tokensPerChunk: tokensPerChunk}
}

// SplitText chunks a single unpaginated text
func (c *Chunker) SplitText(docType models.DocumentType, text string) []Piece {
	return c.Split(docType, []models.Page{{Text: text}})
}

// Split chunks the pages of one document according to its type
func (c *Chunker) Split(docType models.DocumentType, pages []models.Page) []Piece {
	if docType.Tabular() {
		texts := make([]string, 0, len(pages))
		for _, p := range pages {
			texts = append(texts, p.Text)
		}
		return splitRows(strings.Join(texts, "\n"))
	}
	return c.splitProse(pages)
}

type token struct {
	text string
	page int
}

func (c *Chunker) splitProse(pages []models.Page) []Piece {
	var tokens []token
	for _, p := range pages {
		for _, f := range strings.Fields(p.Text) {
			tokens = append(tokens, token{text: f, page: p.Number})
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	pieces := make([]Piece, 0, (len(tokens)+c.tokensPerChunk-1)/c.tokensPerChunk)
	words := make([]string, 0, c.tokensPerChunk)
	for start := 0; start < len(tokens); start += c.tokensPerChunk {
		end := min(start+c.tokensPerChunk, len(tokens))

		words = words[:0]
		for _, t := range tokens[start:end] {
			words = append(words, t.text)
		}

		ordinal := len(pieces)
		pieces = append(pieces, Piece{
			Ordinal:    ordinal,
			InternalID: fmt.Sprintf("chunk_%d", ordinal),
			Text:       strings.Join(words, " "),
			Page:       tokens[start].page,
		})
	}
	return pieces
}

func splitRows(text string) []Piece {
	lines := splitLines(text)
	if len(lines) <= 1 {
		return nil
	}

	pieces := make([]Piece, 0, len(lines)-1)
	for i, line := range lines[1:] {
		row := i + 1
		pieces = append(pieces, Piece{
			Ordinal:    row,
			InternalID: fmt.Sprintf("row_%d", row),
			Text:       line,
		})
	}
	return pieces
}

// splitLines breaks on \n, \r\n and \r; a trailing line break does not add an empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
