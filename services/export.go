package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"rag-document-platform/internal/docstore"
	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

const (
	documentsSheet = "Documents"
	chunksSheet    = "Chunks"
	previewRunes   = 200
)

// InventorySource lists what the document store holds
type InventorySource interface {
	Documents(ctx context.Context) ([]docstore.DocumentSummary, error)
	ChunksByDocument(ctx context.Context, fileName string) ([]models.Chunk, error)
}

// InventoryReport summarises a written export
type InventoryReport struct {
	Documents int
	Chunks    int
	Unindexed int
}

// ExportInventory writes an Excel workbook with one row per document and one per chunk
func ExportInventory(ctx context.Context, src InventorySource, w io.Writer) (InventoryReport, error) {
	var report InventoryReport

	docs, err := src.Documents(ctx)
	if err != nil {
		return report, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Error closing Excel file", "error", err)
		}
	}()

	index, err := f.NewSheet(documentsSheet)
	if err != nil {
		return report, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return report, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	docHeaders := []string{"File Name", "Type", "Document ID", "Ingested At", "Chunks", "Unindexed"}
	if err := writeRow(f, documentsSheet, 1, toCells(docHeaders)); err != nil {
		return report, err
	}
	for i, d := range docs {
		row := []interface{}{d.FileName, string(d.Type), d.ID, d.IngestedAt.UTC().Format(time.RFC3339), d.Chunks, d.Unindexed}
		if err := writeRow(f, documentsSheet, i+2, row); err != nil {
			return report, err
		}
		report.Documents++
		report.Unindexed += d.Unindexed
	}

	if _, err := f.NewSheet(chunksSheet); err != nil {
		return report, fmt.Errorf("failed to create sheet: %w", err)
	}
	chunkHeaders := []string{"Document", "Chunk ID", "Internal ID", "Page", "Characters", "Preview"}
	if err := writeRow(f, chunksSheet, 1, toCells(chunkHeaders)); err != nil {
		return report, err
	}
	row := 2
	for _, d := range docs {
		chunks, err := src.ChunksByDocument(ctx, d.FileName)
		if err != nil {
			return report, err
		}
		for _, c := range chunks {
			var page interface{}
			if c.PageNumber != nil {
				page = *c.PageNumber
			}
			cells := []interface{}{d.FileName, c.ID, c.InternalID, page, len([]rune(c.Text)), preview(c.Text)}
			if err := writeRow(f, chunksSheet, row, cells); err != nil {
				return report, err
			}
			row++
			report.Chunks++
		}
	}

	for sheet, n := range map[string]int{documentsSheet: len(docHeaders), chunksSheet: len(chunkHeaders)} {
		last, _ := excelize.ColumnNumberToName(n)
		if err := f.SetColWidth(sheet, "A", last, 20); err != nil {
			return report, fmt.Errorf("failed to size columns: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return report, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return report, nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes]) + "…"
}
