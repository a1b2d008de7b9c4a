// Package export serializes filtered result sets back to the formats the
// service ingests, so an exported file round-trips through ingestion.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"membercheck/internal/query"
	"membercheck/internal/record"

	"github.com/xuri/excelize/v2"
)

// CSV renders the collection as comma-delimited text: one header row from
// the collection's field list, one row per record. Sentinel values are
// written literally, which keeps re-ingestion field-for-field identical.
func CSV(c record.Collection) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(c.Fields); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range query.Rows(c) {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv output: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX renders the collection as a single-sheet spreadsheet with the same
// header-plus-rows layout as CSV. All cells are written as text.
func XLSX(c record.Collection) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	writeRow := func(rowNum int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		values := make([]any, len(cells))
		for i, v := range cells {
			values[i] = v
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(1, c.Fields); err != nil {
		return nil, fmt.Errorf("failed to write sheet header: %w", err)
	}
	for i, row := range query.Rows(c) {
		if err := writeRow(i+2, row); err != nil {
			return nil, fmt.Errorf("failed to write sheet row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
