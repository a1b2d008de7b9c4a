package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"membercheck/internal/record"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for any upload that is not .csv or .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file format (expected csv or xlsx)")

// ErrEmptyFile is returned when the file has no header row at all.
var ErrEmptyFile = errors.New("file contains no header row")

// ParseError wraps a low-level parser failure with the offending source name.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %q: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingFieldsError reports required header columns absent from an upload.
type MissingFieldsError struct {
	Missing []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Ingester turns uploaded csv/xlsx bytes into datasets. Every cell is read
// as a string and every empty cell is normalized to the sentinel before the
// dataset leaves this package.
type Ingester struct {
	requiredFields []string
}

// New creates an Ingester. An empty required list disables header validation.
func New(requiredFields []string) *Ingester {
	return &Ingester{requiredFields: requiredFields}
}

// Ingest parses raw upload bytes into a Dataset. The format is chosen by the
// file extension of name; anything other than csv/xlsx is rejected without
// looking at the content. Ingest has no side effects: storing the result is
// the caller's job.
func (in *Ingester) Ingest(raw []byte, name string) (record.Dataset, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	var (
		rows [][]string
		err  error
	)
	switch ext {
	case "csv":
		rows, err = readCSV(raw)
	case "xlsx":
		rows, err = readXLSX(raw)
	default:
		return record.Dataset{}, ErrUnsupportedFormat
	}
	if err != nil {
		return record.Dataset{}, &ParseError{Source: name, Err: err}
	}
	if len(rows) == 0 {
		return record.Dataset{}, &ParseError{Source: name, Err: ErrEmptyFile}
	}

	ds := buildDataset(name, rows)

	if missing := in.missingFields(ds); len(missing) > 0 {
		return record.Dataset{}, &MissingFieldsError{Missing: missing}
	}

	slog.Debug("File ingested", "source", name, "rows", ds.Len(), "fields", len(ds.Fields))
	return ds, nil
}

// missingFields returns the required header columns the dataset lacks.
func (in *Ingester) missingFields(ds record.Dataset) []string {
	var missing []string
	for _, want := range in.requiredFields {
		if !ds.HasField(want) {
			missing = append(missing, want)
		}
	}
	return missing
}

// buildDataset converts a raw cell grid (header row first) into a Dataset,
// applying the sentinel normalization. Rows shorter than the header are
// padded with sentinels rather than rejected. Unnamed columns (a trailing
// comma in the header, say) are dropped entirely: they never appear in
// Fields, so they can never round-trip through an export.
func buildDataset(source string, rows [][]string) record.Dataset {
	header := make([]string, 0, len(rows[0]))
	columns := make([]int, 0, len(rows[0]))
	for i, h := range rows[0] {
		if name := strings.TrimSpace(h); name != "" {
			header = append(header, name)
			columns = append(columns, i)
		}
	}

	records := make([]record.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(record.Record, len(header))
		for j, field := range header {
			value := record.Sentinel
			if i := columns[j]; i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					value = v
				}
			}
			rec[field] = value
		}
		records = append(records, rec)
	}

	return record.Dataset{Source: source, Fields: header, Records: records}
}

// readCSV reads a comma-delimited file with a header row. Ragged rows are
// tolerated; missing cells become sentinels in buildDataset.
func readCSV(raw []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// readXLSX reads the first sheet of a spreadsheet, all cells as text.
func readXLSX(raw []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	return f.GetRows(sheets[0])
}
