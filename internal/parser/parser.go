package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"price-import-service/internal/models"
)

// ParseError indicates an unreadable or empty source file. It surfaces at
// upload time; nothing about the file is persisted when it is returned.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Grid is the format-agnostic view of a spreadsheet or delimited file.
// Headers holds the first non-blank row for operator display; Rows holds
// every non-blank row including the header rows, so a header-skip count can
// be applied later without re-parsing. ColumnLetters are spreadsheet-style
// letters for the widest row.
type Grid struct {
	Headers       []string
	Rows          [][]string
	ColumnLetters []string
}

// DataRows returns the rows after skipping headerRows leading rows.
// Negative skip counts are treated as zero.
func (g *Grid) DataRows(headerRows int) [][]string {
	if headerRows < 0 {
		headerRows = 0
	}
	if headerRows >= len(g.Rows) {
		return nil
	}
	return g.Rows[headerRows:]
}

// Parse normalizes a CSV or XLSX stream into a Grid. Fully blank rows are
// dropped before counting. A *ParseError is returned when the file cannot be
// read or contains no data rows after the first header row.
func Parse(r io.Reader, format models.ImportFormat) (*Grid, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case models.ImportFormatCSV:
		rows, err = parseCSV(r)
	case models.ImportFormatXLSX:
		rows, err = parseXLSX(r)
	default:
		return nil, &ParseError{Message: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		return nil, err
	}

	rows = dropBlankRows(rows)
	if len(rows) < 2 {
		return nil, &ParseError{Message: "file must have a header row and at least one data row"}
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	letters := make([]string, width)
	for i := 0; i < width; i++ {
		letters[i] = IndexToLetter(i)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	return &Grid{
		Headers:       headers,
		Rows:          rows,
		ColumnLetters: letters,
	}, nil
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("error reading line %d", len(rows)+1), Err: err}
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func parseXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Message: "failed to open Excel file", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Message: "no sheets found in Excel file"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Message: "failed to read sheet", Err: err}
	}
	return rows, nil
}

func dropBlankRows(rows [][]string) [][]string {
	kept := rows[:0]
	for _, row := range rows {
		if !isBlankRow(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
