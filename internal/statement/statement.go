// Package statement turns bank statement exports (CSV or XLSX) into
// normalized statement rows.
//
// The header row is located by its column names, so the metadata lines many
// banks put above the table are skipped. German and English column names,
// German and English number formats and the usual date formats are accepted.
package statement

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mmynk/vereinsledger/internal/models"
)

// ErrNoHeader is returned when no row names both a date and an amount column.
var ErrNoHeader = errors.New("no header row with date and amount columns found")

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported statement format")

// headerScanLimit is how many leading rows may precede the header row.
const headerScanLimit = 25

// RowError is a data row that could not be read.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Result is a parsed statement. Rows keeps file order; Lines[i] is the line
// number Rows[i] came from.
type Result struct {
	Rows   []models.StatementRow
	Lines  []int
	Errors []RowError
}

// Parse reads a statement export. The format is chosen by the file
// extension; without a known extension XLSX is detected by its zip
// signature and everything else is read as CSV.
func Parse(filename string, content []byte) (*Result, error) {
	var (
		records [][]string
		lines   []int
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); {
	case ext == ".xlsx" || ext == ".xlsm":
		records, err = readXLSX(content)
	case ext == ".csv" || ext == ".txt":
		records, lines, err = readCSV(content)
	case ext == "" || ext == ".dat":
		if bytes.HasPrefix(content, []byte("PK\x03\x04")) {
			records, err = readXLSX(content)
		} else {
			records, lines, err = readCSV(content)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return parseRecords(records, lines)
}

// parseRecords reads the data rows below the header. lines holds the source
// line of each record; when nil the record index is used.
func parseRecords(records [][]string, lines []int) (*Result, error) {
	lineOf := func(i int) int {
		if lines != nil {
			return lines[i]
		}
		return i + 1
	}

	headerAt := -1
	var cols columns
	for i := 0; i < len(records) && i < headerScanLimit; i++ {
		if c, ok := detectColumns(records[i]); ok {
			headerAt, cols = i, c
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrNoHeader
	}

	res := &Result{}
	for i := headerAt + 1; i < len(records); i++ {
		record := records[i]
		if blank(record) {
			continue
		}
		row, err := cols.row(record)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: lineOf(i), Err: err})
			continue
		}
		res.Rows = append(res.Rows, row)
		res.Lines = append(res.Lines, lineOf(i))
	}
	return res, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
