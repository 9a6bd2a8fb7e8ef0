package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// readCSV reads a delimited export and the line each record starts on.
// Exports that are not valid UTF-8 are taken to be Windows-1252, which is
// what most German banks produce.
func readCSV(content []byte) ([][]string, []int, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(content)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode statement: %w", err)
		}
		content = decoded
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sniffDelimiter(content)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV statement: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	return records, lines, nil
}

// sniffDelimiter picks the most frequent of ';', tab and ',' in the first
// lines of the file.
func sniffDelimiter(content []byte) rune {
	head := content
	for i, lines := 0, 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines++
			if lines == headerScanLimit {
				head = content[:i]
				break
			}
		}
	}

	best, bestCount := ';', bytes.Count(head, []byte{';'})
	for _, d := range []rune{'\t', ','} {
		if n := bytes.Count(head, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// readXLSX reads the first sheet of a workbook as formatted cell text. Empty
// rows are kept, so a record's index is its row number minus one.
func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX statement: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("XLSX statement has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read XLSX sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}
