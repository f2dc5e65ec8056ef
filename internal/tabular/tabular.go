// Package tabular parses delimited-text documents into header-keyed rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyDocument is returned when a document contains no data rows.
var ErrEmptyDocument = errors.New("document contains no data rows")

// Document holds the parsed contents of one delimited-text file.
// Headers preserve source column order; each row maps header name to the raw
// string value from that column.
type Document struct {
	Headers  []string
	Rows     []map[string]string
	RowCount int
}

// Parse reads a comma-separated UTF-8 document whose first row is the header
// row. Rows with fewer fields than headers are padded with empty strings;
// extra fields are dropped.
func Parse(r io.Reader) (*Document, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyDocument
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	var rows []map[string]string
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyDocument
	}

	return &Document{Headers: headers, Rows: rows, RowCount: len(rows)}, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
