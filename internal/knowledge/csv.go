package knowledge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadCSV reads a knowledge base from a header-addressed CSV file. Columns
// may appear in any order; extra columns are ignored. Any failure wraps
// ErrUnavailable.
func LoadCSV(path string, variant Variant) (*Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open %s: %w: %w", path, ErrUnavailable, err)
	}
	defer f.Close()

	base, err := ReadCSV(f, variant)
	if err != nil {
		return nil, fmt.Errorf("knowledge: load %s: %w", path, err)
	}
	return base, nil
}

// ReadCSV parses a knowledge base from r. Blank lines are skipped, but a row
// with neither an utterance nor a response is malformed.
func ReadCSV(r io.Reader, variant Variant) (*Base, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty source", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: read header: %w", ErrUnavailable, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	var missing []string
	for _, col := range variant.RequiredColumns() {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns: %s", ErrUnavailable, strings.Join(missing, ", "))
	}

	field := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrUnavailable, line, err)
		}
		rec := Record{
			Intent:    field(row, ColIntent),
			Utterance: field(row, ColUtterance),
			Response:  field(row, ColResponse),
			Category:  field(row, ColCategory),
		}
		if rec.Utterance == "" && rec.Response == "" {
			return nil, fmt.Errorf("%w: line %d: user_message and bot_response are both empty", ErrUnavailable, line)
		}
		records = append(records, rec)
	}
	return NewBase(records), nil
}

// csvHeader is the column order used when writing a knowledge base.
var csvHeader = []string{ColIntent, ColUtterance, ColResponse, ColCategory}

// WriteCSV writes records with the full keyword-variant header.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("knowledge: write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write([]string{r.Intent, r.Utterance, r.Response, r.Category}); err != nil {
			return fmt.Errorf("knowledge: write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("knowledge: flush: %w", err)
	}
	return nil
}
