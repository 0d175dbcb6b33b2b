// Package table reads sample tables (CSV or tab separated text) into rows of
// numeric fields keyed by column name.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrNoHeader      = errors.New("no header row found")
	ErrMissingOutput = errors.New("output column missing")
	ErrEmptyColumn   = errors.New("column has no values")
)

// A header row has more than this many non-empty cells.
const minHeaderCells = 3

// Row is one sample. Values holds the numeric cells that were present; a
// field absent from Values is missing for this sample.
type Row struct {
	ID       string
	Label    string
	HasLabel bool
	Values   map[string]float64
}

// Load reads the table at path. The delimiter follows the extension: tab for
// .txt and .tsv, comma otherwise. idField and outField name the identifier
// and output columns; either may be absent from the file, in which case rows
// get generated ids or no label.
//
// Negative and non-numeric cells count as missing. Rows with at most half of
// the fields present are dropped, then fields present in fewer than half of
// the kept rows are dropped.
func Load(path, idField, outField string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", path, err)
	}
	defer f.Close()

	comma := ','
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".tsv":
		comma = '\t'
	}

	rows, err := Read(f, comma, idField, outField)
	if err != nil {
		return nil, fmt.Errorf("failed to load table %s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("rows", len(rows)).
		Int("fields", len(Fields(rows))).
		Msg("Loaded table")
	return rows, nil
}

// Read parses a delimited table from r. See Load for the filtering rules.
func Read(r io.Reader, comma rune, idField, outField string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse table: %w", err)
	}

	headerRow := -1
	for i, record := range records {
		if countNonEmpty(record) > minHeaderCells {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, ErrNoHeader
	}

	header := records[headerRow]
	idCol, outCol := -1, -1
	columns := make(map[string]int)
	var fields []string
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == outField && outCol < 0:
			outCol = i
		case name == idField && idCol < 0:
			idCol = i
		case name == "":
		default:
			if _, dup := columns[name]; !dup {
				columns[name] = i
				fields = append(fields, name)
			}
		}
	}

	present := make(map[string]int, len(fields))
	var rows []Row
	for _, record := range records[headerRow+1:] {
		if countNonEmpty(record) == 0 {
			continue
		}
		row := Row{Values: make(map[string]float64, len(fields))}
		if outCol >= 0 && outCol < len(record) {
			row.Label = strings.TrimSpace(record[outCol])
			row.HasLabel = row.Label != ""
		}
		if idCol >= 0 && idCol < len(record) {
			row.ID = strings.TrimSpace(record[idCol])
		}
		if row.ID == "" {
			row.ID = fmt.Sprintf("ID:%d", len(rows))
		}

		for _, field := range fields {
			col := columns[field]
			if col >= len(record) {
				continue
			}
			if v, ok := parseCell(record[col]); ok {
				row.Values[field] = v
			}
		}
		if len(row.Values) <= len(fields)/2 {
			continue
		}
		for field := range row.Values {
			present[field]++
		}
		rows = append(rows, row)
	}

	minimum := len(rows) / 2
	for _, field := range fields {
		if present[field] >= minimum {
			continue
		}
		for _, row := range rows {
			delete(row.Values, field)
		}
	}

	return rows, nil
}

func countNonEmpty(record []string) int {
	n := 0
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			n++
		}
	}
	return n
}

func parseCell(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Fields returns the sorted union of field names present in rows.
func Fields(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for field := range row.Values {
			seen[field] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for field := range seen {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// CommonFields returns the fields of a that also appear in b, in a's order.
func CommonFields(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, field := range b {
		inB[field] = struct{}{}
	}
	var common []string
	for _, field := range a {
		if _, ok := inB[field]; ok {
			common = append(common, field)
		}
	}
	return common
}

// RequireLabels fails with ErrMissingOutput when any row has no label.
func RequireLabels(rows []Row) error {
	for _, row := range rows {
		if !row.HasLabel {
			return fmt.Errorf("%w: row %s", ErrMissingOutput, row.ID)
		}
	}
	return nil
}
