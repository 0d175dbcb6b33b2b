package table

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"aicluster/internal/forest"
)

// Vector lays out the values of row in field order.
func Vector(row Row, fields []string) ([]float64, error) {
	x := make([]float64, len(fields))
	for i, field := range fields {
		v, ok := row.Values[field]
		if !ok {
			return nil, fmt.Errorf("row %s: %w: missing %q", row.ID, forest.ErrFieldMismatch, field)
		}
		x[i] = v
	}
	return x, nil
}

// Matrix returns one vector per row.
func Matrix(rows []Row, fields []string) ([][]float64, error) {
	xs := make([][]float64, len(rows))
	for i, row := range rows {
		x, err := Vector(row, fields)
		if err != nil {
			return nil, err
		}
		xs[i] = x
	}
	return xs, nil
}

// Impute fills every missing value of fields with the median of the values
// present in that column. Rows are modified in place.
func Impute(rows []Row, fields []string) error {
	for _, field := range fields {
		var values []float64
		missing := false
		for _, row := range rows {
			if v, ok := row.Values[field]; ok {
				values = append(values, v)
			} else {
				missing = true
			}
		}
		if !missing {
			continue
		}
		if len(values) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyColumn, field)
		}

		m := median(values)
		for _, row := range rows {
			if _, ok := row.Values[field]; !ok {
				row.Values[field] = m
			}
		}
	}
	return nil
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return stat.Mean(values[n/2-1:n/2+1], nil)
}

// FieldStats summarises one column.
type FieldStats struct {
	Field  string  `json:"field"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Count  int     `json:"count"`
}

// Describe summarises the present values of every field.
func Describe(rows []Row, fields []string) []FieldStats {
	out := make([]FieldStats, 0, len(fields))
	for _, field := range fields {
		var values []float64
		for _, row := range rows {
			if v, ok := row.Values[field]; ok {
				values = append(values, v)
			}
		}
		s := FieldStats{Field: field, Count: len(values)}
		if len(values) > 0 {
			s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
			s.Median = median(values)
		}
		out = append(out, s)
	}
	return out
}
