package table

import (
	"encoding/json"
	"fmt"
	"strconv"

	"aicluster/internal/common"
)

// MarshalJSON writes the row as a flat object with reserved keys for the id
// and the label.
func (r Row) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Values)+2)
	for field, v := range r.Values {
		m[field] = v
	}
	m[common.KeywordID] = r.ID
	if r.HasLabel {
		m[common.KeywordOutput] = r.Label
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat form written by MarshalJSON. Null values are
// treated as missing; numeric labels are accepted.
func (r *Row) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	row := Row{Values: make(map[string]float64, len(m))}
	for key, raw := range m {
		switch key {
		case common.KeywordID:
			row.ID = scalarString(raw)
		case common.KeywordOutput:
			if raw != nil {
				row.Label = scalarString(raw)
				row.HasLabel = row.Label != ""
			}
		default:
			switch v := raw.(type) {
			case nil:
			case float64:
				row.Values[key] = v
			default:
				return fmt.Errorf("field %q: expected number, got %T", key, raw)
			}
		}
	}
	*r = row
	return nil
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// Strip returns a copy of r without its values.
func (r Row) Strip() Row {
	return Row{ID: r.ID, Label: r.Label, HasLabel: r.HasLabel, Values: map[string]float64{}}
}
