package executor

import (
	"bytes"
	"encoding/json"
)

// Row is one result row: values in column order, addressable by name.
type Row struct {
	columns []string
	values  []any
}

// Columns returns the column names in result order.
func (r Row) Columns() []string { return append([]string(nil), r.columns...) }

// Values returns the values in column order.
func (r Row) Values() []any { return append([]any(nil), r.values...) }

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as an unordered map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the row as an object whose keys keep column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ResultSet is the outcome of one executed query.
type ResultSet struct {
	Columns []string
	Rows    []Row
	Count   int
	// Limit is the row cap the query ran with.
	Limit int
}

// Truncated reports whether the cap was reached, in which case the
// database may hold more matching rows.
func (r *ResultSet) Truncated() bool { return r.Count == r.Limit }

// Sample returns at most n leading rows.
func (r *ResultSet) Sample(n int) []Row {
	if n > len(r.Rows) {
		n = len(r.Rows)
	}
	if n < 0 {
		n = 0
	}
	return r.Rows[:n]
}

type resultJSON struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	Count     int      `json:"count"`
	Limit     int      `json:"limit"`
	Truncated bool     `json:"truncated"`
}

// MarshalJSON implements json.Marshaler.
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Columns:   r.Columns,
		Rows:      r.Rows,
		Count:     r.Count,
		Limit:     r.Limit,
		Truncated: r.Truncated(),
	})
}

// UnmarshalJSON restores a ResultSet written by MarshalJSON. Row order
// follows Columns.
func (r *ResultSet) UnmarshalJSON(data []byte) error {
	var raw struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Count   int              `json:"count"`
		Limit   int              `json:"limit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Columns = raw.Columns
	r.Count = raw.Count
	r.Limit = raw.Limit
	r.Rows = make([]Row, len(raw.Rows))
	for i, m := range raw.Rows {
		values := make([]any, len(raw.Columns))
		for j, c := range raw.Columns {
			values[j] = m[c]
		}
		r.Rows[i] = Row{columns: raw.Columns, values: values}
	}
	return nil
}

// NewRow builds a Row. When the lengths differ, the extra columns or
// values are dropped.
func NewRow(columns []string, values []any) Row {
	n := min(len(columns), len(values))
	return Row{columns: columns[:n], values: values[:n]}
}
