package schema

import (
	"encoding/json"
	"strings"
)

// placeholder is rendered for a block with no entries.
const placeholder = "- (none found)"

// TableRef identifies one base table.
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// ColumnRef describes one column and its declared type.
type ColumnRef struct {
	Schema   string `json:"schema"`
	Table    string `json:"table"`
	Column   string `json:"column"`
	DataType string `json:"data_type"`
}

// Description is a bounded summary of the catalog. It is immutable once
// built; accessors return copies.
type Description struct {
	tables  []TableRef
	columns []ColumnRef
}

// NewDescription builds a Description from already-ordered entries.
func NewDescription(tables []TableRef, columns []ColumnRef) *Description {
	return &Description{
		tables:  append([]TableRef(nil), tables...),
		columns: append([]ColumnRef(nil), columns...),
	}
}

// Tables returns the tables in catalog order.
func (d *Description) Tables() []TableRef { return append([]TableRef(nil), d.tables...) }

// Columns returns the columns in catalog order.
func (d *Description) Columns() []ColumnRef { return append([]ColumnRef(nil), d.columns...) }

// String renders the description as the two-block text handed to the SQL
// generator:
//
//	TABLES:
//	- dbo.Customers
//
//	COLUMNS:
//	- dbo.Customers.id (int)
func (d *Description) String() string {
	var sb strings.Builder
	sb.WriteString("TABLES:\n")
	if len(d.tables) == 0 {
		sb.WriteString(placeholder + "\n")
	}
	for _, t := range d.tables {
		sb.WriteString("- " + t.Schema + "." + t.Name + "\n")
	}

	sb.WriteString("\nCOLUMNS:\n")
	if len(d.columns) == 0 {
		sb.WriteString(placeholder)
	}
	for i, c := range d.columns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- " + c.Schema + "." + c.Table + "." + c.Column + " (" + c.DataType + ")")
	}
	return sb.String()
}

// MarshalJSON implements json.Marshaler.
func (d *Description) MarshalJSON() ([]byte, error) {
	tables, columns := d.tables, d.columns
	if tables == nil {
		tables = []TableRef{}
	}
	if columns == nil {
		columns = []ColumnRef{}
	}
	return json.Marshal(struct {
		Tables  []TableRef  `json:"tables"`
		Columns []ColumnRef `json:"columns"`
		Text    string      `json:"text"`
	}{tables, columns, d.String()})
}
