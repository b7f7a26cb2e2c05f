package schema

import "github.com/koustreak/querygate/internal/database"

// catalog names the metadata views and system schemas for one dialect.
// SQL Server exposes upper-case INFORMATION_SCHEMA identifiers; the other
// engines use lower case.
type catalog struct {
	tables        string
	columns       string
	schemaCol     string
	tableCol      string
	tableTypeCol  string
	columnCol     string
	dataTypeCol   string
	ordinalCol    string
	systemSchemas []any
}

var lowerCatalog = catalog{
	tables:       "information_schema.tables",
	columns:      "information_schema.columns",
	schemaCol:    "table_schema",
	tableCol:     "table_name",
	tableTypeCol: "table_type",
	columnCol:    "column_name",
	dataTypeCol:  "data_type",
	ordinalCol:   "ordinal_position",
}

func catalogFor(d database.Dialect) catalog {
	switch d {
	case database.DialectSQLServer:
		return catalog{
			tables:        "INFORMATION_SCHEMA.TABLES",
			columns:       "INFORMATION_SCHEMA.COLUMNS",
			schemaCol:     "TABLE_SCHEMA",
			tableCol:      "TABLE_NAME",
			tableTypeCol:  "TABLE_TYPE",
			columnCol:     "COLUMN_NAME",
			dataTypeCol:   "DATA_TYPE",
			ordinalCol:    "ORDINAL_POSITION",
			systemSchemas: []any{"sys", "INFORMATION_SCHEMA"},
		}
	case database.DialectMySQL:
		c := lowerCatalog
		c.systemSchemas = []any{"mysql", "information_schema", "performance_schema", "sys"}
		return c
	case database.DialectDuckDB:
		c := lowerCatalog
		c.systemSchemas = []any{"information_schema", "pg_catalog"}
		return c
	default:
		c := lowerCatalog
		c.systemSchemas = []any{"pg_catalog", "information_schema"}
		return c
	}
}

// tablesQuery lists base tables ordered by (schema, name).
func (c catalog) tablesQuery(d database.Dialect, limit int) (string, []any, error) {
	return database.Select(c.tables, d).
		Columns(c.schemaCol, c.tableCol).
		Where(c.tableTypeCol, "=", "BASE TABLE").
		WhereNotIn(c.schemaCol, c.systemSchemas...).
		OrderBy(c.schemaCol, database.Asc).
		OrderBy(c.tableCol, database.Asc).
		Limit(limit).
		Build()
}

// columnsQuery lists columns ordered by (schema, table, ordinal position).
func (c catalog) columnsQuery(d database.Dialect, limit int) (string, []any, error) {
	return database.Select(c.columns, d).
		Columns(c.schemaCol, c.tableCol, c.columnCol, c.dataTypeCol).
		WhereNotIn(c.schemaCol, c.systemSchemas...).
		OrderBy(c.schemaCol, database.Asc).
		OrderBy(c.tableCol, database.Asc).
		OrderBy(c.ordinalCol, database.Asc).
		Limit(limit).
		Build()
}
