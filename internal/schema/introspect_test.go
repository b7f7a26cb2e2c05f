package schema

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/database/sqldb"
	"github.com/koustreak/querygate/internal/errs"
)

func newMockIntrospector(t *testing.T, driver database.Driver) (*Introspector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.NewWithDSN(t.Name(), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewIntrospector(sqldb.New(driver, "sqlmock", t.Name(), time.Second, nil), 5*time.Second), mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDescribe_SQLServer(t *testing.T) {
	in, mock := newMockIntrospector(t, database.DriverSQLServer)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT TOP (@p1) [TABLE_SCHEMA], [TABLE_NAME] FROM [INFORMATION_SCHEMA].[TABLES] `+
			`WHERE [TABLE_TYPE] = @p2 AND [TABLE_SCHEMA] NOT IN (@p3, @p4) `+
			`ORDER BY [TABLE_SCHEMA] ASC, [TABLE_NAME] ASC`)).
		WithArgs(25, "BASE TABLE", "sys", "INFORMATION_SCHEMA").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME"}).
			AddRow("dbo", "Customers").
			AddRow("dbo", "Orders"))
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT TOP (@p1) [TABLE_SCHEMA], [TABLE_NAME], [COLUMN_NAME], [DATA_TYPE] FROM [INFORMATION_SCHEMA].[COLUMNS] `+
			`WHERE [TABLE_SCHEMA] NOT IN (@p2, @p3) `+
			`ORDER BY [TABLE_SCHEMA] ASC, [TABLE_NAME] ASC, [ORDINAL_POSITION] ASC`)).
		WithArgs(400, "sys", "INFORMATION_SCHEMA").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME", "COLUMN_NAME", "DATA_TYPE"}).
			AddRow("dbo", "Customers", "id", "int").
			AddRow("dbo", "Customers", "name", []byte("nvarchar")))
	mock.ExpectClose()

	desc, err := in.Describe(context.Background(), 25, 400)
	require.NoError(t, err)

	assert.Equal(t, "TABLES:\n"+
		"- dbo.Customers\n"+
		"- dbo.Orders\n"+
		"\n"+
		"COLUMNS:\n"+
		"- dbo.Customers.id (int)\n"+
		"- dbo.Customers.name (nvarchar)", desc.String())
	assert.Len(t, desc.Tables(), 2)
	assert.Equal(t, ColumnRef{Schema: "dbo", Table: "Customers", Column: "name", DataType: "nvarchar"}, desc.Columns()[1])
	assertSQLMock(t, mock)
}

func TestDescribe_PostgresUsesLimit(t *testing.T) {
	in, mock := newMockIntrospector(t, database.DriverPostgres)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT "table_schema", "table_name" FROM "information_schema"."tables" `+
			`WHERE "table_type" = $1 AND "table_schema" NOT IN ($2, $3) `+
			`ORDER BY "table_schema" ASC, "table_name" ASC LIMIT $4`)).
		WithArgs("BASE TABLE", "pg_catalog", "information_schema", 3).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name"}).AddRow("public", "orders"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "information_schema"."columns"`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type"}))
	mock.ExpectClose()

	desc, err := in.Describe(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, "TABLES:\n- public.orders\n\nCOLUMNS:\n- (none found)", desc.String())
	assertSQLMock(t, mock)
}

func TestDescribe_MySQLExcludesSystemSchemas(t *testing.T) {
	in, mock := newMockIntrospector(t, database.DriverMySQL)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `information_schema`.`tables` WHERE `table_type` = ? AND `table_schema` NOT IN (?, ?, ?, ?)")).
		WithArgs("BASE TABLE", "mysql", "information_schema", "performance_schema", "sys", 5).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME"}).AddRow([]byte("shop"), []byte("orders")))
	mock.ExpectClose()

	desc, err := in.Describe(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []TableRef{{Schema: "shop", Name: "orders"}}, desc.Tables())
	assertSQLMock(t, mock)
}

func TestDescribe_ZeroLimitsRenderPlaceholders(t *testing.T) {
	in, mock := newMockIntrospector(t, database.DriverSQLServer)
	mock.ExpectClose()

	desc, err := in.Describe(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "TABLES:\n- (none found)\n\nCOLUMNS:\n- (none found)", desc.String())
	assertSQLMock(t, mock)
}

func TestDescribe_NegativeLimits(t *testing.T) {
	in, _ := newMockIntrospector(t, database.DriverSQLServer)

	_, err := in.Describe(context.Background(), -1, 10)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestDescribe_QueryFailureReleasesConnection(t *testing.T) {
	in, mock := newMockIntrospector(t, database.DriverSQLServer)

	mock.ExpectQuery("INFORMATION_SCHEMA").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	_, err := in.Describe(context.Background(), 25, 400)
	require.Error(t, err)
	assert.True(t, errs.IsExecutionFailed(err))
	assertSQLMock(t, mock)
}

func TestDescribe_Unreachable(t *testing.T) {
	// No mock is registered under this DSN, so connecting fails.
	in := NewIntrospector(sqldb.New(database.DriverSQLServer, "sqlmock", "absent-"+t.Name(), time.Second, nil), 0)

	_, err := in.Describe(context.Background(), 25, 400)
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestDescription_IsImmutable(t *testing.T) {
	tables := []TableRef{{Schema: "dbo", Name: "A"}}
	desc := NewDescription(tables, nil)

	tables[0].Name = "changed"
	got := desc.Tables()
	got[0].Name = "also changed"

	assert.Equal(t, "A", desc.Tables()[0].Name)
}

func TestDescription_JSON(t *testing.T) {
	desc := NewDescription(nil, []ColumnRef{{Schema: "s", Table: "t", Column: "c", DataType: "int"}})

	b, err := json.Marshal(desc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"tables": [],
		"columns": [{"schema":"s","table":"t","column":"c","data_type":"int"}],
		"text": "TABLES:\n- (none found)\n\nCOLUMNS:\n- s.t.c (int)"
	}`, string(b))
}
