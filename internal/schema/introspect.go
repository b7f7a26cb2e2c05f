// Package schema summarizes the database catalog into the bounded text
// description given to the SQL generator.
package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/logger"
	"github.com/koustreak/querygate/internal/observability"
)

// Introspector reads catalog metadata through a single-use connection.
type Introspector struct {
	connector database.Connector
	timeout   time.Duration
}

// NewIntrospector returns an Introspector. A non-positive timeout means
// database.DefaultQueryTimeout.
func NewIntrospector(connector database.Connector, timeout time.Duration) *Introspector {
	if timeout <= 0 {
		timeout = database.DefaultQueryTimeout
	}
	return &Introspector{connector: connector, timeout: timeout}
}

// Describe lists at most maxTables base tables and maxColumns columns.
// A zero cap skips that query and yields an empty block.
func (i *Introspector) Describe(ctx context.Context, maxTables, maxColumns int) (*Description, error) {
	if maxTables < 0 || maxColumns < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("schema limits must not be negative (tables=%d, columns=%d)", maxTables, maxColumns))
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	dialect := i.connector.Driver().Dialect()
	cat := catalogFor(dialect)

	var (
		tables  []TableRef
		columns []ColumnRef
	)
	err := database.WithConn(ctx, i.connector, func(conn database.Conn) error {
		if maxTables > 0 {
			q, args, err := cat.tablesQuery(dialect, maxTables)
			if err != nil {
				return err
			}
			values, err := fetch(ctx, conn, q, args, maxTables)
			if err != nil {
				return err
			}
			for _, v := range values {
				tables = append(tables, TableRef{Schema: text(v[0]), Name: text(v[1])})
			}
		}

		if maxColumns > 0 {
			q, args, err := cat.columnsQuery(dialect, maxColumns)
			if err != nil {
				return err
			}
			values, err := fetch(ctx, conn, q, args, maxColumns)
			if err != nil {
				return err
			}
			for _, v := range values {
				columns = append(columns, ColumnRef{
					Schema:   text(v[0]),
					Table:    text(v[1]),
					Column:   text(v[2]),
					DataType: text(v[3]),
				})
			}
		}
		return nil
	})

	observability.ObserveDescribe(err)
	logger.FromContext(ctx).Stage("describe", time.Since(start), err, map[string]interface{}{
		"driver":  string(i.connector.Driver()),
		"tables":  len(tables),
		"columns": len(columns),
	})
	if err != nil {
		return nil, err
	}
	return NewDescription(tables, columns), nil
}

func fetch(ctx context.Context, conn database.Conn, q string, args []any, limit int) ([][]any, error) {
	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	_, values, err := database.ScanRows(rows, limit)
	return values, err
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
