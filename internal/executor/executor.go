// Package executor runs validated queries under a row cap and timeout.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/guard"
	"github.com/koustreak/querygate/internal/logger"
	"github.com/koustreak/querygate/internal/observability"
)

// Executor runs one guard.Query per call on a dedicated connection.
type Executor struct {
	connector database.Connector
	timeout   time.Duration
}

// New returns an Executor. A non-positive timeout means
// database.DefaultQueryTimeout.
func New(connector database.Connector, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = database.DefaultQueryTimeout
	}
	return &Executor{connector: connector, timeout: timeout}
}

// Execute runs q verbatim and returns at most maxRows rows. The connection
// is released before Execute returns, on every path.
func (e *Executor) Execute(ctx context.Context, q guard.Query, maxRows int) (*ResultSet, error) {
	if q.IsZero() {
		return nil, errs.New(errs.ErrKindInvalidInput, "query was not produced by the validator")
	}
	if maxRows < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("max rows must not be negative, got %d", maxRows))
	}

	start := time.Now()
	log := logger.FromContext(ctx)
	log.Debugf("executing: %s", q.String())

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var result *ResultSet
	err := database.WithConn(ctx, e.connector, func(conn database.Conn) error {
		rows, err := conn.Query(ctx, q.String())
		if err != nil {
			return err
		}
		columns, values, err := database.ScanRows(rows, maxRows)
		if err != nil {
			return err
		}
		result = assemble(columns, values, maxRows)
		return nil
	})
	if err != nil && ctx.Err() != nil && !errs.IsTimeout(err) {
		err = errs.Wrap(errs.ErrKindTimeout, fmt.Sprintf("query exceeded %s", e.timeout), err)
	}

	elapsed := time.Since(start)
	driver := string(e.connector.Driver())
	if err != nil {
		observability.ObserveQuery(driver, 0, false, elapsed, err)
		log.Stage("execute", elapsed, err, map[string]interface{}{"driver": driver, "kind": errs.KindOf(err).String()})
		return nil, err
	}

	observability.ObserveQuery(driver, result.Count, result.Truncated(), elapsed, nil)
	log.Stage("execute", elapsed, nil, map[string]interface{}{
		"driver":    driver,
		"rows":      result.Count,
		"truncated": result.Truncated(),
	})
	return result, nil
}

func assemble(columns []string, values [][]any, limit int) *ResultSet {
	columns = uniqueColumns(columns)
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{columns: columns, values: v}
	}
	return &ResultSet{Columns: columns, Rows: rows, Count: len(rows), Limit: limit}
}

// uniqueColumns suffixes repeated names with _2, _3, … in order of
// appearance, skipping suffixes that collide with existing names.
func uniqueColumns(columns []string) []string {
	out := make([]string, len(columns))
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[c] = true
	}
	seen := make(map[string]int, len(columns))
	for i, c := range columns {
		seen[c]++
		if seen[c] == 1 {
			out[i] = c
			continue
		}
		n := seen[c]
		name := c + "_" + strconv.Itoa(n)
		for taken[name] {
			n++
			name = c + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		seen[c] = n
		out[i] = name
	}
	return out
}
