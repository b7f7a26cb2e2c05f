package database

import (
	"context"

	"github.com/koustreak/querygate/internal/logger"
)

// Connector opens single-use connections. There is no pooling: every
// Open establishes a fresh connection and Conn.Close tears it down.
// All layers above this package talk only to this interface;
// they never import the driver packages directly.
type Connector interface {
	// Driver reports which engine the connector talks to.
	Driver() Driver

	// Open establishes one dedicated connection.
	Open(ctx context.Context) (Conn, error)
}

// Conn is one live connection. Callers must always call Close.
type Conn interface {
	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Close releases the connection and everything it holds.
	Close(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// WithConn opens a connection, hands it to fn and closes it on every exit
// path. A failed Close after fn succeeded is logged, not returned: the
// read already completed.
func WithConn(ctx context.Context, c Connector, fn func(Conn) error) error {
	conn, err := c.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.FromContext(ctx).WarnWith("closing connection failed", cerr, map[string]interface{}{
				"driver": string(c.Driver()),
			})
		}
	}()
	return fn(conn)
}
