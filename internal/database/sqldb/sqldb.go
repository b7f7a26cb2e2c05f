// Package sqldb adapts any database/sql driver to database.Connector with
// single-use semantics: every Open creates a *sql.DB capped at one
// connection, and Conn.Close tears the whole handle down.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
)

// Classifier translates a native driver error into an *errs.Error.
type Classifier func(err error, msg string) error

// Connector opens dedicated database/sql connections.
type Connector struct {
	driver         database.Driver
	sqlDriver      string
	dsn            string
	connectTimeout time.Duration
	classify       Classifier
	init           []string
}

// New returns a Connector for the registered database/sql driver name.
// init statements run on every fresh connection before it is handed out.
func New(driver database.Driver, sqlDriver, dsn string, connectTimeout time.Duration, classify Classifier, init ...string) *Connector {
	if classify == nil {
		classify = DefaultClassifier
	}
	return &Connector{
		driver:         driver,
		sqlDriver:      sqlDriver,
		dsn:            dsn,
		connectTimeout: connectTimeout,
		classify:       classify,
		init:           init,
	}
}

// Driver implements database.Connector.
func (c *Connector) Driver() database.Driver { return c.driver }

// Open implements database.Connector.
func (c *Connector) Open(ctx context.Context) (database.Conn, error) {
	if !slices.Contains(sql.Drivers(), c.sqlDriver) {
		return nil, errs.New(errs.ErrKindConfiguration, fmt.Sprintf("database/sql driver %q is not registered", c.sqlDriver))
	}

	db, err := sql.Open(c.sqlDriver, c.dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	connectCtx := ctx
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	conn, err := db.Conn(connectCtx)
	if err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect", err)
	}
	if err := conn.PingContext(connectCtx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", err)
	}

	for _, stmt := range c.init {
		if _, err := conn.ExecContext(connectCtx, stmt); err != nil {
			_ = conn.Close()
			_ = db.Close()
			return nil, errs.Wrap(errs.ErrKindConnectionFailed, "session setup failed", err)
		}
	}

	return &Conn{db: db, conn: conn, classify: c.classify}, nil
}

// Conn is one dedicated database/sql connection.
type Conn struct {
	db       *sql.DB
	conn     *sql.Conn
	classify Classifier
}

// Query implements database.Conn.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.classify(err, "query failed")
	}
	return &sqlRows{rows: rows, classify: c.classify}, nil
}

// Close releases the connection and closes the owning *sql.DB.
func (c *Conn) Close(_ context.Context) error {
	err := errors.Join(c.conn.Close(), c.db.Close())
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "failed to close connection", err)
	}
	return nil
}

// --- sql.Rows wrapper ---

type sqlRows struct {
	rows     *sql.Rows
	classify Classifier
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return r.classify(err, "row iteration failed")
	}
	return nil
}

// DefaultClassifier maps context errors to ErrKindTimeout and everything
// else to ErrKindExecutionFailed.
func DefaultClassifier(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsContextErr(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindExecutionFailed, msg, err)
}

// IsContextErr reports whether err stems from a deadline or cancellation.
func IsContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
