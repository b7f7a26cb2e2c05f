package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
)

// Connector opens one pgx.Conn per operation. Every session is started
// with default_transaction_read_only=on.
type Connector struct {
	cfg *pgx.ConnConfig
}

// New validates cfg and prepares a Connector. No connection is made.
func New(cfg *database.Config) (*Connector, error) {
	dsn := cfg.DSN
	if dsn == "" {
		var err error
		if dsn, err = BuildDSN(cfg.Params, cfg.ConnectTimeout); err != nil {
			return nil, err
		}
	}

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "invalid postgres connection string", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	connCfg.RuntimeParams["default_transaction_read_only"] = "on"
	if _, ok := connCfg.RuntimeParams["application_name"]; !ok {
		connCfg.RuntimeParams["application_name"] = "querygate"
	}

	return &Connector{cfg: connCfg}, nil
}

// BuildDSN renders discrete parameters as a postgres:// URL.
// Encrypt without TrustServerCertificate verifies the server certificate.
func BuildDSN(p *database.Params, connectTimeout time.Duration) (string, error) {
	if p == nil || p.Server == "" || p.Database == "" {
		return "", errs.New(errs.ErrKindConfiguration, "postgres requires server and database")
	}

	u := &url.URL{Scheme: "postgres", Host: p.Server, Path: "/" + p.Database}
	if !p.TrustedConnection {
		if p.User == "" || p.Password == "" {
			return "", errs.New(errs.ErrKindConfiguration, "postgres requires user and password unless trusted_connection is set")
		}
		u.User = url.UserPassword(p.User, p.Password)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}

	q := url.Values{}
	switch {
	case !p.Encrypt:
		q.Set("sslmode", "disable")
	case p.TrustServerCertificate:
		q.Set("sslmode", "require")
	default:
		q.Set("sslmode", "verify-full")
	}
	if secs := int(connectTimeout / time.Second); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Driver implements database.Connector.
func (c *Connector) Driver() database.Driver { return database.DriverPostgres }

// Open implements database.Connector.
func (c *Connector) Open(ctx context.Context) (database.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, c.cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect to postgres", err)
	}
	return &pgConn{conn: conn}, nil
}

// pgConn wraps a single pgx.Conn to satisfy database.Conn.
type pgConn struct {
	conn *pgx.Conn
}

func (c *pgConn) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

func (c *pgConn) Close(ctx context.Context) error {
	if err := c.conn.Close(ctx); err != nil {
		return mapError(err, "failed to close connection")
	}
	return nil
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "row iteration failed")
	}
	return nil
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindExecutionFailed
		// Class 08: connection exception. Class 28: invalid authorization.
		if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "28") {
			kind = errs.ErrKindConnectionFailed
		}
		if pgErr.Code == "57014" { // query_canceled (statement_timeout)
			kind = errs.ErrKindTimeout
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
