// Package duckdb opens local DuckDB database files in read-only mode.
package duckdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2" // register "duckdb" driver

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/database/sqldb"
	"github.com/koustreak/querygate/internal/errs"
)

// disableExternalAccess stops table functions such as read_csv and
// read_text from reaching host files or the network. It cannot be turned
// back on within the session.
const disableExternalAccess = "SET enable_external_access = false"

// New returns a single-use DuckDB connector. Only the connection-string
// style is supported: the DSN is a database file path, optionally followed
// by ?key=value settings.
func New(cfg *database.Config) (*sqldb.Connector, error) {
	dsn, err := buildDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return sqldb.New(database.DriverDuckDB, "duckdb", dsn, cfg.ConnectTimeout, mapError, disableExternalAccess), nil
}

// buildDSN appends access_mode=read_only unless the string already asks
// for it. Any other access mode is refused.
func buildDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	path, rawQuery, hasQuery := strings.Cut(dsn, "?")
	if path == "" || path == ":memory:" {
		return "", errs.New(errs.ErrKindConfiguration, "duckdb requires a database file path as connection_string")
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindConfiguration, "invalid duckdb connection settings", err)
	}
	for key, values := range params {
		if !strings.EqualFold(key, "access_mode") {
			continue
		}
		for _, v := range values {
			if !strings.EqualFold(v, "read_only") {
				return "", errs.New(errs.ErrKindConfiguration,
					fmt.Sprintf("duckdb access_mode %q is not allowed; only read_only is supported", v))
			}
		}
		return dsn, nil
	}

	sep := "?"
	if hasQuery {
		sep = "&"
	}
	return dsn + sep + "access_mode=read_only", nil
}

// mapError translates DuckDB errors into *errs.Error. DuckDB is embedded,
// so anything past Open is an execution problem.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindExecutionFailed, msg, err)
}
