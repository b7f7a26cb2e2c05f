package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/database/sqldb"
	"github.com/koustreak/querygate/internal/errs"
)

// readOnlySession runs on every fresh connection.
const readOnlySession = "SET SESSION TRANSACTION READ ONLY"

// New returns a single-use MySQL connector. The DSN always has
// multiStatements disabled, whatever the configured string says.
func New(cfg *database.Config) (*sqldb.Connector, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	return sqldb.New(database.DriverMySQL, "mysql", dsn, cfg.ConnectTimeout, mapError, readOnlySession), nil
}

func buildDSN(cfg *database.Config) (string, error) {
	var (
		mc  *mysql.Config
		err error
	)
	if cfg.DSN != "" {
		mc, err = mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindConfiguration, "invalid mysql DSN", err)
		}
	} else {
		mc, err = configFromParams(cfg.Params)
		if err != nil {
			return "", err
		}
	}

	mc.MultiStatements = false
	if cfg.ConnectTimeout > 0 {
		mc.Timeout = cfg.ConnectTimeout
	}

	return mc.FormatDSN(), nil
}

func configFromParams(p *database.Params) (*mysql.Config, error) {
	if p == nil || p.Server == "" || p.Database == "" {
		return nil, errs.New(errs.ErrKindConfiguration, "mysql requires server and database")
	}
	if p.TrustedConnection {
		return nil, errs.New(errs.ErrKindConfiguration, "mysql does not support trusted_connection; configure user and password")
	}
	if p.User == "" || p.Password == "" {
		return nil, errs.New(errs.ErrKindConfiguration, "mysql requires user and password")
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = p.Server
	mc.DBName = p.Database
	mc.User = p.User
	mc.Passwd = p.Password
	mc.ParseTime = true
	switch {
	case !p.Encrypt:
		mc.TLSConfig = "false"
	case p.TrustServerCertificate:
		mc.TLSConfig = "skip-verify"
	default:
		mc.TLSConfig = "true"
	}
	return mc, nil
}

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1049: // access denied, bad database
		return errs.ErrKindConnectionFailed
	case 1040, 1203: // too many connections
		return errs.ErrKindConnectionFailed
	case 3024: // max_execution_time exceeded
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindExecutionFailed
	}
}
