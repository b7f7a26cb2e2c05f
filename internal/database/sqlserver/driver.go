// Package sqlserver connects to Microsoft SQL Server through go-mssqldb.
//
// Sessions declare ApplicationIntent=ReadOnly, which only routes them to a
// readable secondary of an availability group. It does not block writes
// on a primary or standalone server: the configured login should be a
// db_datareader-only principal.
package sqlserver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/database/sqldb"
	"github.com/koustreak/querygate/internal/errs"
)

const appName = "querygate"

// New returns a single-use SQL Server connector.
func New(cfg *database.Config) (*sqldb.Connector, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "invalid sqlserver connection string", err)
	}
	return sqldb.New(database.DriverSQLServer, "sqlserver", dsn, cfg.ConnectTimeout, mapError), nil
}

func buildDSN(cfg *database.Config) (string, error) {
	if cfg.DSN != "" {
		return withSessionDefaults(cfg.DSN)
	}
	return BuildDSN(cfg.Params, cfg.ConnectTimeout)
}

// BuildDSN renders discrete parameters as a sqlserver:// URL. A server of
// the form host\instance addresses a named instance.
func BuildDSN(p *database.Params, connectTimeout time.Duration) (string, error) {
	if p == nil || p.Server == "" || p.Database == "" {
		return "", errs.New(errs.ErrKindConfiguration, "sqlserver requires server and database")
	}

	host, instance, _ := strings.Cut(p.Server, `\`)
	u := &url.URL{Scheme: "sqlserver", Host: host}
	if instance != "" {
		u.Path = "/" + instance
	}

	if !p.TrustedConnection {
		if p.User == "" || p.Password == "" {
			return "", errs.New(errs.ErrKindConfiguration, "sqlserver requires user and password unless trusted_connection is set")
		}
		u.User = url.UserPassword(p.User, p.Password)
	}

	q := url.Values{}
	q.Set("database", p.Database)
	q.Set("encrypt", strconv.FormatBool(p.Encrypt))
	q.Set("TrustServerCertificate", strconv.FormatBool(p.TrustServerCertificate))
	q.Set("ApplicationIntent", "ReadOnly")
	q.Set("app name", appName)
	if secs := int(connectTimeout / time.Second); secs > 0 {
		q.Set("dial timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// withSessionDefaults adds ApplicationIntent=ReadOnly (secondary routing)
// and the app name to a configured connection string unless it already
// sets them. ODBC-style
// strings (with a Driver={...} key) are given the odbc: prefix.
func withSessionDefaults(dsn string) (string, error) {
	if strings.HasPrefix(strings.ToLower(dsn), "sqlserver://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindConfiguration, "invalid sqlserver URL", err)
		}
		q := u.Query()
		if !hasKey(q, "applicationintent") {
			q.Set("ApplicationIntent", "ReadOnly")
		}
		if !hasKey(q, "app name") {
			q.Set("app name", appName)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	lower := strings.ToLower(dsn)
	if strings.Contains(lower, "driver=") && !strings.HasPrefix(lower, "odbc:") {
		dsn = "odbc:" + dsn
		lower = "odbc:" + lower
	}
	dsn = strings.TrimRight(dsn, "; ")
	if !strings.Contains(lower, "applicationintent=") {
		dsn += ";ApplicationIntent=ReadOnly"
	}
	if !strings.Contains(lower, "app name=") {
		dsn += ";app name=" + appName
	}
	return dsn, nil
}

func hasKey(q url.Values, key string) bool {
	for k := range q {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// --- error mapping ---

// mapError translates go-mssqldb errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return errs.Wrap(
			classifyNumber(msErr.Number),
			fmt.Sprintf("%s: %s", msg, msErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyNumber maps SQL Server error numbers to ErrKind.
func classifyNumber(n int32) errs.ErrKind {
	switch n {
	case 18456, 18452: // login failed
		return errs.ErrKindConnectionFailed
	case 4060: // cannot open database
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindExecutionFailed
	}
}
