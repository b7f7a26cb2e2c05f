// Package drivers selects the connector implementation for a resolved
// database.Config. It is the only package that imports every driver.
package drivers

import (
	"fmt"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/database/duckdb"
	"github.com/koustreak/querygate/internal/database/mysql"
	"github.com/koustreak/querygate/internal/database/postgres"
	"github.com/koustreak/querygate/internal/database/sqlserver"
	"github.com/koustreak/querygate/internal/errs"
)

// New builds the Connector for cfg.Driver. No connection is made.
func New(cfg *database.Config) (database.Connector, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindConfiguration, "database configuration is missing")
	}
	if cfg.DSN == "" && cfg.Params == nil {
		return nil, errs.New(errs.ErrKindConfiguration, "either a connection string or connection parameters are required")
	}

	switch cfg.Driver {
	case database.DriverSQLServer:
		return sqlserver.New(cfg)
	case database.DriverPostgres:
		return postgres.New(cfg)
	case database.DriverMySQL:
		return mysql.New(cfg)
	case database.DriverDuckDB:
		return duckdb.New(cfg)
	default:
		return nil, errs.New(errs.ErrKindConfiguration, fmt.Sprintf("unsupported driver %q", cfg.Driver))
	}
}
