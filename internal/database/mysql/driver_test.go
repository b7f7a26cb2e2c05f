package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
)

func TestConfigFromParams(t *testing.T) {
	mc, err := configFromParams(&database.Params{
		Server:                 "db:3306",
		Database:               "shop",
		User:                   "reader",
		Password:               "secret",
		Encrypt:                true,
		TrustServerCertificate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tcp", mc.Net)
	assert.Equal(t, "db:3306", mc.Addr)
	assert.Equal(t, "shop", mc.DBName)
	assert.Equal(t, "skip-verify", mc.TLSConfig)
}

func TestConfigFromParams_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params *database.Params
	}{
		{"nil", nil},
		{"missing database", &database.Params{Server: "db", User: "u", Password: "p"}},
		{"trusted connection", &database.Params{Server: "db", Database: "shop", TrustedConnection: true}},
		{"missing password", &database.Params{Server: "db", Database: "shop", User: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := configFromParams(tt.params)
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err))
		})
	}
}

func TestNew_ForcesSingleStatements(t *testing.T) {
	cfg := &database.Config{
		Driver:         database.DriverMySQL,
		DSN:            "reader:secret@tcp(db:3306)/shop?multiStatements=true",
		ConnectTimeout: 3 * time.Second,
	}
	dsn, err := buildDSN(cfg)
	require.NoError(t, err)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.False(t, mc.MultiStatements)
	assert.Equal(t, 3*time.Second, mc.Timeout)

	c, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, database.DriverMySQL, c.Driver())
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(&database.Config{DSN: "not a dsn"})
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, errs.ErrKindConnectionFailed},
		{"unknown database", &mysql.MySQLError{Number: 1049, Message: "Unknown database"}, errs.ErrKindConnectionFailed},
		{"unknown table", &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}, errs.ErrKindExecutionFailed},
		{"read only", &mysql.MySQLError{Number: 1792, Message: "read only transaction"}, errs.ErrKindExecutionFailed},
		{"max execution time", &mysql.MySQLError{Number: 3024, Message: "maximum statement execution time exceeded"}, errs.ErrKindTimeout},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errs.KindOf(mapError(tt.err, "query failed")))
		})
	}
}
