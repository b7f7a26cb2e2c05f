package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/data/shop.duckdb", "/data/shop.duckdb?access_mode=read_only"},
		{"/data/shop.duckdb?threads=2", "/data/shop.duckdb?threads=2&access_mode=read_only"},
		{"/data/shop.duckdb?access_mode=READ_ONLY", "/data/shop.duckdb?access_mode=READ_ONLY"},
	}
	for _, tt := range tests {
		got, err := buildDSN(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBuildDSN_RefusesWritableModes(t *testing.T) {
	for _, in := range []string{
		"/data/shop.duckdb?access_mode=read_write",
		"/data/shop.duckdb?threads=2&ACCESS_MODE=automatic",
		"/data/shop.duckdb?access_mode=read_only&access_mode=read_write",
	} {
		_, err := buildDSN(in)
		require.Error(t, err, in)
		assert.True(t, errs.IsConfiguration(err), in)
	}
}

func TestBuildDSN_RequiresFile(t *testing.T) {
	for _, in := range []string{"", "  ", ":memory:", "?threads=1"} {
		_, err := buildDSN(in)
		require.Error(t, err, in)
		assert.True(t, errs.IsConfiguration(err))
	}
}

func TestMapError(t *testing.T) {
	assert.True(t, errs.IsTimeout(mapError(context.DeadlineExceeded, "x")))
	assert.True(t, errs.IsExecutionFailed(mapError(errors.New("Catalog Error"), "x")))
}

func TestConnector_ReadsFileReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.duckdb")

	seed, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	_, err = seed.Exec(`CREATE TABLE customers (id INTEGER, name VARCHAR)`)
	require.NoError(t, err)
	_, err = seed.Exec(`INSERT INTO customers VALUES (1, 'Ada'), (2, 'Grace'), (3, 'Edsger')`)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	c, err := New(&database.Config{Driver: database.DriverDuckDB, DSN: path, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)

	ctx := context.Background()
	err = database.WithConn(ctx, c, func(conn database.Conn) error {
		rows, err := conn.Query(ctx, "SELECT id, name FROM customers ORDER BY id")
		if err != nil {
			return err
		}
		cols, values, err := database.ScanRows(rows, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, cols)
		assert.Len(t, values, 2)

		rows, err = conn.Query(ctx, "DELETE FROM customers")
		if err == nil {
			_, _, err = database.ScanRows(rows, -1)
		}
		assert.True(t, errs.IsExecutionFailed(err), "writes must fail on a read-only database: %v", err)
		return nil
	})
	require.NoError(t, err)
}

func TestConnector_BlocksHostFileAccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.duckdb")
	secret := filepath.Join(dir, "secret.csv")
	require.NoError(t, os.WriteFile(secret, []byte("token\nhunter2\n"), 0o600))

	seed, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	_, err = seed.Exec(`CREATE TABLE t (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	c, err := New(&database.Config{Driver: database.DriverDuckDB, DSN: path, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)

	ctx := context.Background()
	for _, q := range []string{
		"SELECT * FROM read_csv('" + secret + "')",
		"SELECT * FROM read_text('" + secret + "')",
	} {
		err = database.WithConn(ctx, c, func(conn database.Conn) error {
			rows, err := conn.Query(ctx, q)
			if err != nil {
				return err
			}
			_, _, err = database.ScanRows(rows, -1)
			return err
		})
		assert.True(t, errs.IsExecutionFailed(err), "%s: %v", q, err)
	}
}
