package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
)

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "querygate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", mapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "sqlserver", cfg.Database.Driver)
	assert.True(t, cfg.Database.Encrypt)
	assert.True(t, cfg.Database.TrustServerCertificate)
	assert.Equal(t, 30, cfg.Database.QueryTimeoutSeconds)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout())
	assert.Equal(t, 25, cfg.Schema.MaxTables)
	assert.Equal(t, 400, cfg.Schema.MaxColumns)
	assert.Equal(t, 100, cfg.Query.MaxRows)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoad_NilLookup(t *testing.T) {
	_, err := Load("", nil)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: console
database:
  driver: postgres
  connection_string: postgres://reader:pw@db:5432/shop
  query_timeout_seconds: 12
schema:
  max_tables: 5
query:
  max_rows: 20
llm:
  timeout: 15s
`)
	cfg, err := Load(path, mapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://reader:pw@db:5432/shop", cfg.Database.ConnectionString)
	assert.Equal(t, 12, cfg.Database.QueryTimeoutSeconds)
	assert.Equal(t, 5, cfg.Schema.MaxTables)
	assert.Equal(t, 400, cfg.Schema.MaxColumns, "unset keys keep defaults")
	assert.Equal(t, 20, cfg.Query.MaxRows)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""), mapLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_UnknownYAMLKey(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  hostname: x\n"), mapLookup(nil))
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), mapLookup(nil))
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
}

func TestLoad_LegacyVariables(t *testing.T) {
	cfg, err := Load("", mapLookup(map[string]string{
		"MSSQL_SERVER":             "sql01\\PROD",
		"MSSQL_DATABASE":           "Sales",
		"MSSQL_UID":                "reader",
		"MSSQL_PWD":                "secret",
		"MSSQL_ENCRYPT":            "no",
		"MSSQL_TRUST_SERVER_CERT":  "yes",
		"MSSQL_TRUSTED_CONNECTION": "0",
		"DB_QUERY_TIMEOUT_SECONDS": "45",
		"OPENAI_API_KEY":           "sk-test",
		"OPENAI_MODEL":             "gpt-4o",
	}))
	require.NoError(t, err)

	db := cfg.Database
	assert.Equal(t, "sql01\\PROD", db.Server)
	assert.Equal(t, "Sales", db.Database)
	assert.Equal(t, "reader", db.User)
	assert.Equal(t, "secret", db.Password)
	assert.False(t, db.Encrypt)
	assert.True(t, db.TrustServerCertificate)
	assert.False(t, db.TrustedConnection)
	assert.Equal(t, 45, db.QueryTimeoutSeconds)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestLoad_PrefixedVariablesWin(t *testing.T) {
	path := writeConfig(t, "query:\n  max_rows: 20\n")
	cfg, err := Load(path, mapLookup(map[string]string{
		"MSSQL_DATABASE":            "Legacy",
		"QUERYGATE_DB_DATABASE":     "Current",
		"QUERYGATE_QUERY_MAX_ROWS":  "50",
		"QUERYGATE_LLM_TIMEOUT":     "2m",
		"QUERYGATE_ARCHIVE_ENABLED": "true",
		"QUERYGATE_ARCHIVE_BUCKET":  "answers",
	}))
	require.NoError(t, err)

	assert.Equal(t, "Current", cfg.Database.Database)
	assert.Equal(t, 50, cfg.Query.MaxRows)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "answers", cfg.Archive.Bucket)
}

func TestLoad_BoolSpellings(t *testing.T) {
	for raw, want := range map[string]bool{
		"yes": true, "YES": true, "true": true, "1": true, "on": true,
		"no": false, "false": false, "0": false, "off": false,
	} {
		t.Run(raw, func(t *testing.T) {
			cfg, err := Load("", mapLookup(map[string]string{"MSSQL_TRUSTED_CONNECTION": raw}))
			require.NoError(t, err)
			assert.Equal(t, want, cfg.Database.TrustedConnection)
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad int", map[string]string{"DB_QUERY_TIMEOUT_SECONDS": "soon"}},
		{"bad bool", map[string]string{"MSSQL_ENCRYPT": "maybe"}},
		{"bad duration", map[string]string{"QUERYGATE_LLM_TIMEOUT": "forever"}},
		{"bad float", map[string]string{"QUERYGATE_LLM_TEMPERATURE": "warm"}},
		{"zero timeout", map[string]string{"DB_QUERY_TIMEOUT_SECONDS": "0"}},
		{"unknown driver", map[string]string{"QUERYGATE_DB_DRIVER": "oracle"}},
		{"bad level", map[string]string{"QUERYGATE_LOG_LEVEL": "loud"}},
		{"bad format", map[string]string{"QUERYGATE_LOG_FORMAT": "xml"}},
		{"negative rows", map[string]string{"QUERYGATE_QUERY_MAX_ROWS": "-1"}},
		{"negative tables", map[string]string{"QUERYGATE_SCHEMA_MAX_TABLES": "-3"}},
		{"archive without bucket", map[string]string{
			"QUERYGATE_ARCHIVE_ENABLED": "yes",
			"QUERYGATE_ARCHIVE_BUCKET":  "",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", mapLookup(tt.env))
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestResolve_ConnectionString(t *testing.T) {
	d := Defaults().Database
	d.ConnectionString = "sqlserver://reader:pw@sql01?database=Sales"

	cfg, err := d.Resolve()
	require.NoError(t, err)

	assert.Equal(t, database.DriverSQLServer, cfg.Driver)
	assert.Equal(t, d.ConnectionString, cfg.DSN)
	assert.Nil(t, cfg.Params)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
}

func TestResolve_DiscreteParams(t *testing.T) {
	d := Defaults().Database
	d.Server = "sql01"
	d.Database = "Sales"
	d.User = "reader"
	d.Password = "pw"
	d.QueryTimeoutSeconds = 5

	cfg, err := d.Resolve()
	require.NoError(t, err)

	require.NotNil(t, cfg.Params)
	assert.Empty(t, cfg.DSN)
	assert.Equal(t, database.Params{
		Server:                 "sql01",
		Database:               "Sales",
		Encrypt:                true,
		TrustServerCertificate: true,
		User:                   "reader",
		Password:               "pw",
	}, *cfg.Params)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
}

func TestResolve_TrustedConnectionNeedsNoCredentials(t *testing.T) {
	d := Defaults().Database
	d.Server = "sql01"
	d.Database = "Sales"
	d.TrustedConnection = true

	cfg, err := d.Resolve()
	require.NoError(t, err)
	assert.True(t, cfg.Params.TrustedConnection)
	assert.Empty(t, cfg.Params.User)
}

func TestResolve_Keyring(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(KeyringService, "reader", "from-keyring"))

	d := Defaults().Database
	d.Server = "sql01"
	d.Database = "Sales"
	d.User = "reader"
	d.PasswordKeyring = true

	cfg, err := d.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", cfg.Params.Password)
}

func TestResolve_KeyringMissingEntry(t *testing.T) {
	keyring.MockInit()

	d := Defaults().Database
	d.Server = "sql01"
	d.Database = "Sales"
	d.User = "nobody"
	d.PasswordKeyring = true

	_, err := d.Resolve()
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.True(t, errors.Is(err, keyring.ErrNotFound))
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DatabaseConfig)
	}{
		{"nothing configured", func(d *DatabaseConfig) {}},
		{"both styles", func(d *DatabaseConfig) {
			d.ConnectionString = "sqlserver://x"
			d.Server = "sql01"
		}},
		{"server without database", func(d *DatabaseConfig) {
			d.Server = "sql01"
			d.User, d.Password = "u", "p"
		}},
		{"database without server", func(d *DatabaseConfig) {
			d.Database = "Sales"
			d.User, d.Password = "u", "p"
		}},
		{"user without password", func(d *DatabaseConfig) {
			d.Server, d.Database, d.User = "sql01", "Sales", "u"
		}},
		{"password without user", func(d *DatabaseConfig) {
			d.Server, d.Database, d.Password = "sql01", "Sales", "p"
		}},
		{"unknown driver", func(d *DatabaseConfig) {
			d.Driver = "db2"
			d.ConnectionString = "x"
		}},
		{"zero timeout", func(d *DatabaseConfig) {
			d.ConnectionString = "x"
			d.QueryTimeoutSeconds = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Defaults().Database
			tt.mutate(&d)
			_, err := d.Resolve()
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err), "got %v", err)
		})
	}
}
