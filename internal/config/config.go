// Package config loads querygate settings from an optional YAML file and
// the environment, and resolves the database connection.
//
// Precedence, lowest first: defaults, YAML file, legacy MSSQL_* / OPENAI_*
// variables, QUERYGATE_* variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/logger"
)

// LookupFunc reads one environment variable.
type LookupFunc func(string) (string, bool)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	Query    QueryConfig    `yaml:"query"`
	LLM      LLMConfig      `yaml:"llm"`
	HTTP     HTTPConfig     `yaml:"http"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig holds both connection styles; Resolve picks one.
type DatabaseConfig struct {
	Driver           string `yaml:"driver"`
	ConnectionString string `yaml:"connection_string"`

	Server                 string `yaml:"server"`
	Database               string `yaml:"database"`
	Encrypt                bool   `yaml:"encrypt"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate"`
	TrustedConnection      bool   `yaml:"trusted_connection"`
	User                   string `yaml:"user"`
	Password               string `yaml:"password"`
	// PasswordKeyring reads the password for User from the OS keyring.
	PasswordKeyring bool `yaml:"password_keyring"`

	QueryTimeoutSeconds int `yaml:"query_timeout_seconds"`
}

type SchemaConfig struct {
	MaxTables  int `yaml:"max_tables"`
	MaxColumns int `yaml:"max_columns"`
}

type QueryConfig struct {
	MaxRows int `yaml:"max_rows"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ArchiveConfig configures the optional MinIO/S3 answer archive.
type ArchiveConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Endpoint         string `yaml:"endpoint"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	UseSSL           bool   `yaml:"use_ssl"`
	Region           string `yaml:"region"`
	Bucket           string `yaml:"bucket"`
	Prefix           string `yaml:"prefix"`
	AutoCreateBucket bool   `yaml:"auto_create_bucket"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver:                 string(database.DriverSQLServer),
			Encrypt:                true,
			TrustServerCertificate: true,
			QueryTimeoutSeconds:    int(database.DefaultQueryTimeout / time.Second),
		},
		Schema: SchemaConfig{MaxTables: 25, MaxColumns: 400},
		Query:  QueryConfig{MaxRows: 100},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			Timeout:     60 * time.Second,
		},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Archive: ArchiveConfig{
			Endpoint:         "localhost:9000",
			Bucket:           "querygate",
			Prefix:           "answers/",
			AutoCreateBucket: true,
		},
	}
}

// LoadFromEnv loads path (optional) with the process environment.
func LoadFromEnv(path string) (Config, error) {
	return Load(path, os.LookupEnv)
}

// Load builds the configuration. An empty path skips the file.
func Load(path string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, errs.New(errs.ErrKindConfiguration, "lookup function is required")
	}

	cfg := Defaults()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyLegacy(lookup, &cfg); err != nil {
		return Config{}, err
	}
	if err := applyEnv(lookup, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "cannot open config file", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindConfiguration, fmt.Sprintf("invalid config file %s", path), err)
	}
	return nil
}

// applyLegacy honours the variable names of the original command-line tool.
func applyLegacy(lookup LookupFunc, cfg *Config) error {
	db := &cfg.Database
	steps := []error{
		applyString(lookup, "MSSQL_ODBC_CONN_STR", &db.ConnectionString),
		applyString(lookup, "MSSQL_SERVER", &db.Server),
		applyString(lookup, "MSSQL_DATABASE", &db.Database),
		applyString(lookup, "MSSQL_UID", &db.User),
		applyString(lookup, "MSSQL_PWD", &db.Password),
		applyBool(lookup, "MSSQL_ENCRYPT", &db.Encrypt),
		applyBool(lookup, "MSSQL_TRUST_SERVER_CERT", &db.TrustServerCertificate),
		applyBool(lookup, "MSSQL_TRUSTED_CONNECTION", &db.TrustedConnection),
		applyInt(lookup, "DB_QUERY_TIMEOUT_SECONDS", &db.QueryTimeoutSeconds),
		applyString(lookup, "OPENAI_API_KEY", &cfg.LLM.APIKey),
		applyString(lookup, "OPENAI_MODEL", &cfg.LLM.Model),
	}
	return errors.Join(steps...)
}

func applyEnv(lookup LookupFunc, cfg *Config) error {
	db := &cfg.Database
	steps := []error{
		applyString(lookup, "QUERYGATE_LOG_LEVEL", &cfg.Log.Level),
		applyString(lookup, "QUERYGATE_LOG_FORMAT", &cfg.Log.Format),

		applyString(lookup, "QUERYGATE_DB_DRIVER", &db.Driver),
		applyString(lookup, "QUERYGATE_DB_CONNECTION_STRING", &db.ConnectionString),
		applyString(lookup, "QUERYGATE_DB_SERVER", &db.Server),
		applyString(lookup, "QUERYGATE_DB_DATABASE", &db.Database),
		applyBool(lookup, "QUERYGATE_DB_ENCRYPT", &db.Encrypt),
		applyBool(lookup, "QUERYGATE_DB_TRUST_SERVER_CERTIFICATE", &db.TrustServerCertificate),
		applyBool(lookup, "QUERYGATE_DB_TRUSTED_CONNECTION", &db.TrustedConnection),
		applyString(lookup, "QUERYGATE_DB_USER", &db.User),
		applyString(lookup, "QUERYGATE_DB_PASSWORD", &db.Password),
		applyBool(lookup, "QUERYGATE_DB_PASSWORD_KEYRING", &db.PasswordKeyring),
		applyInt(lookup, "QUERYGATE_DB_QUERY_TIMEOUT_SECONDS", &db.QueryTimeoutSeconds),

		applyInt(lookup, "QUERYGATE_SCHEMA_MAX_TABLES", &cfg.Schema.MaxTables),
		applyInt(lookup, "QUERYGATE_SCHEMA_MAX_COLUMNS", &cfg.Schema.MaxColumns),
		applyInt(lookup, "QUERYGATE_QUERY_MAX_ROWS", &cfg.Query.MaxRows),

		applyString(lookup, "QUERYGATE_LLM_BASE_URL", &cfg.LLM.BaseURL),
		applyString(lookup, "QUERYGATE_LLM_API_KEY", &cfg.LLM.APIKey),
		applyString(lookup, "QUERYGATE_LLM_MODEL", &cfg.LLM.Model),
		applyFloat(lookup, "QUERYGATE_LLM_TEMPERATURE", &cfg.LLM.Temperature),
		applyDuration(lookup, "QUERYGATE_LLM_TIMEOUT", &cfg.LLM.Timeout),

		applyString(lookup, "QUERYGATE_HTTP_ADDR", &cfg.HTTP.Address),
		applyDuration(lookup, "QUERYGATE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout),
		applyDuration(lookup, "QUERYGATE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout),
		applyDuration(lookup, "QUERYGATE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout),
		applyDuration(lookup, "QUERYGATE_HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout),

		applyBool(lookup, "QUERYGATE_ARCHIVE_ENABLED", &cfg.Archive.Enabled),
		applyString(lookup, "QUERYGATE_ARCHIVE_ENDPOINT", &cfg.Archive.Endpoint),
		applyString(lookup, "QUERYGATE_ARCHIVE_ACCESS_KEY", &cfg.Archive.AccessKey),
		applyString(lookup, "QUERYGATE_ARCHIVE_SECRET_KEY", &cfg.Archive.SecretKey),
		applyBool(lookup, "QUERYGATE_ARCHIVE_USE_SSL", &cfg.Archive.UseSSL),
		applyString(lookup, "QUERYGATE_ARCHIVE_REGION", &cfg.Archive.Region),
		applyString(lookup, "QUERYGATE_ARCHIVE_BUCKET", &cfg.Archive.Bucket),
		applyString(lookup, "QUERYGATE_ARCHIVE_PREFIX", &cfg.Archive.Prefix),
		applyBool(lookup, "QUERYGATE_ARCHIVE_AUTO_CREATE_BUCKET", &cfg.Archive.AutoCreateBucket),
	}
	return errors.Join(steps...)
}

// Validate checks ranges and enumerations. Connection completeness is
// checked by DatabaseConfig.Resolve.
func (c Config) Validate() error {
	var problems []string
	if !logger.ValidLevel(c.Log.Level) {
		problems = append(problems, fmt.Sprintf("log.level %q is not a level", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "console" {
		problems = append(problems, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}
	if _, ok := database.ParseDriver(c.Database.Driver); !ok {
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.QueryTimeoutSeconds <= 0 {
		problems = append(problems, "database.query_timeout_seconds must be positive")
	}
	if c.Schema.MaxTables < 0 || c.Schema.MaxColumns < 0 {
		problems = append(problems, "schema limits must not be negative")
	}
	if c.Query.MaxRows < 0 {
		problems = append(problems, "query.max_rows must not be negative")
	}
	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		problems = append(problems, "archive.endpoint and archive.bucket are required when the archive is enabled")
	}
	if len(problems) > 0 {
		return errs.New(errs.ErrKindConfiguration, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// QueryTimeout returns the configured query timeout.
func (d DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutSeconds) * time.Second
}

// --- env helpers ---

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "invalid "+key, err)
	}
	*dst = value
	return nil
}

// applyBool also accepts yes/no and on/off.
func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "on":
		*dst = true
		return nil
	case "no", "off":
		*dst = false
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "invalid "+key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "invalid "+key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "invalid "+key, err)
	}
	*dst = value
	return nil
}
