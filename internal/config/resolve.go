package config

import (
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
)

// KeyringService is the OS keyring service holding database passwords.
const KeyringService = "querygate"

// Resolve turns the settings into a database.Config using exactly one of
// the two styles: a connection string, or discrete parameters.
func (d DatabaseConfig) Resolve() (*database.Config, error) {
	driver, ok := database.ParseDriver(d.Driver)
	if !ok {
		return nil, errs.New(errs.ErrKindConfiguration, fmt.Sprintf("unsupported database driver %q", d.Driver))
	}
	if d.QueryTimeoutSeconds <= 0 {
		return nil, errs.New(errs.ErrKindConfiguration, "query timeout must be positive")
	}

	out := &database.Config{
		Driver:         driver,
		ConnectTimeout: d.QueryTimeout(),
		QueryTimeout:   d.QueryTimeout(),
	}

	discrete := d.Server != "" || d.Database != ""
	switch {
	case d.ConnectionString != "" && discrete:
		return nil, errs.New(errs.ErrKindConfiguration,
			"set either a connection string or server/database parameters, not both")
	case d.ConnectionString != "":
		out.DSN = d.ConnectionString
		return out, nil
	case !discrete:
		return nil, errs.New(errs.ErrKindConfiguration,
			"no database connection configured: set connection_string, or server and database "+
				"plus user/password (or trusted_connection)")
	}

	if d.Server == "" || d.Database == "" {
		return nil, errs.New(errs.ErrKindConfiguration, "discrete connection settings require both server and database")
	}

	params := &database.Params{
		Server:                 d.Server,
		Database:               d.Database,
		Encrypt:                d.Encrypt,
		TrustServerCertificate: d.TrustServerCertificate,
		TrustedConnection:      d.TrustedConnection,
		User:                   d.User,
		Password:               d.Password,
	}
	if !d.TrustedConnection {
		if params.Password == "" && d.PasswordKeyring && params.User != "" {
			secret, err := keyring.Get(KeyringService, params.User)
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindConfiguration,
					fmt.Sprintf("cannot read password for %q from the OS keyring", params.User), err)
			}
			params.Password = secret
		}
		if params.User == "" || params.Password == "" {
			return nil, errs.New(errs.ErrKindConfiguration,
				"discrete connection settings require user and password unless trusted_connection is set")
		}
	}
	out.Params = params
	return out, nil
}
