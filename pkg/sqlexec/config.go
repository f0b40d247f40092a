// Package sqlexec applies rendered statements to the relational store
package sqlexec

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported database/sql driver names
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Static errors for configuration validation
var (
	ErrUnsupportedDriver = errors.New("unsupported sql driver")
	ErrHostRequired      = errors.New("database host is required")
	ErrDatabaseRequired  = errors.New("database name is required")
	ErrInvalidTimeout    = errors.New("connect timeout must be a duration of at least 1ms, e.g. 5s")
)

// Config contains relational store connection settings. Port falls back to
// the driver's standard port when zero; for sqlite3 Database is a file path.
type Config struct {
	Driver         string            `yaml:"driver" default:"mysql"`
	Host           string            `yaml:"host" default:"localhost"`
	Port           int               `yaml:"port"`
	Username       string            `yaml:"username" default:"root"`
	Password       string            `yaml:"password" default:"password"`
	Database       string            `yaml:"db" default:"your_database"`
	ConnectTimeout time.Duration     `yaml:"connectTimeout" default:"5s"`
	Params         map[string]string `yaml:"params,omitempty"`
	Enabled        bool              `yaml:"enableSqlExecution" default:"false"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Host == "" {
			return ErrHostRequired
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}

	if c.Database == "" {
		return ErrDatabaseRequired
	}

	if c.ConnectTimeout < time.Millisecond {
		return ErrInvalidTimeout
	}

	return nil
}

// DSN builds the driver-specific data source name
func (c *Config) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		return c.postgresDSN()
	case DriverSQLite:
		return c.Database
	default:
		return c.mysqlDSN()
	}
}

func (c *Config) address(defaultPort int) string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c *Config) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.address(3306)
	cfg.DBName = c.Database
	cfg.Timeout = c.ConnectTimeout

	if len(c.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			cfg.Params[k] = v
		}
	}

	return cfg.FormatDSN()
}

func (c *Config) postgresDSN() string {
	// libpq treats 0 as "wait forever"
	seconds := max(1, int(c.ConnectTimeout.Round(time.Second)/time.Second))

	query := url.Values{}
	query.Set("connect_timeout", strconv.Itoa(seconds))

	if _, ok := c.Params["sslmode"]; !ok {
		query.Set("sslmode", "disable")
	}

	for k, v := range c.Params {
		query.Set(k, v)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.address(5432),
		Path:     "/" + c.Database,
		RawQuery: query.Encode(),
	}

	return u.String()
}

// Redacted returns a loggable description of the target without credentials
func (c *Config) Redacted() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("%s:%s", c.Driver, c.Database)
	}

	port := 3306
	if c.Driver == DriverPostgres {
		port = 5432
	}

	return fmt.Sprintf("%s://%s@%s/%s", c.Driver, c.Username, c.address(port), c.Database)
}
