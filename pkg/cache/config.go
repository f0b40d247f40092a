// Package cache evicts device keys from the Redis cache
package cache

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Static errors for configuration validation
var (
	ErrHostRequired     = errors.New("redis host is required")
	ErrInvalidPort      = errors.New("redis port must be between 1 and 65535")
	ErrInvalidDB        = errors.New("redis database index must not be negative")
	ErrInvalidBatchSize = errors.New("redis scan batch size must be positive")
	ErrInvalidTimeout   = errors.New("redis connect timeout must be a duration of at least 1ms, e.g. 5s")
)

// Config holds Redis connection and eviction settings
type Config struct {
	Host           string        `yaml:"host" default:"127.0.0.1"`
	Port           int           `yaml:"port" default:"6379"`
	Password       string        `yaml:"password"`
	DBList         []int         `yaml:"dbList" default:"[0]"`
	KeyPrefixList  []string      `yaml:"keyPrefixList"` // literal prefixes, glob characters are escaped
	Enabled        bool          `yaml:"enableCleanup" default:"true"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" default:"5s"`
	BatchSize      int64         `yaml:"batchSize" default:"1000"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrHostRequired
	}

	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}

	for _, db := range c.DBList {
		if db < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidDB, db)
		}
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.ConnectTimeout < time.Millisecond {
		return ErrInvalidTimeout
	}

	return nil
}

// Address returns host:port
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Prefixes returns the configured prefixes with empty entries dropped
func (c *Config) Prefixes() []string {
	prefixes := make([]string, 0, len(c.KeyPrefixList))

	for _, p := range c.KeyPrefixList {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}

	return prefixes
}
