// Package broker provides a client for the EMQX client-listing API
package broker

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const clientsPath = "/api/v4/clients"

// Static errors for configuration validation
var (
	ErrHostRequired    = errors.New("broker host or url is required")
	ErrInvalidPort     = errors.New("broker port must be between 1 and 65535")
	ErrInvalidTimeout  = errors.New("broker timeout must be positive")
	ErrInvalidURL      = errors.New("broker url must be an absolute http(s) url")
	ErrUsernameMissing = errors.New("broker username is required when a password is set")
)

// Config contains broker connection settings
type Config struct {
	// URL overrides IP and Port when set, e.g. https://emqx.local:8081
	URL      string        `yaml:"url"`
	IP       string        `yaml:"ip" default:"100.65.105.15"`
	Port     int           `yaml:"port" default:"8081"`
	Username string        `yaml:"username" default:"admin"`
	Password string        `yaml:"password" default:"public"`
	Timeout  time.Duration `yaml:"timeout" default:"5s"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" && c.IP == "" {
		return ErrHostRequired
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: %q", ErrInvalidURL, c.URL)
		}
	} else if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Username == "" && c.Password != "" {
		return ErrUsernameMissing
	}

	return nil
}

// ClientsURL returns the full URL of the client-listing endpoint
func (c *Config) ClientsURL() string {
	if c.URL != "" {
		return strings.TrimRight(c.URL, "/") + clientsPath
	}

	return fmt.Sprintf("http://%s:%d%s", c.IP, c.Port, clientsPath)
}
