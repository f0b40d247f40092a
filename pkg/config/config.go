// Package config loads the devsync run configuration
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/devsync/pkg/broker"
	"github.com/ethpandaops/devsync/pkg/cache"
	"github.com/ethpandaops/devsync/pkg/observability"
	"github.com/ethpandaops/devsync/pkg/rendering"
	"github.com/ethpandaops/devsync/pkg/sqlexec"
	"github.com/ethpandaops/devsync/pkg/transform"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config file is given
const DefaultPath = "./devsync.yaml"

// ErrOutputFileRequired is returned when no artifact path is configured
var ErrOutputFileRequired = errors.New("outputFile is required")

// Config is the configuration of a single devsync run
type Config struct {
	// Logging level
	Logging string `yaml:"logging" default:"info"`

	// Broker client listing
	EMQX broker.Config `yaml:"emqx"`

	// Record selection and statement template live at the top level
	Transform transform.Config `yaml:",inline"`
	Rendering rendering.Config `yaml:",inline"`

	// Path of the generated SQL artifact
	OutputFile string `yaml:"outputFile" default:"output.sql"`

	// Statement execution target
	MySQL sqlexec.Config `yaml:"mysql"`

	// Cache eviction target
	Redis cache.Config `yaml:"redis"`

	// Optional Pushgateway
	Metrics observability.Config `yaml:"metrics"`
}

// Validate checks every section and reports the first invalid one
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if err := c.EMQX.Validate(); err != nil {
		return fmt.Errorf("emqx: %w", err)
	}

	if err := c.Transform.Validate(); err != nil {
		return fmt.Errorf("marker: %w", err)
	}

	if err := c.Rendering.Validate(); err != nil {
		return fmt.Errorf("sqlTemplate: %w", err)
	}

	if c.OutputFile == "" {
		return ErrOutputFileRequired
	}

	if err := c.MySQL.Validate(); err != nil {
		return fmt.Errorf("mysql: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	return nil
}

// Load reads the YAML file at path on top of the defaults. Environment
// variables referenced as $VAR or ${VAR} are expanded before parsing. A
// missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err == nil {
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(yamlFile))), config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}
