package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ErrJobRequired is returned when a push gateway is configured without a job name
var ErrJobRequired = errors.New("metrics job name is required")

// Config holds Pushgateway settings. Pushing is disabled when PushgatewayURL is empty.
type Config struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job" default:"devsync"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PushgatewayURL != "" && c.Job == "" {
		return ErrJobRequired
	}

	return nil
}

// Push sends every metric of gatherer to the configured Pushgateway, replacing
// the previous push for the same job and grouping labels.
func Push(ctx context.Context, cfg *Config, gatherer prometheus.Gatherer, grouping map[string]string) error {
	if cfg.PushgatewayURL == "" {
		return nil
	}

	pusher := push.New(cfg.PushgatewayURL, cfg.Job).Gatherer(gatherer)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", cfg.PushgatewayURL, err)
	}

	return nil
}
