// Package rendering turns correction parameters into SQL statements
package rendering

import (
	"errors"
	"fmt"
)

const (
	// SyntaxFormat uses {sn} and {ip} placeholders with {{ and }} as literal braces.
	SyntaxFormat = "format"
	// SyntaxGo uses Go text/template with Sprig functions.
	SyntaxGo = "go"

	// DefaultTemplate updates the real serial number of the box at an address.
	DefaultTemplate = "update aibox.t_aibox_devinfo set real_sn = '{sn}' where bord_ip = '{ip}';"
)

// Static errors for configuration validation
var (
	ErrTemplateRequired = errors.New("sql template is required")
	ErrUnknownSyntax    = errors.New("unknown template syntax")
)

// Config holds the statement template settings
type Config struct {
	Template string `yaml:"sqlTemplate" default:"update aibox.t_aibox_devinfo set real_sn = '{sn}' where bord_ip = '{ip}';"`
	Syntax   string `yaml:"templateSyntax" default:"format"`
}

// Validate checks the configuration shape. Placeholder checks happen in Compile.
func (c *Config) Validate() error {
	if c.Template == "" {
		return ErrTemplateRequired
	}

	switch c.Syntax {
	case SyntaxFormat, SyntaxGo:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSyntax, c.Syntax)
	}
}
